package crawlers

import (
	"net/url"
	"strings"
	"sync"
)

// LinkRegistry 并发安全的已访问链接集合
// 用于列表页、公司详情页与公司官网链接的去重
type LinkRegistry struct {
	visited map[string]struct{}
	mu      sync.RWMutex
}

// NewLinkRegistry 创建链接集合
func NewLinkRegistry() *LinkRegistry {
	return &LinkRegistry{visited: make(map[string]struct{})}
}

// Claim 标记链接为已访问,首次标记时返回true
func (r *LinkRegistry) Claim(rawURL string) bool {
	key := CanonicalLink(rawURL)
	if key == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.visited[key]; ok {
		return false
	}
	r.visited[key] = struct{}{}
	return true
}

// IsVisited 检查链接是否已访问
func (r *LinkRegistry) IsVisited(rawURL string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.visited[CanonicalLink(rawURL)]
	return ok
}

// Count 已访问链接数
func (r *LinkRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.visited)
}

// Reset 清空集合
func (r *LinkRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visited = make(map[string]struct{})
}

// CanonicalLink 去重键: 小写scheme与主机,去掉片段与路径末尾的"/"
func CanonicalLink(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	parsed.RawPath = ""
	return parsed.String()
}
