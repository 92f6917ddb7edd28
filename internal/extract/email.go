package extract

import (
	"context"
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/RecoveryAshes/MailFinder/internal/models"
	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+(?:\.[a-zA-Z0-9-]+)+`)
	emailExact   = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+(?:\.[a-zA-Z0-9-]+)+$`)
	base64Value  = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

	atMarker   = regexp.MustCompile(`(?i)\s*[(\[{]\s*at\s*[)\]}]\s*`)
	dotMarker  = regexp.MustCompile(`(?i)\s*[(\[{]\s*dot\s*[)\]}]\s*`)
	spacedAt   = regexp.MustCompile(`\s+@\s+`)
	// 仅还原紧跟在尚无点号的域名标签之后的空格点号,避免把句末句号并入地址
	spacedDot  = regexp.MustCompile(`(@[a-zA-Z0-9-]+)\s+\.\s+`)
	whitespace = regexp.MustCompile(`\s+`)
)

// DefaultBlockedKeywords 占位/不可回复地址
var DefaultBlockedKeywords = []string{"example", "noreply", "no-reply"}

// DefaultBlockedSuffixes 形似邮箱的资源文件名,如 logo@2x.png
var DefaultBlockedSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".js", ".css"}

const minBase64Len = 8

// PageGetter 提取iframe内容时使用的静态抓取能力
type PageGetter interface {
	Fetch(ctx context.Context, rawURL string) *models.FetchResult
}

// Options 提取选项
type Options struct {
	BlockedKeywords []string
	BlockedSuffixes []string
	MaxFrameDepth   int
}

// DefaultOptions 默认提取选项
func DefaultOptions() Options {
	return Options{
		BlockedKeywords: DefaultBlockedKeywords,
		BlockedSuffixes: DefaultBlockedSuffixes,
		MaxFrameDepth:   2,
	}
}

// OptionsFromConfig 从配置构建提取选项,空列表使用默认值
func OptionsFromConfig(cfg models.ExtractConfig) Options {
	opts := DefaultOptions()
	if len(cfg.BlockedKeywords) > 0 {
		opts.BlockedKeywords = cfg.BlockedKeywords
	}
	if len(cfg.BlockedSuffixes) > 0 {
		opts.BlockedSuffixes = cfg.BlockedSuffixes
	}
	if cfg.MaxFrameDepth > 0 {
		opts.MaxFrameDepth = cfg.MaxFrameDepth
	}
	return opts
}

// Extractor 邮箱提取引擎
type Extractor struct {
	getter PageGetter
	opts   Options
}

// NewExtractor 创建提取引擎; getter为nil时跳过iframe
func NewExtractor(getter PageGetter, opts Options) *Extractor {
	return &Extractor{getter: getter, opts: opts}
}

// Extract 从文档中提取候选邮箱,按发现顺序去重返回
// 顺序: 可见文本 → (文本无结果时)iframe → 锚点 → base64属性
func (e *Extractor) Extract(ctx context.Context, doc *goquery.Document, sourceURL string) []string {
	return e.extract(ctx, doc, sourceURL, 0)
}

func (e *Extractor) extract(ctx context.Context, doc *goquery.Document, sourceURL string, depth int) []string {
	set := newCandidateSet()
	if doc == nil {
		return set.list()
	}

	// 1. 可见文本
	for _, m := range emailPattern.FindAllString(NormalizeText(VisibleText(doc)), -1) {
		set.add(m)
	}

	// 2. iframe (仅在文本无结果时)
	if set.empty() && e.getter != nil && depth < e.opts.MaxFrameDepth {
		for _, frameURL := range e.frameURLs(doc, sourceURL) {
			if ctx.Err() != nil {
				break
			}
			res := e.getter.Fetch(ctx, frameURL)
			if !res.OK() {
				utils.Debugf("iframe抓取失败 [%s]: %v", frameURL, res.Err)
				continue
			}
			for _, m := range e.extract(ctx, res.Doc, res.URL, depth+1) {
				set.add(m)
			}
		}
	}

	// 3. 锚点: mailto目标与锚点文本
	for _, a := range Anchors(doc) {
		if len(a.Href) > 7 && strings.EqualFold(a.Href[:7], "mailto:") {
			for _, addr := range mailtoAddresses(a.Href[7:]) {
				set.add(addr)
			}
		}
		if a.Text != "" {
			for _, m := range emailPattern.FindAllString(NormalizeText(a.Text), -1) {
				set.add(m)
			}
		}
	}

	// 4. base64编码的属性值
	for _, v := range AttributeValues(doc) {
		if decoded, ok := decodeBase64Email(v); ok {
			set.add(decoded)
		}
	}

	return e.filter(set.list())
}

// NormalizeText 还原常见的邮箱混淆写法并归一化空白
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\u200b", "")
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = atMarker.ReplaceAllString(text, "@")
	text = dotMarker.ReplaceAllString(text, ".")
	text = spacedAt.ReplaceAllString(text, "@")
	text = spacedDot.ReplaceAllString(text, "${1}.")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// IsEmail 是否完整匹配邮箱语法
func IsEmail(s string) bool {
	return emailExact.MatchString(s)
}

func (e *Extractor) frameURLs(doc *goquery.Document, sourceURL string) []string {
	base, err := url.Parse(sourceURL)
	if err != nil {
		return nil
	}
	urls := make([]string, 0)
	for _, src := range IframeSources(doc) {
		ref, err := url.Parse(src)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		urls = append(urls, abs.String())
	}
	return urls
}

func (e *Extractor) filter(candidates []string) []string {
	kept := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if e.blocked(c) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func (e *Extractor) blocked(email string) bool {
	lower := strings.ToLower(email)
	for _, kw := range e.opts.BlockedKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	for _, suffix := range e.opts.BlockedSuffixes {
		if suffix != "" && strings.HasSuffix(lower, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}

// mailtoAddresses 解析mailto目标,可能包含逗号分隔的多个地址
func mailtoAddresses(target string) []string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	if unescaped, err := url.PathUnescape(target); err == nil {
		target = unescaped
	}
	addrs := make([]string, 0, 1)
	for _, part := range strings.Split(target, ",") {
		if part = strings.TrimSpace(part); part != "" {
			addrs = append(addrs, part)
		}
	}
	return addrs
}

func decodeBase64Email(value string) (string, bool) {
	if len(value) < minBase64Len || !base64Value.MatchString(value) {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(value, "="))
		if err != nil {
			return "", false
		}
	}
	decoded := strings.TrimSpace(string(raw))
	if strings.HasPrefix(decoded, "mailto:") {
		return decoded[len("mailto:"):], true
	}
	if IsEmail(decoded) {
		return decoded, true
	}
	return "", false
}

// candidateSet 保持插入顺序的去重集合(大小写不敏感)
type candidateSet struct {
	seen  map[string]struct{}
	items []string
}

func newCandidateSet() *candidateSet {
	return &candidateSet{seen: make(map[string]struct{})}
}

func (s *candidateSet) add(raw string) {
	email := cleanEmail(raw)
	if !IsEmail(email) {
		return
	}
	key := strings.ToLower(email)
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.items = append(s.items, email)
}

func (s *candidateSet) empty() bool { return len(s.items) == 0 }

func (s *candidateSet) list() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

func cleanEmail(raw string) string {
	email, _, _ := strings.Cut(raw, "?")
	return strings.TrimRight(strings.TrimSpace(email), ".")
}
