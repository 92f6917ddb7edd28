package extract

import (
	"net/url"
	"strings"
)

// GenericMailboxKeywords 通用邮箱前缀关键字
var GenericMailboxKeywords = []string{"info", "contact", "office", "hello", "admin", "mail"}

// SelectPrimary 从候选邮箱中选出最相关的一个
// 优先级: 域名匹配且为通用邮箱 > 域名匹配 > 最短候选(同长度按原顺序)
func SelectPrimary(candidates []string, contextURL string) string {
	if len(candidates) == 0 {
		return ""
	}

	domain := contextDomain(contextURL)
	var firstMatched string
	if domain != "" {
		for _, email := range candidates {
			if !strings.Contains(strings.ToLower(email), domain) {
				continue
			}
			local, _, _ := strings.Cut(strings.ToLower(email), "@")
			if containsAny(local, GenericMailboxKeywords) {
				return email
			}
			if firstMatched == "" {
				firstMatched = email
			}
		}
	}
	if firstMatched != "" {
		return firstMatched
	}

	shortest := candidates[0]
	for _, email := range candidates[1:] {
		if len(email) < len(shortest) {
			shortest = email
		}
	}
	return shortest
}

// contextDomain 提取主机名并去除前导www.
func contextDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}
