package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/RecoveryAshes/MailFinder/internal/models"
)

// ContactKeywords 联系页关键字(多语言)
var ContactKeywords = []string{"contact", "kontakt", "contat", "kapcsolat", "quem-somos", "impressum"}

// cookieKeyword 跳过cookie横幅中的链接
const cookieKeyword = "cookie"

// FindContactPage 在文档中定位联系页链接
// href与文本同时命中为强候选,任一命中为弱候选;有强候选时返回第一个强候选
func FindContactPage(doc *goquery.Document, baseURL string) (models.ContactPageCandidate, bool) {
	if doc == nil {
		return models.ContactPageCandidate{}, false
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return models.ContactPageCandidate{}, false
	}

	var weak *models.ContactPageCandidate
	for _, a := range Anchors(doc) {
		if a.Href == "" {
			continue
		}
		text := strings.ToLower(a.Text)
		if strings.Contains(text, cookieKeyword) {
			continue
		}

		hrefMatch := containsAny(strings.ToLower(a.Href), ContactKeywords)
		textMatch := containsAny(text, ContactKeywords)
		if !hrefMatch && !textMatch {
			continue
		}

		abs, ok := resolveHTTP(base, a.Href)
		if !ok {
			continue
		}
		if hrefMatch && textMatch {
			return models.ContactPageCandidate{Href: abs, Confidence: models.ConfidenceStrong}, true
		}
		if weak == nil {
			weak = &models.ContactPageCandidate{Href: abs, Confidence: models.ConfidenceWeak}
		}
	}

	if weak != nil {
		return *weak, true
	}
	return models.ContactPageCandidate{}, false
}

// resolveHTTP 将href解析为绝对http(s) URL
func resolveHTTP(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
