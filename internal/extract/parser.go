// Package extract 实现对已解析文档的纯函数提取: 链接、文本、邮箱、联系页与主邮箱选择
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Anchor 锚点元数据
type Anchor struct {
	Href string // 原始href属性
	Text string // 去除首尾空白的可见文本
}

// HrefsByClass 返回class属性与给定class串匹配的所有<a>的href
// 多个class时要求整串相等(空白归一化后);单个class时只需包含该class
func HrefsByClass(doc *goquery.Document, class string) []string {
	hrefs := make([]string, 0)
	if doc == nil {
		return hrefs
	}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if !classMatches(s, class) {
			return
		}
		if href, ok := s.Attr("href"); ok && strings.TrimSpace(href) != "" {
			hrefs = append(hrefs, strings.TrimSpace(href))
		}
	})
	return hrefs
}

// CompanyName 第一个匹配class的<a>的文本
func CompanyName(doc *goquery.Document, class string) (string, bool) {
	if doc == nil {
		return "", false
	}
	var name string
	found := false
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !classMatches(s, class) {
			return true
		}
		name = strings.TrimSpace(s.Text())
		found = true
		return false
	})
	return name, found
}

// Location 第一个匹配CSS选择器的元素文本
func Location(doc *goquery.Document, selector string) (string, bool) {
	if doc == nil || strings.TrimSpace(selector) == "" {
		return "", false
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(sel.Text()), true
}

// VisibleText 以单个空格连接文档中的可见文本节点,跳过script与style
func VisibleText(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder
	for _, n := range doc.Nodes {
		collectText(n, &b)
	}
	return b.String()
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(n.Data)
		return
	}
	if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// Anchors 按文档顺序返回所有<a>
func Anchors(doc *goquery.Document) []Anchor {
	anchors := make([]Anchor, 0)
	if doc == nil {
		return anchors
	}
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		anchors = append(anchors, Anchor{
			Href: strings.TrimSpace(href),
			Text: strings.TrimSpace(s.Text()),
		})
	})
	return anchors
}

// IframeSources 所有iframe的src
func IframeSources(doc *goquery.Document) []string {
	srcs := make([]string, 0)
	if doc == nil {
		return srcs
	}
	doc.Find("iframe[src]").Each(func(_ int, s *goquery.Selection) {
		if src := strings.TrimSpace(s.AttrOr("src", "")); src != "" {
			srcs = append(srcs, src)
		}
	})
	return srcs
}

// AttributeValues 所有元素的全部属性值(已去除首尾空白)
func AttributeValues(doc *goquery.Document) []string {
	values := make([]string, 0)
	if doc == nil {
		return values
	}
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			for _, attr := range n.Attr {
				if v := strings.TrimSpace(attr.Val); v != "" {
					values = append(values, v)
				}
			}
		}
	})
	return values
}

func classMatches(s *goquery.Selection, class string) bool {
	want := strings.Fields(class)
	if len(want) == 0 {
		return false
	}
	have := strings.Fields(s.AttrOr("class", ""))
	if len(want) == 1 {
		for _, c := range have {
			if c == want[0] {
				return true
			}
		}
		return false
	}
	return strings.Join(have, " ") == strings.Join(want, " ")
}
