package extract

import (
	"context"
	"encoding/base64"
	"reflect"
	"testing"

	"github.com/RecoveryAshes/MailFinder/internal/models"
)

// fakeGetter 按URL返回预置HTML
type fakeGetter struct {
	pages map[string]string
	calls []string
	t     *testing.T
}

func (f *fakeGetter) Fetch(_ context.Context, rawURL string) *models.FetchResult {
	f.calls = append(f.calls, rawURL)
	html, ok := f.pages[rawURL]
	if !ok {
		return &models.FetchResult{URL: rawURL, StatusCode: 404, Doc: mustDoc(f.t, "<html></html>")}
	}
	return &models.FetchResult{URL: rawURL, StatusCode: 200, Doc: mustDoc(f.t, html)}
}

func extractFrom(t *testing.T, html string) []string {
	t.Helper()
	e := NewExtractor(nil, DefaultOptions())
	return e.Extract(context.Background(), mustDoc(t, html), "https://acmewines.com/")
}

func TestExtract_Channels(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("sales@acmewines.com"))
	encodedMailto := base64.StdEncoding.EncodeToString([]byte("mailto:orders@acmewines.com"))

	tests := []struct {
		name string
		html string
		want []string
	}{
		{"可见文本", `<p>Write to jane@acmewines.com today</p>`, []string{"jane@acmewines.com"}},
		{"mailto链接", `<a href="mailto:info@acmewines.com?subject=Hi"><img src="x.png"></a>`, []string{"info@acmewines.com"}},
		{"锚点文本混淆", `<a href="#">office (at) acmewines . com</a>`, []string{"office@acmewines.com"}},
		{"base64属性", `<span data-mail="` + encoded + `"></span>`, []string{"sales@acmewines.com"}},
		{"base64 mailto属性", `<span data-x="` + encodedMailto + `"></span>`, []string{"orders@acmewines.com"}},
		{"无邮箱", `<p>Nothing here</p>`, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractFrom(t, "<html><body>"+tt.html+"</body></html>")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtract_Obfuscation(t *testing.T) {
	t.Run("屏蔽关键字被过滤", func(t *testing.T) {
		got := extractFrom(t, `<p>jane (at) example . com</p>`)
		if len(got) != 0 {
			t.Errorf("Extract() = %v, want empty", got)
		}
	})

	t.Run("干净地址还原", func(t *testing.T) {
		got := extractFrom(t, `<p>jane (at) acmewines . com</p>`)
		want := []string{"jane@acmewines.com"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Extract() = %v, want %v", got, want)
		}
	})

	t.Run("方括号与零宽字符", func(t *testing.T) {
		got := extractFrom(t, "<p>bob[at]acme\u200bwines.com</p>")
		want := []string{"bob@acmewines.com"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Extract() = %v, want %v", got, want)
		}
	})
}

func TestExtract_SentenceEndingAfterEmail(t *testing.T) {
	tests := []struct {
		name string
		html string
		want []string
	}{
		{"粗体后接句号", `<p>Contact: <b>info@acme.com</b>. Thanks</p>`, []string{"info@acme.com"}},
		{"mailto后接句号", `<p><a href="mailto:info@acme.com">info@acme.com</a>. We reply</p>`, []string{"info@acme.com"}},
		{"空格句号", `<p>Mail info@acme.com . Call us</p>`, []string{"info@acme.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractFrom(t, "<html><body>"+tt.html+"</body></html>")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract() = %v, want %v", got, tt.want)
			}
			if primary := SelectPrimary(got, "https://www.acme.com"); primary != "info@acme.com" {
				t.Errorf("SelectPrimary() = %q, want info@acme.com", primary)
			}
		})
	}
}

func TestExtract_FiltersAndDedup(t *testing.T) {
	html := `<html><body>
<p>INFO@acmewines.com and info@acmewines.com</p>
<p>noreply@acmewines.com logo@2x.png</p>
<a href="mailto:info@acmewines.com">info@acmewines.com</a>
</body></html>`
	got := extractFrom(t, html)
	want := []string{"INFO@acmewines.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract() = %v, want %v", got, want)
	}
}

func TestExtract_Idempotent(t *testing.T) {
	doc := mustDoc(t, `<html><body><p>a@acme.com</p><a href="mailto:b@acme.com">x</a></body></html>`)
	before, _ := doc.Html()

	e := NewExtractor(nil, DefaultOptions())
	first := e.Extract(context.Background(), doc, "https://acme.com")
	second := e.Extract(context.Background(), doc, "https://acme.com")

	if !reflect.DeepEqual(first, second) {
		t.Errorf("两次提取结果不同: %v vs %v", first, second)
	}
	after, _ := doc.Html()
	if before != after {
		t.Error("提取不应修改文档")
	}
}

func TestExtract_Frames(t *testing.T) {
	getter := &fakeGetter{t: t, pages: map[string]string{
		"https://acmewines.com/widgets/contact.html": `<p>frame@acmewines.com</p>`,
	}}
	e := NewExtractor(getter, DefaultOptions())

	t.Run("文本无结果时进入iframe", func(t *testing.T) {
		doc := mustDoc(t, `<html><body><iframe src="/widgets/contact.html"></iframe>
<iframe src="javascript:void(0)"></iframe></body></html>`)
		got := e.Extract(context.Background(), doc, "https://acmewines.com/about")
		want := []string{"frame@acmewines.com"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Extract() = %v, want %v", got, want)
		}
	})

	t.Run("文本已有结果时跳过iframe", func(t *testing.T) {
		getter.calls = nil
		doc := mustDoc(t, `<html><body><p>top@acmewines.com</p><iframe src="/widgets/contact.html"></iframe></body></html>`)
		got := e.Extract(context.Background(), doc, "https://acmewines.com/")
		if len(getter.calls) != 0 {
			t.Errorf("不应抓取iframe: %v", getter.calls)
		}
		if !reflect.DeepEqual(got, []string{"top@acmewines.com"}) {
			t.Errorf("Extract() = %v", got)
		}
	})

	t.Run("嵌套深度受限", func(t *testing.T) {
		loop := &fakeGetter{t: t, pages: map[string]string{
			"https://acmewines.com/f": `<iframe src="/f"></iframe>`,
		}}
		opts := DefaultOptions()
		opts.MaxFrameDepth = 2
		ex := NewExtractor(loop, opts)
		doc := mustDoc(t, `<iframe src="/f"></iframe>`)
		ex.Extract(context.Background(), doc, "https://acmewines.com/")
		if len(loop.calls) != 2 {
			t.Errorf("iframe抓取次数 = %d, want 2", len(loop.calls))
		}
	})
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"jane (at) acme . com", "jane@acme.com"},
		{"jane {AT} acme (dot) com", "jane@acme.com"},
		{"jane @ acme.com", "jane@acme.com"},
		{"info@acme.com . Thanks", "info@acme.com . Thanks"},
		{"see page 3 . Next", "see page 3 . Next"},
		{"a  b\n\tc", "a b c"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeBase64Email(t *testing.T) {
	if _, ok := decodeBase64Email("c2hvcnQ="); ok {
		t.Error("非邮箱内容不应被接受")
	}
	if _, ok := decodeBase64Email("abc"); ok {
		t.Error("过短的值不应被解码")
	}
	if _, ok := decodeBase64Email("not base64!!"); ok {
		t.Error("非base64字符不应被解码")
	}
}
