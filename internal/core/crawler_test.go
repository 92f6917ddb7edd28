package core

import (
	"context"
	"errors"
	"testing"

	"github.com/RecoveryAshes/MailFinder/internal/models"
)

const (
	acmeHome    = "https://www.acmewines.com/"
	acmeContact = "https://www.acmewines.com/contact"
	emptyPage   = `<html><body><h1>Acme Wines</h1><p>Fine wines since 1901.</p></body></html>`
)

func TestDiscover_Stages(t *testing.T) {
	tests := []struct {
		name      string
		link      string
		pages     map[string]fakePage
		rendered  map[string]string
		gated     map[string]string
		wantEmail string
		wantStage models.Stage
		wantLink  string
	}{
		{
			name: "静态页面直接找到",
			link: acmeHome,
			pages: map[string]fakePage{
				acmeHome: {body: `<p>Write to sales@acmewines.com or info@acmewines.com</p>`},
			},
			wantEmail: "info@acmewines.com",
			wantStage: models.StageCheapFetch,
		},
		{
			name: "联系页找到",
			link: acmeHome,
			pages: map[string]fakePage{
				acmeHome:    {body: `<a href="/contact">Contact us</a>`},
				acmeContact: {body: `<a href="mailto:hello@acmewines.com">Mail</a>`},
			},
			wantEmail: "hello@acmewines.com",
			wantStage: models.StageContactPage,
		},
		{
			name: "其他4xx仍然提取",
			link: acmeHome,
			pages: map[string]fakePage{
				acmeHome: {status: 410, body: `<p>office@acmewines.com</p>`},
			},
			wantEmail: "office@acmewines.com",
			wantStage: models.StageCheapFetch,
		},
		{
			name: "渲染后找到",
			link: acmeHome,
			pages: map[string]fakePage{
				acmeHome: {body: emptyPage},
			},
			rendered: map[string]string{
				acmeHome: `<footer>info@acmewines.com</footer>`,
			},
			wantEmail: "info@acmewines.com",
			wantStage: models.StageRendered,
		},
		{
			name: "渲染后的联系页找到",
			link: acmeHome,
			pages: map[string]fakePage{
				acmeHome: {body: emptyPage},
			},
			rendered: map[string]string{
				acmeHome:                           `<nav><a href="/kontakt">Kontakt</a></nav>`,
				"https://www.acmewines.com/kontakt": `<p>wein (at) acmewines . com</p>`,
			},
			wantEmail: "wein@acmewines.com",
			wantStage: models.StageRenderedContact,
		},
		{
			name: "绕过门槛后找到",
			link: acmeHome,
			pages: map[string]fakePage{
				acmeHome: {body: emptyPage},
			},
			rendered: map[string]string{
				acmeHome: `<button>I am over 18</button>`,
			},
			gated: map[string]string{
				acmeHome: `<p>contact@acmewines.com</p>`,
			},
			wantEmail: "contact@acmewines.com",
			wantStage: models.StageGateBypass,
		},
		{
			name: "绕过门槛后的联系页找到",
			link: acmeHome,
			pages: map[string]fakePage{
				acmeHome: {body: emptyPage},
			},
			rendered: map[string]string{
				acmeHome:    emptyPage,
				acmeContact: `<p>mail@acmewines.com</p>`,
			},
			gated: map[string]string{
				acmeHome: `<a href="contact">Contact</a>`,
			},
			wantEmail: "mail@acmewines.com",
			wantStage: models.StageGateBypassContact,
		},
		{
			name: "404回退到首页",
			link: "https://www.acmewines.com/en/old-page",
			pages: map[string]fakePage{
				"https://www.acmewines.com/en/old-page": {status: 404, body: `<p>Not found</p>`},
				acmeHome:                                {body: `<p>info@acmewines.com</p>`},
			},
			wantEmail: "info@acmewines.com",
			wantStage: models.StageCheapFetch,
			wantLink:  acmeHome,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newFakeFetcher(tt.pages)
			renderer := &fakeRenderer{pages: tt.rendered, gatePages: tt.gated}
			d := newTestDiscoverer(fetcher, renderer)

			out := d.Discover(context.Background(), tt.link)

			if out.Email != tt.wantEmail {
				t.Errorf("Email = %q, want %q (err=%v)", out.Email, tt.wantEmail, out.Err)
			}
			if out.Stage != tt.wantStage {
				t.Errorf("Stage = %s, want %s", out.Stage, tt.wantStage)
			}
			if out.Err != nil {
				t.Errorf("找到邮箱时Err应为nil, got %v", out.Err)
			}
			wantLink := tt.wantLink
			if wantLink == "" {
				wantLink = tt.link
			}
			if out.Link != wantLink {
				t.Errorf("Link = %q, want %q", out.Link, wantLink)
			}
			if renderer.acquired > 1 {
				t.Errorf("每个公司最多获取一个会话, got %d", renderer.acquired)
			}
			if renderer.acquired != renderer.released {
				t.Errorf("会话未释放: acquired=%d released=%d", renderer.acquired, renderer.released)
			}
		})
	}
}

func TestDiscover_ForbiddenEscalatesToRender(t *testing.T) {
	fetcher := newFakeFetcher(map[string]fakePage{
		acmeHome:    {status: 403, body: `<h1>Forbidden</h1><a href="/contact">Contact</a>`},
		acmeContact: {body: `<p>info@acmewines.com</p>`},
	})
	renderer := &fakeRenderer{pages: map[string]string{
		acmeHome: `<p>sales@acmewines.com</p>`,
	}}
	d := newTestDiscoverer(fetcher, renderer)

	out := d.Discover(context.Background(), acmeHome)

	if out.Email != "sales@acmewines.com" || out.Stage != models.StageRendered {
		t.Fatalf("got email=%q stage=%s err=%v", out.Email, out.Stage, out.Err)
	}
	if n := fetcher.count(acmeHome); n != 1 {
		t.Errorf("403的链接不应再次静态抓取, 抓取次数 = %d", n)
	}
	if n := fetcher.count(acmeContact); n != 0 {
		t.Errorf("403后不应先查找联系页, 抓取次数 = %d", n)
	}
	if len(renderer.renders) == 0 || renderer.renders[0] != "render:"+acmeHome {
		t.Errorf("403后下一步应为渲染, renders = %v", renderer.renders)
	}
}

func TestDiscover_Terminal(t *testing.T) {
	tests := []struct {
		name           string
		link           string
		pages          map[string]fakePage
		wantKind       models.ErrorKind
		wantStatus     int
		wantSuppressed bool
	}{
		{
			name:     "非法URL",
			link:     "www.acmewines.com",
			pages:    map[string]fakePage{"www.acmewines.com": {kind: models.KindInvalidURL}},
			wantKind: models.KindInvalidURL,
		},
		{
			name:           "DNS失败不记录",
			link:           acmeHome,
			pages:          map[string]fakePage{acmeHome: {kind: models.KindDNSFailure}},
			wantKind:       models.KindDNSFailure,
			wantSuppressed: true,
		},
		{
			name:     "连接失败",
			link:     acmeHome,
			pages:    map[string]fakePage{},
			wantKind: models.KindConnection,
		},
		{
			name:     "超时",
			link:     acmeHome,
			pages:    map[string]fakePage{acmeHome: {kind: models.KindTimeout}},
			wantKind: models.KindTimeout,
		},
		{
			name:     "重定向循环",
			link:     acmeHome,
			pages:    map[string]fakePage{acmeHome: {kind: models.KindRedirectLoop}},
			wantKind: models.KindRedirectLoop,
		},
		{
			name:           "500不记录",
			link:           acmeHome,
			pages:          map[string]fakePage{acmeHome: {status: 500, body: "oops"}},
			wantKind:       models.KindHTTPStatus,
			wantStatus:     500,
			wantSuppressed: true,
		},
		{
			name:           "503不记录",
			link:           acmeHome,
			pages:          map[string]fakePage{acmeHome: {status: 503, body: "maintenance"}},
			wantKind:       models.KindHTTPStatus,
			wantStatus:     503,
			wantSuppressed: true,
		},
		{
			name:       "首页本身404",
			link:       acmeHome,
			pages:      map[string]fakePage{acmeHome: {status: 404}},
			wantKind:   models.KindHTTPStatus,
			wantStatus: 404,
		},
		{
			name: "回退后的首页仍然404",
			link: "https://www.acmewines.com/old",
			pages: map[string]fakePage{
				"https://www.acmewines.com/old": {status: 404},
				acmeHome:                        {status: 404},
			},
			wantKind:   models.KindHTTPStatus,
			wantStatus: 404,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newFakeFetcher(tt.pages)
			renderer := &fakeRenderer{pages: map[string]string{acmeHome: `<p>info@acmewines.com</p>`}}
			d := newTestDiscoverer(fetcher, renderer)

			out := d.Discover(context.Background(), tt.link)

			if out.Resolved() {
				t.Fatalf("不应找到邮箱, got %q", out.Email)
			}
			if out.Err == nil || out.Err.Kind != tt.wantKind {
				t.Fatalf("Err = %v, want kind %s", out.Err, tt.wantKind)
			}
			if tt.wantStatus != 0 && out.Err.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", out.Err.StatusCode, tt.wantStatus)
			}
			if out.Err.Suppressed() != tt.wantSuppressed {
				t.Errorf("Suppressed() = %v, want %v", out.Err.Suppressed(), tt.wantSuppressed)
			}
			if renderer.acquired != 0 {
				t.Error("终止类错误不应升级到渲染")
			}
		})
	}
}

func TestDiscover_Exhausted(t *testing.T) {
	fetcher := newFakeFetcher(map[string]fakePage{acmeHome: {body: emptyPage}})
	renderer := &fakeRenderer{
		pages:     map[string]string{acmeHome: emptyPage},
		gatePages: map[string]string{acmeHome: emptyPage},
	}
	d := newTestDiscoverer(fetcher, renderer)

	out := d.Discover(context.Background(), acmeHome)

	if out.Resolved() {
		t.Fatalf("不应找到邮箱, got %q", out.Email)
	}
	if out.Err == nil || out.Err.Kind != models.KindNotFound {
		t.Errorf("Err = %v, want NotFound", out.Err)
	}
	if out.Stage != models.StageGateBypass {
		t.Errorf("Stage = %s, want %s", out.Stage, models.StageGateBypass)
	}
	want := []string{"render:" + acmeHome, "gate:" + acmeHome}
	if len(renderer.renders) != len(want) || renderer.renders[0] != want[0] || renderer.renders[1] != want[1] {
		t.Errorf("renders = %v, want %v", renderer.renders, want)
	}
	if renderer.acquired != 1 || renderer.released != 1 {
		t.Errorf("会话应获取并释放一次: acquired=%d released=%d", renderer.acquired, renderer.released)
	}
}

func TestDiscover_RenderDisabled(t *testing.T) {
	fetcher := newFakeFetcher(map[string]fakePage{acmeHome: {body: emptyPage}})
	d := newTestDiscoverer(fetcher, nil)

	out := d.Discover(context.Background(), acmeHome)

	if out.Err == nil || out.Err.Kind != models.KindNotFound {
		t.Errorf("Err = %v, want NotFound", out.Err)
	}
	if out.Stage != models.StageCheapFetch {
		t.Errorf("Stage = %s, want %s", out.Stage, models.StageCheapFetch)
	}
}

func TestDiscover_AcquireFailure(t *testing.T) {
	fetcher := newFakeFetcher(map[string]fakePage{acmeHome: {body: emptyPage}})
	renderer := &fakeRenderer{acquireErr: errors.New("chrome not found")}
	d := newTestDiscoverer(fetcher, renderer)

	out := d.Discover(context.Background(), acmeHome)

	if out.Err == nil || out.Err.Kind != models.KindRenderError {
		t.Errorf("Err = %v, want RenderError", out.Err)
	}
	if out.Stage != models.StageRendered {
		t.Errorf("获取会话失败后不应继续绕过门槛, Stage = %s", out.Stage)
	}
}

func TestDiscover_CancelledBeforeRender(t *testing.T) {
	fetcher := newFakeFetcher(map[string]fakePage{acmeHome: {body: emptyPage}})
	renderer := &fakeRenderer{pages: map[string]string{acmeHome: `<p>info@acmewines.com</p>`}}
	d := newTestDiscoverer(fetcher, renderer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := d.Discover(ctx, acmeHome)

	if out.Resolved() || renderer.acquired != 0 {
		t.Errorf("取消后不应渲染: email=%q acquired=%d", out.Email, renderer.acquired)
	}
	if out.Err == nil || !errors.Is(out.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", out.Err)
	}
}
