package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/RecoveryAshes/MailFinder/internal/extract"
	"github.com/RecoveryAshes/MailFinder/internal/models"
)

// fakePage 预置的静态响应
type fakePage struct {
	status int
	body   string
	kind   models.ErrorKind // 非空时返回分类错误
}

// fakeFetcher 按URL返回预置页面,未登记的URL视为连接失败
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]fakePage
	panicOn map[string]bool
	calls   []string
}

func newFakeFetcher(pages map[string]fakePage) *fakeFetcher {
	return &fakeFetcher{pages: pages, panicOn: map[string]bool{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) *models.FetchResult {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	page, ok := f.pages[rawURL]
	shouldPanic := f.panicOn[rawURL]
	f.mu.Unlock()

	if shouldPanic {
		panic("unexpected markup")
	}
	if !ok {
		return models.Failed(models.NewFetchError(models.KindConnection, rawURL, errors.New("connection refused")))
	}
	if page.kind != "" {
		return models.Failed(models.NewFetchError(page.kind, rawURL, errors.New(string(page.kind))))
	}
	status := page.status
	if status == 0 {
		status = 200
	}
	return &models.FetchResult{URL: rawURL, Doc: mustDoc(page.body), StatusCode: status}
}

func (f *fakeFetcher) count(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == rawURL {
			n++
		}
	}
	return n
}

// fakeRenderer 模拟浏览器会话
type fakeRenderer struct {
	mu         sync.Mutex
	pages      map[string]string // 普通渲染
	gatePages  map[string]string // 绕过门槛后的渲染
	acquireErr error
	acquired   int
	released   int
	renders    []string
}

func (r *fakeRenderer) Acquire(context.Context) (models.RenderSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.acquireErr != nil {
		return nil, r.acquireErr
	}
	r.acquired++
	return &fakeSession{renderer: r}, nil
}

type fakeSession struct {
	renderer *fakeRenderer
	current  string
	once     sync.Once
}

func (s *fakeSession) Fetch(_ context.Context, rawURL string, bypassGate bool) *models.FetchResult {
	r := s.renderer
	r.mu.Lock()
	defer r.mu.Unlock()

	if rawURL != "" {
		s.current = rawURL
	}
	pages, prefix := r.pages, "render:"
	if bypassGate {
		pages, prefix = r.gatePages, "gate:"
	}
	r.renders = append(r.renders, prefix+s.current)

	html, ok := pages[s.current]
	if !ok {
		return models.Failed(models.NewFetchError(models.KindRenderError, s.current, errors.New("net::ERR_FAILED")))
	}
	return &models.FetchResult{URL: s.current, Doc: mustDoc(html), StatusCode: 200}
}

func (s *fakeSession) Release() {
	s.once.Do(func() {
		s.renderer.mu.Lock()
		s.renderer.released++
		s.renderer.mu.Unlock()
	})
}

// fakeSink 收集记录
type fakeSink struct {
	mu      sync.Mutex
	records []models.CompanyRecord
	errors  []models.ErrorRecord
}

func (s *fakeSink) Add(_ string, rec models.CompanyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *fakeSink) LogError(rec models.ErrorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, rec)
}

func (s *fakeSink) emails() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Email)
	}
	return out
}

func mustDoc(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(err)
	}
	return doc
}

func newTestDiscoverer(fetcher *fakeFetcher, renderer models.RenderProvider) *Discoverer {
	return NewDiscoverer(fetcher, renderer, extract.NewExtractor(fetcher, extract.DefaultOptions()))
}
