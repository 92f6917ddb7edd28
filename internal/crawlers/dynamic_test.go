package crawlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/MailFinder/internal/models"
)

// fakeTab 模拟浏览器标签页
type fakeTab struct {
	mu          sync.Mutex
	pages       map[string]string // URL -> HTML
	current     string
	controls    []Control
	navErr      error
	waitErr     error
	panicOnHTML bool
	activated   []int
	navigated   []string
	closed      bool
	onActivate  func(index int) error
}

func (t *fakeTab) Navigate(_ context.Context, rawURL string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.navErr != nil {
		return t.navErr
	}
	t.navigated = append(t.navigated, rawURL)
	t.current = rawURL
	return nil
}

func (t *fakeTab) WaitBody(context.Context, time.Duration) error { return t.waitErr }

func (t *fakeTab) HTML(context.Context) (string, error) {
	if t.panicOnHTML {
		panic("target crashed")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pages[t.current], nil
}

func (t *fakeTab) Controls(context.Context) ([]Control, error) { return t.controls, nil }

func (t *fakeTab) Activate(_ context.Context, index int) error {
	t.mu.Lock()
	t.activated = append(t.activated, index)
	t.mu.Unlock()
	if t.onActivate != nil {
		return t.onActivate(index)
	}
	return nil
}

func (t *fakeTab) CurrentURL(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, nil
}

func (t *fakeTab) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// fakeEngine 返回预置的标签页
type fakeEngine struct {
	mu      sync.Mutex
	newTab  func() *fakeTab
	openErr error
	opened  int
	closed  bool
}

func (e *fakeEngine) OpenTab(context.Context) (browserTab, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.openErr != nil {
		return nil, e.openErr
	}
	e.opened++
	return e.newTab(), nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func testRenderConfig(sessions int) models.RenderConfig {
	return models.RenderConfig{
		Enabled:     true,
		Engine:      models.EngineRod,
		Headless:    true,
		MaxSessions: sessions,
		Timeout:     1,
	}
}

func TestRenderSession_Fetch(t *testing.T) {
	tab := &fakeTab{pages: map[string]string{
		"https://acmewines.com/": `<html><body><p>info@acmewines.com</p></body></html>`,
	}}
	engine := &fakeEngine{newTab: func() *fakeTab { return tab }}
	r := newRenderer(testRenderConfig(1), func() (browserEngine, error) { return engine, nil })
	defer r.Close()

	session, err := r.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer session.Release()

	t.Run("渲染成功返回200", func(t *testing.T) {
		res := session.Fetch(context.Background(), "https://acmewines.com/", false)
		if res.Err != nil {
			t.Fatalf("Fetch() error = %v", res.Err)
		}
		if res.StatusCode != 200 || !strings.Contains(res.Doc.Text(), "info@acmewines.com") {
			t.Errorf("渲染结果错误: status=%d", res.StatusCode)
		}
	})

	t.Run("等待body失败不影响结果", func(t *testing.T) {
		tab.waitErr = errors.New("timeout")
		defer func() { tab.waitErr = nil }()
		res := session.Fetch(context.Background(), "https://acmewines.com/", false)
		if res.Err != nil {
			t.Errorf("等待失败应被忽略, got %v", res.Err)
		}
	})

	t.Run("空URL渲染当前页面", func(t *testing.T) {
		before := len(tab.navigated)
		res := session.Fetch(context.Background(), "", false)
		if res.Err != nil || res.URL != "https://acmewines.com/" {
			t.Errorf("Fetch(\"\") = %+v", res)
		}
		if len(tab.navigated) != before {
			t.Error("空URL不应导航")
		}
	})

	t.Run("导航失败返回RenderError", func(t *testing.T) {
		tab.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
		defer func() { tab.navErr = nil }()
		res := session.Fetch(context.Background(), "https://gone.example.org/", false)
		if res.Err == nil || res.Err.Kind != models.KindRenderError {
			t.Errorf("期望RenderError, got %+v", res.Err)
		}
	})

	t.Run("panic被转换为RenderError", func(t *testing.T) {
		tab.panicOnHTML = true
		defer func() { tab.panicOnHTML = false }()
		res := session.Fetch(context.Background(), "https://acmewines.com/", false)
		if res.Err == nil || res.Err.Kind != models.KindRenderError {
			t.Errorf("期望RenderError, got %+v", res.Err)
		}
	})
}

func TestRenderer_SessionLimit(t *testing.T) {
	engine := &fakeEngine{newTab: func() *fakeTab { return &fakeTab{pages: map[string]string{}} }}
	r := newRenderer(testRenderConfig(1), func() (browserEngine, error) { return engine, nil })
	defer r.Close()

	first, err := r.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := r.Acquire(ctx); err == nil {
		t.Fatal("会话数达到上限时应阻塞直到超时")
	}

	first.Release()
	first.Release() // 重复释放无副作用

	second, err := r.Acquire(context.Background())
	if err != nil {
		t.Fatalf("释放后应能再次获取: %v", err)
	}
	second.Release()

	if sessions, _, _ := r.Stats(); sessions != 2 {
		t.Errorf("会话数 = %d, want 2", sessions)
	}
}

func TestRenderer_LaunchFailures(t *testing.T) {
	launches := 0
	r := newRenderer(testRenderConfig(1), func() (browserEngine, error) {
		launches++
		return nil, errors.New("chrome not found")
	})

	for i := 0; i < 6; i++ {
		if _, err := r.Acquire(context.Background()); err == nil {
			t.Fatal("启动失败时Acquire应返回错误")
		}
	}
	if launches != r.maxBrowserRetries+1 {
		t.Errorf("启动尝试次数 = %d, want %d", launches, r.maxBrowserRetries+1)
	}
}

func TestRenderer_CrashRestart(t *testing.T) {
	broken := &fakeEngine{openErr: errors.New("websocket closed")}
	healthy := &fakeEngine{newTab: func() *fakeTab { return &fakeTab{pages: map[string]string{}} }}
	engines := []*fakeEngine{broken, healthy}

	r := newRenderer(testRenderConfig(1), func() (browserEngine, error) {
		e := engines[0]
		engines = engines[1:]
		return e, nil
	})
	defer r.Close()

	if _, err := r.Acquire(context.Background()); !errors.Is(err, ErrBrowserCrashed) {
		t.Fatalf("期望ErrBrowserCrashed, got %v", err)
	}
	if !broken.closed {
		t.Error("崩溃的浏览器应被关闭")
	}

	session, err := r.Acquire(context.Background())
	if err != nil {
		t.Fatalf("重启后Acquire失败: %v", err)
	}
	session.Release()
}

func TestRenderer_Closed(t *testing.T) {
	r := newRenderer(testRenderConfig(1), func() (browserEngine, error) {
		return &fakeEngine{newTab: func() *fakeTab { return &fakeTab{} }}, nil
	})
	r.Close()
	if _, err := r.Acquire(context.Background()); !errors.Is(err, ErrRendererClosed) {
		t.Errorf("期望ErrRendererClosed, got %v", err)
	}
}

func TestFetchRendered(t *testing.T) {
	tab := &fakeTab{pages: map[string]string{"https://acmewines.com/": `<p>hello</p>`}}
	engine := &fakeEngine{newTab: func() *fakeTab { return tab }}
	r := newRenderer(testRenderConfig(1), func() (browserEngine, error) { return engine, nil })
	defer r.Close()

	res, session := FetchRendered(context.Background(), r, nil, "https://acmewines.com/", false)
	if res.Err != nil || session == nil {
		t.Fatalf("首次渲染应获取会话: %+v", res.Err)
	}

	res, again := FetchRendered(context.Background(), r, session, "https://acmewines.com/", false)
	if res.Err != nil || again != session {
		t.Error("已有会话时应复用")
	}
	if engine.opened != 1 {
		t.Errorf("标签页打开次数 = %d, want 1", engine.opened)
	}
	session.Release()

	r.Close()
	res, none := FetchRendered(context.Background(), r, nil, "https://acmewines.com/", false)
	if none != nil || res.Err == nil || res.Err.Kind != models.KindRenderError {
		t.Errorf("获取失败应返回RenderError与nil会话, got %+v", res.Err)
	}
}
