package crawlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/semaphore"

	"github.com/RecoveryAshes/MailFinder/internal/models"
	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

// 错误类型定义
var (
	ErrBrowserCrashed    = errors.New("浏览器崩溃")
	ErrMaxRetriesReached = errors.New("已达最大重试次数")
	ErrRendererClosed    = errors.New("渲染器已关闭")
)

// browserTab 渲染流程需要的标签页操作
type browserTab interface {
	Navigate(ctx context.Context, rawURL string) error
	WaitBody(ctx context.Context, timeout time.Duration) error
	HTML(ctx context.Context) (string, error)
	Controls(ctx context.Context) ([]Control, error)
	Activate(ctx context.Context, index int) error
	CurrentURL(ctx context.Context) (string, error)
	Close() error
}

// browserEngine 浏览器实例,负责创建标签页
type browserEngine interface {
	OpenTab(ctx context.Context) (browserTab, error)
	Close() error
}

type engineLauncher func() (browserEngine, error)

// Renderer 渲染抓取器
// 浏览器在第一次Acquire时启动,同时存在的会话数受MaxSessions限制
type Renderer struct {
	config models.RenderConfig
	launch engineLauncher
	sem    *semaphore.Weighted

	mu       sync.Mutex
	engine   browserEngine
	restarts int // 浏览器重启次数
	closed   bool

	maxBrowserRetries int

	// 统计
	sessions atomic.Int64
	renders  atomic.Int64
	failures atomic.Int64
}

// NewRenderer 根据配置选择渲染引擎
func NewRenderer(config models.RenderConfig, resources models.ResourceConfig, headerProvider models.HeaderProvider) *Renderer {
	userAgent := models.UserAgentOf(headerProvider)

	var launch engineLauncher
	switch config.Engine {
	case models.EngineChromedp:
		launch = func() (browserEngine, error) {
			return launchChromedp(config, userAgent)
		}
	default:
		launch = func() (browserEngine, error) {
			return launchRod(config, resources, userAgent)
		}
	}
	return newRenderer(config, launch)
}

func newRenderer(config models.RenderConfig, launch engineLauncher) *Renderer {
	sessions := config.MaxSessions
	if sessions < 1 {
		sessions = 1
	}
	return &Renderer{
		config:            config,
		launch:            launch,
		sem:               semaphore.NewWeighted(int64(sessions)),
		maxBrowserRetries: 3,
	}
}

// Acquire 获取一个浏览器会话,会话数达到上限时阻塞
func (r *Renderer) Acquire(ctx context.Context) (models.RenderSession, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	engine, err := r.ensureEngine()
	if err != nil {
		r.sem.Release(1)
		return nil, err
	}

	tab, err := engine.OpenTab(ctx)
	if err != nil {
		r.sem.Release(1)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.discardEngine(engine)
		return nil, fmt.Errorf("%w: %v", ErrBrowserCrashed, err)
	}

	r.sessions.Add(1)
	return &renderSession{
		renderer: r,
		tab:      tab,
		timeout:  r.config.TimeoutDuration(),
	}, nil
}

// ensureEngine 启动或复用浏览器
func (r *Renderer) ensureEngine() (browserEngine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRendererClosed
	}
	if r.engine != nil {
		return r.engine, nil
	}
	if r.restarts > r.maxBrowserRetries {
		return nil, fmt.Errorf("浏览器启动失败: %w", ErrMaxRetriesReached)
	}

	engine, err := r.launch()
	if err != nil {
		r.restarts++
		utils.Errorf("浏览器启动失败(重试%d/%d): %v", r.restarts, r.maxBrowserRetries, err)
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}
	utils.Infof("🌐 浏览器已启动 (引擎=%s, 会话上限=%d)", r.config.Engine, r.config.MaxSessions)
	r.engine = engine
	return engine, nil
}

// discardEngine 关闭疑似崩溃的浏览器,下次Acquire时重启
func (r *Renderer) discardEngine(engine browserEngine) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engine != engine {
		return
	}
	r.restarts++
	utils.Warnf("浏览器崩溃,准备重启(重试%d/%d)", r.restarts, r.maxBrowserRetries)
	if err := engine.Close(); err != nil {
		utils.Debugf("关闭浏览器失败: %v", err)
	}
	r.engine = nil
}

// Close 关闭浏览器
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.engine == nil {
		return nil
	}
	err := r.engine.Close()
	r.engine = nil
	utils.Debugf("浏览器已关闭")
	return err
}

// Stats 返回会话数、渲染次数与失败次数
func (r *Renderer) Stats() (sessions, renders, failures int64) {
	return r.sessions.Load(), r.renders.Load(), r.failures.Load()
}

// renderSession 单个标签页会话
type renderSession struct {
	renderer *Renderer
	tab      browserTab
	timeout  time.Duration
	once     sync.Once
}

// Fetch 渲染页面并返回完整DOM,成功时状态码固定为200
func (s *renderSession) Fetch(ctx context.Context, rawURL string, bypassGate bool) (result *models.FetchResult) {
	s.renderer.renders.Add(1)
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("捕获panic: URL=%s, 错误=%v, 类型=渲染", rawURL, r)
			result = s.failed(rawURL, fmt.Errorf("panic: %v", r))
		}
	}()

	if rawURL != "" {
		if err := s.tab.Navigate(ctx, rawURL); err != nil {
			return s.failed(rawURL, fmt.Errorf("导航失败: %w", err))
		}
	}

	if bypassGate {
		if bypassed := bypassGates(ctx, s.tab); bypassed {
			utils.Debugf("已尝试绕过访问门槛: %s", rawURL)
		}
	}

	// 等待body出现,超时不视为失败
	if err := s.tab.WaitBody(ctx, s.timeout); err != nil {
		utils.Debugf("等待body失败 [%s]: %v", rawURL, err)
	}

	content, err := s.tab.HTML(ctx)
	if err != nil {
		return s.failed(rawURL, fmt.Errorf("读取页面内容失败: %w", err))
	}

	current, err := s.tab.CurrentURL(ctx)
	if err != nil || current == "" {
		current = rawURL
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return s.failed(rawURL, fmt.Errorf("解析HTML失败: %w", err))
	}

	return &models.FetchResult{
		URL:        current,
		Doc:        doc,
		StatusCode: 200,
	}
}

func (s *renderSession) failed(rawURL string, err error) *models.FetchResult {
	s.renderer.failures.Add(1)
	utils.Debugf("渲染失败 [%s]: %v", rawURL, err)
	return models.Failed(models.NewFetchError(models.KindRenderError, rawURL, err))
}

// Release 关闭标签页并归还会话名额
func (s *renderSession) Release() {
	s.once.Do(func() {
		if err := s.tab.Close(); err != nil {
			utils.Debugf("关闭标签页失败: %v", err)
		}
		s.renderer.sem.Release(1)
	})
}

// FetchRendered 使用已有会话渲染,session为nil时先从provider获取
// 返回的会话由调用方负责Release;获取失败时返回nil会话
func FetchRendered(ctx context.Context, provider models.RenderProvider, session models.RenderSession,
	rawURL string, bypassGate bool) (*models.FetchResult, models.RenderSession) {
	if session == nil {
		acquired, err := provider.Acquire(ctx)
		if err != nil {
			return models.Failed(models.NewFetchError(models.KindRenderError, rawURL, err)), nil
		}
		session = acquired
	}
	return session.Fetch(ctx, rawURL, bypassGate), session
}
