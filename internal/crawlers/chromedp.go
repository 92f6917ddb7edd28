package crawlers

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/RecoveryAshes/MailFinder/internal/models"
	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

// chromedpEngine 基于chromedp的浏览器,每个会话一个独立target
type chromedpEngine struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	timeout       time.Duration
}

// launchChromedp 启动浏览器
func launchChromedp(config models.RenderConfig, userAgent string) (*chromedpEngine, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	if config.BrowserPath != "" {
		opts = append(opts, chromedp.ExecPath(config.BrowserPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// 空Run启动浏览器进程
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}
	utils.Debugf("chromedp浏览器已启动")

	return &chromedpEngine{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		timeout:       config.TimeoutDuration(),
	}, nil
}

// OpenTab 新建target
func (e *chromedpEngine) OpenTab(ctx context.Context) (browserTab, error) {
	tabCtx, cancel := chromedp.NewContext(e.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}
	return &chromedpTab{ctx: tabCtx, cancel: cancel, timeout: e.timeout}, nil
}

// Close 关闭浏览器进程
func (e *chromedpEngine) Close() error {
	e.browserCancel()
	e.allocCancel()
	return nil
}

// chromedpTab 标签页
type chromedpTab struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// run 在标签页上执行动作,受超时与调用方ctx双重约束
func (t *chromedpTab) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (t *chromedpTab) Navigate(ctx context.Context, rawURL string) error {
	return t.run(ctx, t.timeout, chromedp.Navigate(rawURL))
}

func (t *chromedpTab) WaitBody(ctx context.Context, timeout time.Duration) error {
	return t.run(ctx, timeout, chromedp.WaitReady("body", chromedp.ByQuery))
}

func (t *chromedpTab) HTML(ctx context.Context) (string, error) {
	var content string
	err := t.run(ctx, t.timeout, chromedp.OuterHTML("html", &content, chromedp.ByQuery))
	return content, err
}

func (t *chromedpTab) Controls(ctx context.Context) ([]Control, error) {
	controls := make([]Control, 0)
	expr := "(" + collectControlsJS + ")()"
	if err := t.run(ctx, t.timeout, chromedp.Evaluate(expr, &controls)); err != nil {
		return nil, err
	}
	return controls, nil
}

func (t *chromedpTab) Activate(ctx context.Context, index int) error {
	var ok bool
	expr := fmt.Sprintf("(%s)(%d)", activateControlJS, index)
	return t.run(ctx, t.timeout, chromedp.Evaluate(expr, &ok))
}

func (t *chromedpTab) CurrentURL(ctx context.Context) (string, error) {
	var location string
	err := t.run(ctx, t.timeout, chromedp.Location(&location))
	return location, err
}

// Close 关闭target
func (t *chromedpTab) Close() error {
	t.cancel()
	return nil
}
