package crawlers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/RecoveryAshes/MailFinder/internal/models"
	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

// rodEngine 基于go-rod的浏览器
type rodEngine struct {
	browser   *rod.Browser
	launcher  *launcher.Launcher
	pool      *PagePool
	monitor   *ResourceMonitor
	userAgent string
	timeout   time.Duration
}

// launchRod 启动浏览器
func launchRod(config models.RenderConfig, resources models.ResourceConfig, userAgent string) (*rodEngine, error) {
	l := launcher.New().
		Headless(config.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-gpu")
	if config.BrowserPath != "" {
		l = l.Bin(config.BrowserPath)
	}

	// 允许访问自签名、过期或主机名不匹配的HTTPS站点
	l = l.Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}
	utils.Debugf("浏览器已启动: %s", controlURL)

	monitor := NewResourceMonitor(ResourceMonitorConfigFrom(resources, config.MaxSessions))
	monitor.StartMonitoring(time.Second)

	return &rodEngine{
		browser:   browser,
		launcher:  l,
		pool:      NewPagePool(browser, monitor, config.MaxSessions),
		monitor:   monitor,
		userAgent: userAgent,
		timeout:   config.TimeoutDuration(),
	}, nil
}

// OpenTab 从标签页池获取标签页
func (e *rodEngine) OpenTab(ctx context.Context) (browserTab, error) {
	page, err := e.pool.AcquirePage(ctx)
	if err != nil {
		return nil, err
	}
	if e.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: e.userAgent}); err != nil {
			utils.Debugf("设置User-Agent失败: %v", err)
		}
	}
	return &rodTab{page: page, pool: e.pool, timeout: e.timeout}, nil
}

// Close 关闭浏览器进程
func (e *rodEngine) Close() error {
	e.monitor.StopMonitoring()
	if err := e.pool.Close(); err != nil {
		utils.Debugf("关闭标签页池失败: %v", err)
	}
	err := e.browser.Close()
	e.launcher.Kill()
	return err
}

// rodTab 标签页
type rodTab struct {
	page    *rod.Page
	pool    *PagePool
	timeout time.Duration
}

// run 在带超时的页面副本上执行fn,返回时释放计时器
func (t *rodTab) run(ctx context.Context, timeout time.Duration, fn func(p *rod.Page) error) error {
	p := t.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()
	return fn(p)
}

func (t *rodTab) Navigate(ctx context.Context, rawURL string) error {
	return t.run(ctx, t.timeout, func(p *rod.Page) error {
		return p.Navigate(rawURL)
	})
}

func (t *rodTab) WaitBody(ctx context.Context, timeout time.Duration) error {
	return t.run(ctx, timeout, func(p *rod.Page) error {
		_, err := p.Element("body")
		return err
	})
}

func (t *rodTab) HTML(ctx context.Context) (html string, err error) {
	err = t.run(ctx, t.timeout, func(p *rod.Page) error {
		html, err = p.HTML()
		return err
	})
	return html, err
}

func (t *rodTab) Controls(ctx context.Context) ([]Control, error) {
	controls := make([]Control, 0)
	err := t.run(ctx, t.timeout, func(p *rod.Page) error {
		res, err := p.Evaluate(rod.Eval(collectControlsJS))
		if err != nil {
			return err
		}
		if err := res.Value.Unmarshal(&controls); err != nil {
			return fmt.Errorf("解析页面按钮失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return controls, nil
}

func (t *rodTab) Activate(ctx context.Context, index int) error {
	return t.run(ctx, t.timeout, func(p *rod.Page) error {
		_, err := p.Evaluate(rod.Eval(activateControlJS, index))
		return err
	})
}

func (t *rodTab) CurrentURL(ctx context.Context) (current string, err error) {
	err = t.run(ctx, t.timeout, func(p *rod.Page) error {
		info, err := p.Info()
		if err != nil {
			return err
		}
		current = info.URL
		return nil
	})
	return current, err
}

// Close 将标签页归还到池中
func (t *rodTab) Close() error {
	t.pool.ReleasePage(t.page)
	return nil
}
