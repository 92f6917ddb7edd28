package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

const (
	// maxPageUses 标签页复用次数上限,超过后销毁重建
	maxPageUses = 50
	// resetTimeout 清理单个标签页的超时
	resetTimeout = 5 * time.Second
)

var errPoolClosed = errors.New("标签页池已关闭")

// pooledPage 标签页及其使用记录
type pooledPage struct {
	page     *rod.Page
	uses     int
	lastUsed time.Time
}

// PagePool 标签页池
// 公司之间复用标签页;归还时清空Cookie与存储,避免上一家公司的同意弹窗状态带到下一家
type PagePool struct {
	browser *rod.Browser
	monitor *ResourceMonitor

	mu     sync.Mutex
	pages  map[*rod.Page]*pooledPage
	closed bool

	idle chan *pooledPage
}

// NewPagePool 创建标签页池,capacity为同时空闲的标签页上限
func NewPagePool(browser *rod.Browser, monitor *ResourceMonitor, capacity int) *PagePool {
	if capacity < 1 {
		capacity = 1
	}
	return &PagePool{
		browser: browser,
		monitor: monitor,
		pages:   make(map[*rod.Page]*pooledPage, capacity),
		idle:    make(chan *pooledPage, capacity),
	}
}

// AcquirePage 获取一个可用的标签页
// 优先复用空闲标签页;达到资源上限时等待归还
func (pp *PagePool) AcquirePage(ctx context.Context) (*rod.Page, error) {
	select {
	case entry := <-pp.idle:
		return entry.page, nil
	default:
	}

	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil, errPoolClosed
	}
	size := len(pp.pages)
	pp.mu.Unlock()

	limit := pp.monitor.CalculateMaxTabs()
	mustWait := size >= limit
	if !mustWait {
		if ok, reason := pp.monitor.CheckResourceAvailability(); !ok && size > 0 {
			log.Warn().Msgf("资源不足,等待空闲标签页: %s", reason)
			mustWait = true
		}
	}
	if mustWait {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case entry := <-pp.idle:
			return entry.page, nil
		}
	}

	page, err := pp.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("创建标签页失败(浏览器可能已崩溃): %w", err)
	}

	pp.mu.Lock()
	pp.pages[page] = &pooledPage{page: page, lastUsed: time.Now()}
	size = len(pp.pages)
	pp.mu.Unlock()

	log.Debug().Msgf("创建新标签页,当前标签页数: %d, 上限: %d", size, limit)
	return page, nil
}

// ReleasePage 清理标签页并放回空闲队列
// 清理两次都失败、复用次数过多或池已关闭时直接销毁
func (pp *PagePool) ReleasePage(page *rod.Page) {
	if page == nil {
		return
	}

	pp.mu.Lock()
	entry, ok := pp.pages[page]
	closed := pp.closed
	pp.mu.Unlock()
	if !ok || closed {
		pp.destroyPage(page)
		return
	}

	err := resetPage(page)
	if err != nil {
		err = resetPage(page)
	}

	entry.uses++
	entry.lastUsed = time.Now()
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("清理标签页失败,销毁该标签页")
		pp.destroyPage(page)
	case entry.uses >= maxPageUses:
		log.Debug().Msgf("标签页已复用%d次,销毁重建", entry.uses)
		pp.destroyPage(page)
	default:
		select {
		case pp.idle <- entry:
		default:
			pp.destroyPage(page)
		}
	}
}

// resetPage 清空Cookie与本地存储并回到空白页
func resetPage(page *rod.Page) error {
	p := page.Timeout(resetTimeout)
	if err := (proto.NetworkClearBrowserCookies{}).Call(p); err != nil {
		return fmt.Errorf("清除Cookie失败: %w", err)
	}
	if _, err := p.Evaluate(rod.Eval(`() => {
		try { localStorage.clear(); } catch (e) {}
		try { sessionStorage.clear(); } catch (e) {}
		return true;
	}`)); err != nil {
		return fmt.Errorf("清除存储失败: %w", err)
	}
	if err := p.Navigate("about:blank"); err != nil {
		return fmt.Errorf("重置标签页失败: %w", err)
	}
	return nil
}

// destroyPage 关闭标签页并移除记录
func (pp *PagePool) destroyPage(page *rod.Page) {
	pp.mu.Lock()
	delete(pp.pages, page)
	remaining := len(pp.pages)
	pp.mu.Unlock()

	if err := page.Close(); err != nil {
		log.Debug().Err(err).Msg("关闭标签页失败")
	}
	log.Debug().Msgf("销毁标签页,当前标签页数: %d", remaining)
}

// CurrentSize 当前标签页数(含正在使用的)
func (pp *PagePool) CurrentSize() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.pages)
}

// Close 关闭所有标签页,之后归还的标签页会被直接销毁
func (pp *PagePool) Close() error {
	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil
	}
	pp.closed = true
	pages := make([]*rod.Page, 0, len(pp.pages))
	for page := range pp.pages {
		pages = append(pages, page)
	}
	pp.pages = make(map[*rod.Page]*pooledPage)
	pp.mu.Unlock()

	var errs []error
	for _, page := range pages {
		if err := page.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	log.Debug().Msg("标签页池已关闭")
	return errors.Join(errs...)
}
