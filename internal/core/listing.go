package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/RecoveryAshes/MailFinder/internal/crawlers"
	"github.com/RecoveryAshes/MailFinder/internal/extract"
	"github.com/RecoveryAshes/MailFinder/internal/models"
	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

// RecordSink 接收公司记录与错误记录,实现需支持并发调用
type RecordSink interface {
	Add(sector string, rec models.CompanyRecord)
	LogError(rec models.ErrorRecord)
}

// ListingCrawler 目录站列表遍历
// 逐页读取公司条目,交给worker池处理,直到没有下一页
type ListingCrawler struct {
	site       models.SiteConfig
	crawl      models.CrawlConfig
	fetcher    models.PageFetcher
	discoverer *Discoverer
	extractor  *extract.Extractor
	registry   *crawlers.LinkRegistry
	sink       RecordSink

	// OnCompany 每处理完一个条目回调一次(进度条)
	OnCompany func(models.CompanyTask)
}

// NewListingCrawler 创建列表遍历器
// registry在多个行业之间共享,同一公司只处理一次
func NewListingCrawler(site models.SiteConfig, crawl models.CrawlConfig, fetcher models.PageFetcher,
	discoverer *Discoverer, extractor *extract.Extractor, registry *crawlers.LinkRegistry, sink RecordSink) *ListingCrawler {
	return &ListingCrawler{
		site:       site,
		crawl:      crawl,
		fetcher:    fetcher,
		discoverer: discoverer,
		extractor:  extractor,
		registry:   registry,
		sink:       sink,
	}
}

// sectorCounters worker并发累加的统计
type sectorCounters struct {
	companies    atomic.Int64
	duplicates   atomic.Int64
	resolved     atomic.Int64
	failed       atomic.Int64
	errorsLogged atomic.Int64
	panics       atomic.Int64
}

func (c *sectorCounters) snapshot(pages int) models.RunStats {
	return models.RunStats{
		Pages:        pages,
		Companies:    int(c.companies.Load()),
		Duplicates:   int(c.duplicates.Load()),
		Resolved:     int(c.resolved.Load()),
		Failed:       int(c.failed.Load()),
		ErrorsLogged: int(c.errorsLogged.Load()),
		Panics:       int(c.panics.Load()),
	}
}

// SearchURL 行业的第一页列表地址
func (lc *ListingCrawler) SearchURL(sector string) string {
	return lc.site.SearchURL + url.QueryEscape(sector)
}

// CrawlSector 遍历一个行业的所有列表页
// 第一页失败返回错误;后续页失败时停止翻页并保留已有结果
func (lc *ListingCrawler) CrawlSector(ctx context.Context, sector string) (models.SectorStats, error) {
	stats := models.SectorStats{Sector: sector}
	counters := &sectorCounters{}
	pagesSeen := crawlers.NewLinkRegistry()

	workers := lc.crawl.Workers
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)

	pageURL := lc.SearchURL(sector)
	pages := 0
	var pageErr error

	for pageNum := 1; ; pageNum++ {
		pagesSeen.Claim(pageURL)

		res := lc.fetcher.Fetch(ctx, pageURL)
		if !res.OK() {
			pageErr = fmt.Errorf("列表页抓取失败: %w", resultError(res))
			if pageNum > 1 {
				utils.Warnf("[%s] 第%d页抓取失败,停止翻页: %v", sector, pageNum, pageErr)
				pageErr = nil
			}
			break
		}
		pages++

		tiles := extract.HrefsByClass(res.Doc, lc.site.TileClass)
		utils.Infof("[%s] 第%d页: %d个公司条目", sector, pageNum, len(tiles))
		for _, href := range tiles {
			profileURL, ok := lc.resolve(href)
			if !ok {
				utils.Debugf("[%s] 无法解析条目链接: %s", sector, href)
				continue
			}
			task := models.CompanyTask{Sector: sector, ProfileURL: profileURL, Page: pageNum}
			g.Go(func() error {
				lc.processTile(ctx, task, counters)
				return nil
			})
		}

		if lc.crawl.MaxPages > 0 && pageNum >= lc.crawl.MaxPages {
			utils.Infof("[%s] 已达页数上限 %d", sector, lc.crawl.MaxPages)
			break
		}
		nextURL, ok := lc.nextPage(res)
		if !ok {
			stats.Complete = true
			break
		}
		if pagesSeen.IsVisited(nextURL) {
			utils.Warnf("[%s] 下一页已访问过,停止翻页: %s", sector, nextURL)
			stats.Complete = true
			break
		}
		if ctx.Err() != nil {
			break
		}
		pageURL = nextURL
	}

	_ = g.Wait()
	stats.Stats = counters.snapshot(pages)
	utils.Infof("[%s] 完成: %d页, 找到邮箱 %d家, 累计公司链接 %d", sector, pages, stats.Stats.Resolved, lc.registry.Count())
	if pageErr != nil {
		stats.Error = pageErr.Error()
		return stats, pageErr
	}
	return stats, nil
}

// resultError 非2xx结果的失败原因
func resultError(res *models.FetchResult) *models.FetchError {
	if res.Err != nil {
		return res.Err
	}
	return models.NewStatusError(res.URL, res.StatusCode)
}

// nextPage 下一页地址
func (lc *ListingCrawler) nextPage(res *models.FetchResult) (string, bool) {
	if lc.site.NextClass == "" {
		return "", false
	}
	hrefs := extract.HrefsByClass(res.Doc, lc.site.NextClass)
	if len(hrefs) == 0 {
		return "", false
	}
	return lc.resolve(hrefs[0])
}

// resolve 相对链接基于站点根地址解析
func (lc *ListingCrawler) resolve(href string) (string, bool) {
	base, err := url.Parse(lc.site.StartURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	return resolved.String(), true
}

// processTile 处理一个公司条目: 详情页 → 官网链接 → 发现邮箱 → 写入结果
// 意外panic在此处隔离,不影响其他公司
func (lc *ListingCrawler) processTile(ctx context.Context, task models.CompanyTask, counters *sectorCounters) {
	link := task.ProfileURL
	defer func() {
		if r := recover(); r != nil {
			counters.panics.Add(1)
			utils.Errorf("捕获panic: URL=%s, 错误=%v, 类型=公司处理", link, r)
			lc.sink.LogError(models.ErrorRecord{Error: fmt.Sprint(r), URL: link})
			counters.errorsLogged.Add(1)
		}
		if lc.OnCompany != nil {
			lc.OnCompany(task)
		}
	}()

	profile := lc.fetcher.Fetch(ctx, task.ProfileURL)
	if !profile.OK() {
		err := resultError(profile)
		counters.failed.Add(1)
		utils.Warnf("[%s] 详情页抓取失败 %s: %v", task.Sector, task.ProfileURL, err)
		if !err.Suppressed() {
			lc.logError(counters, models.ErrorRecord{Error: err.Error(), URL: task.ProfileURL})
		}
		return
	}

	links := extract.HrefsByClass(profile.Doc, lc.site.LinkClass)
	if len(links) == 0 {
		utils.Debugf("[%s] 详情页没有官网链接: %s", task.Sector, task.ProfileURL)
		return
	}
	link = strings.TrimSpace(links[0])
	if !lc.registry.Claim(link) {
		counters.duplicates.Add(1)
		utils.Debugf("[%s] 公司已处理过: %s", task.Sector, link)
		return
	}
	counters.companies.Add(1)

	outcome := lc.fromProfile(ctx, profile, link)
	if !outcome.Resolved() {
		outcome = lc.discoverer.Discover(ctx, link)
	}

	if !outcome.Resolved() {
		counters.failed.Add(1)
		utils.Debugf("[%s] 未找到邮箱 %s: %v", task.Sector, outcome.Link, outcome.Err)
		if outcome.Err != nil && !outcome.Err.Suppressed() {
			lc.logError(counters, models.ErrorRecord{Error: outcome.Err.Error(), URL: outcome.Link})
		}
		return
	}

	name, _ := extract.CompanyName(profile.Doc, lc.site.NameClass)
	country, _ := extract.Location(profile.Doc, lc.site.CountrySelector)
	counters.resolved.Add(1)
	utils.Infof("[%s] ✅ %s → %s (%s)", task.Sector, outcome.Link, outcome.Email, outcome.Stage)
	lc.sink.Add(task.Sector, models.CompanyRecord{
		Link:    outcome.Link,
		Name:    name,
		Country: country,
		Email:   outcome.Email,
	})
}

// fromProfile 先在目录站详情页上找邮箱
func (lc *ListingCrawler) fromProfile(ctx context.Context, profile *models.FetchResult, link string) models.Outcome {
	outcome := models.Outcome{Link: link, Stage: models.StageProfilePage}
	if !lc.site.ProfileEmailFirst {
		return outcome
	}
	candidates := lc.extractor.Extract(ctx, profile.Doc, profile.URL)
	if len(candidates) > 0 {
		outcome.Candidates = candidates
		outcome.Email = extract.SelectPrimary(candidates, link)
	}
	return outcome
}

func (lc *ListingCrawler) logError(counters *sectorCounters, rec models.ErrorRecord) {
	lc.sink.LogError(rec)
	counters.errorsLogged.Add(1)
}
