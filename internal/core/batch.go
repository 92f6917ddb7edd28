package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"

	"github.com/RecoveryAshes/MailFinder/internal/crawlers"
	"github.com/RecoveryAshes/MailFinder/internal/extract"
	"github.com/RecoveryAshes/MailFinder/internal/models"
	"github.com/RecoveryAshes/MailFinder/internal/output"
	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

// Runner 一次完整运行: 遍历所有行业,写出结果表、错误日志与运行报告
type Runner struct {
	config   *Config
	fetcher  models.PageFetcher
	renderer models.RenderProvider

	// closers 运行结束时关闭(浏览器等)
	closers []func() error

	static *crawlers.StaticFetcher
	render *crawlers.Renderer
}

// NewRunner 根据配置创建静态抓取器与渲染器
func NewRunner(config *Config, headerProvider models.HeaderProvider) *Runner {
	static := crawlers.NewStaticFetcher(config.Fetch, headerProvider)
	r := &Runner{config: config, fetcher: static, static: static}
	if config.Render.Enabled {
		renderer := crawlers.NewRenderer(config.Render, config.Resources, headerProvider)
		r.renderer, r.render = renderer, renderer
		r.closers = append(r.closers, renderer.Close)
	} else {
		utils.Infof("渲染阶段已禁用")
	}
	return r
}

// newRunnerWith 使用给定的抓取器与渲染器
func newRunnerWith(config *Config, fetcher models.PageFetcher, renderer models.RenderProvider) *Runner {
	return &Runner{config: config, fetcher: fetcher, renderer: renderer}
}

// Discoverer 与运行共用抓取器的发现器
func (r *Runner) Discoverer() *Discoverer {
	extractor := extract.NewExtractor(r.fetcher, extract.OptionsFromConfig(r.config.Extract))
	return NewDiscoverer(r.fetcher, r.renderer, extractor)
}

// Close 释放浏览器等资源
func (r *Runner) Close() error {
	if r.static != nil {
		requests, retries := r.static.Stats()
		utils.Infof("静态请求: %d (超时重试 %d)", requests, retries)
	}
	if r.render != nil {
		sessions, renders, failures := r.render.Stats()
		utils.Infof("浏览器会话: %d, 渲染: %d (失败 %d)", sessions, renders, failures)
	}

	var errs []error
	for _, closeFn := range r.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Run 依次处理每个行业
// 行业失败时按continue_on_error决定是否继续;结果表与错误日志在返回前一定落盘
func (r *Runner) Run(ctx context.Context) (*models.RunReport, error) {
	cfg := r.config
	report := models.NewRunReport(cfg.Site.StartURL)
	report.OutputDir = cfg.Output.BaseDir
	report.ErrorLog = cfg.Output.ErrorLogPath()
	report.Crawl, report.Fetch, report.Render = cfg.Crawl, cfg.Fetch, cfg.Render
	report.ResultCSVs = make([]string, 0, len(cfg.Site.Sectors))

	utils.Infof("🚀 开始运行 [%s]", report.RunID)
	utils.Infof("站点: %s, 行业: %v, 并发: %d", cfg.Site.StartURL, cfg.Site.Sectors, cfg.Crawl.Workers)

	extractor := extract.NewExtractor(r.fetcher, extract.OptionsFromConfig(cfg.Extract))
	discoverer := NewDiscoverer(r.fetcher, r.renderer, extractor)
	writer := output.NewWriter(cfg.Output.BaseDir, report.ErrorLog)
	listing := NewListingCrawler(cfg.Site, cfg.Crawl, r.fetcher, discoverer, extractor,
		crawlers.NewLinkRegistry(), writer)

	status := models.TaskStatusCompleted
	var runErr error

	for _, sector := range cfg.Site.Sectors {
		if ctx.Err() != nil {
			status = models.TaskStatusCancelled
			break
		}

		var bar *progressbar.ProgressBar
		if cfg.Output.ProgressBar {
			bar = utils.NewProgressBar(-1, sector)
			listing.OnCompany = func(models.CompanyTask) { _ = bar.Add(1) }
		}

		utils.Infof("==================== 行业: %s ====================", sector)
		stats, err := listing.CrawlSector(ctx, sector)
		if bar != nil {
			_ = bar.Finish()
		}

		files, flushErr := writer.Flush(sector)
		if flushErr != nil {
			err = errors.Join(err, fmt.Errorf("写入结果失败: %w", flushErr))
		} else {
			report.ResultCSVs = append(report.ResultCSVs, files.Results)
			utils.Infof("[%s] 结果已写入: %s (%d条)", sector, files.Results, files.Rows)
		}

		if err != nil {
			stats.Error = err.Error()
			utils.Errorf("[%s] 行业处理失败: %v", sector, err)
		}
		report.Sectors = append(report.Sectors, stats)

		if err != nil && !cfg.Crawl.ContinueOnError {
			status = models.TaskStatusFailed
			runErr = fmt.Errorf("行业 %s 处理失败: %w", sector, err)
			break
		}
	}

	if err := writer.Close(); err != nil {
		utils.Errorf("写入错误日志失败: %v", err)
		runErr = errors.Join(runErr, err)
	}
	if ctx.Err() != nil && status == models.TaskStatusCompleted {
		status = models.TaskStatusCancelled
	}

	report.Finish(status)
	reporter := utils.NewReporter(cfg.Output.BaseDir)
	if _, err := reporter.SaveRunReport(report); err != nil {
		utils.Warnf("生成报告失败: %v", err)
	}
	reporter.PrintSummary(report)

	return report, runErr
}
