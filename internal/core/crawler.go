package core

import (
	"context"

	"github.com/RecoveryAshes/MailFinder/internal/crawlers"
	"github.com/RecoveryAshes/MailFinder/internal/extract"
	"github.com/RecoveryAshes/MailFinder/internal/models"
	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

// Discoverer 单个公司官网的邮箱发现流程
// 按成本从低到高依次尝试: 静态抓取 → 联系页 → 浏览器渲染 → 绕过访问门槛
type Discoverer struct {
	fetcher   models.PageFetcher
	renderer  models.RenderProvider // 为nil时跳过渲染阶段
	extractor *extract.Extractor
}

// NewDiscoverer 创建发现器
func NewDiscoverer(fetcher models.PageFetcher, renderer models.RenderProvider, extractor *extract.Extractor) *Discoverer {
	return &Discoverer{
		fetcher:   fetcher,
		renderer:  renderer,
		extractor: extractor,
	}
}

// discovery 一次Discover调用的状态
type discovery struct {
	*Discoverer
	outcome models.Outcome
	session models.RenderSession
}

// Discover 对公司链接执行完整的发现流程
// 每个阶段最多执行一次,浏览器会话在返回前释放
func (d *Discoverer) Discover(ctx context.Context, link string) models.Outcome {
	run := &discovery{
		Discoverer: d,
		outcome:    models.Outcome{Link: link, Stage: models.StageCheapFetch},
	}
	defer run.release()

	res, proceed := run.cheapFetch(ctx)
	if run.outcome.Resolved() || !proceed {
		return run.outcome
	}

	// 403时res为nil,直接进入渲染阶段
	if res != nil && run.tryContactPage(ctx, res, models.StageContactPage, run.fetchStatic) {
		return run.outcome
	}

	if d.renderer == nil {
		return run.outcome
	}

	for _, bypass := range []bool{false, true} {
		if ctx.Err() != nil {
			run.fail(models.NewFetchError(models.KindConnection, run.outcome.Link, ctx.Err()))
			return run.outcome
		}
		if run.renderStage(ctx, bypass) {
			return run.outcome
		}
		if run.session == nil {
			// 连会话都拿不到,后续渲染阶段没有意义
			return run.outcome
		}
	}
	return run.outcome
}

// cheapFetch 静态抓取公司链接并按状态码分支
// 返回可供联系页查找的结果,以及是否继续后续阶段
func (run *discovery) cheapFetch(ctx context.Context) (*models.FetchResult, bool) {
	link := run.outcome.Link
	res := run.fetcher.Fetch(ctx, link)

	for fellBack := false; ; fellBack = true {
		if res.Err != nil {
			// 主机不可达、超时、重定向循环: 浏览器同样无能为力
			run.fail(res.Err)
			return nil, false
		}

		switch res.StatusCode {
		case 403:
			utils.Debugf("[%s] 返回403,直接进入渲染阶段", link)
			run.fail(models.NewStatusError(link, 403))
			return nil, true

		case 404:
			home, ok := utils.HomepageURL(link)
			if fellBack || !ok || home == link {
				run.fail(models.NewStatusError(link, 404))
				return nil, false
			}
			utils.Debugf("[%s] 返回404,回退到首页 %s", link, home)
			link = home
			run.outcome.Link = home
			res = run.fetcher.Fetch(ctx, home)
			continue

		case 500, 503:
			run.fail(models.NewStatusError(link, res.StatusCode))
			return nil, false
		}

		if run.extractFrom(ctx, res, models.StageCheapFetch) {
			return res, false
		}
		return res, true
	}
}

// fetchStatic 以静态方式抓取联系页
func (run *discovery) fetchStatic(ctx context.Context, rawURL string) *models.FetchResult {
	return run.fetcher.Fetch(ctx, rawURL)
}

// fetchInSession 在当前会话中渲染联系页
func (run *discovery) fetchInSession(ctx context.Context, rawURL string) *models.FetchResult {
	return run.session.Fetch(ctx, rawURL, false)
}

// tryContactPage 在文档中查找联系页,用fetch抓取后提取
func (run *discovery) tryContactPage(ctx context.Context, res *models.FetchResult, stage models.Stage,
	fetch func(context.Context, string) *models.FetchResult) bool {
	candidate, ok := extract.FindContactPage(res.Doc, res.URL)
	if !ok {
		return false
	}
	run.outcome.Stage = stage
	utils.Debugf("[%s] 联系页候选(%s): %s", run.outcome.Link, candidate.Confidence, candidate.Href)

	page := fetch(ctx, candidate.Href)
	if !page.HasDoc() {
		run.fail(page.Err)
		return false
	}
	return run.extractFrom(ctx, page, stage)
}

// renderStage 渲染公司链接(可选绕过门槛),失败时再尝试渲染后的联系页
func (run *discovery) renderStage(ctx context.Context, bypass bool) bool {
	stage, contactStage := models.StageRendered, models.StageRenderedContact
	if bypass {
		stage, contactStage = models.StageGateBypass, models.StageGateBypassContact
	}
	run.outcome.Stage = stage

	var res *models.FetchResult
	res, run.session = crawlers.FetchRendered(ctx, run.renderer, run.session, run.outcome.Link, bypass)
	if !res.HasDoc() {
		run.fail(res.Err)
		return false
	}
	if run.extractFrom(ctx, res, stage) {
		return true
	}
	return run.tryContactPage(ctx, res, contactStage, run.fetchInSession)
}

// extractFrom 从结果中提取邮箱,找到时选出主邮箱并记录阶段
func (run *discovery) extractFrom(ctx context.Context, res *models.FetchResult, stage models.Stage) bool {
	candidates := run.extractor.Extract(ctx, res.Doc, res.URL)
	if len(candidates) == 0 {
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			run.fail(models.NewFetchError(models.KindNotFound, run.outcome.Link, nil))
		} else {
			run.fail(models.NewStatusError(run.outcome.Link, res.StatusCode))
		}
		return false
	}

	run.outcome.Candidates = candidates
	run.outcome.Email = extract.SelectPrimary(candidates, run.outcome.Link)
	run.outcome.Stage = stage
	run.outcome.Err = nil
	utils.Debugf("[%s] %s阶段找到邮箱: %s (候选%d个)", run.outcome.Link, stage, run.outcome.Email, len(candidates))
	return true
}

// fail 记录最近一次错误
func (run *discovery) fail(err *models.FetchError) {
	if err == nil {
		return
	}
	run.outcome.Err = err
}

// release 释放本次流程占用的浏览器会话
func (run *discovery) release() {
	if run.session != nil {
		run.session.Release()
		run.session = nil
	}
}
