// Package crawlers 提供公司官网的抓取能力: 静态抓取(Colly)与浏览器渲染(go-rod / chromedp)
//
// # 静态抓取
//
// StaticFetcher 基于Colly,所有worker共享一个HTTP连接池与CookieJar。
// 不自动跟随重定向,逐跳解析Location(相对地址按请求URL解析),超过上限返回RedirectLoop。
// 超时后以翻倍的超时时间重试,传输层错误被归类为DNS、连接或超时。
//
//	fetcher := NewStaticFetcher(fetchConfig, headerProvider)
//	res := fetcher.Fetch(ctx, "https://acmewines.com")
//	if res.Err == nil && res.StatusCode == 403 { /* 升级到渲染 */ }
//
// # 浏览器渲染
//
// Renderer 在第一次Acquire时启动浏览器,同时存在的会话数受MaxSessions限制。
// 一个会话对应一个标签页,同一家公司的多次渲染复用同一个会话,结束后必须Release。
//
//	session, err := renderer.Acquire(ctx)
//	if err != nil { /* RenderError */ }
//	defer session.Release()
//	res := session.Fetch(ctx, link, true) // 尝试绕过cookie/年龄确认
//
// go-rod引擎通过PagePool复用标签页,并由ResourceMonitor根据可用内存与CPU负载限制标签页数量;
// chromedp引擎为每个会话创建独立的target。
//
// 浏览器崩溃(无法创建标签页)时关闭当前实例,下次Acquire时重启,最多重试3次。
//
// # 访问门槛
//
// 渲染时可选地尝试绕过cookie横幅与年龄/语言确认页:
// 先点击第一个文本包含cookie的元素,再依次尝试文本命中GateKeywords的元素,
// 有可导航href的直接导航,否则原地点击,第一个成功的动作后停止。
//
// # 去重
//
// LinkRegistry 是并发安全的已访问链接集合,去重键由CanonicalLink生成。
package crawlers
