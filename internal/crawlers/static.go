package crawlers

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/RecoveryAshes/MailFinder/internal/models"
	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

// dnsMessages 无法通过类型识别时用于判断DNS失败的错误信息片段
var dnsMessages = []string{"no such host", "getaddrinfo", "name resolution", "NameResolutionError", "server misbehaving"}

// StaticFetcher 静态抓取器(使用Colly)
// 不自动跟随重定向,由抓取器逐跳解析Location并限制跳数
type StaticFetcher struct {
	collector *colly.Collector
	config    models.FetchConfig

	// HTTP头部提供者
	headerProvider models.HeaderProvider

	// 可选的全局限速
	limiter *rate.Limiter

	// 统计
	requests atomic.Int64
	retries  atomic.Int64
}

// page 单次请求的原始响应
type page struct {
	url        *url.URL
	statusCode int
	location   string
	body       []byte
}

// NewStaticFetcher 创建静态抓取器
// 所有请求共享同一个HTTP连接池与Cookie,可被多个worker并发使用
func NewStaticFetcher(config models.FetchConfig, headerProvider models.HeaderProvider) *StaticFetcher {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		utils.Warnf("创建CookieJar失败: %v", err)
		jar = nil
	}

	httpClient := &http.Client{
		Jar: jar,
		Transport: &decodingTransport{base: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: config.InsecureTLS, // 大量中小企业站点证书过期或主机名不匹配
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}},
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
	)
	c.SetClient(httpClient)
	// 返回3xx响应本身,由fetch逐跳处理
	c.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	})

	if config.InsecureTLS {
		utils.Debugf("静态抓取器: TLS证书验证已禁用")
	}

	f := &StaticFetcher{
		collector:      c,
		config:         config,
		headerProvider: headerProvider,
	}
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
		utils.Debugf("静态抓取器: 限速 %.2f req/s (burst=%d)", config.RateLimit, burst)
	}
	return f
}

// Fetch 抓取URL并解析为文档
// 收到任何HTTP响应(包括4xx/5xx)时Err为nil,由调用方根据StatusCode决定后续策略
func (f *StaticFetcher) Fetch(ctx context.Context, rawURL string) *models.FetchResult {
	return f.fetch(ctx, rawURL, 0)
}

func (f *StaticFetcher) fetch(ctx context.Context, rawURL string, hops int) *models.FetchResult {
	if !utils.IsValidURL(rawURL) {
		return models.Failed(&models.FetchError{
			Kind:    models.KindInvalidURL,
			URL:     rawURL,
			Message: "Invalid URL",
		})
	}

	p, fetchErr := f.getWithRetry(ctx, rawURL)
	if fetchErr != nil {
		return models.Failed(fetchErr)
	}

	if p.statusCode >= 300 && p.statusCode < 400 && p.location != "" {
		if hops >= f.config.MaxRedirects {
			return models.Failed(&models.FetchError{
				Kind:    models.KindRedirectLoop,
				URL:     rawURL,
				Message: fmt.Sprintf("超过%d次重定向", f.config.MaxRedirects),
			})
		}
		next, err := resolveLocation(p.url, p.location)
		if err != nil {
			return models.Failed(models.NewFetchError(models.KindConnection, rawURL, err))
		}
		utils.Debugf("重定向 [%d] %s -> %s", p.statusCode, rawURL, next)
		return f.fetch(ctx, next, hops+1)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
	if err != nil {
		return models.Failed(models.NewFetchError(models.KindConnection, rawURL, fmt.Errorf("解析HTML失败: %w", err)))
	}
	return &models.FetchResult{
		URL:        p.url.String(),
		Doc:        doc,
		StatusCode: p.statusCode,
	}
}

// getWithRetry 超时时以翻倍的超时时间重试,其他错误立即返回
func (f *StaticFetcher) getWithRetry(ctx context.Context, rawURL string) (*page, *models.FetchError) {
	timeout := f.config.TimeoutDuration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	for attempt := 0; ; attempt++ {
		p, err := f.get(ctx, rawURL, timeout)
		if err == nil {
			return p, nil
		}

		// 调用方取消时不再重试
		if ctx.Err() != nil {
			return nil, models.NewFetchError(models.KindConnection, rawURL, ctx.Err())
		}
		kind := classifyError(err)
		if kind != models.KindTimeout {
			return nil, models.NewFetchError(kind, rawURL, err)
		}
		if attempt >= f.config.Retries {
			return nil, models.NewFetchError(models.KindTimeout, rawURL, err)
		}

		timeout *= 2
		f.retries.Add(1)
		utils.Debugf("请求超时,重试 (%d/%d, 超时=%v): %s", attempt+1, f.config.Retries, timeout, rawURL)
	}
}

// get 发起一次请求,不跟随重定向
func (f *StaticFetcher) get(ctx context.Context, rawURL string, timeout time.Duration) (*page, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := f.collector.Clone()
	c.Context = attemptCtx

	var resp *colly.Response
	c.OnRequest(func(r *colly.Request) {
		// 应用自定义HTTP头部
		if f.headerProvider != nil {
			headers, err := f.headerProvider.GetHeaders()
			if err != nil {
				utils.Warnf("获取HTTP头部失败: %v", err)
			} else {
				for name, values := range headers {
					if len(values) > 0 {
						r.Headers.Set(name, values[0])
					}
				}
			}
		}
		utils.Debugf("访问: %s", r.URL.String())
	})
	c.OnResponse(func(r *colly.Response) {
		resp = r
	})

	f.requests.Add(1)
	if err := c.Visit(rawURL); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("未收到响应")
	}

	return &page{
		url:        resp.Request.URL,
		statusCode: resp.StatusCode,
		location:   resp.Headers.Get("Location"),
		body:       resp.Body,
	}, nil
}

// Stats 返回请求数与超时重试数
func (f *StaticFetcher) Stats() (requests, retries int64) {
	return f.requests.Load(), f.retries.Load()
}

// resolveLocation 将Location解析为绝对URL
// 修正部分站点返回的 "www.www." 双前缀
func resolveLocation(base *url.URL, location string) (string, error) {
	location = strings.ReplaceAll(strings.TrimSpace(location), "www.www.", "www.")
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("无效的Location %q: %w", location, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// classifyError 将传输层错误归类
func classifyError(err error) models.ErrorKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return models.KindTimeout
		}
		return models.KindDNSFailure
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.KindTimeout
	}

	msg := err.Error()
	for _, m := range dnsMessages {
		if strings.Contains(msg, m) {
			return models.KindDNSFailure
		}
	}
	if strings.Contains(msg, "Client.Timeout") || strings.Contains(msg, "deadline exceeded") {
		return models.KindTimeout
	}
	return models.KindConnection
}

// decodingTransport 在Colly读取响应体之前解压br/deflate
// 请求头自带Accept-Encoding时标准库不再透明解压;gzip仍由Colly处理
// 解压后去掉Content-Encoding,字符集检测看到的是明文
type decodingTransport struct {
	base http.RoundTripper
}

func (t *decodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		reader, err = deflateReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("deflate解压失败: %w", err)
		}
	default:
		return resp, nil
	}

	resp.Body = &decodedBody{Reader: reader, raw: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

// deflateReader 兼容zlib封装与裸deflate两种常见实现
func deflateReader(body io.Reader) (io.Reader, error) {
	br := bufio.NewReader(body)
	header, err := br.Peek(2)
	if err == nil && header[0]&0x0f == 8 && (uint16(header[0])<<8|uint16(header[1]))%31 == 0 {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

// decodedBody 关闭时同时释放解压器与原始连接
type decodedBody struct {
	io.Reader
	raw io.ReadCloser
}

func (b *decodedBody) Close() error {
	if c, ok := b.Reader.(io.Closer); ok {
		c.Close()
	}
	return b.raw.Close()
}
