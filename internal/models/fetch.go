package models

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// ErrorKind 抓取失败的分类
type ErrorKind string

const (
	KindInvalidURL   ErrorKind = "invalid_url"      // URL格式不合法,未发起请求
	KindDNSFailure   ErrorKind = "dns_failure"      // 域名解析失败
	KindConnection   ErrorKind = "connection_error" // 其他连接层错误
	KindTimeout      ErrorKind = "timeout"          // 重试后仍超时
	KindHTTPStatus   ErrorKind = "http_status"      // 非2xx状态码
	KindRenderError  ErrorKind = "render_error"     // 浏览器渲染失败
	KindNotFound     ErrorKind = "not_found"        // 页面正常但未找到邮箱
	KindRedirectLoop ErrorKind = "redirect_loop"    // 重定向次数超过上限
)

// FetchError 分类后的抓取错误
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int    // 仅 KindHTTPStatus 有意义
	Message    string // 诊断信息
	Cause      error
}

// NewFetchError 创建分类错误
func NewFetchError(kind ErrorKind, rawURL string, cause error) *FetchError {
	e := &FetchError{Kind: kind, URL: rawURL, Cause: cause}
	if cause != nil {
		e.Message = cause.Error()
	}
	return e
}

// NewStatusError 根据HTTP状态码创建错误
func NewStatusError(rawURL string, statusCode int) *FetchError {
	return &FetchError{
		Kind:       KindHTTPStatus,
		URL:        rawURL,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("HTTP %d", statusCode),
	}
}

// Error 实现error接口
func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	case KindNotFound:
		return "no email found"
	case KindDNSFailure:
		return "DNS"
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap 支持errors.Is/As
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Suppressed 判断该错误是否不需要写入错误日志
// DNS失败和服务端500/503不具备排查价值
func (e *FetchError) Suppressed() bool {
	if e == nil {
		return true
	}
	if e.Kind == KindDNSFailure {
		return true
	}
	return e.Kind == KindHTTPStatus && (e.StatusCode == 500 || e.StatusCode == 503)
}

// FetchResult 一次抓取的结果
// Err为nil表示收到了响应,此时StatusCode可能是2xx/4xx/5xx,由调用方分支处理
type FetchResult struct {
	URL        string            // 跟随重定向后的最终URL
	Doc        *goquery.Document // 解析后的文档
	StatusCode int
	Err        *FetchError
}

// OK 是否收到2xx响应且文档可用
func (r *FetchResult) OK() bool {
	return r != nil && r.Err == nil && r.Doc != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// HasDoc 是否有可供提取的文档
func (r *FetchResult) HasDoc() bool {
	return r != nil && r.Err == nil && r.Doc != nil
}

// Failed 构造失败结果
func Failed(err *FetchError) *FetchResult {
	return &FetchResult{URL: err.URL, Err: err}
}

// PageFetcher 静态抓取能力
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) *FetchResult
}

// RenderSession 一个已打开的浏览器会话,同一公司的多次渲染复用该会话
type RenderSession interface {
	// Fetch 渲染页面; rawURL为空时渲染会话当前所在页面
	Fetch(ctx context.Context, rawURL string, bypassGate bool) *FetchResult
	// Release 释放会话,可重复调用
	Release()
}

// RenderProvider 浏览器会话提供者
type RenderProvider interface {
	Acquire(ctx context.Context) (RenderSession, error)
}
