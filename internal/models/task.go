package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // 待执行
	TaskStatusRunning   TaskStatus = "running"   // 执行中
	TaskStatusCompleted TaskStatus = "completed" // 已完成
	TaskStatusFailed    TaskStatus = "failed"    // 失败
	TaskStatusCancelled TaskStatus = "cancelled" // 已取消
)

// RenderEngine 渲染引擎
type RenderEngine string

const (
	EngineRod      RenderEngine = "rod"      // go-rod (默认)
	EngineChromedp RenderEngine = "chromedp" // chromedp
)

// CrawlConfig 爬取配置
type CrawlConfig struct {
	Workers         int  `mapstructure:"workers" json:"workers"`                     // 公司级并发数 (默认:4)
	MaxPages        int  `mapstructure:"max_pages" json:"max_pages"`                 // 列表页数上限,0表示不限制
	ContinueOnError bool `mapstructure:"continue_on_error" json:"continue_on_error"` // 某个行业失败后是否继续
}

// Validate 验证配置
func (c *CrawlConfig) Validate() error {
	if c.Workers < 1 || c.Workers > 64 {
		return fmt.Errorf("并发数必须在1-64之间")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("页数上限不能为负数")
	}
	return nil
}

// FetchConfig 静态抓取配置
type FetchConfig struct {
	Timeout      int     `mapstructure:"timeout" json:"timeout"`             // 初始超时(秒),每次超时重试翻倍 (默认:10)
	Retries      int     `mapstructure:"retries" json:"retries"`             // 超时重试上限 (默认:3)
	MaxRedirects int     `mapstructure:"max_redirects" json:"max_redirects"` // 重定向跳数上限 (默认:10)
	InsecureTLS  bool    `mapstructure:"insecure_tls" json:"insecure_tls"`   // 跳过证书验证 (默认:true)
	RateLimit    float64 `mapstructure:"rate_limit" json:"rate_limit"`       // 每秒请求数,0表示不限速
	RateBurst    int     `mapstructure:"rate_burst" json:"rate_burst"`
}

// TimeoutDuration 返回初始超时
func (c FetchConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// Validate 验证配置
func (c *FetchConfig) Validate() error {
	if c.Timeout < 1 || c.Timeout > 120 {
		return fmt.Errorf("超时时间必须在1-120秒之间")
	}
	if c.Retries < 1 || c.Retries > 10 {
		return fmt.Errorf("重试次数必须在1-10之间")
	}
	if c.MaxRedirects < 1 || c.MaxRedirects > 50 {
		return fmt.Errorf("重定向上限必须在1-50之间")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("限速不能为负数")
	}
	return nil
}

// RenderConfig 浏览器渲染配置
type RenderConfig struct {
	Enabled     bool         `mapstructure:"enabled" json:"enabled"`           // 是否启用渲染阶段 (默认:true)
	Engine      RenderEngine `mapstructure:"engine" json:"engine"`             // rod | chromedp
	Headless    bool         `mapstructure:"headless" json:"headless"`         // 无头模式 (默认:true)
	MaxSessions int          `mapstructure:"max_sessions" json:"max_sessions"` // 同时存在的浏览器会话上限 (默认:2)
	Timeout     int          `mapstructure:"timeout" json:"timeout"`           // 导航与等待body的超时(秒) (默认:10)
	BrowserPath string       `mapstructure:"browser_path" json:"browser_path"` // 可选,自定义浏览器路径
}

// TimeoutDuration 返回渲染超时
func (c RenderConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// Validate 验证配置
func (c *RenderConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Engine != EngineRod && c.Engine != EngineChromedp {
		return fmt.Errorf("不支持的渲染引擎: %s (可选: rod, chromedp)", c.Engine)
	}
	if c.MaxSessions < 1 || c.MaxSessions > 20 {
		return fmt.Errorf("浏览器会话数必须在1-20之间")
	}
	if c.Timeout < 1 || c.Timeout > 120 {
		return fmt.Errorf("渲染超时必须在1-120秒之间")
	}
	return nil
}

// ExtractConfig 邮箱提取配置
type ExtractConfig struct {
	BlockedKeywords []string `mapstructure:"blocked_keywords" json:"blocked_keywords"` // 包含即丢弃
	BlockedSuffixes []string `mapstructure:"blocked_suffixes" json:"blocked_suffixes"` // 以此结尾即丢弃(如图片文件名)
	MaxFrameDepth   int      `mapstructure:"max_frame_depth" json:"max_frame_depth"`   // iframe递归深度
}

// ResourceConfig 资源监控配置
type ResourceConfig struct {
	SafetyReserveMemory int `mapstructure:"safety_reserve_memory" json:"safety_reserve_memory"` // 安全保留内存(MB)
	SafetyThreshold     int `mapstructure:"safety_threshold" json:"safety_threshold"`           // 安全阈值(MB)
	CPULoadThreshold    int `mapstructure:"cpu_load_threshold" json:"cpu_load_threshold"`       // CPU负载阈值(%),>=200表示禁用
	MaxTabsLimit        int `mapstructure:"max_tabs_limit" json:"max_tabs_limit"`               // 绝对最大标签页数
}

// SiteConfig 目录站点配置
type SiteConfig struct {
	StartURL          string   `mapstructure:"start_url" json:"start_url"`                     // 站点根地址,用于拼接相对链接
	SearchURL         string   `mapstructure:"search_url" json:"search_url"`                   // 搜索地址前缀,后接行业关键字
	Sectors           []string `mapstructure:"sectors" json:"sectors"`                         // 行业关键字
	TileClass         string   `mapstructure:"tile_class" json:"tile_class"`                   // 列表页公司条目链接的class
	LinkClass         string   `mapstructure:"link_class" json:"link_class"`                   // 详情页公司官网链接的class
	NameClass         string   `mapstructure:"name_class" json:"name_class"`                   // 详情页公司名称的class
	CountrySelector   string   `mapstructure:"country_selector" json:"country_selector"`       // 国家的CSS选择器
	NextClass         string   `mapstructure:"next_class" json:"next_class"`                   // 下一页按钮的class
	ProfileEmailFirst bool     `mapstructure:"profile_email_first" json:"profile_email_first"` // 是否先在详情页查找邮箱
}

// Validate 验证站点配置
func (s *SiteConfig) Validate() error {
	if err := ValidateURL(s.StartURL); err != nil {
		return fmt.Errorf("start_url无效: %w", err)
	}
	if err := ValidateURL(s.SearchURL); err != nil {
		return fmt.Errorf("search_url无效: %w", err)
	}
	missing := make([]string, 0)
	if strings.TrimSpace(s.TileClass) == "" {
		missing = append(missing, "tile_class")
	}
	if strings.TrimSpace(s.LinkClass) == "" {
		missing = append(missing, "link_class")
	}
	if len(missing) > 0 {
		return fmt.Errorf("站点配置缺少字段: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RunStats 运行统计
type RunStats struct {
	Pages        int     `json:"pages"`         // 已处理列表页数
	Companies    int     `json:"companies"`     // 已处理公司条目数
	Duplicates   int     `json:"duplicates"`    // 重复链接数
	Resolved     int     `json:"resolved"`      // 找到邮箱的公司数
	Failed       int     `json:"failed"`        // 未找到邮箱的公司数
	ErrorsLogged int     `json:"errors_logged"` // 写入错误日志的条数
	Panics       int     `json:"panics"`        // 被隔离的意外错误
	Duration     float64 `json:"duration"`      // 总耗时(秒)
}

// Merge 累加另一份统计
func (s *RunStats) Merge(other RunStats) {
	s.Pages += other.Pages
	s.Companies += other.Companies
	s.Duplicates += other.Duplicates
	s.Resolved += other.Resolved
	s.Failed += other.Failed
	s.ErrorsLogged += other.ErrorsLogged
	s.Panics += other.Panics
}

// ValidateURL 校验配置中的站点地址,必须是带主机名的http(s)绝对地址
// 抓取前对公司链接的校验见 utils.IsValidURL
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	switch {
	case err != nil:
		return fmt.Errorf("无效的URL: %w", err)
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("URL必须是HTTP或HTTPS协议: %q", rawURL)
	case u.Host == "":
		return fmt.Errorf("URL必须包含主机名: %q", rawURL)
	}
	return nil
}
