package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/RecoveryAshes/MailFinder/internal/models"
	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

// Config 应用程序配置
type Config struct {
	Crawl     models.CrawlConfig    `mapstructure:"crawl"`
	Fetch     models.FetchConfig    `mapstructure:"fetch"`
	Render    models.RenderConfig   `mapstructure:"render"`
	Extract   models.ExtractConfig  `mapstructure:"extract"`
	Resources models.ResourceConfig `mapstructure:"resources"`
	Site      models.SiteConfig     `mapstructure:"site"`
	Logging   LoggingConfig         `mapstructure:"logging"`
	Output    OutputConfig          `mapstructure:"output"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir     string `mapstructure:"base_dir"`
	ErrorLog    string `mapstructure:"error_log"`    // 相对base_dir
	ProgressBar bool   `mapstructure:"progress_bar"` // 是否显示进度条
}

// ErrorLogPath 错误日志的完整路径
func (o OutputConfig) ErrorLogPath() string {
	if filepath.IsAbs(o.ErrorLog) {
		return o.ErrorLog
	}
	return filepath.Join(o.BaseDir, o.ErrorLog)
}

// europages 目录站默认选择器
const (
	defaultStartURL  = "https://www.europages.co.uk"
	defaultSearchURL = "https://www.europages.co.uk/en/search?q="
	defaultTileClass = "flex items-center justify-center overflow-hidden rounded-sm bg-white hover:no-underline " +
		"border border-navy-10 ep:border-darkgreen-10 p-0.5"
	defaultLinkClass       = "btn btn--subtle btn--md website-button"
	defaultNameClass       = "company-name mt-1.5 mb-0.5 font-display-500 text-neutral-100 hover:no-underline"
	defaultCountrySelector = `div.flex.gap-1.items-center.mt-0\.5 > span:nth-of-type(2)`
	defaultNextClass       = "button next"
)

// LoadConfig 加载配置文件
// configPath为空时依次搜索 ./configs ./ ~/.mailfinder,找不到文件时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".mailfinder"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: fmt.Errorf("读取配置文件失败: %w", err)}
		}
		utils.Debugf("未找到配置文件,使用默认配置")
	} else {
		utils.Debugf("已加载配置文件: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置文件失败: %w", err)}
	}
	return &config, nil
}

// LoadSiteProfile 从独立的站点文件加载目录站选择器
// 文件中未出现的字段保留base中的值
func LoadSiteProfile(path string, base models.SiteConfig) (models.SiteConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("start_url", base.StartURL)
	v.SetDefault("search_url", base.SearchURL)
	v.SetDefault("sectors", base.Sectors)
	v.SetDefault("tile_class", base.TileClass)
	v.SetDefault("link_class", base.LinkClass)
	v.SetDefault("name_class", base.NameClass)
	v.SetDefault("country_selector", base.CountrySelector)
	v.SetDefault("next_class", base.NextClass)
	v.SetDefault("profile_email_first", base.ProfileEmailFirst)

	if err := v.ReadInConfig(); err != nil {
		return base, &models.ConfigError{FilePath: path, Cause: fmt.Errorf("读取站点文件失败: %w", err)}
	}

	var site models.SiteConfig
	if err := v.Unmarshal(&site); err != nil {
		return base, &models.ConfigError{FilePath: path, Cause: fmt.Errorf("解析站点文件失败: %w", err)}
	}
	return site, nil
}

// DefaultConfig 返回全部使用默认值的配置
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// 默认值均为基础类型,不会解析失败
	_ = v.Unmarshal(&config)
	return &config
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.workers", 4)
	v.SetDefault("crawl.max_pages", 0)
	v.SetDefault("crawl.continue_on_error", true)

	v.SetDefault("fetch.timeout", 10)
	v.SetDefault("fetch.retries", 3)
	v.SetDefault("fetch.max_redirects", 10)
	v.SetDefault("fetch.insecure_tls", true)
	v.SetDefault("fetch.rate_limit", 0)
	v.SetDefault("fetch.rate_burst", 1)

	v.SetDefault("render.enabled", true)
	v.SetDefault("render.engine", string(models.EngineRod))
	v.SetDefault("render.headless", true)
	v.SetDefault("render.max_sessions", 2)
	v.SetDefault("render.timeout", 10)
	v.SetDefault("render.browser_path", "")

	v.SetDefault("extract.blocked_keywords", []string{"example", "noreply", "no-reply"})
	v.SetDefault("extract.blocked_suffixes", []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".js", ".css"})
	v.SetDefault("extract.max_frame_depth", 2)

	v.SetDefault("resources.safety_reserve_memory", 512)
	v.SetDefault("resources.safety_threshold", 256)
	v.SetDefault("resources.cpu_load_threshold", 85)
	v.SetDefault("resources.max_tabs_limit", 8)

	v.SetDefault("site.start_url", defaultStartURL)
	v.SetDefault("site.search_url", defaultSearchURL)
	v.SetDefault("site.sectors", []string{"winery"})
	v.SetDefault("site.tile_class", defaultTileClass)
	v.SetDefault("site.link_class", defaultLinkClass)
	v.SetDefault("site.name_class", defaultNameClass)
	v.SetDefault("site.country_selector", defaultCountrySelector)
	v.SetDefault("site.next_class", defaultNextClass)
	v.SetDefault("site.profile_email_first", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.base_dir", "output")
	v.SetDefault("output.error_log", "errors.csv")
	v.SetDefault("output.progress_bar", true)
}

// Validate 验证全部配置
func (c *Config) Validate() error {
	checks := []struct {
		section string
		check   func() error
	}{
		{"crawl", c.Crawl.Validate},
		{"fetch", c.Fetch.Validate},
		{"render", c.Render.Validate},
		{"site", c.Site.Validate},
	}
	for _, item := range checks {
		if err := item.check(); err != nil {
			return fmt.Errorf("配置项 %s 无效: %w", item.section, err)
		}
	}
	if c.Extract.MaxFrameDepth < 0 {
		return fmt.Errorf("配置项 extract 无效: iframe深度不能为负数")
	}
	if c.Output.BaseDir == "" {
		return fmt.Errorf("配置项 output 无效: base_dir不能为空")
	}
	return nil
}

// LogConfig 转换为日志系统配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// CLIFlags 命令行覆盖项,零值表示未指定
type CLIFlags struct {
	Sectors   []string
	MaxPages  int
	Workers   int
	Sessions  int
	Engine    string
	NoRender  bool
	Headless  *bool
	OutputDir string
	RateLimit float64
}

// MergeCLIFlags 合并命令行参数到配置
// 命令行参数优先于配置文件
func (c *Config) MergeCLIFlags(flags CLIFlags) {
	if len(flags.Sectors) > 0 {
		c.Site.Sectors = flags.Sectors
	}
	if flags.MaxPages > 0 {
		c.Crawl.MaxPages = flags.MaxPages
	}
	if flags.Workers > 0 {
		c.Crawl.Workers = flags.Workers
	}
	if flags.Sessions > 0 {
		c.Render.MaxSessions = flags.Sessions
	}
	if flags.Engine != "" {
		c.Render.Engine = models.RenderEngine(flags.Engine)
	}
	if flags.NoRender {
		c.Render.Enabled = false
	}
	if flags.Headless != nil {
		c.Render.Headless = *flags.Headless
	}
	if flags.OutputDir != "" {
		c.Output.BaseDir = flags.OutputDir
	}
	if flags.RateLimit > 0 {
		c.Fetch.RateLimit = flags.RateLimit
	}
}
