package core

import (
	"net/http"
	"sync"

	"github.com/RecoveryAshes/MailFinder/internal/config"
	"github.com/RecoveryAshes/MailFinder/internal/models"
	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent,静态抓取与浏览器渲染共用
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/137.0.0.0 Safari/537.36"
)

// HeaderManager 管理HTTP请求头部
// 实现 models.HeaderProvider,可被多个worker并发调用
type HeaderManager struct {
	// defaults 系统默认头部 (硬编码)
	defaults http.Header

	// config 从headers.yaml加载的头部
	config http.Header

	// cli 从命令行参数解析的头部
	cli http.Header

	validator    *utils.HeaderValidator
	redactor     *utils.HeaderRedactor
	configLoader *config.HeaderConfigLoader

	mu     sync.Mutex
	merged http.Header // 首次成功校验后缓存
}

// NewHeaderManager 创建头部管理器
// configFile为空时使用 configs/headers.yaml
func NewHeaderManager(configFile string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults:     getDefaultHeaders(),
		cli:          make(http.Header),
		validator:    utils.NewHeaderValidator(),
		redactor:     utils.NewHeaderRedactor(),
		configLoader: config.NewHeaderConfigLoader(configFile),
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}
	return hm, nil
}

// getDefaultHeaders 返回系统默认头部
func getDefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{DefaultUserAgent},
		"Accept":          []string{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": []string{"en-US,en;q=0.9"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// loadConfig 加载headers.yaml,调用方需持有mu
func (hm *HeaderManager) loadConfig() error {
	if hm.config != nil {
		return nil
	}

	headerConfig, err := hm.configLoader.LoadConfig()
	if err != nil {
		utils.Errorf("加载HTTP头部配置失败: %v", err)
		return err
	}

	loaded := make(http.Header)
	for name, value := range headerConfig.Headers {
		loaded.Set(name, value)
	}
	hm.config = loaded

	if len(loaded) > 0 {
		utils.Debugf("成功加载%d个HTTP头部配置: %v", len(loaded), hm.redactor.Redact(loaded))
	}
	return nil
}

// Validate 验证所有头部的合法性
// 验证顺序: 默认 → 配置 → 命令行
func (hm *HeaderManager) Validate() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if err := hm.loadConfig(); err != nil {
		return err
	}
	return hm.validate()
}

func (hm *HeaderManager) validate() error {
	layers := []struct {
		name    string
		headers http.Header
	}{
		{"默认", hm.defaults},
		{"配置文件", hm.config},
		{"命令行", hm.cli},
	}
	for _, layer := range layers {
		if err := hm.validator.Validate(layer.headers); err != nil {
			utils.Errorf("%s头部验证失败: %v", layer.name, err)
			return err
		}
	}
	utils.Debugf("所有HTTP头部验证通过")
	return nil
}

// merge 按优先级合并头部 (default < config < cli)
func (hm *HeaderManager) merge() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = values
		}
	}
	return result
}

// GetSafeHeaders 返回脱敏后的合并头部 (用于日志)
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	headers, err := hm.GetHeaders()
	if err != nil {
		return map[string]string{}
	}
	return hm.redactor.Redact(headers)
}

// GetHeaders 实现 HeaderProvider 接口
// 返回副本,调用方可以随意修改
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.merged == nil {
		if err := hm.loadConfig(); err != nil {
			return nil, err
		}
		if err := hm.validate(); err != nil {
			return nil, err
		}
		hm.merged = hm.merge()
	}
	return hm.merged.Clone(), nil
}
