// Package config 负责 headers.yaml 的生成、校验与解析
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/viper"

	"github.com/RecoveryAshes/MailFinder/internal/models"
	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

const (
	// DefaultConfigFile 默认配置文件路径
	DefaultConfigFile = "configs/headers.yaml"

	// MaxConfigFileSize 配置文件最大大小 (64KB)
	MaxConfigFileSize = 64 * 1024
)

//go:embed headers_template.yaml
var headerTemplate []byte

// HeaderConfigLoader 读取 headers.yaml,首次运行时写入带注释的模板
type HeaderConfigLoader struct {
	configPath string
}

// NewHeaderConfigLoader 路径为空时使用 DefaultConfigFile
func NewHeaderConfigLoader(configPath string) *HeaderConfigLoader {
	if configPath == "" {
		configPath = DefaultConfigFile
	}
	return &HeaderConfigLoader{configPath: configPath}
}

// Path 配置文件路径
func (hcl *HeaderConfigLoader) Path() string {
	return hcl.configPath
}

// stat 返回文件信息,文件不存在时先生成模板
func (hcl *HeaderConfigLoader) stat() (fs.FileInfo, error) {
	info, err := os.Stat(hcl.configPath)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("无法读取配置文件信息 [%s]: %w", hcl.configPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(hcl.configPath), 0755); err != nil {
		return nil, fmt.Errorf("无法创建配置目录: %w", err)
	}
	if err := os.WriteFile(hcl.configPath, headerTemplate, 0644); err != nil {
		return nil, fmt.Errorf("无法生成配置文件 [%s]: %w", hcl.configPath, err)
	}
	utils.Infof("已生成HTTP头部配置模板: %s", hcl.configPath)
	return os.Stat(hcl.configPath)
}

// LoadConfig 解析为HeaderConfig,Headers总是非nil
// 文件被其他进程锁定时退回空配置
func (hcl *HeaderConfigLoader) LoadConfig() (*models.HeaderConfig, error) {
	info, err := hcl.stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxConfigFileSize {
		return nil, &models.ConfigError{
			FilePath: hcl.configPath,
			Cause:    fmt.Errorf("配置文件过大: %d 字节 (最大 %d 字节)", info.Size(), MaxConfigFileSize),
		}
	}

	v := viper.New()
	v.SetConfigFile(hcl.configPath)
	v.SetConfigType("yaml")

	cfg := &models.HeaderConfig{}
	switch err := v.ReadInConfig(); {
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
		utils.Warnf("配置文件被锁定 [%s], 使用默认头部", hcl.configPath)
	case err != nil:
		return nil, &models.ConfigError{FilePath: hcl.configPath, Cause: err}
	default:
		if err := v.Unmarshal(cfg); err != nil {
			return nil, &models.ConfigError{FilePath: hcl.configPath, Cause: fmt.Errorf("配置绑定失败: %w", err)}
		}
	}

	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	return cfg, nil
}
