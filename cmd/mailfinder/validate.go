package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/MailFinder/internal/core"
	"github.com/RecoveryAshes/MailFinder/internal/models"
	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

// ValidateURL 公司链接必须是可抓取的http(s)地址
func ValidateURL(urlStr string) error {
	if err := models.ValidateURL(urlStr); err != nil {
		return err
	}
	if !utils.IsValidURL(urlStr) {
		return fmt.Errorf("不是可抓取的网站地址: %s", urlStr)
	}
	return nil
}

// ValidateFlags 验证命令行标志,零值表示未指定
func ValidateFlags(flags core.CLIFlags) error {
	if flags.MaxPages < 0 {
		return fmt.Errorf("页数上限不能为负数,当前值: %d", flags.MaxPages)
	}
	if flags.Workers < 0 || flags.Workers > 64 {
		return fmt.Errorf("并发数必须在1-64之间,当前值: %d", flags.Workers)
	}
	if flags.Sessions < 0 || flags.Sessions > 20 {
		return fmt.Errorf("浏览器会话数必须在1-20之间,当前值: %d", flags.Sessions)
	}
	if flags.RateLimit < 0 {
		return fmt.Errorf("限速不能为负数,当前值: %.2f", flags.RateLimit)
	}

	switch models.RenderEngine(flags.Engine) {
	case "", models.EngineRod, models.EngineChromedp:
	default:
		return fmt.Errorf("无效的渲染引擎: %s (有效值: rod, chromedp)", flags.Engine)
	}

	for _, sector := range flags.Sectors {
		if sector == "" {
			return fmt.Errorf("行业关键字不能为空")
		}
	}
	return nil
}

// runValidateConfig 验证主配置、站点文件与HTTP头部,输出脱敏后的有效头部
func runValidateConfig(cmd *cobra.Command) error {
	utils.Info("🔍 验证配置...")

	if _, err := prepareConfig(cmd); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("HTTP头部验证失败: %w", err)
	}

	safeHeaders := sortedSafeHeaders()
	utils.Info("✅ 配置验证通过!")
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
	for _, line := range safeHeaders {
		utils.Infof("  %s", line)
	}
	return nil
}

// sortedSafeHeaders 脱敏后按名称排序的 "Name: Value" 列表
func sortedSafeHeaders() []string {
	safe := headerManager.GetSafeHeaders()
	lines := make([]string, 0, len(safe))
	for name, value := range safe {
		lines = append(lines, name+": "+value)
	}
	sort.Strings(lines)
	return lines
}
