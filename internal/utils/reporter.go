package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"

	"github.com/RecoveryAshes/MailFinder/internal/models"
)

// RunReportFile 运行报告文件名
const RunReportFile = "run_report.json"

// Reporter 报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// ReportsDir 报告目录
func (r *Reporter) ReportsDir() string {
	return filepath.Join(r.outputDir, "reports")
}

// SaveRunReport 保存运行报告,返回报告路径
func (r *Reporter) SaveRunReport(report *models.RunReport) (string, error) {
	dir := r.ReportsDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}
	path := filepath.Join(dir, RunReportFile)
	if err := r.saveJSONReport(path, report); err != nil {
		return "", err
	}
	Infof("✅ 报告已生成: %s", path)
	return path, nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}
	Debugf("保存报告: %s", path)
	return nil
}

// PrintSummary 输出运行摘要
func (r *Reporter) PrintSummary(report *models.RunReport) {
	Info("==================================================")
	Infof("📊 运行摘要 [%s] 状态: %s", report.RunID, report.Status)
	Info("==================================================")
	Infof("📄 列表页: %d", report.Stats.Pages)
	Infof("🏢 公司: %d (重复 %d)", report.Stats.Companies, report.Stats.Duplicates)
	Infof("✅ 找到邮箱: %d", report.Stats.Resolved)
	Infof("❌ 未找到: %d (写入错误日志 %d)", report.Stats.Failed, report.Stats.ErrorsLogged)
	if report.Stats.Panics > 0 {
		Warnf("⚠️  意外错误: %d", report.Stats.Panics)
	}
	Infof("⏱️  总耗时: %.2f秒", report.Duration)

	for _, s := range report.Sectors {
		if s.Error != "" {
			Warnf("  - %s: %v", s.Sector, s.Error)
		}
	}
}

// NewProgressBar 创建进度条,max为-1时显示为计数spinner
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return newProgressBar(os.Stderr, max, description)
}

func newProgressBar(w io.Writer, max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("家"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
