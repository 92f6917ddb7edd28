package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/MailFinder/internal/core"
	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile     string
	verbose        bool
	logLevel       string
	headers        []string // 自定义HTTP请求头
	validateConfig bool     // 验证配置文件

	// crawl 参数
	siteFile   string
	sectors    []string
	sectorFile string
	maxPages   int
	workers    int
	sessions   int
	engine     string
	noRender   bool
	headless   bool
	outputDir  string
	rateLimit  float64

	// discover 参数
	linkFile string
)

// 在PersistentPreRunE中初始化
var (
	appConfig     *core.Config
	headerManager *core.HeaderManager
)

var rootCmd = &cobra.Command{
	Use:   "mailfinder",
	Short: "企业目录站联系邮箱采集工具",
	Long: `MailFinder - 从企业目录站采集公司联系邮箱

遍历目录站的行业列表,进入每家公司的官网查找联系邮箱:
  • 静态抓取 → 联系页 → 浏览器渲染 → 绕过Cookie/年龄门槛
  • 识别 (at)/[dot] 等混淆写法、mailto、Cloudflare邮箱保护
  • 结果按行业写入CSV,失败链接写入错误日志

示例:
  # 使用默认站点与行业
  mailfinder crawl

  # 指定行业与并发
  mailfinder crawl --sector winery --sector brewery --workers 8

  # 只用静态抓取
  mailfinder crawl --no-render

  # 排查单个公司链接
  mailfinder discover https://www.acmewines.com

  # 验证配置文件
  mailfinder --validate-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		logConfig := config.LogConfig()
		if logLevel != "" {
			logConfig.Level = logLevel
		} else if verbose {
			logConfig.Level = "debug"
		}
		// 进度条与控制台日志互相干扰,显示进度条时日志只写文件
		logConfig.NoConsole = isCrawl(cmd) && config.Output.ProgressBar && !verbose && !validateConfig
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}

		hm, err := core.NewHeaderManager("", headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}

		appConfig, headerManager = config, hm
		return nil
	},
	RunE: runCrawl,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("MailFinder %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

// isCrawl 根命令不带子命令时执行crawl
func isCrawl(cmd *cobra.Command) bool {
	return cmd.Name() == "crawl" || !cmd.HasParent()
}

// signalContext Ctrl+C 取消运行,已写入的结果仍会落盘
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 不带子命令时等同于 crawl
	addCrawlFlags(rootCmd)
	addCrawlFlags(crawlCmd)
	discoverCmd.Flags().StringVarP(&linkFile, "file", "f", "", "包含公司链接列表的文件路径")
	discoverCmd.Flags().BoolVar(&noRender, "no-render", false, "禁用浏览器渲染阶段")
	discoverCmd.Flags().StringVar(&engine, "engine", "", "渲染引擎 (rod|chromedp)")

	rootCmd.AddCommand(crawlCmd, discoverCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
