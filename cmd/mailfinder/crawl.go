package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/MailFinder/internal/core"
	"github.com/RecoveryAshes/MailFinder/internal/models"
	"github.com/RecoveryAshes/MailFinder/internal/utils"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "遍历目录站行业列表并采集邮箱",
	Args:  cobra.NoArgs,
	RunE:  runCrawl,
}

var discoverCmd = &cobra.Command{
	Use:   "discover [url...]",
	Short: "对单个公司链接执行邮箱发现流程并输出结果",
	RunE:  runDiscover,
}

func addCrawlFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&siteFile, "site", "", "站点选择器文件 (覆盖配置中的site段)")
	flags.StringSliceVarP(&sectors, "sector", "s", nil, "行业关键字,可多次指定")
	flags.StringVar(&sectorFile, "sector-file", "", "包含行业关键字列表的文件路径")
	flags.IntVarP(&maxPages, "pages", "p", 0, "每个行业的列表页数上限 (0表示不限制)")
	flags.IntVarP(&workers, "workers", "w", 0, "公司级并发数")
	flags.IntVar(&sessions, "sessions", 0, "浏览器会话上限")
	flags.StringVar(&engine, "engine", "", "渲染引擎 (rod|chromedp)")
	flags.BoolVar(&noRender, "no-render", false, "禁用浏览器渲染阶段")
	flags.BoolVar(&headless, "headless", true, "无头浏览器模式")
	flags.StringVarP(&outputDir, "output", "o", "", "输出目录")
	flags.Float64Var(&rateLimit, "rate", 0, "静态抓取每秒请求数上限 (0表示不限速)")
}

// cliFlags 收集命令行覆盖项
func cliFlags(cmd *cobra.Command) (core.CLIFlags, error) {
	flags := core.CLIFlags{
		Sectors:   sectors,
		MaxPages:  maxPages,
		Workers:   workers,
		Sessions:  sessions,
		Engine:    engine,
		NoRender:  noRender,
		OutputDir: outputDir,
		RateLimit: rateLimit,
	}
	if f := cmd.Flags().Lookup("headless"); f != nil && f.Changed {
		flags.Headless = &headless
	}
	if sectorFile != "" {
		lines, err := utils.ReadLinesFromFile(sectorFile)
		if err != nil {
			return flags, fmt.Errorf("读取行业文件失败: %w", err)
		}
		flags.Sectors = append(flags.Sectors, lines...)
	}
	return flags, nil
}

// prepareConfig 合并站点文件与命令行参数后验证
func prepareConfig(cmd *cobra.Command) (*core.Config, error) {
	cfg := appConfig
	if siteFile != "" {
		site, err := core.LoadSiteProfile(siteFile, cfg.Site)
		if err != nil {
			return nil, err
		}
		cfg.Site = site
	}

	flags, err := cliFlags(cmd)
	if err != nil {
		return nil, err
	}
	if err := ValidateFlags(flags); err != nil {
		return nil, err
	}
	cfg.MergeCLIFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runCrawl(cmd *cobra.Command, args []string) error {
	if validateConfig {
		return runValidateConfig(cmd)
	}

	cfg, err := prepareConfig(cmd)
	if err != nil {
		return err
	}
	if _, err := headerManager.GetHeaders(); err != nil {
		return fmt.Errorf("HTTP头部无效: %w", err)
	}
	utils.Debugf("HTTP头部: %s", strings.Join(sortedSafeHeaders(), ", "))

	ctx, stop := signalContext()
	defer stop()

	runner := core.NewRunner(cfg, headerManager)
	defer func() {
		if err := runner.Close(); err != nil {
			utils.Warnf("关闭浏览器失败: %v", err)
		}
	}()

	report, err := runner.Run(ctx)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		return err
	}
	if report.Status == models.TaskStatusCancelled {
		utils.Warn("运行已取消, 已有结果已保存")
		return nil
	}

	utils.Info("✨ 采集任务完成!")
	return nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	links := append([]string(nil), args...)
	if linkFile != "" {
		lines, err := utils.ReadLinesFromFile(linkFile)
		if err != nil {
			return fmt.Errorf("读取链接文件失败: %w", err)
		}
		links = append(links, lines...)
	}
	if len(links) == 0 {
		return cmd.Help()
	}
	for _, link := range links {
		if err := ValidateURL(link); err != nil {
			return fmt.Errorf("无效的公司链接 %s: %w", link, err)
		}
	}

	cfg := appConfig
	cfg.MergeCLIFlags(core.CLIFlags{Engine: engine, NoRender: noRender})
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	runner := core.NewRunner(cfg, headerManager)
	defer runner.Close()
	discoverer := runner.Discoverer()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LINK\tEMAIL\tSTAGE\tERROR\tCANDIDATES")
	for _, link := range links {
		if ctx.Err() != nil {
			break
		}
		outcome := discoverer.Discover(ctx, link)
		errText := ""
		if outcome.Err != nil {
			errText = outcome.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", outcome.Link, outcome.Email, outcome.Stage, errText,
			strings.Join(outcome.Candidates, " "))
	}
	return w.Flush()
}

func printReport(report *models.RunReport) {
	fmt.Println("\n==================================================")
	fmt.Println("📊 采集统计")
	fmt.Println("==================================================")
	fmt.Printf("📄 列表页: %d\n", report.Stats.Pages)
	fmt.Printf("🏢 公司: %d (重复 %d)\n", report.Stats.Companies, report.Stats.Duplicates)
	fmt.Printf("✅ 找到邮箱: %d\n", report.Stats.Resolved)
	fmt.Printf("❌ 未找到: %d\n", report.Stats.Failed)
	fmt.Printf("⏱️  总耗时: %.2f秒\n", report.Duration)
	for _, path := range report.ResultCSVs {
		fmt.Printf("📁 %s\n", path)
	}
	fmt.Printf("📁 %s\n", report.ErrorLog)
	fmt.Println("==================================================")
}
