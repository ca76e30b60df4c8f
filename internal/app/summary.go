package app

import (
	"fmt"
	"strings"

	"voltrade/internal/config"
)

// PrintSummary 在启动时打印关键配置。
func PrintSummary(cfg *config.Config) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[数据 (DATA)]")
	fmt.Printf("  K线目录: %s\n", cfg.Data.CandleDBDir)
	fmt.Printf("  结果库:   %s\n", cfg.Data.ResultDBPath)
	fmt.Printf("  形态库:   %s\n", orDash(cfg.Data.PatternFile))
	fmt.Printf("  报告目录: %s\n", orDash(cfg.Data.ReportDir))
	fmt.Println()

	fmt.Println("[成交量 K 线 (VOLUME CANDLES)]")
	fmt.Printf("  窗口单位: %s x %d\n", cfg.Candles.WindowUnit, cfg.Candles.RangeCount)
	fmt.Printf("  形态窗口: %d (buckets=%d, min_strength=%d, confidence=%.2f)\n",
		cfg.Pattern.Window, cfg.Pattern.Buckets, cfg.Pattern.MinStrength, cfg.Pattern.Confidence)
	fmt.Println()

	fmt.Println("[回测 (BACKTEST)]")
	fmt.Printf("  策略:     %s\n", cfg.Backtest.Strategy)
	fmt.Printf("  币种:     %s\n", formatList(cfg.Backtest.Symbols))
	fmt.Printf("  区间:     %s ~ %s\n", orDash(cfg.Backtest.Start), orDash(cfg.Backtest.End))
	fmt.Printf("  初始资金: %.2f (trade_fraction=%.4f)\n", cfg.Account.StartingBalance, cfg.Account.TradeFraction)
	fmt.Printf("  场景数:   %d\n", len(cfg.Backtest.Scenarios))
	fmt.Println()

	fmt.Println("[服务 (SERVICE)]")
	fmt.Printf("  HTTP:     %s\n", cfg.App.HTTPAddr)
	if cfg.Schedule.Enabled {
		fmt.Printf("  定时重建: %s (source=%s)\n", cfg.Schedule.RebuildCron, cfg.Ingest.Source)
	} else {
		fmt.Println("  定时重建: 关闭")
	}
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "(全部)"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
