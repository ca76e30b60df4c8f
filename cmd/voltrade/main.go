package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"voltrade/internal/app"
	"voltrade/internal/config"
	"voltrade/internal/logger"
)

const usage = `usage: voltrade [-config path] <command>

commands:
  ingest     拉取分钟 K 线（交易所或 data.import_csv）
  candles    由分钟 K 线重建成交量 K 线
  patterns   在成交量 K 线上构建形态库
  backtest   使用当前配置运行回测（含场景）
  serve      启动 HTTP API 与定时重建任务
  all        依次执行 ingest、candles、patterns、backtest
`

func main() {
	cfgFlag := flag.String("config", "", "配置文件路径（默认 $VOLTRADE_CONFIG 或 configs/config.yaml）")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	cmd := flag.Arg(0)

	cfgPath := config.ResolvePath(*cfgFlag)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	journal, err := setupJournalOutput(cfg.App.JournalPath)
	if err != nil {
		log.Fatalf("初始化交易日志失败: %v", err)
	}
	if journal != nil {
		defer journal.Close()
	}
	logger.SetFormat(cfg.App.LogFormat)
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，路径=%s）", cfg.App.Env, cfgPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	defer cleanup()

	if err := run(ctx, a, cmd, cfgPath); err != nil {
		logger.Errorf("%s 失败: %v", cmd, err)
		cleanup()
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, cmd, cfgPath string) error {
	switch cmd {
	case "ingest":
		return runIngest(ctx, a)
	case "candles":
		return runCandles(ctx, a)
	case "patterns":
		return runPatterns(ctx, a)
	case "backtest":
		return runBacktest(ctx, a)
	case "serve":
		watcher, err := config.Watch(cfgPath)
		if err != nil {
			logger.Warnf("配置热加载不可用: %v", err)
			watcher = nil
		}
		return a.Serve(ctx, watcher)
	case "all":
		for _, step := range []func(context.Context, *app.App) error{runIngest, runCandles, runPatterns, runBacktest} {
			if err := step(ctx, a); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func runIngest(ctx context.Context, a *app.App) error {
	reports, err := a.Ingest(ctx)
	if err != nil {
		return err
	}
	failed := 0
	for _, rep := range reports {
		if rep.Err != nil {
			failed++
			fmt.Printf("%-12s FAILED %v\n", rep.Symbol, rep.Err)
			continue
		}
		fmt.Printf("%-12s pages=%d skipped=%d fetched=%d inserted=%d\n",
			rep.Symbol, rep.Pages, rep.Skipped, rep.Fetched, rep.Inserted)
	}
	if failed == len(reports) && failed > 0 {
		return fmt.Errorf("all %d symbols failed", failed)
	}
	return nil
}

func runCandles(ctx context.Context, a *app.App) error {
	results, err := a.BuildCandles(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Err != nil {
			fmt.Printf("%-12s SKIPPED %v\n", res.Symbol, res.Err)
			continue
		}
		fmt.Printf("%-12s limit=%.4f candles=%d\n", res.Symbol, res.Limit, len(res.Candles))
	}
	return nil
}

func runPatterns(ctx context.Context, a *app.App) error {
	stats, err := a.BuildPatterns(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("library %s: symbols=%d signatures=%d prefixes=%d strong=%d file=%s\n",
		stats.LibraryID, stats.Symbols, stats.Signatures, stats.Prefixes, stats.Strong, stats.File)
	return nil
}

func runBacktest(ctx context.Context, a *app.App) error {
	outcomes, err := a.Backtest(ctx)
	if err != nil {
		return err
	}
	for _, out := range outcomes {
		name := out.Scenario
		if name == "" {
			name = "default"
		}
		res := out.Result
		fmt.Printf("[%s] run=%s final=%.2f drawdown=%.2f return=%.2f%% positions=%d failures=%d\n",
			name, res.RunID, res.FinalBalance, res.MaxDrawdown, res.ReturnPct, len(res.Positions), len(res.Failures))
		for _, f := range res.Failures {
			fmt.Printf("    %s aborted (%s): %s\n", f.Symbol, f.Kind, f.Message)
		}
		if out.Files.YAML != "" {
			fmt.Printf("    report: %s\n", out.Files.YAML)
		}
	}
	return nil
}

func setupLogOutput(path string) (*os.File, error) {
	f, err := openAppend(path)
	if err != nil || f == nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, f)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return f, nil
}

func setupJournalOutput(path string) (*os.File, error) {
	f, err := openAppend(path)
	if err != nil || f == nil {
		return nil, err
	}
	logger.SetJournalWriter(f)
	return f, nil
}

func openAppend(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if dir := filepath.Dir(trimmed); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
