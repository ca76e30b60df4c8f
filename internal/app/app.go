package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"voltrade/internal/backtest"
	"voltrade/internal/candles"
	"voltrade/internal/config"
	"voltrade/internal/ingest"
	"voltrade/internal/logger"
	"voltrade/internal/market"
	"voltrade/internal/pattern"
	"voltrade/internal/report"
	"voltrade/internal/store/candlestore"
	"voltrade/internal/store/runstore"

	"github.com/google/uuid"
)

// App 负责应用级编排：拉取行情、生成成交量 K 线、构建形态库、回测与 HTTP 服务。
type App struct {
	cfg     atomic.Pointer[config.Config]
	candles *candlestore.Store
	runs    *runstore.Store
}

// NewApp 根据配置构建应用对象；返回的 cleanup 关闭全部存储。
func NewApp(cfg *config.Config) (*App, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(cfg)
}

func newApp(cfg *config.Config, cs *candlestore.Store, rs *runstore.Store) *App {
	a := &App{candles: cs, runs: rs}
	a.cfg.Store(cfg)
	return a
}

// Config 返回当前生效的配置。
func (a *App) Config() *config.Config { return a.cfg.Load() }

// SetConfig 在配置热加载后替换配置，存储路径的变化需要重启才生效。
func (a *App) SetConfig(cfg *config.Config) {
	if cfg != nil {
		a.cfg.Store(cfg)
	}
}

// Ingest 从 CSV 或交易所拉取分钟 K 线写入 candlestore。
func (a *App) Ingest(ctx context.Context) ([]ingest.Report, error) {
	cfg := a.Config()
	if path := strings.TrimSpace(cfg.Data.ImportCSV); path != "" {
		return a.importCSV(ctx, path)
	}
	start, err := config.ParseDate(cfg.Ingest.Start)
	if err != nil {
		return nil, err
	}
	if start == 0 {
		return nil, &market.ConfigurationError{Key: "ingest.start", Reason: "required when no csv import is configured"}
	}
	end, err := config.ParseDate(cfg.Ingest.End)
	if err != nil {
		return nil, err
	}
	if end == 0 {
		end = time.Now().UTC().Truncate(time.Minute).Unix()
	}
	step, err := config.IntervalDuration(cfg.Ingest.Interval)
	if err != nil {
		return nil, err
	}
	src, err := newSource(cfg.Ingest)
	if err != nil {
		return nil, err
	}
	svc, err := ingest.NewService(ingest.ServiceConfig{
		Store:     a.candles,
		Source:    src,
		Timeframe: candlestore.TimeframeMinute,
		Interval:  cfg.Ingest.Interval,
		Step:      step,
		RateLimit: cfg.Ingest.RateLimit,
		PageLimit: cfg.Ingest.PageLimit,
	})
	if err != nil {
		return nil, err
	}
	symbols := cfg.IngestSymbols()
	if len(symbols) == 0 {
		return nil, &market.ConfigurationError{Key: "ingest.symbols", Reason: "no symbols configured"}
	}
	return svc.Ingest(ctx, symbols, start, end)
}

func (a *App) importCSV(ctx context.Context, path string) ([]ingest.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &market.ConfigurationError{Key: "data.import_csv", Reason: err.Error()}
	}
	defer f.Close()
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	n, err := ingest.ImportCSV(ctx, a.candles, candlestore.TimeframeMinute, f, strings.ToUpper(base))
	if err != nil {
		return nil, err
	}
	return []ingest.Report{{Symbol: filepath.Base(path), Fetched: n, Inserted: n}}, nil
}

// BuildCandles 为每个已有分钟数据的 symbol 重建成交量 K 线。
func (a *App) BuildCandles(ctx context.Context) ([]candles.SymbolResult, error) {
	cfg := a.Config()
	unit, err := cfg.WindowUnit()
	if err != nil {
		return nil, err
	}
	symbols, err := a.candles.Symbols(candlestore.TimeframeMinute)
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, &market.InsufficientDataError{Op: "build volume candles", Need: 1, Have: 0}
	}
	out := make([]candles.SymbolResult, 0, len(symbols))
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		minutes, err := a.candles.All(ctx, sym, candlestore.TimeframeMinute)
		if err != nil {
			out = append(out, candles.SymbolResult{Symbol: sym, Err: err})
			continue
		}
		for _, res := range candles.BuildPerSymbol(minutes, unit, cfg.Candles.RangeCount) {
			if res.Err == nil {
				if _, err := a.candles.Replace(ctx, res.Symbol, candlestore.TimeframeVolume, res.Candles); err != nil {
					res.Err = err
				}
			}
			out = append(out, res)
		}
	}
	return out, nil
}

// PatternStats 描述一次形态库构建。
type PatternStats struct {
	LibraryID  string
	Symbols    int
	Signatures int
	Prefixes   int
	Strong     int
	File       string
}

// BuildPatterns 在全部成交量 K 线上统计形态，写入 CSV 与结果库。
func (a *App) BuildPatterns(ctx context.Context) (PatternStats, error) {
	cfg := a.Config()
	data, err := a.candles.Load(ctx, candlestore.TimeframeVolume, nil, 0, 0)
	if err != nil {
		return PatternStats{}, err
	}
	lib, err := pattern.BuildLibrary(data, cfg.Pattern.Window, cfg.Pattern.Buckets)
	if err != nil {
		return PatternStats{}, err
	}
	rows, err := pattern.Consolidate(lib, cfg.Pattern.Window)
	if err != nil {
		return PatternStats{}, err
	}
	stats := PatternStats{
		LibraryID:  uuid.NewString(),
		Symbols:    len(data),
		Signatures: lib.Len(),
		Prefixes:   len(rows),
		Strong:     len(pattern.FilterStrong(rows, cfg.Thresholds())),
		File:       cfg.Data.PatternFile,
	}
	if stats.File != "" {
		if err := writePatternFile(stats.File, rows); err != nil {
			return stats, err
		}
	}
	if err := a.runs.SavePatterns(ctx, stats.LibraryID, cfg.Pattern.Window, cfg.Pattern.Buckets, rows); err != nil {
		return stats, err
	}
	logger.Infof("pattern library %s: symbols=%d signatures=%d prefixes=%d strong=%d",
		stats.LibraryID, stats.Symbols, stats.Signatures, stats.Prefixes, stats.Strong)
	return stats, nil
}

func writePatternFile(path string, rows []pattern.Consolidated) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := pattern.WriteCSV(f, rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// loadMatcher 优先读取结果库中的形态库，没有时回退到 CSV 文件。
// 两者都不存在时返回 nil，由策略构造决定是否报错。
func (a *App) loadMatcher(ctx context.Context, cfg *config.Config, p backtest.Params) (*pattern.Matcher, error) {
	lib, err := a.runs.LoadPatterns(ctx)
	switch {
	case err == nil:
		if lib.Window != p.PatternWindow || lib.Buckets != p.Buckets {
			return nil, &market.ConfigurationError{
				Key:    "pattern.window",
				Reason: fmt.Sprintf("stored library uses window=%d buckets=%d, rebuild patterns", lib.Window, lib.Buckets),
			}
		}
		return pattern.NewMatcher(lib.Rows, p.PatternWindow, p.Buckets, p.Thresholds)
	case !errors.Is(err, runstore.ErrNotFound):
		return nil, err
	}
	path := strings.TrimSpace(cfg.Data.PatternFile)
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := pattern.ReadCSV(f)
	if err != nil {
		return nil, err
	}
	return pattern.NewMatcher(rows, p.PatternWindow, p.Buckets, p.Thresholds)
}

// Outcome 是一次（或一个场景的）回测输出及其报告文件。
type Outcome struct {
	Scenario string
	Result   backtest.Result
	Files    report.Files
}

// Backtest 使用当前配置运行回测；配置了场景时逐个场景运行。
func (a *App) Backtest(ctx context.Context) ([]Outcome, error) {
	cfg := a.Config()
	p, err := cfg.ToParams()
	if err != nil {
		return nil, err
	}
	scenarios, err := cfg.Scenarios()
	if err != nil {
		return nil, err
	}
	return a.runBacktest(ctx, cfg, p, scenarios, "")
}

func (a *App) runBacktest(ctx context.Context, cfg *config.Config, p backtest.Params, scenarios []backtest.Scenario, label string) ([]Outcome, error) {
	data, err := a.candles.Load(ctx, candlestore.TimeframeVolume, p.Symbols, 0, 0)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &market.InsufficientDataError{Op: "backtest", Need: 1, Have: 0}
	}
	matcher, err := a.loadMatcher(ctx, cfg, p)
	if err != nil {
		return nil, err
	}
	strategy, err := backtest.NewStrategy(p, matcher)
	if err != nil {
		return nil, err
	}

	var outcomes []Outcome
	if len(scenarios) == 0 {
		res, err := backtest.RunBacktest(ctx, p, data, strategy)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, Outcome{Scenario: label, Result: res})
	} else {
		for _, sr := range backtest.RunScenarios(ctx, p, data, strategy, scenarios) {
			if sr.Err != nil {
				return outcomes, fmt.Errorf("scenario %s: %w", sr.Scenario.Name, sr.Err)
			}
			outcomes = append(outcomes, Outcome{Scenario: sr.Scenario.Name, Result: sr.Result})
		}
	}

	for i := range outcomes {
		out := &outcomes[i]
		if err := a.runs.SaveRun(ctx, out.Result, out.Scenario); err != nil {
			return outcomes, err
		}
		if dir := strings.TrimSpace(cfg.Data.ReportDir); dir != "" {
			window := make(map[string]market.Records, len(data))
			for sym, recs := range data {
				window[sym] = recs.Between(out.Result.Params.Start, out.Result.Params.End)
			}
			files, err := report.WriteFiles(dir, out.Result, out.Scenario, window)
			if err != nil {
				logger.Warnf("write report for run %s: %v", out.Result.RunID, err)
			}
			out.Files = files
		}
		logger.Infof("%s", report.Headline(out.Result))
	}
	return outcomes, nil
}

// Rebuild 依次执行拉取、成交量 K 线与形态库重建，供定时任务使用。
func (a *App) Rebuild(ctx context.Context) error {
	reports, err := a.Ingest(ctx)
	if err != nil {
		return err
	}
	for _, rep := range reports {
		if rep.Err != nil {
			logger.Warnf("rebuild: ingest %s failed: %v", rep.Symbol, rep.Err)
		}
	}
	if _, err := a.BuildCandles(ctx); err != nil {
		return err
	}
	_, err = a.BuildPatterns(ctx)
	return err
}
