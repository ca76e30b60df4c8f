package app

import (
	"context"
	"fmt"

	"voltrade/internal/backtest"
	"voltrade/internal/config"
	"voltrade/internal/logger"
	"voltrade/internal/market"
	"voltrade/internal/scheduler"
	httpapi "voltrade/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

const rebuildJob = "rebuild"

// Serve 启动 HTTP API，并在启用时运行定时重建任务；阻塞直到 ctx 取消。
// watcher 非空时订阅配置热加载。
func (a *App) Serve(ctx context.Context, watcher *config.Watcher) error {
	if watcher != nil {
		watcher.Subscribe(a.SetConfig)
	}
	cfg := a.Config()
	srv, err := httpapi.NewServer(httpapi.Config{
		Addr:    cfg.App.HTTPAddr,
		Results: a.runs,
		Candles: a.candles,
		Runner:  runner{app: a},
	})
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	if cfg.Schedule.Enabled {
		sched := scheduler.New(ctx)
		if err := sched.Register(rebuildJob, cfg.Schedule.RebuildCron, a.Rebuild); err != nil {
			return err
		}
		sched.Start()
		group.Go(func() error {
			<-ctx.Done()
			sched.Stop()
			return nil
		})
	}
	PrintSummary(cfg)
	group.Go(func() error {
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// runner 把 HTTP 请求与当前配置合并后执行回测。
type runner struct {
	app *App
}

func (r runner) Run(ctx context.Context, req httpapi.RunRequest) (backtest.Result, error) {
	cfg := *r.app.Config()
	bt := cfg.Backtest
	if len(req.Symbols) > 0 {
		bt.Symbols = req.Symbols
	}
	if req.Strategy != "" {
		bt.Strategy = req.Strategy
	}
	if req.Start != "" {
		bt.Start = req.Start
	}
	if req.End != "" {
		bt.End = req.End
	}
	if req.Workers > 0 {
		bt.Workers = req.Workers
	}
	if req.LiquidateAtEnd != nil {
		bt.LiquidateAtEnd = *req.LiquidateAtEnd
	}
	cfg.Backtest = bt
	p, err := cfg.ToParams()
	if err != nil {
		return backtest.Result{}, err
	}
	p.Symbols = config.NormalizeSymbols(p.Symbols)
	outcomes, err := r.app.runBacktest(ctx, &cfg, p, nil, req.Scenario)
	if err != nil {
		return backtest.Result{}, err
	}
	if len(outcomes) == 0 {
		return backtest.Result{}, &market.InsufficientDataError{Op: "backtest", Need: 1, Have: 0}
	}
	logger.Infof("api run %s finished", outcomes[0].Result.RunID)
	return outcomes[0].Result, nil
}
