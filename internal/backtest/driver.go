package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"voltrade/internal/indicator"
	"voltrade/internal/ledger"
	"voltrade/internal/logger"
	"voltrade/internal/market"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RunBacktest 对每个 symbol 滑动窗口执行策略并驱动账本。
// 单个 symbol 的数据或参数错误只会记录到 Result.Failures；
// 只有参数整体非法或 ctx 取消时才返回 error。
func RunBacktest(ctx context.Context, p Params, data map[string]market.Records, strategy Strategy) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if strategy == nil {
		return Result{}, &market.ConfigurationError{Key: "backtest.strategy", Reason: "strategy is nil"}
	}
	acct, err := ledger.NewAccount(p.Account)
	if err != nil {
		return Result{}, err
	}
	d := &driver{
		params:   p,
		strategy: strategy,
		account:  acct,
		runID:    uuid.NewString(),
		warmup:   p.Warmup(strategy),
	}
	d.log = logger.With("run", d.runID)
	started := time.Now().UTC()

	symbols := p.Symbols
	if len(symbols) == 0 {
		symbols = market.Symbols(data)
	}
	d.log.Infof("backtest start strategy=%s symbols=%d warmup=%d balance=%.2f",
		strategy.Name(), len(symbols), d.warmup, acct.Balance())

	if p.Workers <= 1 {
		for _, sym := range symbols {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			d.runSymbol(ctx, sym, data[sym])
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.Workers)
		for _, sym := range symbols {
			sym := sym
			g.Go(func() error {
				d.runSymbol(gctx, sym, data[sym])
				return nil
			})
		}
		_ = g.Wait()
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := d.result(started)
	d.log.Infof("backtest done final=%.2f max_drawdown=%.2f positions=%d failures=%d",
		res.FinalBalance, res.MaxDrawdown, len(res.Positions), len(res.Failures))
	return res, nil
}

type driver struct {
	params   Params
	strategy Strategy
	account  *ledger.Account
	runID    string
	warmup   int
	log      *logger.Scoped

	mu       sync.Mutex
	failures []SymbolFailure
	stats    []SymbolStats
	curve    []BalancePoint
}

func (d *driver) runSymbol(ctx context.Context, symbol string, records market.Records) {
	log := d.log.With("symbol", symbol)
	stats, err := d.simulate(ctx, symbol, records, log)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = append(d.stats, stats)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		f := newFailure(symbol, err)
		log.Warnf("symbol aborted kind=%s err=%v", f.Kind, err)
		d.failures = append(d.failures, f)
	}
}

func (d *driver) simulate(ctx context.Context, symbol string, records market.Records, log *logger.Scoped) (SymbolStats, error) {
	stats := SymbolStats{Symbol: symbol}
	window := records.Between(d.params.Start, d.params.End)
	for i, r := range window {
		if err := r.Validate(); err != nil {
			return stats, fmt.Errorf("record %d: %w", i, err)
		}
	}
	if err := market.NeedRecords("backtest "+symbol, d.warmup, len(window)); err != nil {
		return stats, err
	}
	stats.Records = len(window)
	log.Debugf("simulate records=%d first=%s", len(window), window[0].Time().Format(time.RFC3339))

	for end := d.warmup; end <= len(window); end++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := d.step(symbol, window[end-d.warmup:end], &stats, log); err != nil {
			return stats, err
		}
	}

	if d.params.LiquidateAtEnd {
		last, _ := window.Last()
		closed, err := d.account.Liquidate(symbol, last.Close, last.Timestamp+d.params.periodSeconds())
		if err != nil {
			return stats, err
		}
		for _, pos := range closed {
			d.journal("liquidate", pos)
		}
		stats.Closed += len(closed)
	}
	return stats, nil
}

// step 处理一个窗口：信号 K 线收盘后下一周期生效，先开仓，再标记，最后检查平仓。
func (d *driver) step(symbol string, window market.Records, stats *SymbolStats, log *logger.Scoped) error {
	latest, _ := window.Last()
	price := latest.Close
	effective := latest.Timestamp + d.params.periodSeconds()
	stats.Steps++

	signal, err := d.strategy.Decide(window)
	if err != nil {
		return fmt.Errorf("%s decide: %w", d.strategy.Name(), err)
	}
	if side, ok := signal.Side(); ok {
		stats.Signals++
		atr, err := indicator.AverageTrueRange(priorWindow(window, d.params.ATR))
		if err != nil {
			return err
		}
		if atr > 0 && price > 0 {
			req := d.bracket(side, symbol, price, atr, effective)
			pos, err := d.account.Open(req)
			if err != nil {
				return err
			}
			stats.Opened++
			d.journal("open", pos)
			if logger.Enabled(slog.LevelDebug) {
				log.Debugf("open side=%s price=%.4f qty=%.6f stop=%.4f target=%.4f %s",
					side, price, req.Quantity, req.StopLoss, req.ProfitTarget, window.Snapshot())
			}
		} else {
			log.Debugf("signal skipped: flat atr at %s", latest.Time().Format(time.RFC3339))
		}
	}

	if _, err := d.account.Update(symbol, price, effective); err != nil {
		return err
	}
	closed, err := d.account.Close(symbol, price, effective)
	if err != nil {
		return err
	}
	for _, pos := range closed {
		d.journal("close", pos)
	}
	stats.Closed += len(closed)

	d.mu.Lock()
	d.curve = append(d.curve, BalancePoint{
		Symbol:    symbol,
		Timestamp: effective,
		Balance:   d.account.Balance(),
	})
	d.mu.Unlock()
	return nil
}

// bracket 按 ATR 倍数生成止盈止损：多头 target 在上 stop 在下，空头相反。
func (d *driver) bracket(side market.Side, symbol string, price, atr float64, effective int64) ledger.OpenRequest {
	profit := atr * d.params.Account.ProfitMultiple
	stop := atr * d.params.Account.StopLossMultiple
	req := ledger.OpenRequest{
		Side:          side,
		Symbol:        symbol,
		Price:         price,
		Quantity:      d.account.TradeUnitValue() / price,
		EffectiveTime: effective,
	}
	if side == market.SideLong {
		req.ProfitTarget = price + profit
		req.StopLoss = price - stop
	} else {
		req.ProfitTarget = price - profit
		req.StopLoss = price + stop
	}
	return req
}

func (d *driver) journal(kind string, pos ledger.Position) {
	fields := []logger.JournalField{
		logger.F("id", pos.ID),
		logger.F("side", pos.Side),
		logger.F("entry", pos.EntryPrice),
		logger.F("qty", pos.Quantity),
		logger.F("stop", pos.StopLoss),
		logger.F("target", pos.ProfitTarget),
	}
	if pos.ClosePrice != nil {
		fields = append(fields, logger.F("close", *pos.ClosePrice))
	}
	fields = append(fields, logger.F("balance", d.account.Balance()))
	logger.Journal(kind, d.runID, pos.Symbol, fields...)
}

func (d *driver) result(started time.Time) Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	sort.Slice(d.failures, func(i, j int) bool { return d.failures[i].Symbol < d.failures[j].Symbol })
	sort.Slice(d.stats, func(i, j int) bool { return d.stats[i].Symbol < d.stats[j].Symbol })
	start := d.params.Account.StartingBalance
	final := d.account.Balance()
	res := Result{
		RunID:           d.runID,
		Strategy:        d.strategy.Name(),
		Params:          d.params,
		StartingBalance: start,
		FinalBalance:    final,
		MaxDrawdown:     d.account.MaxDrawdown(),
		Profit:          final - start,
		PortfolioValue:  d.account.PortfolioValue(),
		Positions:       d.account.Positions(),
		Summary:         d.account.Summary(),
		Failures:        append([]SymbolFailure(nil), d.failures...),
		Symbols:         append([]SymbolStats(nil), d.stats...),
		Curve:           append([]BalancePoint(nil), d.curve...),
		StartedAt:       started,
		FinishedAt:      time.Now().UTC(),
	}
	if start != 0 {
		res.ReturnPct = res.Profit / start * 100
	}
	return res
}

func newFailure(symbol string, err error) SymbolFailure {
	f := SymbolFailure{Symbol: symbol, Kind: FailureOther, Message: err.Error()}
	var (
		insufficient *market.InsufficientDataError
		validation   *market.ValidationError
		config       *market.ConfigurationError
	)
	switch {
	case errors.As(err, &insufficient):
		f.Kind = FailureInsufficientData
	case errors.As(err, &validation):
		f.Kind = FailureValidation
	case errors.As(err, &config):
		f.Kind = FailureConfiguration
	}
	return f
}
