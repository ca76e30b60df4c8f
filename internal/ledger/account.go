package ledger

import (
	"sync"

	"voltrade/internal/market"

	"github.com/shopspring/decimal"
)

const defaultTradeFraction = 0.01

// Settings 是账户的初始参数。
type Settings struct {
	StartingBalance  float64 `json:"starting_balance" yaml:"starting_balance"`
	TradeFraction    float64 `json:"trade_fraction" yaml:"trade_fraction"`
	ProfitMultiple   float64 `json:"profit_multiple" yaml:"profit_multiple"`
	StopLossMultiple float64 `json:"stop_loss_multiple" yaml:"stop_loss_multiple"`
}

// Account 持有余额、最大回撤与按开仓顺序排列的仓位。
// 多头在开仓扣款、平仓回款；空头在每次标记时增量结算，平仓时不再变动余额。
// 内部加锁，可被多个 symbol worker 共享。
type Account struct {
	mu sync.Mutex

	settings    Settings
	balance     decimal.Decimal
	maxDrawdown decimal.Decimal
	tradeUnit   decimal.Decimal
	positions   []Position
}

func NewAccount(s Settings) (*Account, error) {
	if decFromFloat(s.StartingBalance).Sign() <= 0 {
		return nil, &market.ConfigurationError{Key: "account.starting_balance", Reason: "must be > 0"}
	}
	if s.TradeFraction == 0 {
		s.TradeFraction = defaultTradeFraction
	}
	if s.TradeFraction < 0 || s.TradeFraction > 1 {
		return nil, &market.ConfigurationError{Key: "account.trade_fraction", Reason: "must be in (0, 1]"}
	}
	if s.ProfitMultiple < 0 || s.StopLossMultiple < 0 {
		return nil, &market.ConfigurationError{Key: "account.profit_multiple/stop_loss_multiple", Reason: "must be >= 0"}
	}
	start := decFromFloat(s.StartingBalance)
	return &Account{
		settings:    s,
		balance:     start,
		maxDrawdown: start,
		tradeUnit:   start.Mul(decFromFloat(s.TradeFraction)),
	}, nil
}

func (a *Account) Settings() Settings { return a.settings }

// Open 新建 OPEN 仓位；多头立即扣除 price*quantity，空头不变动余额。
func (a *Account) Open(req OpenRequest) (Position, error) {
	if err := req.validate(); err != nil {
		return Position{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	pos := Position{
		ID:           len(a.positions),
		Symbol:       req.Symbol,
		Side:         req.Side,
		State:        StateOpen,
		OpenTime:     req.EffectiveTime,
		EntryPrice:   req.Price,
		CurrentPrice: req.Price,
		Quantity:     req.Quantity,
		StopLoss:     req.StopLoss,
		ProfitTarget: req.ProfitTarget,
	}
	if req.Side == market.SideLong {
		a.balance = a.balance.Sub(notional(req.Price, req.Quantity))
		a.trackDrawdown()
	}
	a.positions = append(a.positions, pos)
	return pos, nil
}

// Update 标记 symbol 上 openTime < effectiveTime 的 OPEN 仓位，返回被标记的数量。
// 多头只更新现价；空头按价差增减余额。
func (a *Account) Update(symbol string, price float64, effectiveTime int64) (int, error) {
	if err := validPrice("price", price); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	eligible := a.eligible(symbol, effectiveTime)
	for _, idx := range eligible {
		pos := &a.positions[idx]
		if pos.Side == market.SideShort {
			switch decimalCompare(price, pos.CurrentPrice) {
			case -1:
				gain := decFromFloat(pos.CurrentPrice).Sub(decFromFloat(price)).Mul(decFromFloat(pos.Quantity))
				a.balance = a.balance.Add(gain)
			case 1:
				loss := decFromFloat(price).Sub(decFromFloat(pos.CurrentPrice)).Mul(decFromFloat(pos.Quantity))
				a.balance = a.balance.Sub(loss)
				a.trackDrawdown()
			}
		}
		pos.CurrentPrice = price
	}
	return len(eligible), nil
}

// Close 平掉触及止盈或止损的合格仓位并返回它们。
// 多头回款 price*quantity；空头已在标记时结算，只记录平仓价与时间。
func (a *Account) Close(symbol string, price float64, effectiveTime int64) ([]Position, error) {
	if err := validPrice("price", price); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var hits []int
	for _, idx := range a.eligible(symbol, effectiveTime) {
		pos := a.positions[idx]
		if targetHit(pos.Side, price, pos.ProfitTarget) || stopHit(pos.Side, price, pos.StopLoss) {
			hits = append(hits, idx)
		}
	}
	return a.closeAt(hits, price, effectiveTime), nil
}

// Liquidate 无视止盈止损，按 price 平掉 symbol 上所有合格仓位，记账规则与 Close 相同。
func (a *Account) Liquidate(symbol string, price float64, effectiveTime int64) ([]Position, error) {
	if err := validPrice("price", price); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeAt(a.eligible(symbol, effectiveTime), price, effectiveTime), nil
}

func (a *Account) closeAt(hits []int, price float64, effectiveTime int64) []Position {
	closed := make([]Position, 0, len(hits))
	for _, idx := range hits {
		pos := &a.positions[idx]
		if pos.Side == market.SideLong {
			a.balance = a.balance.Add(notional(price, pos.Quantity))
			a.trackDrawdown()
		}
		closePrice := price
		closeTime := effectiveTime
		pos.ClosePrice = &closePrice
		pos.CloseTime = &closeTime
		pos.State = StateClosed
		closed = append(closed, *pos)
	}
	return closed
}

// eligible 收集待处理下标，调用方持锁。
func (a *Account) eligible(symbol string, effectiveTime int64) []int {
	var out []int
	for i := range a.positions {
		p := &a.positions[i]
		if p.State == StateOpen && p.Symbol == symbol && p.OpenTime < effectiveTime {
			out = append(out, i)
		}
	}
	return out
}

func (a *Account) trackDrawdown() {
	if a.balance.LessThan(a.maxDrawdown) {
		a.maxDrawdown = a.balance
	}
}

func (a *Account) Balance() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return decToFloat(a.balance)
}

// MaxDrawdown 返回运行期间观测到的最低余额。
func (a *Account) MaxDrawdown() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return decToFloat(a.maxDrawdown)
}

// TradeUnitValue 是每笔交易投入的资金（初始余额 × trade_fraction）。
func (a *Account) TradeUnitValue() float64 {
	return decToFloat(a.tradeUnit)
}

func (a *Account) ProfitMultiple() float64   { return a.settings.ProfitMultiple }
func (a *Account) StopLossMultiple() float64 { return a.settings.StopLossMultiple }

// OpenPositions 返回仍为 OPEN 的仓位副本，symbol 为空时返回全部。
func (a *Account) OpenPositions(symbol string) []Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Position
	for _, p := range a.positions {
		if p.State == StateOpen && (symbol == "" || p.Symbol == symbol) {
			out = append(out, p)
		}
	}
	return out
}

// Positions 返回全部仓位历史的副本。
func (a *Account) Positions() []Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Position, len(a.positions))
	copy(out, a.positions)
	return out
}

// PortfolioValue 汇总仍持有的多头仓位市值。
func (a *Account) PortfolioValue() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := decimalZero
	for _, p := range a.positions {
		if p.State != StateOpen || p.Side != market.SideLong {
			continue
		}
		price := p.CurrentPrice
		if price <= 0 {
			price = p.EntryPrice
		}
		total = total.Add(notional(price, p.Quantity))
	}
	return decToFloat(total)
}
