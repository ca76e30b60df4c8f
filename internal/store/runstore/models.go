package runstore

import (
	"gorm.io/datatypes"
)

// RunModel 是一次回测运行的汇总行。
type RunModel struct {
	ID              string         `gorm:"column:id;primaryKey"`
	Strategy        string         `gorm:"column:strategy;index"`
	Scenario        string         `gorm:"column:scenario"`
	StartingBalance float64        `gorm:"column:starting_balance"`
	FinalBalance    float64        `gorm:"column:final_balance"`
	MaxDrawdown     float64        `gorm:"column:max_drawdown"`
	Profit          float64        `gorm:"column:profit"`
	ReturnPct       float64        `gorm:"column:return_pct"`
	PositionCount   int            `gorm:"column:position_count"`
	FailureCount    int            `gorm:"column:failure_count"`
	ParamsJSON      datatypes.JSON `gorm:"column:params_json;type:TEXT"`
	SummaryJSON     datatypes.JSON `gorm:"column:summary_json;type:TEXT"`
	FailuresJSON    datatypes.JSON `gorm:"column:failures_json;type:TEXT"`
	SymbolsJSON     datatypes.JSON `gorm:"column:symbols_json;type:TEXT"`
	StartedAtUnix   int64          `gorm:"column:started_at"`
	FinishedAtUnix  int64          `gorm:"column:finished_at;index"`
	CreatedAtUnix   int64          `gorm:"column:created_at"`
}

func (RunModel) TableName() string { return "backtest_runs" }

// PositionModel 是运行结束时账本中的一笔仓位。
type PositionModel struct {
	ID           int64    `gorm:"column:id;primaryKey;autoIncrement"`
	RunID        string   `gorm:"column:run_id;uniqueIndex:idx_run_position,priority:1"`
	PositionID   int      `gorm:"column:position_id;uniqueIndex:idx_run_position,priority:2"`
	Symbol       string   `gorm:"column:symbol;index"`
	Side         string   `gorm:"column:side"`
	State        string   `gorm:"column:state"`
	OpenTime     int64    `gorm:"column:open_time"`
	EntryPrice   float64  `gorm:"column:entry_price"`
	CurrentPrice float64  `gorm:"column:current_price"`
	ClosePrice   *float64 `gorm:"column:close_price"`
	CloseTime    *int64   `gorm:"column:close_time"`
	Quantity     float64  `gorm:"column:quantity"`
	StopLoss     float64  `gorm:"column:stop_loss"`
	ProfitTarget float64  `gorm:"column:profit_target"`
}

func (PositionModel) TableName() string { return "backtest_positions" }

// PatternModel 是形态库中合并后的一个前缀。
type PatternModel struct {
	ID            int64          `gorm:"column:id;primaryKey;autoIncrement"`
	LibraryID     string         `gorm:"column:library_id;index"`
	Sequence      datatypes.JSON `gorm:"column:sequence;type:TEXT"`
	Window        int            `gorm:"column:window_size"`
	Buckets       int            `gorm:"column:buckets"`
	Total         int            `gorm:"column:total"`
	Buy           int            `gorm:"column:buy"`
	Short         int            `gorm:"column:short"`
	Hold          int            `gorm:"column:hold"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (PatternModel) TableName() string { return "pattern_library" }
