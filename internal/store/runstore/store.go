// Package runstore 用 gorm + sqlite 持久化回测运行、仓位与形态库。
package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voltrade/internal/backtest"
	"voltrade/internal/ledger"
	"voltrade/internal/market"
	"voltrade/internal/pattern"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound 表示运行或形态库不存在。
var ErrNotFound = errors.New("not found")

// RunRecord 是读回的一次运行。
type RunRecord struct {
	RunID           string                   `json:"run_id"`
	Strategy        string                   `json:"strategy"`
	Scenario        string                   `json:"scenario,omitempty"`
	StartingBalance float64                  `json:"starting_balance"`
	FinalBalance    float64                  `json:"final_balance"`
	MaxDrawdown     float64                  `json:"max_drawdown"`
	Profit          float64                  `json:"profit"`
	ReturnPct       float64                  `json:"return_pct"`
	PositionCount   int                      `json:"position_count"`
	Params          backtest.Params          `json:"params"`
	Summary         ledger.Summary           `json:"summary"`
	Failures        []backtest.SymbolFailure `json:"failures,omitempty"`
	Symbols         []backtest.SymbolStats   `json:"symbols,omitempty"`
	StartedAt       time.Time                `json:"started_at"`
	FinishedAt      time.Time                `json:"finished_at"`
}

// Aggregate 汇总全部运行。
type Aggregate struct {
	Runs          int     `json:"runs"`
	BestRunID     string  `json:"best_run_id,omitempty"`
	BestFinal     float64 `json:"best_final_balance"`
	AverageFinal  float64 `json:"average_final_balance"`
	WorstDrawdown float64 `json:"worst_drawdown"`
}

type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, &market.ConfigurationError{Key: "data.result_db_path", Reason: "cannot be empty"}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return NewFromDB(db)
}

func NewFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, &market.ConfigurationError{Key: "data.result_db_path", Reason: "gorm db is nil"}
	}
	models := []interface{}{
		&RunModel{},
		&PositionModel{},
		&PatternModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun 在一个事务中写入运行汇总与全部仓位。
func (s *Store) SaveRun(ctx context.Context, res backtest.Result, scenario string) error {
	if strings.TrimSpace(res.RunID) == "" {
		return &market.ValidationError{Field: "run_id", Reason: "cannot be empty"}
	}
	run := RunModel{
		ID:              res.RunID,
		Strategy:        res.Strategy,
		Scenario:        scenario,
		StartingBalance: res.StartingBalance,
		FinalBalance:    res.FinalBalance,
		MaxDrawdown:     res.MaxDrawdown,
		Profit:          res.Profit,
		ReturnPct:       res.ReturnPct,
		PositionCount:   len(res.Positions),
		FailureCount:    len(res.Failures),
		StartedAtUnix:   res.StartedAt.Unix(),
		FinishedAtUnix:  res.FinishedAt.Unix(),
		CreatedAtUnix:   time.Now().Unix(),
	}
	var err error
	if run.ParamsJSON, err = toJSON(res.Params); err != nil {
		return err
	}
	if run.SummaryJSON, err = toJSON(res.Summary); err != nil {
		return err
	}
	if run.FailuresJSON, err = toJSON(res.Failures); err != nil {
		return err
	}
	if run.SymbolsJSON, err = toJSON(res.Symbols); err != nil {
		return err
	}
	positions := make([]PositionModel, 0, len(res.Positions))
	for _, p := range res.Positions {
		positions = append(positions, PositionModel{
			RunID:        res.RunID,
			PositionID:   p.ID,
			Symbol:       p.Symbol,
			Side:         string(p.Side),
			State:        string(p.State),
			OpenTime:     p.OpenTime,
			EntryPrice:   p.EntryPrice,
			CurrentPrice: p.CurrentPrice,
			ClosePrice:   p.ClosePrice,
			CloseTime:    p.CloseTime,
			Quantity:     p.Quantity,
			StopLoss:     p.StopLoss,
			ProfitTarget: p.ProfitTarget,
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		if len(positions) == 0 {
			return nil
		}
		return tx.CreateInBatches(positions, 200).Error
	})
}

// ListRuns 按完成时间倒序返回最近的运行，limit<=0 时默认 50。
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []RunModel
	if err := s.db.WithContext(ctx).Order("finished_at DESC").Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]RunRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	var row RunModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RunRecord{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return RunRecord{}, err
	}
	return row.toRecord()
}

// ListPositions 返回运行的全部仓位（按开仓顺序）。
func (s *Store) ListPositions(ctx context.Context, runID string) ([]ledger.Position, error) {
	var rows []PositionModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("position_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.Position, 0, len(rows))
	for _, row := range rows {
		out = append(out, ledger.Position{
			ID:           row.PositionID,
			Symbol:       row.Symbol,
			Side:         market.Side(row.Side),
			State:        ledger.State(row.State),
			OpenTime:     row.OpenTime,
			EntryPrice:   row.EntryPrice,
			CurrentPrice: row.CurrentPrice,
			ClosePrice:   row.ClosePrice,
			CloseTime:    row.CloseTime,
			Quantity:     row.Quantity,
			StopLoss:     row.StopLoss,
			ProfitTarget: row.ProfitTarget,
		})
	}
	return out, nil
}

// Summary 汇总全部运行的最终余额与回撤。
func (s *Store) Summary(ctx context.Context) (Aggregate, error) {
	var rows []RunModel
	if err := s.db.WithContext(ctx).Select("id", "final_balance", "max_drawdown").Find(&rows).Error; err != nil {
		return Aggregate{}, err
	}
	var agg Aggregate
	total := 0.0
	for i, row := range rows {
		agg.Runs++
		total += row.FinalBalance
		if i == 0 || row.FinalBalance > agg.BestFinal {
			agg.BestFinal = row.FinalBalance
			agg.BestRunID = row.ID
		}
		if i == 0 || row.MaxDrawdown < agg.WorstDrawdown {
			agg.WorstDrawdown = row.MaxDrawdown
		}
	}
	if agg.Runs > 0 {
		agg.AverageFinal = total / float64(agg.Runs)
	}
	return agg, nil
}

// SavePatterns 替换已存的形态库。
func (s *Store) SavePatterns(ctx context.Context, libraryID string, window, buckets int, rows []pattern.Consolidated) error {
	now := time.Now().Unix()
	models := make([]PatternModel, 0, len(rows))
	for _, row := range rows {
		seq, err := toJSON(row.Prefix)
		if err != nil {
			return err
		}
		models = append(models, PatternModel{
			LibraryID:     libraryID,
			Sequence:      seq,
			Window:        window,
			Buckets:       buckets,
			Total:         row.Total,
			Buy:           row.Buy,
			Short:         row.Short,
			Hold:          row.Hold,
			CreatedAtUnix: now,
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&PatternModel{}).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.CreateInBatches(models, 500).Error
	})
}

// PatternLibrary 是读回的形态库。
type PatternLibrary struct {
	LibraryID string                 `json:"library_id"`
	Window    int                    `json:"window"`
	Buckets   int                    `json:"buckets"`
	Rows      []pattern.Consolidated `json:"rows"`
}

func (s *Store) LoadPatterns(ctx context.Context) (PatternLibrary, error) {
	var rows []PatternModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return PatternLibrary{}, err
	}
	if len(rows) == 0 {
		return PatternLibrary{}, fmt.Errorf("pattern library: %w", ErrNotFound)
	}
	lib := PatternLibrary{
		LibraryID: rows[0].LibraryID,
		Window:    rows[0].Window,
		Buckets:   rows[0].Buckets,
		Rows:      make([]pattern.Consolidated, 0, len(rows)),
	}
	for _, row := range rows {
		var prefix []int
		if err := json.Unmarshal(row.Sequence, &prefix); err != nil {
			return PatternLibrary{}, fmt.Errorf("pattern %d: %w", row.ID, err)
		}
		lib.Rows = append(lib.Rows, pattern.Consolidated{
			Prefix: prefix,
			Total:  row.Total,
			Buy:    row.Buy,
			Short:  row.Short,
			Hold:   row.Hold,
		})
	}
	return lib, nil
}

func (m RunModel) toRecord() (RunRecord, error) {
	rec := RunRecord{
		RunID:           m.ID,
		Strategy:        m.Strategy,
		Scenario:        m.Scenario,
		StartingBalance: m.StartingBalance,
		FinalBalance:    m.FinalBalance,
		MaxDrawdown:     m.MaxDrawdown,
		Profit:          m.Profit,
		ReturnPct:       m.ReturnPct,
		PositionCount:   m.PositionCount,
		StartedAt:       time.Unix(m.StartedAtUnix, 0).UTC(),
		FinishedAt:      time.Unix(m.FinishedAtUnix, 0).UTC(),
	}
	if err := fromJSON(m.ParamsJSON, &rec.Params); err != nil {
		return RunRecord{}, err
	}
	if err := fromJSON(m.SummaryJSON, &rec.Summary); err != nil {
		return RunRecord{}, err
	}
	if err := fromJSON(m.FailuresJSON, &rec.Failures); err != nil {
		return RunRecord{}, err
	}
	if err := fromJSON(m.SymbolsJSON, &rec.Symbols); err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

func toJSON(v any) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func fromJSON(raw datatypes.JSON, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
