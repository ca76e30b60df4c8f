// Package candlestore 把分钟记录与成交量 K 线按 symbol@timeframe 存入独立的 sqlite 文件。
package candlestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"voltrade/internal/market"

	_ "modernc.org/sqlite"
)

const (
	TimeframeMinute = "1m"
	TimeframeVolume = "vol"
)

// Manifest 记录某个 symbol@timeframe 文件的统计信息。
type Manifest struct {
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
	MinTime    int64  `json:"min_time"`
	MaxTime    int64  `json:"max_time"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
	Path       string `json:"path"`
}

type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, &market.ConfigurationError{Key: "data.candle_db_dir", Reason: "cannot be empty"}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *Store) db(symbol, timeframe string) (*sql.DB, string, error) {
	if strings.TrimSpace(symbol) == "" || strings.TrimSpace(timeframe) == "" {
		return nil, "", &market.ValidationError{Field: "symbol", Reason: "symbol/timeframe cannot be empty"}
	}
	key := strings.ToUpper(symbol) + "@" + strings.ToLower(timeframe)
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[key]; ok && db != nil {
		return db, s.dbPath(symbol, timeframe), nil
	}
	path := s.dbPath(symbol, timeframe)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db, symbol, timeframe); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	s.dbs[key] = db
	return db, path, nil
}

func (s *Store) dbPath(symbol, timeframe string) string {
	dir := filepath.Join(s.root, strings.ToUpper(symbol))
	return filepath.Join(dir, strings.ToLower(timeframe)+".db")
}

// Insert 按 symbol 分组批量写入记录（分钟数据重复 ts 将被覆盖），返回写入条数。
func (s *Store) Insert(ctx context.Context, timeframe string, records market.Records) (int, error) {
	total := 0
	grouped := records.BySymbol()
	for _, sym := range market.Symbols(grouped) {
		n, err := s.insertSymbol(ctx, sym, timeframe, grouped[sym])
		total += n
		if err != nil {
			return total, fmt.Errorf("insert %s@%s: %w", sym, timeframe, err)
		}
	}
	return total, nil
}

// Replace 在同一事务内清空 symbol@timeframe 并写入，用于重建成交量 K 线。
func (s *Store) Replace(ctx context.Context, symbol, timeframe string, records market.Records) (int, error) {
	db, _, err := s.db(symbol, timeframe)
	if err != nil {
		return 0, err
	}
	return s.write(ctx, db, timeframe, records, true)
}

func (s *Store) insertSymbol(ctx context.Context, symbol, timeframe string, records market.Records) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	db, _, err := s.db(symbol, timeframe)
	if err != nil {
		return 0, err
	}
	return s.write(ctx, db, timeframe, records, false)
}

// write 在一个事务内写入；truncate 为 true 时先清空旧数据，失败则整体回滚。
// 分钟数据以 ts 唯一（重复覆盖），成交量 K 线允许同 ts 多根，按 seq 保序。
func (s *Store) write(ctx context.Context, db *sql.DB, timeframe string, records market.Records, truncate bool) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	if truncate {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
	}
	query := `INSERT INTO records (ts, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?)`
	if uniqueTimestamps(timeframe) {
		query += `
		ON CONFLICT(ts) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume`
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, r := range records {
		if err := r.Validate(); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("ts=%d: %w", r.Timestamp, err)
		}
		if _, err := stmt.ExecContext(ctx, r.Timestamp, r.Open, r.High, r.Low, r.Close, r.Volume); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if err := s.refreshManifest(ctx, db); err != nil {
		return count, err
	}
	return count, nil
}

// uniqueTimestamps 报告该 timeframe 是否以 ts 去重；成交量 K 线可能同 ts 连续成交多根。
func uniqueTimestamps(timeframe string) bool {
	return strings.ToLower(timeframe) != TimeframeVolume
}

// LoadTimestamps 返回区间内已有的 ts，用于抓取时跳过已覆盖的分页。
func (s *Store) LoadTimestamps(ctx context.Context, symbol, timeframe string, start, end int64) ([]int64, error) {
	db, _, err := s.db(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT ts FROM records WHERE ts BETWEEN ? AND ? ORDER BY ts`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (s *Store) Manifest(ctx context.Context, symbol, timeframe string) (Manifest, error) {
	db, path, err := s.db(symbol, timeframe)
	if err != nil {
		return Manifest{}, err
	}
	row := db.QueryRowContext(ctx, `SELECT symbol,timeframe,COALESCE(min_time,0),COALESCE(max_time,0),rows,COALESCE(last_sync_at,0) FROM manifest WHERE id=1`)
	var m Manifest
	if err := row.Scan(&m.Symbol, &m.Timeframe, &m.MinTime, &m.MaxTime, &m.Rows, &m.LastSyncAt); err != nil {
		return Manifest{}, err
	}
	m.Path = path
	return m, nil
}

func (s *Store) refreshManifest(ctx context.Context, db *sql.DB) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE manifest
		SET min_time = (SELECT COALESCE(MIN(ts), 0) FROM records),
		    max_time = (SELECT COALESCE(MAX(ts), 0) FROM records),
		    rows = (SELECT COUNT(1) FROM records),
		    last_sync_at = ?
		WHERE id = 1`, now)
	return err
}

func ensureSchema(db *sql.DB, symbol, timeframe string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			seq    INTEGER PRIMARY KEY AUTOINCREMENT,
			ts     INTEGER NOT NULL,
			open   REAL NOT NULL,
			high   REAL NOT NULL,
			low    REAL NOT NULL,
			close  REAL NOT NULL,
			volume REAL NOT NULL,
			inserted_at INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000)
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			id INTEGER PRIMARY KEY CHECK (id=1),
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			min_time INTEGER,
			max_time INTEGER,
			rows INTEGER DEFAULT 0,
			last_sync_at INTEGER
		);`,
	}
	if uniqueTimestamps(timeframe) {
		stmts = append(stmts, `CREATE UNIQUE INDEX IF NOT EXISTS idx_records_ts ON records (ts);`)
	} else {
		stmts = append(stmts, `CREATE INDEX IF NOT EXISTS idx_records_ts ON records (ts);`)
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT INTO manifest (id, symbol, timeframe) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET symbol=excluded.symbol, timeframe=excluded.timeframe;`,
		strings.ToUpper(symbol), strings.ToLower(timeframe))
	return err
}

// Range 返回 [start, end] 内的记录（按 ts、写入顺序升序），0 表示不限。
func (s *Store) Range(ctx context.Context, symbol, timeframe string, start, end int64) (market.Records, error) {
	db, _, err := s.db(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	if start > 0 && end > 0 && end < start {
		start, end = end, start
	}
	if end <= 0 {
		end = 1<<63 - 1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM records
		WHERE ts BETWEEN ? AND ?
		ORDER BY ts ASC, seq ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sym := strings.ToUpper(symbol)
	var list market.Records
	for rows.Next() {
		r := market.Record{Symbol: sym}
		if err := rows.Scan(&r.Timestamp, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// All 返回全部记录（ts 升序）。
func (s *Store) All(ctx context.Context, symbol, timeframe string) (market.Records, error) {
	return s.Range(ctx, symbol, timeframe, 0, 0)
}

// Load 读取多个 symbol 的区间数据；symbols 为空时读取 timeframe 下全部 symbol。
func (s *Store) Load(ctx context.Context, timeframe string, symbols []string, start, end int64) (map[string]market.Records, error) {
	if len(symbols) == 0 {
		var err error
		if symbols, err = s.Symbols(timeframe); err != nil {
			return nil, err
		}
	}
	out := make(map[string]market.Records, len(symbols))
	for _, sym := range symbols {
		records, err := s.Range(ctx, sym, timeframe, start, end)
		if err != nil {
			return nil, fmt.Errorf("load %s@%s: %w", sym, timeframe, err)
		}
		out[strings.ToUpper(sym)] = records
	}
	return out, nil
}

// Symbols 列出已有 timeframe 数据文件的 symbol。
func (s *Store) Symbols(timeframe string) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	name := strings.ToLower(timeframe) + ".db"
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), name)); err == nil {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
