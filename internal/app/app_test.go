package app

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voltrade/internal/config"
	"voltrade/internal/market"
	"voltrade/internal/store/candlestore"
	httpapi "voltrade/internal/transport/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeMinuteCSV 生成 3 天的正弦价格分钟数据，每分钟成交量为 1。
func writeMinuteCSV(t *testing.T, path string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("timestamp,symbol,open,high,low,close,volume\n")
	start := int64(1704067200)
	prev := 100.0
	for i := 0; i < 3*1440; i++ {
		c := 100 + 5*math.Sin(float64(i)/90)
		fmt.Fprintf(&b, "%d,SIM-USD,%.4f,%.4f,%.4f,%.4f,1\n",
			start+int64(i)*60, prev, math.Max(prev, c)+0.2, math.Min(prev, c)-0.2, c)
		prev = c
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func newTestApp(t *testing.T, extra string) *App {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "sim.csv")
	writeMinuteCSV(t, csvPath)
	yaml := fmt.Sprintf(`
app:
  log_level: warn
data:
  candle_db_dir: %q
  result_db_path: %q
  pattern_file: %q
  report_dir: %q
  import_csv: %q
candles:
  window_unit: hour
  range_count: 2
pattern:
  window: 4
  buckets: 5
  min_strength: 1
  confidence: 0.5
backtest:
  strategy: pattern
%s`, filepath.Join(dir, "candles"), filepath.Join(dir, "runs.db"), filepath.Join(dir, "patterns.csv"),
		filepath.Join(dir, "reports"), csvPath, extra)
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	a, cleanup, err := NewApp(cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return a
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, "")

	reports, err := a.Ingest(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 3*1440, reports[0].Inserted)

	built, err := a.BuildCandles(ctx)
	require.NoError(t, err)
	require.Len(t, built, 1)
	require.NoError(t, built[0].Err)
	assert.Equal(t, "SIM-USD", built[0].Symbol)
	assert.InDelta(t, 60.0, built[0].Limit, 1e-9)
	assert.InDelta(t, 72, len(built[0].Candles), 1)

	vol, err := a.candles.All(ctx, "SIM-USD", candlestore.TimeframeVolume)
	require.NoError(t, err)
	assert.Len(t, vol, len(built[0].Candles))

	stats, err := a.BuildPatterns(ctx)
	require.NoError(t, err)
	assert.Positive(t, stats.Signatures)
	assert.FileExists(t, stats.File)

	outcomes, err := a.Backtest(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	res := outcomes[0].Result
	assert.NotEmpty(t, res.RunID)
	assert.Empty(t, res.Failures)
	assert.Equal(t, 5000.0, res.StartingBalance)
	assert.FileExists(t, outcomes[0].Files.YAML)
	assert.FileExists(t, outcomes[0].Files.HTML)

	saved, err := a.runs.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.FinalBalance, saved.FinalBalance)
}

func TestBacktestScenarios(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, `  scenarios:
    - name: first-day
      start: "2024-01-01"
      end: "2024-01-02"
    - name: last-day
      start: "2024-01-03"
      end: "2024-01-04"
`)
	_, err := a.Ingest(ctx)
	require.NoError(t, err)
	_, err = a.BuildCandles(ctx)
	require.NoError(t, err)
	_, err = a.BuildPatterns(ctx)
	require.NoError(t, err)

	outcomes, err := a.Backtest(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "first-day", outcomes[0].Scenario)
	assert.Equal(t, "last-day", outcomes[1].Scenario)
	assert.NotEqual(t, outcomes[0].Result.RunID, outcomes[1].Result.RunID)

	runs, err := a.runs.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestPatternStrategyNeedsLibrary(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, "")
	_, err := a.Ingest(ctx)
	require.NoError(t, err)
	_, err = a.BuildCandles(ctx)
	require.NoError(t, err)

	_, err = a.Backtest(ctx)
	assert.ErrorIs(t, err, market.ErrConfiguration)
}

func TestBuildCandlesWithoutData(t *testing.T) {
	a := newTestApp(t, "")
	_, err := a.BuildCandles(context.Background())
	assert.ErrorIs(t, err, market.ErrInsufficientData)
}

func TestRunnerAppliesOverrides(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, "")
	_, err := a.Ingest(ctx)
	require.NoError(t, err)
	_, err = a.BuildCandles(ctx)
	require.NoError(t, err)

	liquidate := true
	res, err := runner{app: a}.Run(ctx, httpapi.RunRequest{
		Symbols:        []string{"sim/usd"},
		Strategy:       "cross",
		LiquidateAtEnd: &liquidate,
		Scenario:       "api",
	})
	require.NoError(t, err)
	assert.Equal(t, "cross", res.Strategy)
	assert.Equal(t, []string{"SIM-USD"}, res.Params.Symbols)
	assert.True(t, res.Params.LiquidateAtEnd)

	saved, err := a.runs.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "api", saved.Scenario)
}
