// Package report 把回测结果写成 YAML 摘要与 echarts HTML 页面。
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"voltrade/internal/backtest"
	"voltrade/internal/ledger"
	"voltrade/internal/market"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// Document 是 YAML 报告的顶层结构，时间统一为 UTC RFC3339。
type Document struct {
	RunID      string                   `yaml:"run_id"`
	Scenario   string                   `yaml:"scenario,omitempty"`
	Strategy   string                   `yaml:"strategy"`
	Window     Window                   `yaml:"window"`
	Balance    Balance                  `yaml:"balance"`
	Summary    ledger.Summary           `yaml:"summary"`
	Symbols    []backtest.SymbolStats   `yaml:"symbols"`
	Failures   []backtest.SymbolFailure `yaml:"failures,omitempty"`
	Params     backtest.Params          `yaml:"params"`
	StartedAt  string                   `yaml:"started_at"`
	FinishedAt string                   `yaml:"finished_at"`
}

type Window struct {
	Start string `yaml:"start,omitempty"`
	End   string `yaml:"end,omitempty"`
}

type Balance struct {
	Starting       float64 `yaml:"starting"`
	Final          float64 `yaml:"final"`
	Profit         float64 `yaml:"profit"`
	ReturnPct      float64 `yaml:"return_pct"`
	MaxDrawdown    float64 `yaml:"max_drawdown"`
	PortfolioValue float64 `yaml:"portfolio_value"`
}

func NewDocument(res backtest.Result, scenario string) Document {
	return Document{
		RunID:    res.RunID,
		Scenario: scenario,
		Strategy: res.Strategy,
		Window:   Window{Start: formatUnix(res.Params.Start), End: formatUnix(res.Params.End)},
		Balance: Balance{
			Starting:       res.StartingBalance,
			Final:          res.FinalBalance,
			Profit:         res.Profit,
			ReturnPct:      res.ReturnPct,
			MaxDrawdown:    res.MaxDrawdown,
			PortfolioValue: res.PortfolioValue,
		},
		Summary:    res.Summary,
		Symbols:    res.Symbols,
		Failures:   res.Failures,
		Params:     res.Params,
		StartedAt:  res.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: res.FinishedAt.UTC().Format(time.RFC3339),
	}
}

// WriteYAML 以两空格缩进写出报告。
func WriteYAML(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// Files 是 WriteFiles 生成的文件路径。
type Files struct {
	YAML string
	HTML string
}

// WriteFiles 在 dir 下生成 <runID>.yaml 与 <runID>.html；没有 K 线时只写 YAML。
func WriteFiles(dir string, res backtest.Result, scenario string, candles map[string]market.Records) (Files, error) {
	if res.RunID == "" {
		return Files{}, &market.ValidationError{Field: "run_id", Reason: "empty"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, err
	}
	var out Files
	out.YAML = filepath.Join(dir, res.RunID+".yaml")
	if err := writeFile(out.YAML, func(w io.Writer) error {
		return WriteYAML(w, NewDocument(res, scenario))
	}); err != nil {
		return Files{}, err
	}
	if len(candles) == 0 {
		return out, nil
	}
	out.HTML = filepath.Join(dir, res.RunID+".html")
	if err := writeFile(out.HTML, func(w io.Writer) error {
		return RenderHTML(w, ChartInput{Result: res, Candles: candles})
	}); err != nil {
		return out, err
	}
	return out, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Headline 返回一行带千分位的结果摘要，供 CLI 输出。
func Headline(res backtest.Result) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("run %s [%s] balance %.2f -> %.2f (%+.2f%%), max drawdown %.2f, trades %d, failures %d",
		res.RunID, res.Strategy, res.StartingBalance, res.FinalBalance, res.ReturnPct,
		res.MaxDrawdown, res.Summary.Opened, len(res.Failures))
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
