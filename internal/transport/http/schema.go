package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"voltrade/internal/backtest"
	"voltrade/internal/market"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RunRequest 是 POST /api/runs 的请求体，未给出的字段沿用配置文件。
type RunRequest struct {
	Symbols        []string `json:"symbols,omitempty"`
	Strategy       string   `json:"strategy,omitempty"`
	Start          string   `json:"start,omitempty"`
	End            string   `json:"end,omitempty"`
	Scenario       string   `json:"scenario,omitempty"`
	Workers        int      `json:"workers,omitempty"`
	LiquidateAtEnd *bool    `json:"liquidate_at_end,omitempty"`
}

var runRequestSchema = fmt.Sprintf(`{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "symbols": {"type": "array", "items": {"type": "string", "minLength": 1}, "uniqueItems": true},
    "strategy": {"type": "string", "enum": [%q, %q, %q, %q]},
    "start": {"type": "string"},
    "end": {"type": "string"},
    "scenario": {"type": "string", "maxLength": 64},
    "workers": {"type": "integer", "minimum": 1, "maximum": 64},
    "liquidate_at_end": {"type": "boolean"}
  }
}`, backtest.StrategyPattern, backtest.StrategyTrendRSI, backtest.StrategyCross, backtest.StrategySuperTrend)

func compileRunSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("run_request.json", strings.NewReader(runRequestSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("run_request.json")
}

// decodeRunRequest 先按 schema 校验再解码，校验失败返回 ValidationError。
func decodeRunRequest(schema *jsonschema.Schema, body []byte) (RunRequest, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return RunRequest{}, &market.ValidationError{Field: "body", Reason: err.Error()}
	}
	if err := schema.Validate(doc); err != nil {
		return RunRequest{}, &market.ValidationError{Field: "body", Reason: err.Error()}
	}
	var req RunRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return RunRequest{}, &market.ValidationError{Field: "body", Reason: err.Error()}
	}
	return req, nil
}
