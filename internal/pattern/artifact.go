package pattern

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"voltrade/internal/market"
)

var artifactHeader = []string{"sequence", "total", "buy", "short", "hold"}

// WriteCSV 写出前缀表，前缀以 "[1, 2, 3]" 列表字面量形式保存。
func WriteCSV(w io.Writer, rows []Consolidated) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(artifactHeader); err != nil {
		return err
	}
	for _, row := range rows {
		rec := []string{
			formatPrefix(row.Prefix),
			strconv.Itoa(row.Total),
			strconv.Itoa(row.Buy),
			strconv.Itoa(row.Short),
			strconv.Itoa(row.Hold),
		}
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSV 读取 WriteCSV 的输出，格式错误返回 ValidationError。
func ReadCSV(r io.Reader) ([]Consolidated, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pattern header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range artifactHeader {
		if _, ok := cols[name]; !ok {
			return nil, &market.ValidationError{Field: name, Reason: "missing column in pattern artifact"}
		}
	}
	var out []Consolidated
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read pattern line %d: %w", line, err)
		}
		prefix, err := parsePrefix(rec[cols["sequence"]])
		if err != nil {
			return nil, fmt.Errorf("pattern line %d: %w", line, err)
		}
		row := Consolidated{Prefix: prefix}
		counts := []struct {
			name string
			dst  *int
		}{
			{"total", &row.Total},
			{"buy", &row.Buy},
			{"short", &row.Short},
			{"hold", &row.Hold},
		}
		for _, c := range counts {
			n, err := strconv.Atoi(strings.TrimSpace(rec[cols[c.name]]))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("pattern line %d: %w", line,
					&market.ValidationError{Field: c.name, Reason: fmt.Sprintf("not a count: %q", rec[cols[c.name]])})
			}
			*c.dst = n
		}
		out = append(out, row)
	}
	return out, nil
}

func formatPrefix(seq []int) string {
	parts := make([]string, len(seq))
	for i, v := range seq {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func parsePrefix(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "[") || !strings.HasSuffix(raw, "]") {
		return nil, &market.ValidationError{Field: "sequence", Reason: fmt.Sprintf("not a list literal: %q", raw)}
	}
	body := strings.TrimSpace(raw[1 : len(raw)-1])
	if body == "" {
		return nil, &market.ValidationError{Field: "sequence", Reason: "empty list"}
	}
	parts := strings.Split(body, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, &market.ValidationError{Field: "sequence", Reason: fmt.Sprintf("bad bucket %q", p)}
		}
		out[i] = n
	}
	return out, nil
}
