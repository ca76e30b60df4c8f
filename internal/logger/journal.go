package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

var (
	journalMu  sync.Mutex
	journalLog *log.Logger
)

// SetJournalWriter 设置成交日志的输出；nil 关闭。
func SetJournalWriter(w io.Writer) {
	journalMu.Lock()
	defer journalMu.Unlock()
	if w == nil {
		journalLog = nil
		return
	}
	journalLog = log.New(w, "", log.LstdFlags)
}

// JournalField 是成交日志中的一个键值。
type JournalField struct {
	Key   string
	Value any
}

func F(key string, value any) JournalField {
	return JournalField{Key: key, Value: value}
}

// Journal 以块格式记录一次仓位事件（open/close/liquidate）。
func Journal(kind, runID, symbol string, fields ...JournalField) {
	journalMu.Lock()
	l := journalLog
	journalMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[TRADE]")
	for _, tag := range []string{kind, runID, symbol} {
		if tag == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(tag)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, f := range fields {
		key := strings.TrimSpace(f.Key)
		if key == "" {
			key = "value"
		}
		b.WriteString(fmt.Sprintf("  %s=%v\n", key, f.Value))
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}
