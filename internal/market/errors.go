package market

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrValidation       = errors.New("validation failed")
	ErrConfiguration    = errors.New("invalid configuration")
)

// InsufficientDataError 表示窗口短于计算所需的长度。
type InsufficientDataError struct {
	Op   string
	Need int
	Have int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: need %d records, have %d", e.Op, e.Need, e.Have)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// ValidationError 表示记录或仓位参数非法。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConfigurationError 表示未知窗口单位、零长度区间等配置问题。
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NeedRecords 在 have < need 时返回 InsufficientDataError。
func NeedRecords(op string, need, have int) error {
	if have < need {
		return &InsufficientDataError{Op: op, Need: need, Have: have}
	}
	return nil
}
