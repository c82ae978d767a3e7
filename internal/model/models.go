package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TableName is the table holding one row per evaluated arbitrage cycle.
const TableName = "triangular_arbitrage_log"

// ArbitrageAttempt represents one evaluated (and optionally executed) triangular
// arbitrage cycle as it is stored in the log.
type ArbitrageAttempt struct {
	ID               int64               `db:"id" json:"id"`
	Timestamp        time.Time           `db:"timestamp" json:"timestamp"`
	StartAmountUSDT  decimal.NullDecimal `db:"start_amount_usdt" json:"start_amount_usdt"`
	EndAmountUSDT    decimal.NullDecimal `db:"end_amount_usdt" json:"end_amount_usdt"`
	ProfitUSDT       decimal.NullDecimal `db:"profit_usdt" json:"profit_usdt"`
	ProfitPercentage decimal.NullDecimal `db:"profit_percentage" json:"profit_percentage"`
	BaseToken        string              `db:"base_token" json:"base_token,omitempty" validate:"max=10"`
	Path             string              `db:"path" json:"path,omitempty" validate:"max=100"`
	Routers          string              `db:"routers" json:"routers,omitempty" validate:"max=100"`
	Executed         bool                `db:"executed" json:"executed"`
}

// Filter selects attempts from the log. Zero values mean "no constraint".
type Filter struct {
	ID         *int64
	From       time.Time // inclusive
	To         time.Time // exclusive
	Executed   *bool
	BaseToken  string
	MinProfit  decimal.NullDecimal
	Limit      int
	Offset     int
	Descending bool
}

// Stats summarises the attempts matched by a Filter.
type Stats struct {
	TotalAttempts       int64               `json:"total_attempts"`
	ExecutedAttempts    int64               `json:"executed_attempts"`
	ProfitableAttempts  int64               `json:"profitable_attempts"`
	TotalProfitUSDT     decimal.NullDecimal `json:"total_profit_usdt"`
	AvgProfitUSDT       decimal.NullDecimal `json:"avg_profit_usdt"`
	MaxProfitUSDT       decimal.NullDecimal `json:"max_profit_usdt"`
	MinProfitUSDT       decimal.NullDecimal `json:"min_profit_usdt"`
	MedianProfitUSDT    decimal.NullDecimal `json:"median_profit_usdt"`
	P95ProfitUSDT       decimal.NullDecimal `json:"p95_profit_usdt"`
	AvgProfitPercentage decimal.NullDecimal `json:"avg_profit_percentage"`
	FirstAttemptAt      *time.Time          `json:"first_attempt_at,omitempty"`
	LastAttemptAt       *time.Time          `json:"last_attempt_at,omitempty"`
}

// LogState is the lifecycle state of the attempt log.
type LogState int

const (
	Uninitialized LogState = iota
	Ready
)

func (s LogState) String() string {
	switch s {
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Amount wraps a decimal as a present column value.
func Amount(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
