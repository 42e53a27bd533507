// Package pricing decides how to answer a carrier's counter offer.
//
// The evaluator is a pure function: it owns no state and performs no I/O.
// The caller tracks the negotiation round and passes it in on every call.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionCounter Decision = "counter"
	DecisionReject  Decision = "reject"
)

const (
	ReasonAccept = "Counter offer is within acceptable range"
	ReasonReject = "Maximum negotiation rounds exceeded. Counter offer exceeds acceptable range"
)

// Config 议价规则（进程级常量，运行时不修改）
type Config struct {
	MaxRounds        int             // 最大议价轮数
	MaxBufferAmount  decimal.Decimal // 高于挂牌价的绝对上限（美元）
	BufferPercentage decimal.Decimal // 高于挂牌价的比例上限，例如 0.12
}

func DefaultConfig() Config {
	return Config{
		MaxRounds:        3,
		MaxBufferAmount:  decimal.NewFromInt(250),
		BufferPercentage: decimal.RequireFromString("0.12"),
	}
}

func (c Config) Validate() error {
	if c.MaxRounds < 1 {
		return errors.New("pricing: max_rounds must be at least 1")
	}
	if c.MaxBufferAmount.IsNegative() {
		return fmt.Errorf("pricing: max_buffer_amount must not be negative, got %s", c.MaxBufferAmount)
	}
	if c.BufferPercentage.IsNegative() || c.BufferPercentage.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("pricing: buffer_percentage must be within [0,1], got %s", c.BufferPercentage)
	}
	return nil
}

type Request struct {
	ListedRate  decimal.Decimal
	CounterRate decimal.Decimal
	Round       int
}

// Result is the answer for a single round. Exactly one of ApprovedRate and
// CounterRate is valid for accept/counter; neither is for reject.
type Result struct {
	Decision     Decision
	ApprovedRate decimal.NullDecimal
	CounterRate  decimal.NullDecimal
	Reason       string
	MaxRounds    int
}

// Buffer returns min(MaxBufferAmount, listed*BufferPercentage).
func Buffer(listed decimal.Decimal, cfg Config) decimal.Decimal {
	return decimal.Min(cfg.MaxBufferAmount, listed.Mul(cfg.BufferPercentage))
}

func MaxAcceptableRate(listed decimal.Decimal, cfg Config) decimal.Decimal {
	return listed.Add(Buffer(listed, cfg))
}

// RoundCents rounds half-up to two decimal places. Rates are positive, so
// decimal's half-away-from-zero rounding is the same thing.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Evaluate answers one negotiation round. Comparisons run on unrounded
// values; only the returned rates are rounded.
func Evaluate(req Request, cfg Config) Result {
	maxAcceptable := MaxAcceptableRate(req.ListedRate, cfg)

	if req.CounterRate.LessThanOrEqual(maxAcceptable) {
		return Result{
			Decision:     DecisionAccept,
			ApprovedRate: decimal.NewNullDecimal(RoundCents(req.CounterRate)),
			Reason:       ReasonAccept,
			MaxRounds:    cfg.MaxRounds,
		}
	}

	// round == MaxRounds is already the last round: no final counter.
	if req.Round >= cfg.MaxRounds {
		return Result{
			Decision:  DecisionReject,
			Reason:    ReasonReject,
			MaxRounds: cfg.MaxRounds,
		}
	}

	offer := RoundCents(maxAcceptable)
	return Result{
		Decision:    DecisionCounter,
		CounterRate: decimal.NewNullDecimal(offer),
		Reason:      fmt.Sprintf("Counter offer exceeds maximum acceptable rate. Offering $%s", offer.String()),
		MaxRounds:   cfg.MaxRounds,
	}
}

// Terminal reports whether the negotiation ends with this decision.
func (d Decision) Terminal() bool {
	return d == DecisionAccept || d == DecisionReject
}
