package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuffer_CapCrossover(t *testing.T) {
	cfg := DefaultConfig()

	// 0.12 * 2500 = 300 > 250
	assert.Equal(t, "250.00", Buffer(d("2500"), cfg).StringFixed(2))
	assert.Equal(t, "2750.00", MaxAcceptableRate(d("2500"), cfg).StringFixed(2))

	// 0.12 * 1000 = 120 < 250
	assert.Equal(t, "120.00", Buffer(d("1000"), cfg).StringFixed(2))
	assert.Equal(t, "1120.00", MaxAcceptableRate(d("1000"), cfg).StringFixed(2))
}

func TestEvaluate(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name         string
		listed       string
		counter      string
		round        int
		wantDecision Decision
		wantApproved string
		wantCounter  string
	}{
		{name: "accept at inclusive boundary", listed: "2000", counter: "2240", round: 1, wantDecision: DecisionAccept, wantApproved: "2240.00"},
		{name: "accept below listed", listed: "2000", counter: "1800", round: 1, wantDecision: DecisionAccept, wantApproved: "1800.00"},
		{name: "accept on last round", listed: "2000", counter: "2100", round: 3, wantDecision: DecisionAccept, wantApproved: "2100.00"},
		{name: "counter first round", listed: "2000", counter: "2400", round: 1, wantDecision: DecisionCounter, wantCounter: "2240.00"},
		{name: "counter just below ceiling", listed: "2000", counter: "2400", round: 2, wantDecision: DecisionCounter, wantCounter: "2240.00"},
		{name: "reject at ceiling", listed: "2000", counter: "2400", round: 3, wantDecision: DecisionReject},
		{name: "reject past ceiling", listed: "2000", counter: "2400", round: 100, wantDecision: DecisionReject},
		{name: "round zero still counters", listed: "2000", counter: "2400", round: 0, wantDecision: DecisionCounter, wantCounter: "2240.00"},
		{name: "one cent over counters", listed: "2000", counter: "2240.01", round: 1, wantDecision: DecisionCounter, wantCounter: "2240.00"},
		{name: "flat cap on large load", listed: "5000", counter: "5300", round: 1, wantDecision: DecisionCounter, wantCounter: "5250.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(Request{ListedRate: d(tt.listed), CounterRate: d(tt.counter), Round: tt.round}, cfg)

			require.Equal(t, tt.wantDecision, res.Decision)
			assert.Equal(t, cfg.MaxRounds, res.MaxRounds)
			assert.NotEmpty(t, res.Reason)

			if tt.wantApproved != "" {
				require.True(t, res.ApprovedRate.Valid)
				assert.Equal(t, tt.wantApproved, res.ApprovedRate.Decimal.StringFixed(2))
			} else {
				assert.False(t, res.ApprovedRate.Valid)
			}
			if tt.wantCounter != "" {
				require.True(t, res.CounterRate.Valid)
				assert.Equal(t, tt.wantCounter, res.CounterRate.Decimal.StringFixed(2))
			} else {
				assert.False(t, res.CounterRate.Valid)
			}
		})
	}
}

func TestEvaluate_Reasons(t *testing.T) {
	cfg := DefaultConfig()

	res := Evaluate(Request{ListedRate: d("2000"), CounterRate: d("2400"), Round: 1}, cfg)
	assert.Equal(t, "Counter offer exceeds maximum acceptable rate. Offering $2240", res.Reason)

	// 金额按最短形式输出，不补零
	res = Evaluate(Request{ListedRate: d("1002.5"), CounterRate: d("1500"), Round: 1}, cfg)
	assert.Equal(t, "Counter offer exceeds maximum acceptable rate. Offering $1122.8", res.Reason)

	res = Evaluate(Request{ListedRate: d("2000"), CounterRate: d("2400"), Round: 3}, cfg)
	assert.Equal(t, ReasonReject, res.Reason)

	res = Evaluate(Request{ListedRate: d("2000"), CounterRate: d("2000"), Round: 1}, cfg)
	assert.Equal(t, ReasonAccept, res.Reason)
}

func TestEvaluate_RoundsApprovedRate(t *testing.T) {
	res := Evaluate(Request{ListedRate: d("2000"), CounterRate: d("2239.996"), Round: 1}, DefaultConfig())
	require.Equal(t, DecisionAccept, res.Decision)
	assert.Equal(t, "2240.00", res.ApprovedRate.Decimal.StringFixed(2))
}

func TestEvaluate_ComparesUnrounded(t *testing.T) {
	// 2240.004 rounds to 2240.00 but is still over the ceiling.
	res := Evaluate(Request{ListedRate: d("2000"), CounterRate: d("2240.004"), Round: 1}, DefaultConfig())
	require.Equal(t, DecisionCounter, res.Decision)
	assert.Equal(t, "2240.00", res.CounterRate.Decimal.StringFixed(2))
}

func TestEvaluate_CounterRoundsHalfUp(t *testing.T) {
	// flat cap: 3000.005 + 250 = 3250.005 -> 3250.01
	res := Evaluate(Request{ListedRate: d("3000.005"), CounterRate: d("5000"), Round: 1}, DefaultConfig())
	require.Equal(t, DecisionCounter, res.Decision)
	assert.Equal(t, "3250.01", res.CounterRate.Decimal.StringFixed(2))

	// 1000.0375 + 120.0045 = 1120.042 -> 1120.04
	res = Evaluate(Request{ListedRate: d("1000.0375"), CounterRate: d("5000"), Round: 1}, DefaultConfig())
	assert.Equal(t, "1120.04", res.CounterRate.Decimal.StringFixed(2))
}

func TestEvaluate_CustomConfig(t *testing.T) {
	cfg := Config{MaxRounds: 1, MaxBufferAmount: d("100"), BufferPercentage: d("0.5")}

	res := Evaluate(Request{ListedRate: d("1000"), CounterRate: d("1150"), Round: 1}, cfg)
	assert.Equal(t, DecisionReject, res.Decision)
	assert.Equal(t, 1, res.MaxRounds)

	res = Evaluate(Request{ListedRate: d("1000"), CounterRate: d("1100"), Round: 1}, cfg)
	assert.Equal(t, DecisionAccept, res.Decision)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.MaxRounds = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MaxBufferAmount = d("-1")
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.BufferPercentage = d("1.5")
	assert.Error(t, bad.Validate())
}

func TestDecisionTerminal(t *testing.T) {
	assert.True(t, DecisionAccept.Terminal())
	assert.True(t, DecisionReject.Terminal())
	assert.False(t, DecisionCounter.Terminal())
}
