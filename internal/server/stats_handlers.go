package server

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carrierdesk/carrierdesk/internal/pricing"
)

type dailyPoint struct {
	Day      string  `json:"day"`
	Calls    int     `json:"calls"`
	Accepted int     `json:"accepted"`
	Revenue  float64 `json:"revenue"`
}

type pricingSummary struct {
	MaxRounds        int     `json:"max_rounds"`
	MaxBufferAmount  float64 `json:"max_buffer_amount"`
	BufferPercentage float64 `json:"buffer_percentage"`
}

type dashboardStats struct {
	TotalCalls           int            `json:"total_calls"`
	Accepted             int            `json:"accepted"`
	Rejected             int            `json:"rejected"`
	AcceptanceRate       float64        `json:"acceptance_rate"`
	TotalRevenue         float64        `json:"total_revenue"`
	AvgRate              float64        `json:"avg_rate"`
	AvgNegotiationRounds float64        `json:"avg_negotiation_rounds"`
	ByOutcome            map[string]int `json:"by_outcome"`
	BySentiment          map[string]int `json:"by_sentiment"`
	Daily                []dailyPoint   `json:"daily"`
	Pricing              pricingSummary `json:"pricing"`
}

func isRejected(outcome string) bool {
	return outcome == OutcomeNegotiationFailed || outcome == OutcomeNotInterested
}

// computeStats 汇总看板指标；金额用 decimal 累加，避免浮点误差
func computeStats(calls []Call, cfg pricing.Config) dashboardStats {
	st := dashboardStats{
		TotalCalls:  len(calls),
		ByOutcome:   make(map[string]int, len(callOutcomes)),
		BySentiment: make(map[string]int, len(callSentiments)),
		Daily:       []dailyPoint{},
		Pricing: pricingSummary{
			MaxRounds:        cfg.MaxRounds,
			MaxBufferAmount:  cfg.MaxBufferAmount.InexactFloat64(),
			BufferPercentage: cfg.BufferPercentage.InexactFloat64(),
		},
	}
	for _, o := range callOutcomes {
		st.ByOutcome[o] = 0
	}
	for _, v := range callSentiments {
		st.BySentiment[v] = 0
	}

	revenue := decimal.Zero
	withRevenue := 0
	roundsSum, roundsN := 0, 0
	days := map[string]*dailyPoint{}
	dayRevenue := map[string]decimal.Decimal{}

	for _, c := range calls {
		st.ByOutcome[c.Outcome]++
		st.BySentiment[c.Sentiment]++

		day := c.StartedAt.UTC().Format("2006-01-02")
		dp, ok := days[day]
		if !ok {
			dp = &dailyPoint{Day: day}
			days[day] = dp
		}
		dp.Calls++

		if c.Outcome == OutcomeBookedTransfer {
			st.Accepted++
			dp.Accepted++
			if c.FinalRate != nil {
				rate := decimal.NewFromFloat(*c.FinalRate)
				revenue = revenue.Add(rate)
				dayRevenue[day] = dayRevenue[day].Add(rate)
				if rate.IsPositive() {
					withRevenue++
				}
			}
		}
		if isRejected(c.Outcome) {
			st.Rejected++
		}
		if c.NegotiationRounds != nil {
			roundsSum += *c.NegotiationRounds
			roundsN++
		}
	}

	st.TotalRevenue = pricing.RoundCents(revenue).InexactFloat64()
	if st.TotalCalls > 0 {
		st.AcceptanceRate = decimal.NewFromInt(int64(st.Accepted)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(st.TotalCalls))).
			Round(2).InexactFloat64()
	}
	if withRevenue > 0 {
		st.AvgRate = pricing.RoundCents(revenue.Div(decimal.NewFromInt(int64(withRevenue)))).InexactFloat64()
	}
	if roundsN > 0 {
		st.AvgNegotiationRounds = decimal.NewFromInt(int64(roundsSum)).
			Div(decimal.NewFromInt(int64(roundsN))).
			Round(2).InexactFloat64()
	}

	for day, dp := range days {
		dp.Revenue = pricing.RoundCents(dayRevenue[day]).InexactFloat64()
		st.Daily = append(st.Daily, *dp)
	}
	sort.Slice(st.Daily, func(i, j int) bool { return st.Daily[i].Day < st.Daily[j].Day })
	return st
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var issues []fieldIssue
	parseDate := func(name string) *time.Time {
		v := strings.TrimSpace(q.Get(name))
		if v == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			issues = append(issues, fieldIssue{Path: name, Message: "Invalid datetime"})
			return nil
		}
		return &t
	}
	from, to := parseDate("dateFrom"), parseDate("dateTo")
	if len(issues) > 0 {
		writeErr(w, &validationError{Issues: issues})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	calls, err := s.callsInRange(ctx, from, to)
	if err != nil {
		writeErr(w, fmt.Errorf("db stats: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, computeStats(calls, s.cfg.Pricing))
}
