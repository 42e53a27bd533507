package server

import (
	"fmt"
	"math"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/carrierdesk/carrierdesk/internal/pricing"
)

type evaluateRequest struct {
	MCNumber    string   `json:"mc_number" validate:"required"`
	LoadID      string   `json:"load_id" validate:"required"`
	ListedRate  *float64 `json:"listed_rate" validate:"required,gt=0"`
	CounterRate *float64 `json:"counter_rate" validate:"required,gt=0"`
	Round       *float64 `json:"round" validate:"required"`
}

type evaluateResponse struct {
	Decision     pricing.Decision `json:"decision"`
	ApprovedRate *float64         `json:"approved_rate"`
	CounterRate  *float64         `json:"counter_rate"`
	Reason       string           `json:"reason"`
	Error        bool             `json:"error"`
	MaxRounds    int              `json:"max_rounds"`
}

func toFloatPtr(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}

// validateRound 轮数必须是 [1, maxRounds] 内的整数
func validateRound(round float64, maxRounds int) []fieldIssue {
	switch {
	case round != math.Trunc(round):
		return []fieldIssue{{Path: "round", Message: "Round must be an integer"}}
	case round < 1:
		return []fieldIssue{{Path: "round", Message: "Round must be at least 1"}}
	case round > float64(maxRounds):
		return []fieldIssue{{Path: "round", Message: fmt.Sprintf("Round cannot exceed %d", maxRounds)}}
	}
	return nil
}

func (s *Server) handlePricingEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	issues := s.validateStruct(req)
	if req.Round != nil {
		issues = append(issues, validateRound(*req.Round, s.cfg.Pricing.MaxRounds)...)
	}
	if len(issues) > 0 {
		writeErr(w, &validationError{Issues: issues})
		return
	}

	res := pricing.Evaluate(pricing.Request{
		ListedRate:  decimal.NewFromFloat(*req.ListedRate),
		CounterRate: decimal.NewFromFloat(*req.CounterRate),
		Round:       int(*req.Round),
	}, s.cfg.Pricing)

	s.metrics.PricingDecisions.WithLabelValues(string(res.Decision)).Inc()
	serverLog.WithField("mc_number", req.MCNumber).
		WithField("load_id", req.LoadID).
		WithField("round", int(*req.Round)).
		WithField("decision", res.Decision).
		Info("counter offer evaluated")

	writeJSON(w, http.StatusOK, evaluateResponse{
		Decision:     res.Decision,
		ApprovedRate: toFloatPtr(res.ApprovedRate),
		CounterRate:  toFloatPtr(res.CounterRate),
		Reason:       res.Reason,
		Error:        false,
		MaxRounds:    res.MaxRounds,
	})
}
