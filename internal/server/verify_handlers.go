package server

import (
	"context"
	"net/http"
	"strings"
	"time"
)

type verifyMCRequest struct {
	MCNumber string `json:"mc_number" validate:"required,digits"`
}

func (s *Server) handleVerifyMC(w http.ResponseWriter, r *http.Request) {
	var req verifyMCRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	req.MCNumber = strings.TrimSpace(req.MCNumber)
	if issues := s.validateStruct(req); len(issues) > 0 {
		writeErr(w, &validationError{Issues: issues})
		return
	}

	// 上游自带超时，这里只兜底
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	res := s.cfg.Verifier.Verify(ctx, req.MCNumber)

	label := "unverified"
	switch {
	case res.Error:
		label = "error"
	case res.Verified:
		label = "verified"
	}
	s.metrics.MCVerifications.WithLabelValues(label).Inc()
	serverLog.WithField("mc_number", req.MCNumber).WithField("result", label).WithField("cached", res.Cached).Info("mc verification")

	writeJSON(w, http.StatusOK, res)
}
