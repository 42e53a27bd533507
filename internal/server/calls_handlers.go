package server

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultCallsPageSize = 10

func (s *Server) handleCallIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestCallRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	call, err := s.callFromIngest(req)
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.upsertCall(ctx, call); err != nil {
		writeErr(w, fmt.Errorf("db upsert: %w", err))
		return
	}
	s.metrics.CallsIngested.WithLabelValues(call.Outcome).Inc()

	if stored, err := s.getCall(ctx, call.CallID); err == nil && stored != nil {
		s.hub.broadcast(*stored)
	}
	serverLog.WithField("call_id", call.CallID).WithField("outcome", call.Outcome).Info("call ingested")

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "call_id": call.CallID})
}

// callFromIngest 校验并归一化回调载荷
func (s *Server) callFromIngest(req ingestCallRequest) (Call, error) {
	issues := s.validateStruct(req)

	startedAt, err := parseStartedAt(req.StartedAt)
	if err != nil {
		issues = append(issues, fieldIssue{Path: "started_at", Message: err.Error()})
	}
	transcript, err := parseTranscript(req.Transcript)
	if err != nil {
		issues = append(issues, fieldIssue{Path: "transcript", Message: err.Error()})
	}
	var rounds *int
	if req.NegotiationRounds != nil {
		if v := *req.NegotiationRounds; v != math.Trunc(v) {
			issues = append(issues, fieldIssue{Path: "negotiation_rounds", Message: "Expected integer, received float"})
		} else {
			n := int(v)
			rounds = &n
		}
	}
	if len(issues) > 0 {
		return Call{}, &validationError{Issues: issues}
	}

	callID := ""
	if req.CallID != nil {
		callID = strings.TrimSpace(*req.CallID)
	}
	if callID == "" {
		callID = "call_" + uuid.NewString()
	}

	return Call{
		CallID:            callID,
		StartedAt:         startedAt,
		Transcript:        transcript,
		Outcome:           req.Outcome,
		Sentiment:         req.Sentiment,
		MCNumber:          req.MCNumber,
		SelectedLoadID:    req.SelectedLoadID,
		InitialRate:       req.InitialRate,
		FinalRate:         req.FinalRate,
		NegotiationRounds: rounds,
	}, nil
}

func (s *Server) handleCallsList(w http.ResponseWriter, r *http.Request) {
	f, err := s.parseCallFilter(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	calls, total, err := s.listCalls(ctx, f)
	if err != nil {
		writeErr(w, fmt.Errorf("db list: %w", err))
		return
	}
	// Ensure JSON is [] not null when empty.
	if calls == nil {
		calls = []Call{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"calls":      calls,
		"count":      total,
		"pagination": newPagination(f.Page, f.Limit, total),
	})
}

func (s *Server) parseCallFilter(r *http.Request) (callFilter, error) {
	q := r.URL.Query()
	f := callFilter{
		Outcome:   strings.TrimSpace(q.Get("outcome")),
		Sentiment: strings.TrimSpace(q.Get("sentiment")),
		Search:    q.Get("search"),
		Page:      1,
		Limit:     defaultCallsPageSize,
	}

	var issues []fieldIssue
	parseInt := func(name string, dst *int) {
		v := strings.TrimSpace(q.Get(name))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			issues = append(issues, fieldIssue{Path: name, Message: "Expected integer"})
			return
		}
		*dst = n
	}
	parseInt("page", &f.Page)
	parseInt("limit", &f.Limit)

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
	f.DateFrom = parseDate("dateFrom")
	f.DateTo = parseDate("dateTo")

	if len(issues) == 0 {
		issues = s.validateStruct(f)
	}
	if len(issues) > 0 {
		return callFilter{}, &validationError{Issues: issues}
	}
	return f, nil
}

func (s *Server) handleCallGet(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(pathParam(r, "id"))
	if callID == "" {
		writeErr(w, &apiError{Status: http.StatusBadRequest, Message: "Invalid call ID"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	c, err := s.getCall(ctx, callID)
	if err != nil {
		writeErr(w, fmt.Errorf("db get: %w", err))
		return
	}
	if c == nil {
		writeErr(w, notFound("Call not found", "CALL_NOT_FOUND"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"call": c})
}
