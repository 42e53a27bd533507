package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStartedAt(t *testing.T) {
	want := time.Date(2025, 12, 17, 10, 5, 0, 0, time.UTC)
	cases := []struct {
		name string
		raw  string
	}{
		{"iso", `"2025-12-17T10:05:00Z"`},
		{"iso offset", `"2025-12-17T05:05:00-05:00"`},
		{"iso no zone", `"2025-12-17T10:05:00"`},
		{"seconds", fmt.Sprint(want.Unix())},
		{"millis", fmt.Sprint(want.UnixMilli())},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseStartedAt(json.RawMessage(tc.raw))
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}

	_, err := parseStartedAt(json.RawMessage(`"yesterday-ish"`))
	assert.EqualError(t, err, "Invalid date: yesterday-ish")
	_, err = parseStartedAt(nil)
	assert.Error(t, err)
	_, err = parseStartedAt(json.RawMessage(`null`))
	assert.Error(t, err)
	_, err = parseStartedAt(json.RawMessage(`true`))
	assert.Error(t, err)
}

func TestParseTranscript(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want *string
	}{
		{"missing", ``, nil},
		{"null", `null`, nil},
		{"empty string", `""`, nil},
		{"string", `"hello"`, strPtrOf("hello")},
		{"strings", `["a","b"]`, strPtrOf("a\nb")},
		{"empty array", `[]`, nil},
		{"objects", `[{"text":"hi"},{"content":"there"},{"message":"bye"}]`, strPtrOf("hi\nthere\nbye")},
		{"object fallback", `[{"speaker":"agent","text":""}]`, strPtrOf(`{"speaker":"agent","text":""}`)},
		{"mixed", `["a",{"text":"b"}]`, strPtrOf("a\nb")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseTranscript(json.RawMessage(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := parseTranscript(json.RawMessage(`42`))
	assert.Error(t, err)
	_, err = parseTranscript(json.RawMessage(`[1]`))
	assert.Error(t, err)
}

func strPtrOf(s string) *string { return &s }

func ingest(t *testing.T, h http.Handler, body any) map[string]any {
	t.Helper()
	rr := doJSON(t, h, http.MethodPost, "/api/calls/ingest", body, testAPIKey)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decodeBody(t, rr)
}

func TestCallIngest_AndGet(t *testing.T) {
	s, h, _ := newTestServer(t)

	resp := ingest(t, h, map[string]any{
		"call_id":            "call-1",
		"started_at":         1765965900, // seconds
		"transcript":         []any{map[string]any{"text": "Hello"}, "Rate?"},
		"outcome":            "booked_transfer",
		"sentiment":          "positive",
		"mc_number":          "123456",
		"selected_load_id":   "LD-10001",
		"initial_rate":       2400,
		"final_rate":         2240,
		"negotiation_rounds": 2,
	})
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, "call-1", resp["call_id"])
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.CallsIngested.WithLabelValues("booked_transfer")))

	rr := doJSON(t, h, http.MethodGet, "/api/calls/call-1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	call := decodeBody(t, rr)["call"].(map[string]any)
	assert.Equal(t, "Hello\nRate?", call["transcript"])
	assert.Equal(t, "2025-12-17T10:05:00Z", call["started_at"])
	assert.Equal(t, 2240.0, call["final_rate"])
	assert.Equal(t, 2.0, call["negotiation_rounds"])

	// 同一个 call_id 再次推送：覆盖
	ingest(t, h, map[string]any{
		"call_id":    "call-1",
		"started_at": "2025-12-17T10:05:00Z",
		"outcome":    "negotiation_failed",
		"sentiment":  "negative",
	})
	ctx := context.Background()
	n, err := s.countCalls(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	c, err := s.getCall(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, "negotiation_failed", c.Outcome)
	assert.Nil(t, c.Transcript)
	assert.Nil(t, c.FinalRate)
}

func TestCallIngest_GeneratesID(t *testing.T) {
	_, h, _ := newTestServer(t)
	resp := ingest(t, h, map[string]any{
		"started_at": 1765965900000,
		"outcome":    "call_dropped",
		"sentiment":  "neutral",
	})
	id, _ := resp["call_id"].(string)
	assert.True(t, strings.HasPrefix(id, "call_"), id)
	assert.Len(t, id, len("call_")+36)
}

func TestCallIngest_Validation(t *testing.T) {
	_, h, _ := newTestServer(t)
	rr := doJSON(t, h, http.MethodPost, "/api/calls/ingest", map[string]any{
		"started_at":         "not a date",
		"outcome":            "deal_accepted",
		"negotiation_rounds": 1.5,
	}, testAPIKey)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "Validation error", body["error_message"])

	paths := map[string]bool{}
	for _, it := range body["errors"].([]any) {
		paths[it.(map[string]any)["path"].(string)] = true
	}
	for _, p := range []string{"outcome", "sentiment", "started_at", "negotiation_rounds"} {
		assert.True(t, paths[p], "missing issue for %s: %v", p, paths)
	}
}

func seedCalls(t *testing.T, s *Server) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)
	outcomes := []string{OutcomeBookedTransfer, OutcomeNegotiationFailed, OutcomeNotInterested, OutcomeCallDropped}
	for i := 0; i < 25; i++ {
		mc := fmt.Sprintf("MC-%04d", i)
		c := Call{
			CallID:    fmt.Sprintf("c-%02d", i),
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Outcome:   outcomes[i%len(outcomes)],
			Sentiment: callSentiments[i%len(callSentiments)],
			MCNumber:  &mc,
		}
		require.NoError(t, s.upsertCall(ctx, c))
	}
}

func TestCallsList_Pagination(t *testing.T) {
	s, h, _ := newTestServer(t)
	seedCalls(t, s)

	rr := doJSON(t, h, http.MethodGet, "/api/calls/list", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	calls := body["calls"].([]any)
	require.Len(t, calls, 10)
	assert.Equal(t, 25.0, body["count"])
	assert.Equal(t, "c-24", calls[0].(map[string]any)["call_id"], "newest first")
	assert.Equal(t, map[string]any{"page": 1.0, "limit": 10.0, "total": 25.0, "totalPages": 3.0, "hasMore": true}, body["pagination"])

	rr = doJSON(t, h, http.MethodGet, "/api/calls/list?page=3&limit=10", nil, "")
	body = decodeBody(t, rr)
	assert.Len(t, body["calls"].([]any), 5)
	assert.Equal(t, false, body["pagination"].(map[string]any)["hasMore"])
}

func TestCallsList_Filters(t *testing.T) {
	s, h, _ := newTestServer(t)
	seedCalls(t, s)

	rr := doJSON(t, h, http.MethodGet, "/api/calls/list?outcome=booked_transfer&limit=100", nil, "")
	body := decodeBody(t, rr)
	assert.Equal(t, 7.0, body["count"])

	rr = doJSON(t, h, http.MethodGet, "/api/calls/list?search=mc-001", nil, "")
	body = decodeBody(t, rr)
	assert.Equal(t, 10.0, body["count"]) // MC-0010..MC-0019

	rr = doJSON(t, h, http.MethodGet, "/api/calls/list?search=%25", nil, "")
	body = decodeBody(t, rr)
	assert.Equal(t, 0.0, body["count"], "LIKE wildcards are escaped")

	rr = doJSON(t, h, http.MethodGet, "/api/calls/list?dateFrom=2025-12-01T10:00:00Z&dateTo=2025-12-01T12:00:00Z", nil, "")
	body = decodeBody(t, rr)
	assert.Equal(t, 3.0, body["count"])
}

func TestCallSearchKey(t *testing.T) {
	mc := "MC-ÄB12"
	assert.Equal(t, "c-1", callSearchKey(Call{CallID: "C-1"}))
	assert.Equal(t, "c-1\nmc-äb12", callSearchKey(Call{CallID: "C-1", MCNumber: &mc}))
}

func TestCallsList_SearchNonASCII(t *testing.T) {
	s, h, _ := newTestServer(t)
	mc := "MC-ÄB12"
	require.NoError(t, s.upsertCall(context.Background(), Call{
		CallID: "c-x", StartedAt: time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC),
		Outcome: OutcomeCallDropped, Sentiment: "neutral", MCNumber: &mc,
	}))
	for _, term := range []string{"äb", "ÄB", "mc-äb12"} {
		rr := doJSON(t, h, http.MethodGet, "/api/calls/list?search="+url.QueryEscape(term), nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 1.0, decodeBody(t, rr)["count"], term)
	}
}

func TestCallsList_BadQuery(t *testing.T) {
	_, h, _ := newTestServer(t)
	for _, q := range []string{"limit=0", "limit=101", "page=0", "page=x", "outcome=nope", "dateFrom=yesterday"} {
		rr := doJSON(t, h, http.MethodGet, "/api/calls/list?"+q, nil, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestCallGet_NotFound(t *testing.T) {
	_, h, _ := newTestServer(t)
	rr := doJSON(t, h, http.MethodGet, "/api/calls/missing", nil, "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "CALL_NOT_FOUND", body["code"])
	assert.Equal(t, "Call not found", body["error_message"])
}

func TestCallsStream_ReceivesIngested(t *testing.T) {
	s, h, _ := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/calls/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	ingest(t, h, map[string]any{
		"call_id":    "live-1",
		"started_at": "2025-12-17T10:05:00Z",
		"outcome":    "not_interested",
		"sentiment":  "neutral",
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev struct {
		Type string `json:"type"`
		Call Call   `json:"call"`
	}
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "call", ev.Type)
	assert.Equal(t, "live-1", ev.Call.CallID)
	assert.Equal(t, "not_interested", ev.Call.Outcome)
}
