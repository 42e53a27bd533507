package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carrierdesk/carrierdesk/internal/fmcsa"
)

func TestVerifyMC(t *testing.T) {
	s, h, v := newTestServer(t)

	rr := doJSON(t, h, http.MethodPost, "/api/verify-mc", map[string]any{"mc_number": " 123456 "}, testAPIKey)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, true, body["verified"])
	assert.Equal(t, "ACME", body["carrier_name"])
	assert.Equal(t, "AUTHORIZED", body["authority_status"])
	assert.Equal(t, []string{"123456"}, v.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.MCVerifications.WithLabelValues("verified")))

	v.result = fmcsa.Result{Verified: false, CarrierName: "Shady LLC", AuthorityStatus: "NOT AUTHORIZED"}
	rr = doJSON(t, h, http.MethodPost, "/api/verify-mc", map[string]any{"mc_number": "999"}, testAPIKey)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decodeBody(t, rr)["verified"])
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.MCVerifications.WithLabelValues("unverified")))

	// 上游失败也返回 200，由调用方读 error 字段
	v.result = fmcsa.Result{Error: true, ErrorMessage: "Request timeout"}
	rr = doJSON(t, h, http.MethodPost, "/api/verify-mc", map[string]any{"mc_number": "42"}, testAPIKey)
	require.Equal(t, http.StatusOK, rr.Code)
	body = decodeBody(t, rr)
	assert.Equal(t, true, body["error"])
	assert.Equal(t, "Request timeout", body["error_message"])
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.MCVerifications.WithLabelValues("error")))
}

func TestVerifyMC_Validation(t *testing.T) {
	_, h, v := newTestServer(t)
	for _, mc := range []any{"", "MC123", "12-34", 123} {
		rr := doJSON(t, h, http.MethodPost, "/api/verify-mc", map[string]any{"mc_number": mc}, testAPIKey)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "mc=%v", mc)
	}
	assert.Empty(t, v.calls)
}

func TestSeed(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx := context.Background()

	loads, calls, err := s.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 24, loads)
	assert.Equal(t, 60, calls)

	l, err := s.getLoad(ctx, "LD-10001")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Greater(t, l.LoadboardRate, 0.0)
	assert.True(t, l.DeliveryDatetime.After(l.PickupDatetime))

	c, err := s.getCall(ctx, "call_demo_001")
	require.NoError(t, err)
	require.NotNil(t, c)

	// 已有数据时不重复写入
	loads, calls, err = s.Seed(ctx)
	require.NoError(t, err)
	assert.Zero(t, loads)
	assert.Zero(t, calls)
	n, err := s.countCalls(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, n)
}

func TestSeed_BookedCallsFollowPricing(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx := context.Background()
	_, _, err := s.Seed(ctx)
	require.NoError(t, err)

	all, err := s.callsInRange(ctx, nil, nil)
	require.NoError(t, err)
	for _, c := range all {
		if c.Outcome != OutcomeBookedTransfer {
			continue
		}
		require.NotNil(t, c.SelectedLoadID, c.CallID)
		require.NotNil(t, c.FinalRate, c.CallID)
		l, err := s.getLoad(ctx, *c.SelectedLoadID)
		require.NoError(t, err)
		require.NotNil(t, l)
		ceiling := l.LoadboardRate + 250
		assert.LessOrEqual(t, *c.FinalRate, ceiling+0.01, c.CallID)
	}
}
