package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	OutcomeBookedTransfer    = "booked_transfer"
	OutcomeNotVerified       = "not_verified"
	OutcomeNoLoadFound       = "no_load_found"
	OutcomeNegotiationFailed = "negotiation_failed"
	OutcomeNotInterested     = "not_interested"
	OutcomeCallDropped       = "call_dropped"
)

var callOutcomes = []string{
	OutcomeBookedTransfer, OutcomeNotVerified, OutcomeNoLoadFound,
	OutcomeNegotiationFailed, OutcomeNotInterested, OutcomeCallDropped,
}

var callSentiments = []string{"positive", "neutral", "negative"}

type Call struct {
	CallID            string    `json:"call_id"`
	StartedAt         time.Time `json:"started_at"`
	Transcript        *string   `json:"transcript"`
	Outcome           string    `json:"outcome"`
	Sentiment         string    `json:"sentiment"`
	MCNumber          *string   `json:"mc_number"`
	SelectedLoadID    *string   `json:"selected_load_id"`
	InitialRate       *float64  `json:"initial_rate"`
	FinalRate         *float64  `json:"final_rate"`
	NegotiationRounds *int      `json:"negotiation_rounds"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ingestCallRequest 语音平台回调的原始载荷，started_at / transcript 格式不固定
type ingestCallRequest struct {
	CallID            *string         `json:"call_id"`
	StartedAt         json.RawMessage `json:"started_at"`
	Transcript        json.RawMessage `json:"transcript"`
	Outcome           string          `json:"outcome" validate:"required,oneof=booked_transfer not_verified no_load_found negotiation_failed not_interested call_dropped"`
	Sentiment         string          `json:"sentiment" validate:"required,oneof=positive neutral negative"`
	MCNumber          *string         `json:"mc_number"`
	SelectedLoadID    *string         `json:"selected_load_id"`
	InitialRate       *float64        `json:"initial_rate"`
	FinalRate         *float64        `json:"final_rate"`
	NegotiationRounds *float64        `json:"negotiation_rounds"`
}

type callFilter struct {
	Outcome   string `json:"outcome" validate:"omitempty,oneof=booked_transfer not_verified no_load_found negotiation_failed not_interested call_dropped"`
	Sentiment string `json:"sentiment" validate:"omitempty,oneof=positive neutral negative"`
	DateFrom  *time.Time
	DateTo    *time.Time
	Search    string
	Page      int `json:"page" validate:"gte=1"`
	Limit     int `json:"limit" validate:"gte=1,lte=100"`
}

type pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

func newPagination(page, limit, total int) pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages, HasMore: page < totalPages}
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

var startedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// parseStartedAt 支持 ISO-8601 字符串和 unix 时间戳（< 1e12 视为秒，否则毫秒）
func parseStartedAt(raw json.RawMessage) (time.Time, error) {
	if isNull(raw) {
		return time.Time{}, errors.New("started_at is required")
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		if math.IsNaN(num) || math.IsInf(num, 0) {
			return time.Time{}, fmt.Errorf("Invalid date: %v", num)
		}
		ms := num
		if num < 1e12 {
			ms = num * 1000
		}
		return time.Unix(0, int64(ms*float64(time.Millisecond))).UTC(), nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return time.Time{}, errors.New("Expected string or number")
	}
	str = strings.TrimSpace(str)
	for _, layout := range startedAtLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("Invalid date: %s", str)
}

// parseTranscript 接受 string / string[] / object[]（取 text、content、message，都没有则用对象 JSON），按换行拼接；空内容返回 nil
func parseTranscript(raw json.RawMessage) (*string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if str == "" {
			return nil, nil
		}
		return &str, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.New("Expected string or array")
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		text, err := transcriptItem(item)
		if err != nil {
			return nil, err
		}
		parts = append(parts, text)
	}
	joined := strings.Join(parts, "\n")
	if joined == "" {
		return nil, nil
	}
	return &joined, nil
}

func transcriptItem(item json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		return s, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
		return "", errors.New("Expected string or object in transcript")
	}
	for _, key := range []string{"text", "content", "message"} {
		var v string
		if raw, ok := obj[key]; ok && json.Unmarshal(raw, &v) == nil && v != "" {
			return v, nil
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, item); err != nil {
		return "", err
	}
	return buf.String(), nil
}
