// Package fmcsa looks up carrier operating authority in the FMCSA QCMobile
// registry.
package fmcsa

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/carrierdesk/carrierdesk/pkg/cache"
	"github.com/carrierdesk/carrierdesk/pkg/ratelimit"
)

const (
	DefaultBaseURL = "https://mobile.fmcsa.dot.gov/qc/services"
	DefaultTimeout = 5 * time.Second

	StatusAuthorized = "AUTHORIZED"

	msgNotFound = "MC number not found"
	msgTimeout  = "Request timeout: FMCSA API did not respond in time"
)

var (
	ErrNotFound = errors.New("carrier not found")
	ErrTimeout  = errors.New("registry timeout")
)

// StatusError 非 2xx（404 除外）响应
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("FMCSA API error: %s", e.Status)
}

// Carrier is the subset of the registry record we use.
type Carrier struct {
	LegalName        string `json:"legalName"`
	DbaName          string `json:"dbaName"`
	OperatingStatus  string `json:"operatingStatus"`
	AllowedToOperate string `json:"allowedToOperate"`
}

// Result 对外返回结构（HTTP 层直接序列化）
type Result struct {
	Verified        bool   `json:"verified"`
	CarrierName     string `json:"carrier_name,omitempty"`
	AuthorityStatus string `json:"authority_status,omitempty"`
	Error           bool   `json:"error"`
	ErrorMessage    string `json:"error_message,omitempty"`
	Cached          bool   `json:"-"`
}

type Options struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration // 0 关闭缓存
	// RateLimit 每秒最多请求数，0 不限制
	RateLimit float64
}

type Client struct {
	client *resty.Client
	apiKey string
	ttl    time.Duration
	cache  *cache.InMemoryCache[string, Result]
	limit  ratelimit.RateLimiter
}

func NewClient(opts Options) *Client {
	base := strings.TrimSuffix(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = "DEMO_KEY"
	}

	// 不做重试：调用方在通话中等待结果，超时就直接返回
	c := &Client{
		client: resty.New().
			SetBaseURL(base).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		apiKey: apiKey,
		ttl:    opts.CacheTTL,
	}
	if opts.CacheTTL > 0 {
		c.cache = cache.NewInMemoryCache[string, Result](opts.CacheTTL)
	}
	if opts.RateLimit > 0 {
		burst := int(math.Ceil(opts.RateLimit))
		c.limit = ratelimit.NewTokenBucket(burst, opts.RateLimit)
	}
	return c
}

func (c *Client) Close() {
	if c != nil && c.cache != nil {
		c.cache.Close()
	}
}

// Lookup fetches the carrier record for an MC/docket number.
func (c *Client) Lookup(ctx context.Context, mc string) (*Carrier, error) {
	if c.limit != nil {
		if err := c.limit.Wait(ctx); err != nil {
			if isTimeout(err) {
				return nil, ErrTimeout
			}
			return nil, errors.Wrap(err, "fmcsa rate limit")
		}
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("mc", mc).
		SetQueryParam("webKey", c.apiKey).
		Get("/carriers/{mc}")
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, errors.Wrap(err, "fmcsa request")
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return nil, ErrNotFound
	case code < 200 || code > 299:
		return nil, &StatusError{StatusCode: code, Status: resp.Status()}
	}

	carrier, err := decodeCarrier(resp.Body())
	if err != nil {
		return nil, err
	}
	if carrier == nil {
		return nil, ErrNotFound
	}
	return carrier, nil
}

// Verify 查询并转换为对外结果。查询失败不会返回 error，而是填充 Error/ErrorMessage。
func (c *Client) Verify(ctx context.Context, mc string) Result {
	mc = strings.TrimSpace(mc)
	if c.cache != nil {
		if r, ok := c.cache.Get(mc); ok {
			r.Cached = true
			return r
		}
	}

	carrier, err := c.Lookup(ctx, mc)
	if err != nil {
		return errorResult(err)
	}

	r := Result{
		Verified:        carrier.OperatingStatus == StatusAuthorized,
		CarrierName:     carrier.LegalName,
		AuthorityStatus: carrier.OperatingStatus,
	}
	if c.cache != nil {
		c.cache.Set(mc, r, c.ttl)
	}
	return r
}

func errorResult(err error) Result {
	r := Result{Error: true}
	var se *StatusError
	switch {
	case errors.Is(err, ErrNotFound):
		r.ErrorMessage = msgNotFound
	case errors.Is(err, ErrTimeout):
		r.ErrorMessage = msgTimeout
	case errors.As(err, &se):
		r.ErrorMessage = se.Error()
	default:
		r.ErrorMessage = err.Error()
	}
	return r
}

// decodeCarrier 兼容 {"carrier":{...}} 和 {"content":{"carrier":{...}}} 两种格式
func decodeCarrier(body []byte) (*Carrier, error) {
	var env struct {
		Carrier *Carrier        `json:"carrier"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrap(err, "decode fmcsa response")
	}
	if env.Carrier != nil {
		return env.Carrier, nil
	}
	if len(env.Content) == 0 {
		return nil, nil
	}
	var content struct {
		Carrier *Carrier `json:"carrier"`
	}
	// content 也可能是数组（按名称搜索时），这种情况视为未找到
	if err := json.Unmarshal(env.Content, &content); err != nil {
		return nil, nil
	}
	return content.Carrier, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
