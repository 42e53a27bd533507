package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/carrierdesk/carrierdesk/internal/fmcsa"
	"github.com/carrierdesk/carrierdesk/internal/metrics"
	"github.com/carrierdesk/carrierdesk/internal/pricing"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var serverLog = logrus.WithField("component", "server")

// Verifier 承运商资质查询（生产环境为 fmcsa.Client）
type Verifier interface {
	Verify(ctx context.Context, mc string) fmcsa.Result
}

type Config struct {
	Driver   string // sqlite | postgres
	DSN      string
	APIKey   string
	Pricing  pricing.Config
	Verifier Verifier
	Metrics  *metrics.Metrics // nil 时自动创建
}

type Server struct {
	cfg      Config
	db       *sql.DB
	validate *validator.Validate
	metrics  *metrics.Metrics
	hub      *callHub
	now      func() time.Time
}

func New(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("database dsn is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("api key is required")
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.Pricing.MaxRounds == 0 {
		cfg.Pricing = pricing.DefaultConfig()
	}
	if err := cfg.Pricing.Validate(); err != nil {
		return nil, err
	}
	if cfg.Verifier == nil {
		return nil, errors.New("mc verifier is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}

	db, err := openDB(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		db:       db,
		validate: newValidator(),
		metrics:  cfg.Metrics,
		hub:      newCallHub(),
		now:      time.Now,
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func openDB(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverSQLite:
		if dir := sqliteDir(dsn); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("mkdir db dir: %w", err)
			}
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1) // SQLite：单连接更稳定
		db.SetMaxIdleConns(1)
		return db, nil
	case DriverPostgres:
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// sqliteDir 普通文件路径需要先建目录；file: URI 和内存库跳过
func sqliteDir(dsn string) string {
	if strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, ":memory:") {
		return ""
	}
	dir := filepath.Dir(dsn)
	if dir == "." {
		return ""
	}
	return dir
}

func (s *Server) Close() error {
	s.hub.closeAll()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", s.wrap(s.handleHealthz))
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	auth := s.requireAPIKey()

	api.POST("/verify-mc", auth, s.wrap(s.handleVerifyMC))
	api.POST("/pricing/evaluate", auth, s.wrap(s.handlePricingEvaluate))

	loads := api.Group("/loads")
	loads.GET("", auth, s.wrap(s.handleLoadsQuery))
	loads.GET("/search", auth, s.wrap(s.handleLoadsSearch))
	loads.GET("/list", s.wrap(s.handleLoadsList))
	loads.GET("/:load_id", s.wrap(s.handleLoadGet))

	calls := api.Group("/calls")
	calls.POST("/ingest", auth, s.wrap(s.handleCallIngest))
	calls.GET("/list", s.wrap(s.handleCallsList))
	calls.GET("/stream", s.wrap(s.handleCallsStream))
	calls.GET("/:id", s.wrap(s.handleCallGet))

	api.GET("/dashboard/stats", s.wrap(s.handleDashboardStats))

	// UI
	r.GET("/", s.wrap(s.handleUI))

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("db ping: %v", err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

type paramsKeyType string

const paramsKey paramsKeyType = "carrierdesk_path_params"

// wrap adapts net/http handlers to gin, injecting path params into request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

func pathParam(r *http.Request, key string) string {
	m, _ := r.Context().Value(paramsKey).(map[string]string)
	return m[key]
}

// accessLog 记录请求日志并上报延迟
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		s.metrics.HTTPDurationMs.
			WithLabelValues(route, fmt.Sprint(status)).
			Observe(float64(elapsed.Microseconds()) / 1000)

		entry := serverLog.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  status,
			"latency": elapsed.String(),
		})
		switch {
		case status >= 500:
			entry.Error("request failed")
		case route == "/healthz" || route == "/metrics":
			entry.Debug("request")
		default:
			entry.Info("request")
		}
	}
}
