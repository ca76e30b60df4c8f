// Package httpapi 提供查询回测结果、K 线与发起回测的 HTTP API。
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"voltrade/internal/backtest"
	"voltrade/internal/ledger"
	"voltrade/internal/logger"
	"voltrade/internal/market"
	"voltrade/internal/store/candlestore"
	"voltrade/internal/store/runstore"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Results 是运行结果存储的只读视图，runstore.Store 满足它。
type Results interface {
	ListRuns(ctx context.Context, limit int) ([]runstore.RunRecord, error)
	GetRun(ctx context.Context, id string) (runstore.RunRecord, error)
	ListPositions(ctx context.Context, runID string) ([]ledger.Position, error)
	Summary(ctx context.Context) (runstore.Aggregate, error)
	LoadPatterns(ctx context.Context) (runstore.PatternLibrary, error)
}

// Candles 是 K 线存储的只读视图，candlestore.Store 满足它。
type Candles interface {
	Range(ctx context.Context, symbol, timeframe string, start, end int64) (market.Records, error)
	Symbols(timeframe string) ([]string, error)
}

// Runner 执行一次回测并负责持久化结果。
type Runner interface {
	Run(ctx context.Context, req RunRequest) (backtest.Result, error)
}

type Config struct {
	Addr    string
	Results Results
	Candles Candles
	Runner  Runner
}

type Server struct {
	addr    string
	results Results
	candles Candles
	runner  Runner
	schema  *jsonschema.Schema
	router  *gin.Engine
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Results == nil {
		return nil, &market.ConfigurationError{Key: "http.results", Reason: "result store is required"}
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	schema, err := compileRunSchema()
	if err != nil {
		return nil, err
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLog())
	s := &Server{
		addr:    cfg.Addr,
		results: cfg.Results,
		candles: cfg.Candles,
		runner:  cfg.Runner,
		schema:  schema,
		router:  router,
	}
	s.registerRoutes()
	return s, nil
}

// Handler 返回底层路由，便于测试与嵌入。
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api := s.router.Group("/api")
	api.GET("/runs", s.handleRunList)
	api.POST("/runs", s.handleRunStart)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/positions", s.handleRunPositions)
	api.GET("/summary", s.handleSummary)
	api.GET("/patterns", s.handlePatterns)
	api.GET("/symbols", s.handleSymbols)
	api.GET("/candles", s.handleCandles)
}

func (s *Server) handleRunList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.results.ListRuns(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunPositions(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.results.GetRun(ctx, id); err != nil {
		writeError(c, err)
		return
	}
	positions, err := s.results.ListPositions(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "summary": ledger.Summarize(positions)})
}

func (s *Server) handleRunStart(c *gin.Context) {
	if s.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "runner 未启用"})
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := decodeRunRequest(s.schema, body)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := s.runner.Run(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"run": res})
}

func (s *Server) handleSummary(c *gin.Context) {
	agg, err := s.results.Summary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": agg})
}

func (s *Server) handlePatterns(c *gin.Context) {
	lib, err := s.results.LoadPatterns(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"library": lib})
}

func (s *Server) handleSymbols(c *gin.Context) {
	if s.candles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "candle store 未启用"})
		return
	}
	syms, err := s.candles.Symbols(c.DefaultQuery("timeframe", candlestore.TimeframeVolume))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": syms})
}

func (s *Server) handleCandles(c *gin.Context) {
	if s.candles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "candle store 未启用"})
		return
	}
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return
	}
	start, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64)
	data, err := s.candles.Range(c.Request.Context(), symbol, c.DefaultQuery("timeframe", candlestore.TimeframeVolume), start, end)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": data})
}

// writeError 按错误类别映射 HTTP 状态码。
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, runstore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, market.ErrValidation), errors.Is(err, market.ErrConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, market.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debugf("http %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(started).Truncate(time.Microsecond))
	}
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("HTTP API listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
