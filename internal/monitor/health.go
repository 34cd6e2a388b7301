package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utrading/utrading-portfolio/pkg/goplus"
	"github.com/utrading/utrading-portfolio/pkg/logger"
)

// ConnRef 连接状态引用（websocket、NATS）
type ConnRef interface {
	IsConnected() bool
}

// RunRef 最近一次同步的状态
type RunRef interface {
	LastRun() (status string, at time.Time)
}

// HealthServer HTTP 健康检查和指标服务器
type HealthServer struct {
	addr         string
	watcher      ConnRef
	publisher    ConnRef
	runs         RunRef
	maxRunAge    time.Duration
	server       *http.Server
	mu           sync.RWMutex
	healthy      bool
	healthySince time.Time
	startTime    time.Time
}

// NewHealthServer maxRunAge 内没有成功同步时 ready 返回 503；引用可为 nil
func NewHealthServer(addr string, watcher, publisher ConnRef, runs RunRef, maxRunAge time.Duration) *HealthServer {
	return &HealthServer{
		addr:         addr,
		watcher:      watcher,
		publisher:    publisher,
		runs:         runs,
		maxRunAge:    maxRunAge,
		healthy:      true,
		healthySince: time.Now(),
		startTime:    time.Now(),
	}
}

func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.healthHandler)
	mux.HandleFunc("/health/ready", h.readyHandler)
	mux.HandleFunc("/health/live", h.liveHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start 启动HTTP服务器
func (h *HealthServer) Start() {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	goplus.Go(func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("health server error")
		}
	})

	logger.Info().Str("addr", h.addr).Msg("health server started")
}

// Stop 停止服务器
func (h *HealthServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.healthy = false
	h.mu.Unlock()

	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := h.getHealthStatus()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func (h *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if !h.isReady() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *HealthServer) liveHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// isReady 最近一次同步不是 failed 且未过期
func (h *HealthServer) isReady() bool {
	h.mu.RLock()
	healthy := h.healthy
	h.mu.RUnlock()

	if !healthy || h.runs == nil {
		return healthy
	}

	status, at := h.runs.LastRun()
	if status == "" || status == "failed" {
		return false
	}
	return h.maxRunAge <= 0 || time.Since(at) <= h.maxRunAge
}

func (h *HealthServer) getHealthStatus() HealthStatus {
	h.mu.RLock()
	healthy := h.healthy
	healthySince := h.healthySince
	h.mu.RUnlock()

	s := HealthStatus{
		Healthy:      healthy,
		HealthySince: healthySince.Format(time.RFC3339),
		Uptime:       time.Since(h.startTime).String(),
	}
	if h.watcher != nil {
		s.WebSocket = h.watcher.IsConnected()
	}
	if h.publisher != nil {
		s.NATS = h.publisher.IsConnected()
	}
	if h.runs != nil {
		status, at := h.runs.LastRun()
		s.LastRun = status
		if !at.IsZero() {
			s.LastRunAt = at.Format(time.RFC3339)
		}
	}
	return s
}

// HealthStatus 健康状态结构
type HealthStatus struct {
	Healthy      bool   `json:"healthy"`
	HealthySince string `json:"healthy_since"`
	Uptime       string `json:"uptime"`
	WebSocket    bool   `json:"websocket"`
	NATS         bool   `json:"nats"`
	LastRun      string `json:"last_run"`
	LastRunAt    string `json:"last_run_at,omitempty"`
}
