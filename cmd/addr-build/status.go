package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"addr-hierarchy/internal/logger"
	"addr-hierarchy/internal/metrics"
	"addr-hierarchy/internal/rebuild"
)

// runState：调度进程最近一次重建的结果
type runState struct {
	mu      sync.Mutex
	last    *rebuild.Report
	lastErr string
}

func (s *runState) record(rep *rebuild.Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = rep
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
}

type healthBody struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Last   *rebuild.Report `json:"last,omitempty"`
}

func (s *runState) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	body := healthBody{Status: "ok", Error: s.lastErr, Last: s.last}
	s.mu.Unlock()
	if body.Error != "" {
		body.Status = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func newStatusMux(state *runState) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/healthz", state)
	return mux
}

// serveStatus：阻塞直到 ctx 取消；监听失败只记录日志，不影响调度
func serveStatus(ctx context.Context, addr string, h http.Handler, l *slog.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           logger.AccessLog(l, h),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	l.Info("status_listen", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		l.Error("status_listen_error", "err", err)
	}
}
