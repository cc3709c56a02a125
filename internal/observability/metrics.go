// File: internal/observability/metrics.go
package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	metricActs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pagecheck",
		Name:      "acts_total",
		Help:      "Acts executed, by act type and outcome (ok, error, fatal).",
	}, []string{"type", "outcome"})
	metricNavigations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pagecheck",
		Name:      "navigation_attempts_total",
		Help:      "Navigation attempts, by escalation stage and classification.",
	}, []string{"stage", "outcome"})
	metricReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pagecheck",
		Name:      "reports_total",
		Help:      "Reports finished, by status (complete, fatal, cancelled).",
	}, []string{"status"})
)

// RecordAct counts one executed act.
func RecordAct(actType, outcome string) {
	metricActs.WithLabelValues(actType, outcome).Inc()
}

// RecordNavigation counts one navigation attempt.
func RecordNavigation(stage, outcome string) {
	metricNavigations.WithLabelValues(stage, outcome).Inc()
}

// RecordReport counts one finished report.
func RecordReport(status string) {
	metricReports.WithLabelValues(status).Inc()
}

// MetricsServer exposes the default prometheus registry over HTTP.
type MetricsServer struct {
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewMetricsServer binds addr immediately so a bad address fails before any run starts.
func NewMetricsServer(addr string, logger *zap.Logger) (*MetricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
		logger:   logger.Named("metrics"),
	}, nil
}

// Addr is the bound listener address.
func (m *MetricsServer) Addr() string {
	return m.listener.Addr().String()
}

// Serve blocks until ctx is cancelled, then shuts the listener down.
func (m *MetricsServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		m.logger.Info("Serving metrics.", zap.String("addr", m.Addr()))
		errCh <- m.srv.Serve(m.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
