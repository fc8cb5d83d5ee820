package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentlend/observability/metrics"
)

func runServeMetrics(opts globalOptions, args []string, stderr io.Writer) error {
	fs := newFlagSet("serve-metrics")
	listen := fs.String("listen", "", "listen address (defaults to Metrics.ListenAddress)")
	if err := parseFlags(fs, args, stderr); err != nil {
		return err
	}
	a, err := openApp(opts, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	addr := strings.TrimSpace(*listen)
	if addr == "" {
		addr = strings.TrimSpace(a.cfg.Metrics.ListenAddress)
	}
	if addr == "" {
		return fmt.Errorf("serve-metrics: no listen address configured")
	}
	a.publishGauges()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("serving metrics", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// publishGauges seeds the state gauges from the restored ledger so a fresh
// process exports current values before any operation runs.
func (a *app) publishGauges() {
	m := metrics.Lending()
	for _, agentID := range a.ledger.Pools() {
		if pool, ok := a.ledger.GetAgentPool(agentID); ok {
			m.SetPoolLiquidity(agentID, pool.TotalLiquidity, pool.AvailableLiquidity, pool.TotalLoaned)
		}
	}
	for _, agentID := range a.rep.Agents() {
		m.SetReputationScore(agentID, a.rep.Score(agentID))
	}
	m.SetAccumulatedFees(a.ledger.AccumulatedFees())
}
