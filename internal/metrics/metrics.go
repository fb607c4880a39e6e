// Package metrics exports stack counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1ureka/raet/internal/util"
)

// Source yields a consistent copy of a stack's counters. It is called from
// the scrape goroutine and must be safe for concurrent use.
type Source interface {
	Snapshot() map[string]uint64
}

// Collector exposes every counter of one stack as
// <namespace>_stack_events_total{stack="...",stat="..."}.
type Collector struct {
	src  Source
	desc *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector for the stack called name.
func NewCollector(namespace, name string, src Source) *Collector {
	return &Collector{
		src: src,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stack", "events_total"),
			"Stack events by stat name.",
			[]string{"stat"},
			prometheus.Labels{"stack": name},
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.src.Snapshot()
	names := make([]string, 0, len(snap))
	for k := range snap {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(snap[k]), k)
	}
}

// Serve exposes reg on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	util.LogInfo("metrics listening on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
