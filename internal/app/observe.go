package app

import (
	"context"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/1ureka/raet/internal/config"
	"github.com/1ureka/raet/internal/keeping"
	"github.com/1ureka/raet/internal/metrics"
	"github.com/1ureka/raet/internal/stack"
	"github.com/1ureka/raet/internal/util"
)

// openKeeper returns the keeper for role ("road" or "lane"). Without a
// path state lives in memory only.
func openKeeper(cfg config.KeeperConfig, role string) (keeping.Keeper, io.Closer, error) {
	if cfg.Path == "" {
		return keeping.NewMemKeeper(), io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
		return nil, nil, err
	}
	db, err := keeping.OpenBadger(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	return keeping.NewBadgerKeeper(db, cfg.Prefix+"/"+role), db, nil
}

// observe starts the metrics endpoint and the stats reporter configured in
// cfg. Both stop with ctx.
func observe(ctx context.Context, cfg *config.Config, name string, stats *stack.Stats) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(cfg.Metrics.Namespace, name, stats))

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg); err != nil {
				util.LogError("metrics: %v", err)
			}
		}()
	}
	if cfg.StatsInterval > 0 {
		util.StartStatsReporter(ctx, name, stats, cfg.StatsInterval)
	}
	return reg
}
