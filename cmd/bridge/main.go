package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"transit-bridge/internal/bridge"
	"transit-bridge/internal/config"
	"transit-bridge/internal/db"
	"transit-bridge/internal/metrics"
	"transit-bridge/internal/router"
	"transit-bridge/internal/transit"
)

const cityCheckInterval = 30 * time.Minute

func main() {
	flag.Parse()
	defer glog.Flush()

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		glog.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dsn := cfg.DatabaseURL
	currentDBName := ""
	if cfg.City != "" {
		dsn, currentDBName, err = db.ResolveCityDSN(ctx, cfg.DatabaseURL, cfg.City)
		if err != nil {
			glog.Fatalf("resolve latest import for city %q: %v", cfg.City, err)
		}
		glog.Infof("Using database %q for city %q", currentDBName, cfg.City)
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		glog.Fatalf("db open error: %v", err)
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		glog.Fatalf("db ping error: %v", err)
	}
	store := db.NewStore(sqlDB)

	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.WalkingSpeed, cfg.MaxWalkMeters)
	}
	bm := wrapBridgeMetrics(mcol)

	rt := router.NewGTFS(store, router.Options{
		WalkingSpeed:  cfg.WalkingSpeed,
		MaxWalkMeters: cfg.MaxWalkMeters,
		MaxRoutes:     cfg.MaxRoutes,
		Location:      cfg.Location,
	})
	dispatcher := bridge.NewDispatcher(rt, bridge.Options{
		Transit:         transit.Options{UnknownVehicleTag: cfg.UnknownVehicleTag},
		CacheTTL:        cfg.RouteCacheTTL,
		RequestTimeout:  cfg.RequestTimeout,
		RateLimitPerSec: cfg.RateLimitPerSec,
		RateLimitBurst:  cfg.RateLimitBurst,
	}, bm)

	srv, err := bridge.NewServer(bridge.ServerOptions{
		URL:           cfg.NATSURL,
		SubjectPrefix: cfg.NATSSubjectPrefix,
		QueueGroup:    cfg.NATSQueueGroup,
		LogSubjects:   cfg.LogNATSSubjects,
	}, dispatcher, bm)
	if err != nil {
		glog.Fatalf("nats error: %v", err)
	}
	if err := srv.Serve(ctx); err != nil {
		glog.Fatalf("subscribe error: %v", err)
	}

	var metricsSrv *http.Server
	if mcol != nil {
		metricsSrv = mcol.Serve(cfg.MetricsAddr, func() error {
			if err := store.Ping(ctx); err != nil {
				return err
			}
			return srv.Connected()
		})
	}

	var done chan struct{}
	if cfg.City != "" {
		done = make(chan struct{})
		go func() {
			defer close(done)
			watchCityDB(ctx, cfg, store, currentDBName)
		}()
	}

	<-ctx.Done()
	srv.Close()
	if done != nil {
		<-done
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if old := store.Swap(nil); old != nil {
		old.Close()
	}
	glog.Info("shutdown complete")
}

// watchCityDB periodically re-resolves the city's latest GTFS import and
// switches the store to it, or reconnects when the current database stops
// answering.
func watchCityDB(ctx context.Context, cfg *config.Config, store *db.Store, current string) {
	ticker := time.NewTicker(cityCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		needSwitch := false
		if err := store.Ping(ctx); err != nil {
			glog.Warningf("db ping failed: %v; re-resolving city DB", err)
			needSwitch = true
		}
		dsn, name, err := db.ResolveCityDSN(ctx, cfg.DatabaseURL, cfg.City)
		if err != nil {
			glog.Errorf("resolve latest import error: %v", err)
			continue
		}
		if name != current {
			glog.Infof("Detected updated DB for city %q: %q -> %q", cfg.City, current, name)
			needSwitch = true
		}
		if !needSwitch {
			continue
		}

		newDB, err := db.Open(dsn)
		if err != nil {
			glog.Errorf("open new DB error: %v", err)
			continue
		}
		if err := db.Ping(ctx, newDB); err != nil {
			glog.Errorf("ping new DB error: %v", err)
			newDB.Close()
			continue
		}
		if old := store.Swap(newDB); old != nil {
			old.Close()
		}
		current = name
		glog.Infof("Switched to DB %q for city %q", current, cfg.City)
	}
}

// wrapBridgeMetrics adapts our Collector to the bridge.Metrics interface.
func wrapBridgeMetrics(c *metrics.Collector) bridge.Metrics {
	if c == nil {
		return nil
	}
	return &bridgeMetrics{c: c}
}

type bridgeMetrics struct{ c *metrics.Collector }

func (b *bridgeMetrics) RequestObserve(method, code string, d time.Duration) {
	b.c.Requests.WithLabelValues(method).Inc()
	b.c.RequestDuration.WithLabelValues(method).Observe(d.Seconds())
	if code != "" {
		b.c.Failures.WithLabelValues(method, code).Inc()
	}
}

func (b *bridgeMetrics) SectionsObserve(raw, merged int) {
	b.c.RawSections.Observe(float64(raw))
	b.c.MergedSections.Observe(float64(merged))
}

func (b *bridgeMetrics) CacheLookup(hit bool) {
	if hit {
		b.c.CacheHits.Inc()
	} else {
		b.c.CacheMisses.Inc()
	}
}

func (b *bridgeMetrics) SupersededInc() { b.c.Superseded.Inc() }

func (b *bridgeMetrics) NATSSetConnected(connected bool) {
	if connected {
		b.c.NATSConnected.Set(1)
	} else {
		b.c.NATSConnected.Set(0)
	}
}

