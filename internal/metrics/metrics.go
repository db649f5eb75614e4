package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Requests        *prometheus.CounterVec // method label
	Failures        *prometheus.CounterVec // method, code labels
	RequestDuration *prometheus.HistogramVec

	RawSections    prometheus.Histogram
	MergedSections prometheus.Histogram

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	Superseded  prometheus.Counter

	NATSConnected prometheus.Gauge

	WalkingSpeed  prometheus.Gauge
	MaxWalkMeters prometheus.Gauge
}

func NewCollector(walkingSpeed, maxWalkMeters float64) *Collector {
	reg := prometheus.NewRegistry()
	sectionBuckets := prometheus.LinearBuckets(1, 1, 12)

	c := &Collector{
		reg: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_requests_total",
			Help: "Total method calls received.",
		}, []string{"method"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_request_failures_total",
			Help: "Total method calls answered with an error.",
		}, []string{"method", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_request_duration_seconds",
			Help:    "Duration of method call handling.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"method"}),
		RawSections: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_route_sections_raw",
			Help:    "Sections per route as delivered by the router.",
			Buckets: sectionBuckets,
		}),
		MergedSections: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_route_sections_merged",
			Help:    "Sections per route after merging walks.",
			Buckets: sectionBuckets,
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_route_cache_hits_total",
			Help: "Route results served from cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_route_cache_misses_total",
			Help: "Route requests sent to the router.",
		}),
		Superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_route_requests_superseded_total",
			Help: "Route requests cancelled by a newer request from the same client.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		WalkingSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_walking_speed_mps",
			Help: "Walking speed used for walk sections.",
		}),
		MaxWalkMeters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_max_walk_meters",
			Help: "Maximum walk to or from a stop.",
		}),
	}

	reg.MustRegister(
		c.Requests, c.Failures, c.RequestDuration,
		c.RawSections, c.MergedSections,
		c.CacheHits, c.CacheMisses, c.Superseded,
		c.NATSConnected, c.WalkingSpeed, c.MaxWalkMeters,
	)

	c.WalkingSpeed.Set(walkingSpeed)
	c.MaxWalkMeters.Set(maxWalkMeters)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics and /healthz on addr. The
// health check reports 503 while ready returns an error.
func (c *Collector) Serve(addr string, ready func() error) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", c.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil {
			if err := ready(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Errorf("metrics server error: %v", err)
		}
	}()
	glog.Infof("metrics listening on %s", addr)
	return srv
}
