package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	City        string

	NATSURL           string
	NATSSubjectPrefix string
	NATSQueueGroup    string
	LogNATSSubjects   bool

	MetricsAddr string
	Location    *time.Location

	WalkingSpeed      float64 // metres per second
	MaxWalkMeters     float64
	MaxRoutes         int
	RouteCacheTTL     time.Duration
	RequestTimeout    time.Duration
	RateLimitPerSec   float64
	RateLimitBurst    int
	UnknownVehicleTag string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL (cluster DSN): prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		// With CITY the database is resolved later; connect to 'postgres' first.
		if db == "" && os.Getenv("CITY") != "" {
			db = "postgres"
		}
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set (set PGDATABASE=postgres when using CITY)")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	// City name for dynamic DB resolution
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.NATSSubjectPrefix = strings.TrimSuffix(getenvDefault("NATS_SUBJECT_PREFIX", "mapkit"), ".")
	cfg.NATSQueueGroup = os.Getenv("NATS_QUEUE_GROUP")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	var err error
	if cfg.WalkingSpeed, err = positiveFloat("WALKING_SPEED_MPS", 1.4); err != nil {
		return nil, err
	}
	if cfg.MaxWalkMeters, err = positiveFloat("MAX_WALK_METERS", 800); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerSec, err = positiveFloat("RATE_LIMIT_PER_SEC", 5); err != nil {
		return nil, err
	}
	if cfg.MaxRoutes, err = positiveInt("MAX_ROUTES", 3); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = positiveInt("RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}

	// Route cache TTL (seconds); 0 disables caching
	if v := os.Getenv("ROUTE_CACHE_TTL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec < 0 {
			return nil, fmt.Errorf("invalid ROUTE_CACHE_TTL_SEC: %q", v)
		}
		cfg.RouteCacheTTL = time.Duration(sec) * time.Second
	} else {
		cfg.RouteCacheTTL = 60 * time.Second
	}

	if v := os.Getenv("REQUEST_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT_MS: %q", v)
		}
		cfg.RequestTimeout = time.Duration(ms) * time.Millisecond
	} else {
		cfg.RequestTimeout = 10 * time.Second
	}

	cfg.UnknownVehicleTag = strings.TrimSpace(os.Getenv("UNKNOWN_VEHICLE_TAG"))
	if cfg.UnknownVehicleTag == "pedestrian" {
		return nil, fmt.Errorf("invalid UNKNOWN_VEHICLE_TAG: %q", cfg.UnknownVehicleTag)
	}

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

func positiveFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func positiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
