package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"transit-bridge/internal/gtfs"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Store reads a GTFS feed imported into PostgreSQL. The underlying connection
// can be replaced while queries are running.
type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) conn() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Swap installs a new connection and returns the previous one for closing.
func (s *Store) Swap(db *sql.DB) *sql.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.db
	s.db = db
	return old
}

func (s *Store) Ping(ctx context.Context) error { return Ping(ctx, s.conn()) }

// ActiveServiceIDs returns the service ids running on the day of now,
// honouring calendar_dates exceptions.
func (s *Store) ActiveServiceIDs(ctx context.Context, now time.Time) ([]string, error) {
	date := now.Format("2006-01-02")
	dow := int(now.Weekday()) // 0=Sunday

	// calendar has booleans (0/1). calendar_dates has exception_type (1 add, 2 remove)
	q := `
WITH base AS (
  SELECT service_id
  FROM calendar
  WHERE start_date <= $1::date AND end_date >= $1::date
    AND (
      ($2 = 0 AND (sunday::text IN ('1','t','true','available'))) OR
      ($2 = 1 AND (monday::text IN ('1','t','true','available'))) OR
      ($2 = 2 AND (tuesday::text IN ('1','t','true','available'))) OR
      ($2 = 3 AND (wednesday::text IN ('1','t','true','available'))) OR
      ($2 = 4 AND (thursday::text IN ('1','t','true','available'))) OR
      ($2 = 5 AND (friday::text IN ('1','t','true','available'))) OR
      ($2 = 6 AND (saturday::text IN ('1','t','true','available')))
    )
), add_exc AS (
  SELECT service_id FROM calendar_dates WHERE date = $1::date AND (exception_type::text IN ('1','added'))
), rm_exc AS (
  SELECT service_id FROM calendar_dates WHERE date = $1::date AND (exception_type::text IN ('2','removed'))
)
SELECT DISTINCT service_id FROM (SELECT service_id FROM base UNION SELECT service_id FROM add_exc) merged
WHERE service_id NOT IN (SELECT service_id FROM rm_exc)
`
	rows, err := s.conn().QueryContext(ctx, q, date, dow)
	if err != nil {
		return nil, fmt.Errorf("query active services: %w", err)
	}
	defer rows.Close()
	var svc []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		svc = append(svc, id)
	}
	return svc, rows.Err()
}

// StopsWithin returns the stops inside the bound.
func (s *Store) StopsWithin(ctx context.Context, b orb.Bound) ([]gtfs.Stop, error) {
	cols, err := s.stopColumns(ctx)
	if err != nil {
		return nil, err
	}
	lat, lon := cols.of("s")
	q := fmt.Sprintf(`SELECT s.stop_id, COALESCE(s.stop_name, ''), %[1]s AS lat, %[2]s AS lon
FROM stops s
WHERE %[1]s BETWEEN $1 AND $2 AND %[2]s BETWEEN $3 AND $4`, lat, lon)

	rows, err := s.conn().QueryContext(ctx, q, b.Min.Lat(), b.Max.Lat(), b.Min.Lon(), b.Max.Lon())
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()
	var stops []gtfs.Stop
	for rows.Next() {
		var st gtfs.Stop
		if err := rows.Scan(&st.StopID, &st.Name, &st.Lat, &st.Lon); err != nil {
			return nil, err
		}
		stops = append(stops, st)
	}
	return stops, rows.Err()
}

// maxLegs bounds how many legs one DirectLegs call returns.
const maxLegs = 200

// DirectLegs returns rides of active trips that stop at one of from no earlier
// than notBefore (seconds since midnight) and later at one of to. Legs are
// ordered by arrival time.
func (s *Store) DirectLegs(ctx context.Context, from, to, serviceIDs []string, notBefore int) ([]gtfs.TripLeg, error) {
	if len(from) == 0 || len(to) == 0 || len(serviceIDs) == 0 {
		return nil, nil
	}
	cols, err := s.stopColumns(ctx)
	if err != nil {
		return nil, err
	}
	aLat, aLon := cols.of("sa")
	bLat, bLon := cols.of("sb")
	q := fmt.Sprintf(`
SELECT t.trip_id, t.service_id, COALESCE(t.trip_headsign, ''),
       r.route_id, COALESCE(r.route_short_name, ''), COALESCE(r.route_long_name, ''),
       COALESCE(r.route_color, ''), r.route_type::int,
       a.stop_id, COALESCE(sa.stop_name, ''), %[1]s, %[2]s, a.stop_sequence,
       COALESCE(a.arrival_time::text, ''), COALESCE(a.departure_time::text, ''),
       b.stop_id, COALESCE(sb.stop_name, ''), %[3]s, %[4]s, b.stop_sequence,
       COALESCE(b.arrival_time::text, ''), COALESCE(b.departure_time::text, '')
FROM stop_times a
JOIN stop_times b ON b.trip_id = a.trip_id AND b.stop_sequence > a.stop_sequence
JOIN trips t ON t.trip_id = a.trip_id
JOIN routes r ON r.route_id = t.route_id
JOIN stops sa ON sa.stop_id = a.stop_id
JOIN stops sb ON sb.stop_id = b.stop_id
WHERE a.stop_id = ANY($1) AND b.stop_id = ANY($2) AND t.service_id = ANY($3)
  AND COALESCE(a.departure_time, a.arrival_time)::text::interval >= make_interval(secs => $4)
ORDER BY COALESCE(b.arrival_time, b.departure_time)::text::interval
LIMIT $5`, aLat, aLon, bLat, bLon)

	rows, err := s.conn().QueryContext(ctx, q, from, to, serviceIDs, float64(notBefore), maxLegs)
	if err != nil {
		return nil, fmt.Errorf("query trip legs: %w", err)
	}
	defer rows.Close()

	var legs []gtfs.TripLeg
	for rows.Next() {
		var l gtfs.TripLeg
		var aArr, aDep, bArr, bDep string
		if err := rows.Scan(
			&l.TripID, &l.ServiceID, &l.Headsign,
			&l.Route.RouteID, &l.Route.ShortName, &l.Route.LongName, &l.Route.Color, &l.Route.Type,
			&l.Board.Stop.StopID, &l.Board.Stop.Name, &l.Board.Stop.Lat, &l.Board.Stop.Lon, &l.Board.StopSequence, &aArr, &aDep,
			&l.Alight.Stop.StopID, &l.Alight.Stop.Name, &l.Alight.Stop.Lat, &l.Alight.Stop.Lon, &l.Alight.StopSequence, &bArr, &bDep,
		); err != nil {
			return nil, err
		}
		l.Board.ArrivalSec, l.Board.HasArrival = ParseDaySeconds(aArr)
		l.Board.DepartureSec, l.Board.HasDeparture = ParseDaySeconds(aDep)
		l.Alight.ArrivalSec, l.Alight.HasArrival = ParseDaySeconds(bArr)
		l.Alight.DepartureSec, l.Alight.HasDeparture = ParseDaySeconds(bDep)
		legs = append(legs, l)
	}
	return legs, rows.Err()
}

// TripStops returns the stops of a trip between two stop sequences, inclusive.
func (s *Store) TripStops(ctx context.Context, tripID string, fromSeq, toSeq int) ([]gtfs.Stop, error) {
	cols, err := s.stopColumns(ctx)
	if err != nil {
		return nil, err
	}
	lat, lon := cols.of("s")
	q := fmt.Sprintf(`SELECT s.stop_id, COALESCE(s.stop_name, ''), %s, %s
FROM stop_times st
JOIN stops s ON s.stop_id = st.stop_id
WHERE st.trip_id = $1 AND st.stop_sequence BETWEEN $2 AND $3
ORDER BY st.stop_sequence`, lat, lon)

	rows, err := s.conn().QueryContext(ctx, q, tripID, fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("query trip stops: %w", err)
	}
	defer rows.Close()
	var stops []gtfs.Stop
	for rows.Next() {
		var st gtfs.Stop
		if err := rows.Scan(&st.StopID, &st.Name, &st.Lat, &st.Lon); err != nil {
			return nil, err
		}
		stops = append(stops, st)
	}
	return stops, rows.Err()
}

type coordColumns struct{ geography bool }

// of returns the latitude and longitude expressions for a stops alias.
func (c coordColumns) of(alias string) (lat, lon string) {
	if c.geography {
		return "ST_Y(" + alias + ".stop_loc::geometry)", "ST_X(" + alias + ".stop_loc::geometry)"
	}
	return alias + ".stop_lat", alias + ".stop_lon"
}

// stopColumns picks stop_lat/stop_lon when present, otherwise the PostGIS
// stop_loc geography column.
func (s *Store) stopColumns(ctx context.Context) (coordColumns, error) {
	exists, err := hasColumns(ctx, s.conn(), "public", "stops", "stop_lat", "stop_lon", "stop_loc")
	if err != nil {
		return coordColumns{}, fmt.Errorf("introspect stops columns: %w", err)
	}
	switch {
	case exists["stop_lat"] && exists["stop_lon"]:
		return coordColumns{}, nil
	case exists["stop_loc"]:
		return coordColumns{geography: true}, nil
	default:
		return coordColumns{}, fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
	}
}

// ParseDaySeconds parses HH:MM:SS possibly with hours >= 24. ok is false
// when s is empty or not a time.
func ParseDaySeconds(s string) (sec int, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		v[i] = n
	}
	return v[0]*3600 + v[1]*60 + v[2], true
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
