package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-bridge/internal/router"
	"transit-bridge/internal/transit"
)

type fakeRouter struct {
	mu     sync.Mutex
	calls  int
	routes []router.Route
	err    error
	// block, when set, makes RequestRoutes wait for the context or release
	block   chan struct{}
	started chan struct{}
}

func (f *fakeRouter) RequestRoutes(ctx context.Context, _ router.Request) ([]router.Route, error) {
	f.mu.Lock()
	f.calls++
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
		}
	}
	return f.routes, f.err
}

type fakeMetrics struct {
	mu         sync.Mutex
	codes      map[string]string
	hits       int
	misses     int
	superseded int
	sections   [][2]int
}

func (m *fakeMetrics) RequestObserve(method, code string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = map[string]string{}
	}
	m.codes[method] = code
}

func (m *fakeMetrics) SectionsObserve(raw, merged int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sections = append(m.sections, [2]int{raw, merged})
}

func (m *fakeMetrics) CacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *fakeMetrics) SupersededInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.superseded++
}

func (m *fakeMetrics) NATSSetConnected(bool) {}

var fixedNow = time.Date(2025, 3, 4, 8, 0, 30, 0, time.UTC)

func sampleRoute() router.Route {
	return router.Route{
		Sections: []transit.RawSection{
			{DurationSeconds: 60, WalkingDistanceMeters: 100},
			{DurationSeconds: 30},
			{
				Transit:         &transit.TransitData{Lines: []transit.Line{{Name: "V15", VehicleTypes: []string{"bus"}}}},
				Stops:           []transit.Stop{{Name: "Sants"}, {Name: "Tarragona"}, {Name: "Espanya"}},
				DurationSeconds: 420,
			},
		},
		Geometry:        orb.LineString{{2.14, 41.37}, {2.15, 41.375}},
		DurationSeconds: 510,
	}
}

func newTestDispatcher(r router.Router, m Metrics, ttl time.Duration) *Dispatcher {
	return NewDispatcher(r, Options{
		CacheTTL:        ttl,
		RequestTimeout:  time.Second,
		RateLimitPerSec: 100,
		RateLimitBurst:  100,
		Now:             func() time.Time { return fixedNow },
	}, m)
}

const routePayload = `{"clientId":"ui-1","srcLatitude":41.37,"srcLongitude":2.14,"destLatitude":41.375,"destLongitude":2.15}`

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *MethodError    `json:"error"`
}

func decodeReply(t *testing.T, b []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(b, &env))
	return env
}

func TestRequestRoute(t *testing.T) {
	fr := &fakeRouter{routes: []router.Route{sampleRoute()}}
	m := &fakeMetrics{}
	d := newTestDispatcher(fr, m, 0)

	env := decodeReply(t, d.Handle(context.Background(), MethodRequestRoute, []byte(routePayload)))
	require.Nil(t, env.Error)

	var res struct {
		Sections []map[string]any   `json:"sections"`
		Points   []transit.RoutePoint `json:"points"`
		Geometry string             `json:"geometry"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &res))
	require.Len(t, res.Sections, 2)
	assert.Equal(t, "pedestrian", res.Sections[0]["tag"])
	assert.Equal(t, 90.0, res.Sections[0]["duration"])
	assert.Equal(t, "bus", res.Sections[1]["tag"])
	assert.Equal(t, "V15", res.Sections[1]["lineName"])
	assert.Equal(t, 1.0, res.Sections[1]["intermediateStations.size"])
	require.Len(t, res.Points, 3)
	assert.Equal(t, "Sants", res.Points[1].Name)
	assert.Equal(t, "Espanya", res.Points[2].Name)
	assert.NotEmpty(t, res.Geometry)

	assert.Equal(t, "", m.codes[MethodRequestRoute])
	assert.Equal(t, [][2]int{{3, 2}}, m.sections)

	last := decodeReply(t, d.Handle(context.Background(), MethodGetLastRoute, []byte(`{"clientId":"ui-1"}`)))
	require.Nil(t, last.Error)
	assert.JSONEq(t, string(env.Result), string(last.Result))
}

func TestRequestRouteFailures(t *testing.T) {
	tests := []struct {
		name    string
		router  *fakeRouter
		payload string
		code    string
	}{
		{"router error", &fakeRouter{err: errors.New("backend down")}, routePayload, CodeRouteRequestFailed},
		{"no routes", &fakeRouter{err: router.ErrNoRoutes}, routePayload, CodeRouteRequestFailed},
		{"empty route list", &fakeRouter{}, routePayload, CodeRouteRequestFailed},
		{"missing client", &fakeRouter{}, `{"srcLatitude":1,"srcLongitude":1,"destLatitude":2,"destLongitude":2}`, CodeInvalidArguments},
		{"missing coordinate", &fakeRouter{}, `{"clientId":"a","srcLatitude":1,"srcLongitude":1,"destLatitude":2}`, CodeInvalidArguments},
		{"out of range", &fakeRouter{}, `{"clientId":"a","srcLatitude":91,"srcLongitude":1,"destLatitude":2,"destLongitude":2}`, CodeInvalidArguments},
		{"malformed", &fakeRouter{}, `{"clientId":`, CodeInvalidArguments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDispatcher(tt.router, nil, 0)
			env := decodeReply(t, d.Handle(context.Background(), MethodRequestRoute, []byte(tt.payload)))

			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Empty(t, env.Result)
		})
	}

	t.Run("router message is surfaced", func(t *testing.T) {
		d := newTestDispatcher(&fakeRouter{err: router.ErrNoRoutes}, nil, 0)
		env := decodeReply(t, d.Handle(context.Background(), MethodRequestRoute, []byte(routePayload)))
		require.NotNil(t, env.Error)
		assert.Equal(t, router.ErrNoRoutes.Error(), env.Error.Message)
	})
}

func TestRequestRouteSupersedesOlderRequest(t *testing.T) {
	fr := &fakeRouter{
		routes:  []router.Route{sampleRoute()},
		block:   make(chan struct{}),
		started: make(chan struct{}, 2),
	}
	m := &fakeMetrics{}
	d := newTestDispatcher(fr, m, 0)

	first := make(chan envelope, 1)
	go func() {
		first <- decodeReply(t, d.Handle(context.Background(), MethodRequestRoute, []byte(routePayload)))
	}()
	<-fr.started

	second := make(chan envelope, 1)
	go func() {
		second <- decodeReply(t, d.Handle(context.Background(), MethodRequestRoute, []byte(routePayload)))
	}()

	old := <-first
	require.NotNil(t, old.Error)
	assert.Equal(t, CodeRouteRequestFailed, old.Error.Code)
	assert.Contains(t, old.Error.Message, "superseded")

	<-fr.started
	close(fr.block)
	latest := <-second
	require.Nil(t, latest.Error)

	_, ok := d.sessions.lastResult("ui-1")
	assert.True(t, ok)
	assert.Equal(t, 1, m.superseded)
}

func TestClearRoute(t *testing.T) {
	d := newTestDispatcher(&fakeRouter{routes: []router.Route{sampleRoute()}}, nil, 0)

	env := decodeReply(t, d.Handle(context.Background(), MethodRequestRoute, []byte(routePayload)))
	require.Nil(t, env.Error)

	env = decodeReply(t, d.Handle(context.Background(), MethodClearRoute, []byte(`{"clientId":"ui-1"}`)))
	require.Nil(t, env.Error)

	env = decodeReply(t, d.Handle(context.Background(), MethodGetLastRoute, []byte(`{"clientId":"ui-1"}`)))
	require.Nil(t, env.Error)
	assert.Empty(t, env.Result)

	env = decodeReply(t, d.Handle(context.Background(), MethodClearRoute, nil))
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeInvalidArguments, env.Error.Code)
}

func TestRouteCache(t *testing.T) {
	fr := &fakeRouter{routes: []router.Route{sampleRoute()}}
	m := &fakeMetrics{}
	d := newTestDispatcher(fr, m, time.Minute)

	for i := 0; i < 3; i++ {
		env := decodeReply(t, d.Handle(context.Background(), MethodRequestRoute, []byte(routePayload)))
		require.Nil(t, env.Error)
	}
	assert.Equal(t, 1, fr.calls)
	assert.Equal(t, 2, m.hits)
	assert.Equal(t, 1, m.misses)
}

func TestEstimateRoute(t *testing.T) {
	d := newTestDispatcher(&fakeRouter{routes: []router.Route{sampleRoute()}}, nil, 0)

	env := decodeReply(t, d.Handle(context.Background(), MethodEstimateRoute,
		[]byte(`{"srcLatitude":41.37,"srcLongitude":2.14,"destLatitude":41.375,"destLongitude":2.15}`)))
	require.Nil(t, env.Error)

	var text string
	require.NoError(t, json.Unmarshal(env.Result, &text))
	assert.Equal(t, "9 min", text)

	_, ok := d.sessions.lastResult("")
	assert.False(t, ok)
}

func TestGetDistance(t *testing.T) {
	d := newTestDispatcher(&fakeRouter{}, nil, 0)

	env := decodeReply(t, d.Handle(context.Background(), MethodGetDistance,
		[]byte(`{"srcLatitude":0,"srcLongitude":0,"destLatitude":0,"destLongitude":1}`)))
	require.Nil(t, env.Error)

	var meters float64
	require.NoError(t, json.Unmarshal(env.Result, &meters))
	assert.InDelta(t, 111195, meters, 500)
}

func TestUnknownMethod(t *testing.T) {
	m := &fakeMetrics{}
	d := newTestDispatcher(&fakeRouter{}, m, 0)

	env := decodeReply(t, d.Handle(context.Background(), "zoomIn", nil))
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeNotImplemented, env.Error.Code)
	assert.Equal(t, CodeNotImplemented, m.codes["zoomIn"])
}

func TestRateLimited(t *testing.T) {
	d := NewDispatcher(&fakeRouter{routes: []router.Route{sampleRoute()}}, Options{
		RateLimitPerSec: 1,
		RateLimitBurst:  1,
		Now:             func() time.Time { return fixedNow },
	}, nil)

	env := decodeReply(t, d.Handle(context.Background(), MethodRequestRoute, []byte(routePayload)))
	require.Nil(t, env.Error)

	env = decodeReply(t, d.Handle(context.Background(), MethodRequestRoute, []byte(routePayload)))
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeRateLimited, env.Error.Code)

	d.Sweep(0)
	assert.Empty(t, d.limiter.limiters)
}

func TestMethodFromSubject(t *testing.T) {
	m, ok := methodFromSubject("mapkit", "mapkit.requestMasstransitRoute")
	assert.True(t, ok)
	assert.Equal(t, "requestMasstransitRoute", m)

	for _, subject := range []string{"mapkit", "mapkit.", "other.getDistance", "mapkit.a.b"} {
		_, ok := methodFromSubject("mapkit", subject)
		assert.False(t, ok, subject)
	}
}
