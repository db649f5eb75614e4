// Package bridge answers map method calls from the UI layer. Calls arrive as
// JSON payloads addressed by method name; replies carry either a result or a
// MethodError.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/twpayne/go-polyline"

	"transit-bridge/internal/router"
	"transit-bridge/internal/transit"
)

// Method names.
const (
	MethodRequestRoute  = "requestMasstransitRoute"
	MethodEstimateRoute = "estimateMasstransitRoute"
	MethodGetDistance   = "getDistance"
	MethodGetLastRoute  = "getLastRoute"
	MethodClearRoute    = "clearRoute"
)

var errSuperseded = errors.New("superseded by a newer route request")

// Metrics receives dispatcher events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RequestObserve(method, code string, d time.Duration)
	SectionsObserve(raw, merged int)
	CacheLookup(hit bool)
	SupersededInc()
	NATSSetConnected(connected bool)
}

type Options struct {
	Transit         transit.Options
	CacheTTL        time.Duration // 0 disables the result cache
	RequestTimeout  time.Duration
	RateLimitPerSec float64
	RateLimitBurst  int
	Now             func() time.Time
}

// RouteResult is the reply to a route request.
type RouteResult struct {
	Sections        []transit.SectionInfo `json:"sections"`
	Points          []transit.RoutePoint  `json:"points"`
	Geometry        string                `json:"geometry,omitempty"`
	DurationSeconds float64               `json:"-"`
}

type Dispatcher struct {
	router   router.Router
	opts     Options
	cache    *cache.Cache
	limiter  *clientLimiter
	sessions *sessions
	metrics  Metrics
}

func NewDispatcher(r router.Router, opts Options, m Metrics) *Dispatcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	d := &Dispatcher{
		router:   r,
		opts:     opts,
		limiter:  newClientLimiter(opts.RateLimitPerSec, opts.RateLimitBurst),
		sessions: newSessions(),
		metrics:  m,
	}
	if opts.CacheTTL > 0 {
		d.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return d
}

type reply struct {
	Result any          `json:"result,omitempty"`
	Error  *MethodError `json:"error,omitempty"`
}

// Handle runs one method call and returns the encoded reply envelope.
func (d *Dispatcher) Handle(ctx context.Context, method string, payload []byte) []byte {
	id := uuid.NewString()
	start := time.Now()
	glog.V(1).Infof("call %s method=%s", id, method)

	result, merr := d.call(ctx, method, payload)

	code := ""
	if merr != nil {
		code = merr.Code
		glog.Errorf("call %s method=%s failed: %v", id, method, merr)
	} else {
		glog.V(1).Infof("call %s method=%s done in %s", id, method, time.Since(start))
	}
	if d.metrics != nil {
		d.metrics.RequestObserve(method, code, time.Since(start))
	}

	b, err := json.Marshal(reply{Result: result, Error: merr})
	if err != nil {
		glog.Errorf("call %s: encode reply: %v", id, err)
		b, _ = json.Marshal(reply{Error: &MethodError{Code: CodeRouteRequestFailed, Message: "encode reply: " + err.Error()}})
	}
	return b
}

func (d *Dispatcher) call(ctx context.Context, method string, payload []byte) (any, *MethodError) {
	switch method {
	case MethodRequestRoute:
		var args routeArgs
		if merr := decodeArgs(payload, &args); merr != nil {
			return nil, merr
		}
		return d.requestRoute(ctx, args)
	case MethodEstimateRoute:
		var args routeArgs
		if merr := decodeArgs(payload, &args); merr != nil {
			return nil, merr
		}
		return d.estimateRoute(ctx, args)
	case MethodGetDistance:
		var args routeArgs
		if merr := decodeArgs(payload, &args); merr != nil {
			return nil, merr
		}
		src, dst, merr := args.endpoints()
		if merr != nil {
			return nil, merr
		}
		return geo.Distance(src, dst), nil
	case MethodGetLastRoute:
		var args clientArgs
		if merr := decodeArgs(payload, &args); merr != nil {
			return nil, merr
		}
		if args.ClientID == "" {
			return nil, invalidArgs("clientId is required")
		}
		res, ok := d.sessions.lastResult(args.ClientID)
		if !ok {
			return nil, nil
		}
		return res, nil
	case MethodClearRoute:
		var args clientArgs
		if merr := decodeArgs(payload, &args); merr != nil {
			return nil, merr
		}
		if args.ClientID == "" {
			return nil, invalidArgs("clientId is required")
		}
		d.sessions.clear(args.ClientID)
		return nil, nil
	default:
		return nil, &MethodError{Code: CodeNotImplemented, Message: fmt.Sprintf("method %q is not implemented", method)}
	}
}

func (d *Dispatcher) requestRoute(ctx context.Context, args routeArgs) (any, *MethodError) {
	if args.ClientID == "" {
		return nil, invalidArgs("clientId is required")
	}
	req, merr := d.routeRequest(args)
	if merr != nil {
		return nil, merr
	}
	if !d.limiter.allow(args.ClientID, d.opts.Now()) {
		return nil, &MethodError{Code: CodeRateLimited, Message: "too many route requests"}
	}

	ctx, finish, prevCancelled := d.sessions.begin(ctx, args.ClientID)
	if prevCancelled && d.metrics != nil {
		d.metrics.SupersededInc()
	}
	res, err := d.resolve(ctx, req)
	if err != nil {
		if finish(nil) {
			err = errSuperseded
		}
		return nil, routeFailed(err)
	}
	if finish(&res) {
		return nil, routeFailed(errSuperseded)
	}
	return res, nil
}

func (d *Dispatcher) estimateRoute(ctx context.Context, args routeArgs) (any, *MethodError) {
	req, merr := d.routeRequest(args)
	if merr != nil {
		return nil, merr
	}
	if !d.limiter.allow(clientKey(args.ClientID), d.opts.Now()) {
		return nil, &MethodError{Code: CodeRateLimited, Message: "too many route requests"}
	}
	res, err := d.resolve(ctx, req)
	if err != nil {
		return nil, routeFailed(err)
	}
	return router.FormatDuration(res.DurationSeconds), nil
}

// resolve asks the router for routes and processes the first one. Results are
// cached per endpoints and departure minute.
func (d *Dispatcher) resolve(ctx context.Context, req router.Request) (RouteResult, error) {
	key := cacheKey(req)
	if d.cache != nil {
		if v, ok := d.cache.Get(key); ok {
			if d.metrics != nil {
				d.metrics.CacheLookup(true)
			}
			return v.(RouteResult), nil
		}
		if d.metrics != nil {
			d.metrics.CacheLookup(false)
		}
	}

	if d.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.RequestTimeout)
		defer cancel()
	}
	routes, err := d.router.RequestRoutes(ctx, req)
	if err != nil {
		return RouteResult{}, err
	}
	if len(routes) == 0 {
		return RouteResult{}, router.ErrNoRoutes
	}
	// a cancelled request may still have produced routes; drop them
	if err := ctx.Err(); err != nil {
		return RouteResult{}, err
	}

	first := routes[0]
	processed := transit.Process(first.Sections, d.opts.Transit)
	if d.metrics != nil {
		d.metrics.SectionsObserve(len(first.Sections), len(processed.Sections))
	}
	res := RouteResult{
		Sections:        processed.Sections,
		Points:          processed.Points,
		Geometry:        encodeGeometry(first.Geometry),
		DurationSeconds: first.DurationSeconds,
	}
	if d.cache != nil {
		d.cache.Set(key, res, cache.DefaultExpiration)
	}
	return res, nil
}

func (d *Dispatcher) routeRequest(args routeArgs) (router.Request, *MethodError) {
	src, dst, merr := args.endpoints()
	if merr != nil {
		return router.Request{}, merr
	}
	return router.Request{
		Origin:      src,
		Destination: dst,
		// departures are bucketed by minute so cached results line up
		DepartAt: d.opts.Now().Truncate(time.Minute),
	}, nil
}

// Sweep drops rate limiter state for clients idle longer than idle.
func (d *Dispatcher) Sweep(idle time.Duration) {
	d.limiter.sweep(idle, d.opts.Now())
}

// Close cancels in-flight route requests and waits for them to return.
func (d *Dispatcher) Close() {
	d.sessions.stop()
}

func cacheKey(req router.Request) string {
	return fmt.Sprintf("route:%.5f:%.5f:%.5f:%.5f:%d",
		req.Origin.Lat(), req.Origin.Lon(),
		req.Destination.Lat(), req.Destination.Lon(),
		req.DepartAt.Unix()/60)
}

func encodeGeometry(ls orb.LineString) string {
	if len(ls) < 2 {
		return ""
	}
	coords := make([][]float64, 0, len(ls))
	for _, p := range ls {
		coords = append(coords, []float64{p.Lat(), p.Lon()})
	}
	return string(polyline.EncodeCoords(coords))
}

func clientKey(id string) string {
	if id == "" {
		return "__anonymous__"
	}
	return id
}
