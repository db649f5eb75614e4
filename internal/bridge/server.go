package bridge

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/nats-io/nats.go"
)

// ServerOptions configure the NATS side of the bridge.
type ServerOptions struct {
	URL           string
	SubjectPrefix string // calls arrive on <prefix>.<method>
	QueueGroup    string // optional, spreads calls across bridge instances
	LogSubjects   bool
}

// Server receives method calls as NATS requests and answers each on its
// reply subject.
type Server struct {
	nc   *nats.Conn
	sub  *nats.Subscription
	opts ServerOptions
	d    *Dispatcher

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewServer(opts ServerOptions, d *Dispatcher, m Metrics) (*Server, error) {
	nc, err := nats.Connect(opts.URL,
		nats.Name("transit-bridge"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			glog.Warningf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			glog.Infof("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			glog.Infof("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &Server{nc: nc, opts: opts, d: d}, nil
}

// Serve subscribes to <prefix>.> and dispatches calls until Close. Each call
// runs in its own goroutine so a slow route request does not hold up others.
func (s *Server) Serve(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	handler := func(msg *nats.Msg) { s.dispatch(ctx, msg) }

	subject := s.opts.SubjectPrefix + ".>"
	var err error
	if s.opts.QueueGroup != "" {
		s.sub, err = s.nc.QueueSubscribe(subject, s.opts.QueueGroup, handler)
	} else {
		s.sub, err = s.nc.Subscribe(subject, handler)
	}
	if err != nil {
		return err
	}
	glog.Infof("listening for calls on %s", subject)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.d.Sweep(30 * time.Minute)
			}
		}
	}()
	return nil
}

// dispatch runs one call in its own goroutine. It reports false when the call
// was dropped because the subject is not a method or the server is closing.
func (s *Server) dispatch(ctx context.Context, msg *nats.Msg) bool {
	method, ok := methodFromSubject(s.opts.SubjectPrefix, msg.Subject)
	if !ok {
		return false
	}
	if !s.track() {
		glog.V(1).Infof("dropping %s call: server closing", method)
		return false
	}
	if s.opts.LogSubjects {
		glog.Infof("nats call subject=%s", msg.Subject)
	}
	go func() {
		defer s.wg.Done()
		out := s.d.Handle(ctx, method, msg.Data)
		if msg.Reply == "" {
			glog.Warningf("call %s has no reply subject; dropping result", method)
			return
		}
		if err := msg.Respond(out); err != nil {
			glog.Errorf("respond to %s: %v", method, err)
		}
	}()
	return true
}

// track registers a running call unless the server is closing. The closed
// flag and wg.Add share mu.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// Connected reports an error when the NATS connection is down.
func (s *Server) Connected() error {
	if !s.nc.IsConnected() {
		return nats.ErrConnectionClosed
	}
	return nil
}

// Close stops accepting calls, cancels the ones in flight and closes the
// connection.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.d.Close()
	if s.nc != nil {
		_ = s.nc.Flush()
		s.nc.Close()
	}
}

func methodFromSubject(prefix, subject string) (string, bool) {
	method := strings.TrimPrefix(subject, prefix+".")
	if method == subject || method == "" || strings.Contains(method, ".") {
		return "", false
	}
	return method, true
}
