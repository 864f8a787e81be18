package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/c360/natscript/errors"
	"github.com/c360/natscript/metric"
	"github.com/c360/natscript/natsclient"
)

// countKey identifies one (connection identity, subject) counter entry.
type countKey struct {
	server  string
	subject string
}

// Session is the stateful runtime executing script actions. It owns the
// connection table and the subscription and reply-handler registries; callers
// only see aggregate counts and boolean membership queries.
type Session struct {
	connector      natsclient.Connector
	logger         *slog.Logger
	metrics        *metric.Metrics
	defaultTimeout time.Duration

	// group serializes connection acquisition per identity so concurrent
	// callers never establish duplicate physical connections.
	group singleflight.Group

	mu          sync.Mutex
	conns       map[string]*natsclient.ManagedConn
	subs        map[string]*subContext
	replies     map[string]*replyContext
	subCounts   map[countKey]int
	replyCounts map[countKey]int
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables metrics collection
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithDefaultTimeout sets the timeout applied to requests that carry none
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.defaultTimeout = d
		}
	}
}

// New creates a Session using the given connector for physical connections.
func New(connector natsclient.Connector, opts ...Option) *Session {
	s := &Session{
		connector:      connector,
		logger:         slog.Default(),
		defaultTimeout: 5 * time.Second,
		conns:          make(map[string]*natsclient.ManagedConn),
		subs:           make(map[string]*subContext),
		replies:        make(map[string]*replyContext),
		subCounts:      make(map[countKey]int),
		replyCounts:    make(map[countKey]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// acquire returns the managed connection for a server URL, creating it
// lazily on first use of its identity. Acquisition is idempotent and
// serialized per identity.
func (s *Session) acquire(ctx context.Context, serverURL string) (*natsclient.ManagedConn, error) {
	key, opts, err := natsclient.ParseServer(serverURL)
	if err != nil {
		return nil, err
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		s.mu.Lock()
		if mc, ok := s.conns[key]; ok {
			s.mu.Unlock()
			return mc, nil
		}
		s.mu.Unlock()

		conn, err := s.connector(ctx, opts)
		if err != nil {
			return nil, err
		}
		mc := natsclient.NewManagedConn(key, serverURL, conn)

		s.mu.Lock()
		s.conns[key] = mc
		s.mu.Unlock()

		s.logger.Debug("connection established", "server", key)
		return mc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*natsclient.ManagedConn), nil
}

// ConnectionStatus reports "connected" or "disconnected" for a known server
// identity, or an error when the identity has no entry.
func (s *Session) ConnectionStatus(serverKey string) (string, error) {
	s.mu.Lock()
	mc, ok := s.conns[serverKey]
	s.mu.Unlock()
	if !ok {
		return "", errors.WrapInvalid(errors.ErrUnknownServer, "Session", "ConnectionStatus", "look up connection")
	}
	return mc.Status(), nil
}

// Connections returns the identities of all managed connections, sorted.
func (s *Session) Connections() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.conns))
	for key := range s.conns {
		keys = append(keys, key)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// SubscriptionCount returns the number of active subscriptions on a subject,
// aggregated across all connections serving it.
func (s *Session) SubscriptionCount(subject string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sumCounts(s.subCounts, subject)
}

// ReplyHandlerCount returns the number of active reply handlers on a
// subject, aggregated across all connections serving it.
func (s *Session) ReplyHandlerCount(subject string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sumCounts(s.replyCounts, subject)
}

func sumCounts(counts map[countKey]int, subject string) int {
	total := 0
	for key, n := range counts {
		if key.subject == subject {
			total += n
		}
	}
	return total
}

// decrement lowers a counter entry, removing it entirely at zero so a stale
// zero entry is never visible.
func decrement(counts map[countKey]int, key countKey) {
	if counts[key] <= 1 {
		delete(counts, key)
		return
	}
	counts[key]--
}
