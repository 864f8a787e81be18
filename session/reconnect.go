package session

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/c360/natscript/errors"
	"github.com/c360/natscript/logrecord"
	"github.com/c360/natscript/natsclient"
)

type subSnapshot struct {
	key       string
	serverURL string
	subject   string
	sink      logrecord.Sink
}

type replySnapshot struct {
	subSnapshot
	template string
	payload  string
	headers  nats.Header
}

// Reconnect rebuilds the physical connection for an existing identity and
// re-establishes every subscription and reply handler bound to it, returning
// the number of contexts restored.
//
// The original contexts are torn down before the replacement connection is
// dialed; if dialing fails they are already gone and the error surfaces that
// loss rather than pretending to a partial recovery.
func (s *Session) Reconnect(ctx context.Context, serverKey string) (int, error) {
	s.mu.Lock()
	old, ok := s.conns[serverKey]
	if !ok {
		s.mu.Unlock()
		return 0, errors.WrapInvalid(errors.ErrUnknownServer, "Session", "Reconnect", "look up connection")
	}

	var subSnaps []subSnapshot
	for _, sc := range s.subs {
		if sc.serverKey == serverKey {
			subSnaps = append(subSnaps, subSnapshot{sc.key, sc.serverURL, sc.subject, sc.sink})
		}
	}
	var replySnaps []replySnapshot
	for _, rc := range s.replies {
		if rc.serverKey == serverKey {
			replySnaps = append(replySnaps, replySnapshot{
				subSnapshot: subSnapshot{rc.key, rc.serverURL, rc.subject, rc.sink},
				template:    rc.template,
				payload:     rc.payload,
				headers:     rc.headers,
			})
		}
	}
	s.mu.Unlock()

	for _, snap := range subSnaps {
		s.StopSubscription(snap.key)
	}
	for _, snap := range replySnaps {
		s.StopReplyHandler(snap.key)
	}

	_, opts, err := natsclient.ParseServer(old.RawURL())
	if err != nil {
		return 0, err
	}
	conn, err := s.connector(ctx, opts)
	if err != nil {
		s.metrics.Error("reconnect")
		return 0, errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrReconnectFailed, err),
			"Session", "Reconnect", "establish replacement connection")
	}

	s.mu.Lock()
	s.conns[serverKey] = natsclient.NewManagedConn(serverKey, old.RawURL(), conn)
	s.mu.Unlock()

	// The old instance is closed only after the replacement is installed.
	old.Close()

	restored := 0
	for _, snap := range subSnaps {
		if err := s.StartSubscription(ctx, snap.serverURL, snap.subject, snap.sink, snap.key); err != nil {
			s.logger.Warn("failed to restore subscription", "key", snap.key, "error", err)
			continue
		}
		restored++
	}
	for _, snap := range replySnaps {
		err := s.StartReplyHandler(ctx, snap.serverURL, snap.subject, snap.template, snap.payload, snap.sink, snap.key, snap.headers)
		if err != nil {
			s.logger.Warn("failed to restore reply handler", "key", snap.key, "error", err)
			continue
		}
		restored++
	}

	s.logger.Info("reconnected", "server", serverKey, "restored", restored)
	return restored, nil
}

// Reset tears down every subscription and reply-handler context, then closes
// every physical connection. All teardowns complete before any connection is
// closed so no still-running loop addresses a closed connection; closure is
// best-effort, one failing connection does not prevent closing the others.
func (s *Session) Reset() {
	s.mu.Lock()
	subKeys := make([]string, 0, len(s.subs))
	for key := range s.subs {
		subKeys = append(subKeys, key)
	}
	replyKeys := make([]string, 0, len(s.replies))
	for key := range s.replies {
		replyKeys = append(replyKeys, key)
	}
	s.mu.Unlock()

	for _, key := range subKeys {
		s.StopSubscription(key)
	}
	for _, key := range replyKeys {
		s.StopReplyHandler(key)
	}

	s.mu.Lock()
	conns := make([]*natsclient.ManagedConn, 0, len(s.conns))
	for _, mc := range s.conns {
		conns = append(conns, mc)
	}
	s.conns = make(map[string]*natsclient.ManagedConn)
	s.mu.Unlock()

	for _, mc := range conns {
		mc.Close()
		s.logger.Debug("connection closed", "server", mc.Key())
	}
}
