package session

import (
	"context"

	"github.com/c360/natscript/errors"
	"github.com/c360/natscript/logrecord"
	"github.com/c360/natscript/natsclient"
)

// subContext is one active subscription: its stream handle, the consume
// goroutine's cancel function, and everything needed to resume it after an
// explicit reconnect.
type subContext struct {
	key       string
	serverURL string
	serverKey string
	subject   string
	sink      logrecord.Sink
	sub       natsclient.Subscription
	cancel    context.CancelFunc
	done      chan struct{}
}

// StartSubscription opens a subscribe stream on the subject and spawns a
// consume loop appending a "Received" record per inbound message to the
// sink. Calling it again with an already-active key is a no-op.
func (s *Session) StartSubscription(ctx context.Context, serverURL, subject string, sink logrecord.Sink, key string) error {
	s.mu.Lock()
	_, exists := s.subs[key]
	s.mu.Unlock()
	if exists {
		return nil
	}

	mc, err := s.acquire(ctx, serverURL)
	if err != nil {
		return err
	}

	sub, err := mc.Conn().Subscribe(subject)
	if err != nil {
		s.metrics.Error("subscribe")
		return errors.WrapTransient(err, "Session", "StartSubscription", "subscribe")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sc := &subContext{
		key:       key,
		serverURL: serverURL,
		serverKey: mc.Key(),
		subject:   subject,
		sink:      sink,
		sub:       sub,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	if _, exists := s.subs[key]; exists {
		// Lost the registration race; keep the winner's stream.
		s.mu.Unlock()
		cancel()
		_ = sub.Unsubscribe()
		return nil
	}
	s.subs[key] = sc
	s.subCounts[countKey{mc.Key(), subject}]++
	s.mu.Unlock()

	s.metrics.SubscriptionStarted()
	s.logger.Debug("subscription started", "key", key, "subject", subject, "server", mc.Key())

	go s.consumeLoop(loopCtx, sc)
	return nil
}

// StopSubscription unsubscribes the stream and removes the context. Unknown
// keys are ignored.
func (s *Session) StopSubscription(key string) {
	s.mu.Lock()
	sc, ok := s.subs[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.subs, key)
	decrement(s.subCounts, countKey{sc.serverKey, sc.subject})
	s.mu.Unlock()

	sc.cancel()
	if err := sc.sub.Unsubscribe(); err != nil {
		s.logger.Debug("unsubscribe failed", "key", key, "error", err)
	}
	// The consume loop has exited by the time Stop returns, so no record for
	// this context is appended afterwards.
	<-sc.done

	s.metrics.SubscriptionStopped()
	s.logger.Debug("subscription stopped", "key", key, "subject", sc.subject)
}

// IsSubscribed reports whether a subscription context is active under the key.
func (s *Session) IsSubscribed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[key]
	return ok
}

// consumeLoop processes one message to completion before awaiting the next,
// so records for a single context are appended in arrival order. A terminal
// stream error ends the loop after an "Error" record; the loop never retries
// on its own, recovery is the explicit reconnect operation.
func (s *Session) consumeLoop(ctx context.Context, sc *subContext) {
	defer close(sc.done)
	for {
		msg, err := sc.sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.metrics.Error("subscription")
				logrecord.New(sc.serverKey, sc.subject).
					AddItem("Error", err.Error(), nil).
					AppendTo(sc.sink)
			}
			return
		}

		s.metrics.MessageReceived(sc.subject)
		logrecord.New(sc.serverKey, msg.Subject).
			AddItem("Received", string(msg.Data), msg.Header).
			AppendTo(sc.sink)
	}
}
