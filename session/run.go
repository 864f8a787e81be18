package session

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/natscript/action"
	"github.com/c360/natscript/errors"
	"github.com/c360/natscript/logrecord"
)

// Run executes one parsed action. Streaming kinds (subscribe, reply) are
// registered under the given key and keep running until stopped; one-shot
// kinds append their record to the sink before returning.
func (s *Session) Run(ctx context.Context, a action.Action, sink logrecord.Sink, key string) error {
	switch a.Kind {
	case action.KindSubscribe:
		return s.StartSubscription(ctx, a.Server, a.Subject, sink, key)

	case action.KindRequest:
		rec, err := s.SendRequest(ctx, a.Server, a.Subject, a.Body, msTimeout(a.TimeoutMs), toHeader(a.Headers))
		if err != nil {
			return err
		}
		rec.AppendTo(sink)
		return nil

	case action.KindPublish:
		rec, err := s.Publish(ctx, a.Server, a.Subject, a.Body, toHeader(a.Headers))
		if err != nil {
			return err
		}
		rec.AppendTo(sink)
		return nil

	case action.KindReply:
		return s.StartReplyHandler(ctx, a.Server, a.Subject, a.Template, a.Body, sink, key, toHeader(a.Headers))

	case action.KindJetStreamPull:
		return s.PullJetStream(ctx, a.Server, a.Stream, a.Durable, a.BatchSize, msTimeout(a.TimeoutMs), sink)
	}

	return errors.WrapInvalid(fmt.Errorf("unknown action kind %d", a.Kind), "Session", "Run", "dispatch action")
}

func msTimeout(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func toHeader(headers map[string]string) nats.Header {
	if len(headers) == 0 {
		return nil
	}
	h := make(nats.Header, len(headers))
	for name, value := range headers {
		h.Set(name, value)
	}
	return h
}
