package session

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/natscript/errors"
	"github.com/c360/natscript/logrecord"
)

// SendRequest issues a blocking request and returns a record holding the
// outgoing request and the response. Timeout and transport failures are
// propagated to the caller, who is awaiting a direct result.
func (s *Session) SendRequest(
	ctx context.Context,
	serverURL, subject, payload string,
	timeout time.Duration,
	headers nats.Header,
) (*logrecord.Record, error) {
	mc, err := s.acquire(ctx, serverURL)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.metrics.RequestSent(subject)
	rec := logrecord.New(mc.Key(), subject)
	rec.AddItem("Request", payload, headers)

	resp, err := mc.Conn().Request(rctx, subject, []byte(payload), headers)
	if err != nil {
		s.metrics.Error("request")
		return nil, errors.WrapTransient(err, "Session", "SendRequest", "await response")
	}

	rec.AddItem("Response", formatBody(resp.Data), resp.Header)
	return rec, nil
}

// Publish sends a message and flushes it to the transport, returning a
// one-item record. Transport failures are propagated.
func (s *Session) Publish(
	ctx context.Context,
	serverURL, subject, payload string,
	headers nats.Header,
) (*logrecord.Record, error) {
	mc, err := s.acquire(ctx, serverURL)
	if err != nil {
		return nil, err
	}

	if err := mc.Conn().Publish(subject, []byte(payload), headers); err != nil {
		s.metrics.Error("publish")
		return nil, errors.WrapTransient(err, "Session", "Publish", "publish message")
	}
	if err := mc.Conn().Flush(); err != nil {
		s.metrics.Error("publish")
		return nil, errors.WrapTransient(err, "Session", "Publish", "flush")
	}

	s.metrics.MessagePublished(subject)
	rec := logrecord.New(mc.Key(), subject)
	rec.AddItem("Published", payload, headers)
	return rec, nil
}

// formatBody indents a JSON body for readability, leaving non-JSON text as is.
func formatBody(data []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return string(data)
	}
	return buf.String()
}
