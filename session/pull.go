package session

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/natscript/errors"
	"github.com/c360/natscript/logrecord"
)

const minFetchWait = time.Second

// PullJetStream fetches a bounded batch from a durable consumer, appending a
// "Received" record per message and acknowledging each one. Configuration
// mistakes (missing stream or durable, a connection without JetStream) are
// raised; failures during lookup or fetch belong to the log stream of this
// one-shot, user-triggered action and are reported as "Pull error" records
// instead.
func (s *Session) PullJetStream(
	ctx context.Context,
	serverURL, stream, durable string,
	batchSize int,
	timeout time.Duration,
	sink logrecord.Sink,
) error {
	if stream == "" {
		return errors.WrapInvalid(errors.ErrMissingStream, "Session", "PullJetStream", "validate stream")
	}
	if durable == "" {
		return errors.WrapInvalid(errors.ErrMissingDurable, "Session", "PullJetStream", "validate durable")
	}

	mc, err := s.acquire(ctx, serverURL)
	if err != nil {
		return err
	}

	js, err := mc.Conn().JetStream()
	if err != nil {
		s.metrics.Error("pull")
		return errors.WrapInvalid(errors.ErrNoJetStream, "Session", "PullJetStream", "access JetStream")
	}

	if batchSize < 1 {
		batchSize = 1
	}
	if timeout < minFetchWait {
		timeout = minFetchWait
	}

	cons, err := js.Consumer(ctx, stream, durable)
	if err != nil {
		s.metrics.Error("pull")
		logrecord.NewStream(mc.Key(), stream, durable).
			AddItem("Pull error", err.Error(), nil).
			AppendTo(sink)
		return nil
	}

	batch, err := cons.Fetch(batchSize, timeout)
	if err != nil {
		s.metrics.Error("pull")
		logrecord.NewStream(mc.Key(), stream, durable).
			AddItem("Pull error", err.Error(), nil).
			AppendTo(sink)
		return nil
	}

	received := 0
	for msg := range batch.Messages() {
		received++
		s.metrics.MessageReceived(msg.Subject())

		rec := logrecord.NewStream(mc.Key(), stream, durable)
		rec.Subject = msg.Subject()
		rec.AddItem("Received", string(msg.Data()), msg.Headers())

		// An ack failure is reported per message without aborting the
		// remaining batch.
		if err := msg.Ack(); err != nil {
			s.metrics.Error("ack")
			rec.AddItem("Ack error", err.Error(), nil)
			if errors.Is(err, nats.ErrConnectionClosed) {
				mc.MarkClosed()
			}
		}
		rec.AppendTo(sink)
	}

	if err := batch.Error(); err != nil {
		s.metrics.Error("pull")
		logrecord.NewStream(mc.Key(), stream, durable).
			AddItem("Pull error", err.Error(), nil).
			AppendTo(sink)
		return nil
	}

	if received == 0 {
		logrecord.NewStream(mc.Key(), stream, durable).
			AddItem("No messages available", "", nil).
			AppendTo(sink)
	}

	s.metrics.PullBatchFetched(stream, durable)
	return nil
}
