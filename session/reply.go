package session

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/c360/natscript/errors"
	"github.com/c360/natscript/logrecord"
	"github.com/c360/natscript/natsclient"
	"github.com/c360/natscript/template"
)

// replyContext is one active reply handler. Template, payload and headers
// are retained so the handler can be resumed after a reconnect.
type replyContext struct {
	key       string
	serverURL string
	serverKey string
	subject   string
	sink      logrecord.Sink
	sub       natsclient.Subscription
	conn      natsclient.Conn
	cancel    context.CancelFunc
	done      chan struct{}

	template string
	payload  string
	headers  nats.Header
}

// StartReplyHandler subscribes to the subject and answers each inbound
// request by rendering the template against it, or with the static payload
// when no template is configured. Calling it again with an already-active
// key is a no-op.
func (s *Session) StartReplyHandler(
	ctx context.Context,
	serverURL, subject, tmpl, payload string,
	sink logrecord.Sink,
	key string,
	replyHeaders nats.Header,
) error {
	s.mu.Lock()
	_, exists := s.replies[key]
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
		s.metrics.Error("reply_subscribe")
		return errors.WrapTransient(err, "Session", "StartReplyHandler", "subscribe")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	rc := &replyContext{
		key:       key,
		serverURL: serverURL,
		serverKey: mc.Key(),
		subject:   subject,
		sink:      sink,
		sub:       sub,
		conn:      mc.Conn(),
		cancel:    cancel,
		done:      make(chan struct{}),
		template:  tmpl,
		payload:   payload,
		headers:   replyHeaders,
	}

	s.mu.Lock()
	if _, exists := s.replies[key]; exists {
		s.mu.Unlock()
		cancel()
		_ = sub.Unsubscribe()
		return nil
	}
	s.replies[key] = rc
	s.replyCounts[countKey{mc.Key(), subject}]++
	s.mu.Unlock()

	s.metrics.ReplyHandlerStarted()
	s.logger.Debug("reply handler started", "key", key, "subject", subject, "server", mc.Key())

	go s.replyLoop(loopCtx, rc)
	return nil
}

// StopReplyHandler unsubscribes the stream and removes the context. Unknown
// keys are ignored.
func (s *Session) StopReplyHandler(key string) {
	s.mu.Lock()
	rc, ok := s.replies[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.replies, key)
	decrement(s.replyCounts, countKey{rc.serverKey, rc.subject})
	s.mu.Unlock()

	rc.cancel()
	if err := rc.sub.Unsubscribe(); err != nil {
		s.logger.Debug("unsubscribe failed", "key", key, "error", err)
	}
	// The reply loop has exited by the time Stop returns, so no request for
	// this context is answered afterwards.
	<-rc.done

	s.metrics.ReplyHandlerStopped()
	s.logger.Debug("reply handler stopped", "key", key, "subject", rc.subject)
}

// IsReplyHandlerActive reports whether a reply handler is active under the key.
func (s *Session) IsReplyHandlerActive(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.replies[key]
	return ok
}

// replyLoop handles one request to completion, including issuing its reply,
// before awaiting the next, so records stay in arrival order.
func (s *Session) replyLoop(ctx context.Context, rc *replyContext) {
	defer close(rc.done)
	for {
		msg, err := rc.sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.metrics.Error("reply")
				logrecord.New(rc.serverKey, rc.subject).
					AddItem("Error", err.Error(), nil).
					AppendTo(rc.sink)
			}
			return
		}
		s.metrics.MessageReceived(rc.subject)
		s.handleRequest(rc, msg)
	}
}

func (s *Session) handleRequest(rc *replyContext, msg *nats.Msg) {
	rec := logrecord.New(rc.serverKey, msg.Subject)

	// Never respond to a one-way publish.
	if msg.Reply == "" {
		rec.AddItem("Publish received (no reply)", string(msg.Data), msg.Header)
		rec.AppendTo(rc.sink)
		return
	}

	var response string
	switch {
	case rc.template != "":
		response = template.Render(rc.template, msg)
	case rc.payload != "":
		response = rc.payload
	default:
		rec.AddItem("Request received without template or payload", string(msg.Data), msg.Header)
		rec.AppendTo(rc.sink)
		return
	}

	rec.AddItem("Request", string(msg.Data), msg.Header)
	if err := rc.conn.Publish(msg.Reply, []byte(response), rc.headers); err != nil {
		s.metrics.Error("respond")
		rec.AddItem("Error", err.Error(), nil)
	} else {
		s.metrics.ReplySent(rc.subject)
		rec.AddItem("Reply", response, rc.headers)
	}
	rec.AppendTo(rc.sink)
}
