package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/natscript/natsclient"
)

// fakeConnector hands out one fakeConn per server identity and counts dials.
type fakeConnector struct {
	mu      sync.Mutex
	dials   int
	conns   map[string]*fakeConn
	dialErr error
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{conns: make(map[string]*fakeConn)}
}

func (f *fakeConnector) connect(_ context.Context, opts natsclient.ServerOptions) (natsclient.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	f.dials++
	fc := newFakeConn()
	f.conns[opts.Servers[0]] = fc
	return fc, nil
}

func (f *fakeConnector) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeConnector) conn(server string) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[server]
}

type publishedMsg struct {
	subject string
	data    string
	header  nats.Header
}

type fakeConn struct {
	mu        sync.Mutex
	closed    bool
	flushed   int
	published []publishedMsg
	subs      map[string]*fakeSub
	requestFn func(subject string, data []byte, header nats.Header) (*nats.Msg, error)
	js        natsclient.JetStream
}

func newFakeConn() *fakeConn {
	return &fakeConn{subs: make(map[string]*fakeSub)}
}

func (c *fakeConn) Publish(subject string, data []byte, header nats.Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nats.ErrConnectionClosed
	}
	c.published = append(c.published, publishedMsg{subject, string(data), header})
	return nil
}

func (c *fakeConn) Request(ctx context.Context, subject string, data []byte, header nats.Header) (*nats.Msg, error) {
	c.mu.Lock()
	fn := c.requestFn
	c.mu.Unlock()
	if fn == nil {
		return nil, nats.ErrTimeout
	}
	_ = ctx
	return fn(subject, data, header)
}

func (c *fakeConn) Subscribe(subject string) (natsclient.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nats.ErrConnectionClosed
	}
	sub := &fakeSub{ch: make(chan *nats.Msg, 16), term: make(chan struct{})}
	c.subs[subject] = sub
	return sub, nil
}

func (c *fakeConn) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushed++
	return nil
}

func (c *fakeConn) JetStream() (natsclient.JetStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.js == nil {
		return nil, fmt.Errorf("jetstream not enabled")
	}
	return c.js, nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) deliver(subject string, msg *nats.Msg) {
	c.mu.Lock()
	sub := c.subs[subject]
	c.mu.Unlock()
	if sub != nil {
		sub.ch <- msg
	}
}

func (c *fakeConn) publishedTo(subject string) []publishedMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []publishedMsg
	for _, p := range c.published {
		if p.subject == subject {
			out = append(out, p)
		}
	}
	return out
}

type fakeSub struct {
	ch       chan *nats.Msg
	term     chan struct{}
	termOnce sync.Once
}

func (s *fakeSub) Next(ctx context.Context) (*nats.Msg, error) {
	select {
	case msg := <-s.ch:
		return msg, nil
	case <-s.term:
		return nil, nats.ErrBadSubscription
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSub) Unsubscribe() error {
	s.termOnce.Do(func() { close(s.term) })
	return nil
}

// fakeJetStream serves one fake consumer, recording the fetch arguments.
type fakeJetStream struct {
	mu          sync.Mutex
	consumerErr error
	fetchErr    error
	batchErr    error
	msgs        []jetstream.Msg

	gotBatch   int
	gotMaxWait time.Duration
}

func (j *fakeJetStream) Consumer(_ context.Context, _, _ string) (natsclient.Consumer, error) {
	if j.consumerErr != nil {
		return nil, j.consumerErr
	}
	return &fakeConsumer{js: j}, nil
}

type fakeConsumer struct {
	js *fakeJetStream
}

func (c *fakeConsumer) Fetch(batch int, maxWait time.Duration) (jetstream.MessageBatch, error) {
	c.js.mu.Lock()
	c.js.gotBatch = batch
	c.js.gotMaxWait = maxWait
	c.js.mu.Unlock()
	if c.js.fetchErr != nil {
		return nil, c.js.fetchErr
	}

	ch := make(chan jetstream.Msg, len(c.js.msgs))
	for _, msg := range c.js.msgs {
		ch <- msg
	}
	close(ch)
	return &fakeBatch{ch: ch, err: c.js.batchErr}, nil
}

type fakeBatch struct {
	ch  chan jetstream.Msg
	err error
}

func (b *fakeBatch) Messages() <-chan jetstream.Msg { return b.ch }
func (b *fakeBatch) Error() error                   { return b.err }

// fakeJSMsg overrides only the methods the pull path touches.
type fakeJSMsg struct {
	jetstream.Msg
	subject string
	data    string
	ackErr  error

	mu    sync.Mutex
	acked int
}

func (m *fakeJSMsg) Subject() string      { return m.subject }
func (m *fakeJSMsg) Data() []byte         { return []byte(m.data) }
func (m *fakeJSMsg) Headers() nats.Header { return nil }

func (m *fakeJSMsg) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ackErr != nil {
		return m.ackErr
	}
	m.acked++
	return nil
}

func (m *fakeJSMsg) ackCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked
}

// captureSink records appended lines for assertions.
type captureSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *captureSink) AppendLine(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
}

func (s *captureSink) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, "\n")
}

func (s *captureSink) contains(substr string) bool {
	return strings.Contains(s.text(), substr)
}
