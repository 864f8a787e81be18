package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/natscript/errors"
)

const testServer = "nats://demo"

func newTestSession(t *testing.T) (*Session, *fakeConnector) {
	t.Helper()
	connector := newFakeConnector()
	s := New(connector.connect)
	t.Cleanup(s.Reset)
	return s, connector
}

func TestStartSubscription_Idempotent(t *testing.T) {
	s, connector := newTestSession(t)
	sink := &captureSink{}

	require.NoError(t, s.StartSubscription(context.Background(), testServer, "lab.metrics", sink, "doc:0"))
	require.NoError(t, s.StartSubscription(context.Background(), testServer, "lab.metrics", sink, "doc:0"))

	assert.True(t, s.IsSubscribed("doc:0"))
	assert.Equal(t, 1, s.SubscriptionCount("lab.metrics"))
	assert.Equal(t, 1, connector.dialCount())
}

func TestSubscription_ReceivesMessages(t *testing.T) {
	s, connector := newTestSession(t)
	sink := &captureSink{}

	require.NoError(t, s.StartSubscription(context.Background(), testServer, "lab.metrics", sink, "doc:0"))

	fc := connector.conn(testServer)
	require.NotNil(t, fc)
	msg := &nats.Msg{Subject: "lab.metrics", Data: []byte(`{"cpu": 42}`), Header: nats.Header{}}
	msg.Header.Set("X-Node", "n1")
	fc.deliver("lab.metrics", msg)

	require.Eventually(t, func() bool { return sink.contains(`{"cpu": 42}`) }, time.Second, 5*time.Millisecond)
	assert.True(t, sink.contains("Received"))
	assert.True(t, sink.contains("X-Node: n1"))
	assert.True(t, sink.contains(testServer))
}

func TestSubscription_TerminalErrorLogged(t *testing.T) {
	s, connector := newTestSession(t)
	sink := &captureSink{}

	require.NoError(t, s.StartSubscription(context.Background(), testServer, "lab.metrics", sink, "doc:0"))

	// Terminating the stream out from under the loop is a terminal error,
	// not a local stop, so the loop reports it before exiting.
	fc := connector.conn(testServer)
	fc.mu.Lock()
	sub := fc.subs["lab.metrics"]
	fc.mu.Unlock()
	_ = sub.Unsubscribe()

	require.Eventually(t, func() bool { return sink.contains("Error") }, time.Second, 5*time.Millisecond)
}

func TestStopSubscription_RemovesCounterEntry(t *testing.T) {
	s, _ := newTestSession(t)
	sink := &captureSink{}

	require.NoError(t, s.StartSubscription(context.Background(), testServer, "lab.a", sink, "k1"))
	require.NoError(t, s.StartSubscription(context.Background(), testServer, "lab.a", sink, "k2"))
	assert.Equal(t, 2, s.SubscriptionCount("lab.a"))

	s.StopSubscription("k1")
	assert.Equal(t, 1, s.SubscriptionCount("lab.a"))
	assert.False(t, s.IsSubscribed("k1"))
	assert.True(t, s.IsSubscribed("k2"))

	s.StopSubscription("k2")
	assert.Equal(t, 0, s.SubscriptionCount("lab.a"))

	// Unknown keys are ignored.
	s.StopSubscription("k2")
	s.StopSubscription("never-existed")
}

// Stop returns only after the consume loop has exited, so a message landing
// on the stale stream afterwards is never recorded.
func TestStopSubscription_SynchronousWithLoopExit(t *testing.T) {
	s, connector := newTestSession(t)
	sink := &captureSink{}

	require.NoError(t, s.StartSubscription(context.Background(), testServer, "lab.a", sink, "k"))
	fc := connector.conn(testServer)

	s.StopSubscription("k")
	fc.deliver("lab.a", &nats.Msg{Subject: "lab.a", Data: []byte("late")})

	time.Sleep(50 * time.Millisecond)
	assert.False(t, sink.contains("late"))
}

func TestStopReplyHandler_SynchronousWithLoopExit(t *testing.T) {
	s, connector := newTestSession(t)
	sink := &captureSink{}

	require.NoError(t, s.StartReplyHandler(context.Background(), testServer, "lab.q", "$msg.data", "", sink, "k", nil))
	fc := connector.conn(testServer)

	s.StopReplyHandler("k")
	fc.deliver("lab.q", &nats.Msg{Subject: "lab.q", Reply: "_INBOX.late", Data: []byte("ping")})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, fc.publishedTo("_INBOX.late"))
}

func TestSubscriptionCount_AggregatesAcrossConnections(t *testing.T) {
	s, connector := newTestSession(t)
	sink := &captureSink{}

	require.NoError(t, s.StartSubscription(context.Background(), "nats://one", "lab.x", sink, "k1"))
	require.NoError(t, s.StartSubscription(context.Background(), "nats://two", "lab.x", sink, "k2"))

	assert.Equal(t, 2, s.SubscriptionCount("lab.x"))
	assert.Equal(t, 2, connector.dialCount())
}

func TestConnectionSharedPerIdentity(t *testing.T) {
	s, connector := newTestSession(t)
	sink := &captureSink{}

	require.NoError(t, s.StartSubscription(context.Background(), testServer, "lab.a", sink, "k1"))
	require.NoError(t, s.StartSubscription(context.Background(), testServer, "lab.b", sink, "k2"))
	// Path and query never contribute to the identity.
	require.NoError(t, s.StartSubscription(context.Background(), testServer+"/lab.c", "lab.c", sink, "k3"))

	assert.Equal(t, 1, connector.dialCount())
}

func TestAcquire_SerializedPerIdentity(t *testing.T) {
	s, connector := newTestSession(t)
	sink := &captureSink{}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n))
			_ = s.StartSubscription(context.Background(), testServer, "lab.x", sink, key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, connector.dialCount())
	assert.Equal(t, 16, s.SubscriptionCount("lab.x"))
}

func TestSendRequest_Success(t *testing.T) {
	s, connector := newTestSession(t)

	// Pre-establish the connection so the request handler can be wired.
	require.NoError(t, s.StartSubscription(context.Background(), testServer, "warm.up", &captureSink{}, "warm"))
	fc := connector.conn(testServer)
	fc.mu.Lock()
	fc.requestFn = func(subject string, data []byte, header nats.Header) (*nats.Msg, error) {
		resp := &nats.Msg{Subject: subject, Data: []byte(`{"ok":true}`), Header: nats.Header{}}
		resp.Header.Set("X-Responder", "svc1")
		return resp, nil
	}
	fc.mu.Unlock()

	h := nats.Header{}
	h.Set("Authorization", "Bearer tok")
	rec, err := s.SendRequest(context.Background(), testServer, "lab.echo", `{"q":1}`, time.Second, h)
	require.NoError(t, err)
	require.NotNil(t, rec)

	text := rec.Format()
	assert.Contains(t, text, "Request:")
	assert.Contains(t, text, `{"q":1}`)
	assert.Contains(t, text, "Authorization: Bearer tok")
	assert.Contains(t, text, "Response:")
	assert.Contains(t, text, "X-Responder: svc1")
	// Response bodies are indented JSON when decodable.
	assert.Contains(t, text, "\"ok\": true")
}

func TestSendRequest_ErrorPropagated(t *testing.T) {
	s, _ := newTestSession(t)

	rec, err := s.SendRequest(context.Background(), testServer, "lab.echo", "x", time.Second, nil)
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.True(t, errors.IsTransient(err))
}

func TestPublish_FlushesAndRecords(t *testing.T) {
	s, connector := newTestSession(t)

	h := nats.Header{}
	h.Set("X-Tag", "t1")
	rec, err := s.Publish(context.Background(), testServer, "lab.out", "hello", h)
	require.NoError(t, err)

	text := rec.Format()
	assert.Contains(t, text, "Published:")
	assert.Contains(t, text, "hello")

	fc := connector.conn(testServer)
	sent := fc.publishedTo("lab.out")
	require.Len(t, sent, 1)
	assert.Equal(t, "hello", sent[0].data)
	assert.Equal(t, "t1", sent[0].header.Get("X-Tag"))

	fc.mu.Lock()
	flushed := fc.flushed
	fc.mu.Unlock()
	assert.GreaterOrEqual(t, flushed, 1)
}

func TestConnectionStatus(t *testing.T) {
	s, connector := newTestSession(t)

	_, err := s.ConnectionStatus(testServer)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownServer))

	require.NoError(t, s.StartSubscription(context.Background(), testServer, "lab.x", &captureSink{}, "k"))
	status, err := s.ConnectionStatus(testServer)
	require.NoError(t, err)
	assert.Equal(t, "connected", status)

	connector.conn(testServer).Close()
	status, err = s.ConnectionStatus(testServer)
	require.NoError(t, err)
	assert.Equal(t, "disconnected", status)
}

func TestConnections_SortedIdentities(t *testing.T) {
	s, _ := newTestSession(t)
	sink := &captureSink{}

	require.NoError(t, s.StartSubscription(context.Background(), "nats://zeta", "lab.x", sink, "k1"))
	require.NoError(t, s.StartSubscription(context.Background(), "nats://alpha", "lab.x", sink, "k2"))

	assert.Equal(t, []string{"nats://alpha", "nats://zeta"}, s.Connections())
}

func TestReset_TearsDownEverything(t *testing.T) {
	s, connector := newTestSession(t)
	sink := &captureSink{}

	require.NoError(t, s.StartSubscription(context.Background(), "nats://one", "lab.a", sink, "k1"))
	require.NoError(t, s.StartReplyHandler(context.Background(), "nats://two", "lab.q", "tpl", "", sink, "k2", nil))

	s.Reset()

	assert.False(t, s.IsSubscribed("k1"))
	assert.False(t, s.IsReplyHandlerActive("k2"))
	assert.Equal(t, 0, s.SubscriptionCount("lab.a"))
	assert.Equal(t, 0, s.ReplyHandlerCount("lab.q"))
	assert.Empty(t, s.Connections())
	assert.True(t, connector.conn("nats://one").IsClosed())
	assert.True(t, connector.conn("nats://two").IsClosed())
}

func TestDialFailurePropagated(t *testing.T) {
	connector := newFakeConnector()
	connector.dialErr = errors.New("refused")
	s := New(connector.connect)

	err := s.StartSubscription(context.Background(), testServer, "lab.x", &captureSink{}, "k")
	require.Error(t, err)
	assert.False(t, s.IsSubscribed("k"))
	assert.Equal(t, 0, s.SubscriptionCount("lab.x"))
}

func TestInvalidServerURLRejected(t *testing.T) {
	s, _ := newTestSession(t)

	err := s.StartSubscription(context.Background(), "", "lab.x", &captureSink{}, "k")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
