package natsclient

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/natscript/errors"
)

// Dial is the production Connector backed by nats.go. Automatic client-side
// reconnection is disabled: recovery is owned by the session manager, which
// re-establishes connections and rebinds their contexts explicitly.
func Dial(ctx context.Context, opts ServerOptions) (Conn, error) {
	return dialWith(ctx, opts, defaultDialConfig())
}

// NewConnector builds a Connector with custom dial options applied to every
// connection it establishes.
func NewConnector(dopts ...DialOption) Connector {
	cfg := defaultDialConfig()
	for _, opt := range dopts {
		opt(&cfg)
	}
	return func(ctx context.Context, opts ServerOptions) (Conn, error) {
		return dialWith(ctx, opts, cfg)
	}
}

type dialConfig struct {
	name    string
	timeout time.Duration
	logger  Logger
}

func defaultDialConfig() dialConfig {
	return dialConfig{
		name:    "natscript",
		timeout: 5 * time.Second,
		logger:  &defaultLogger{},
	}
}

// DialOption configures the production connector.
type DialOption func(*dialConfig)

// WithName sets the client name reported to the server
func WithName(name string) DialOption {
	return func(cfg *dialConfig) { cfg.name = name }
}

// WithTimeout sets the connection handshake timeout
func WithTimeout(d time.Duration) DialOption {
	return func(cfg *dialConfig) { cfg.timeout = d }
}

// WithLogger sets a custom logger for connection lifecycle events
func WithLogger(logger Logger) DialOption {
	return func(cfg *dialConfig) {
		if logger == nil {
			logger = &defaultLogger{}
		}
		cfg.logger = logger
	}
}

func dialWith(ctx context.Context, opts ServerOptions, cfg dialConfig) (Conn, error) {
	nopts := []nats.Option{
		nats.Name(cfg.name),
		nats.Timeout(cfg.timeout),
		nats.NoReconnect(),
	}
	if opts.User != "" {
		nopts = append(nopts, nats.UserInfo(opts.User, opts.Pass))
	}

	servers := ""
	if len(opts.Servers) > 0 {
		servers = opts.Servers[0]
		for _, s := range opts.Servers[1:] {
			servers += "," + s
		}
	}

	cfg.logger.Debugf("Connecting to %s", servers)

	// nats.Connect has its own handshake timeout but no context support;
	// run it in a goroutine so cancellation is honored.
	type result struct {
		nc  *nats.Conn
		err error
	}
	done := make(chan result, 1)
	go func() {
		nc, err := nats.Connect(servers, nopts...)
		done <- result{nc, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			cfg.logger.Errorf("Connect to %s failed: %v", servers, res.err)
			return nil, errors.WrapTransient(res.err, "natsclient", "Dial", "establish connection")
		}
		cfg.logger.Printf("Connected to %s", res.nc.ConnectedUrl())
		return &natsConn{nc: res.nc}, nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.nc != nil {
				res.nc.Close()
			}
		}()
		return nil, errors.WrapTransient(ctx.Err(), "natsclient", "Dial", "connection cancelled")
	}
}

// natsConn adapts *nats.Conn to the Conn interface.
type natsConn struct {
	nc *nats.Conn
}

func (c *natsConn) Publish(subject string, data []byte, header nats.Header) error {
	return c.nc.PublishMsg(&nats.Msg{Subject: subject, Data: data, Header: header})
}

func (c *natsConn) Request(ctx context.Context, subject string, data []byte, header nats.Header) (*nats.Msg, error) {
	return c.nc.RequestMsgWithContext(ctx, &nats.Msg{Subject: subject, Data: data, Header: header})
}

func (c *natsConn) Subscribe(subject string) (Subscription, error) {
	sub, err := c.nc.SubscribeSync(subject)
	if err != nil {
		return nil, err
	}
	return &natsSubscription{sub: sub}, nil
}

func (c *natsConn) Flush() error {
	return c.nc.Flush()
}

func (c *natsConn) JetStream() (JetStream, error) {
	js, err := jetstream.New(c.nc)
	if err != nil {
		return nil, errors.WrapInvalid(err, "natsclient", "JetStream", "initialize JetStream")
	}
	return &jetStreamConn{js: js}, nil
}

func (c *natsConn) Close() {
	c.nc.Close()
}

func (c *natsConn) IsClosed() bool {
	return c.nc.IsClosed()
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Next(ctx context.Context) (*nats.Msg, error) {
	return s.sub.NextMsgWithContext(ctx)
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

type jetStreamConn struct {
	js jetstream.JetStream
}

func (j *jetStreamConn) Consumer(ctx context.Context, stream, durable string) (Consumer, error) {
	cons, err := j.js.Consumer(ctx, stream, durable)
	if err != nil {
		return nil, err
	}
	return &jetStreamConsumer{cons: cons}, nil
}

type jetStreamConsumer struct {
	cons jetstream.Consumer
}

func (c *jetStreamConsumer) Fetch(batch int, maxWait time.Duration) (jetstream.MessageBatch, error) {
	return c.cons.Fetch(batch, jetstream.FetchMaxWait(maxWait))
}
