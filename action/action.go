// Package action defines the typed vocabulary of script actions produced by
// parsing a messaging script. Actions are pure data: the script parser builds
// them and the session manager executes them.
package action

// Kind identifies the operation an Action performs.
type Kind int

// The closed set of action kinds. Switches over Kind should enumerate all of
// these explicitly so a new kind surfaces as a compile-visible gap.
const (
	KindSubscribe Kind = iota
	KindRequest
	KindPublish
	KindReply
	KindJetStreamPull
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindSubscribe:
		return "subscribe"
	case KindRequest:
		return "request"
	case KindPublish:
		return "publish"
	case KindReply:
		return "reply"
	case KindJetStreamPull:
		return "jetstream-pull"
	default:
		return "unknown"
	}
}

// Action is one parsed unit of work from a script block. Fields that do not
// apply to the action's Kind are left at their zero values; an empty string
// means "not set" (parsed bodies and subjects are trimmed, so a present value
// is never empty).
type Action struct {
	Kind    Kind
	Subject string
	// Server is the broker address the action targets, normalized to
	// scheme + credentials + host + port.
	Server string
	// SourceLine is the zero-based document line of the command keyword.
	SourceLine int

	// Body is the raw payload for Publish/Request, or the static reply
	// payload for a Reply in payload mode. Mutually exclusive with Template.
	Body string
	// Template is the reply-rendering template for a Reply in template
	// mode. A Reply with neither Body nor Template set is valid and means
	// "no responder content".
	Template string

	// JetStreamPull fields.
	Stream    string
	Durable   string
	BatchSize int
	// TimeoutMs applies to Request, Publish and JetStreamPull; zero means
	// no explicit timeout was configured.
	TimeoutMs int

	// Headers are forwarded on the wire; recognized metadata headers are
	// stripped during parsing and never appear here. Nil when the block
	// carried no forwardable headers.
	Headers map[string]string
}

// HasResponderContent reports whether a Reply action carries either a
// template or a static payload to respond with.
func (a *Action) HasResponderContent() bool {
	return a.Template != "" || a.Body != ""
}
