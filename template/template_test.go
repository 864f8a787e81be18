package template

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func newMsg(subject string, data string, headers map[string]string) *nats.Msg {
	msg := &nats.Msg{Subject: subject, Data: []byte(data), Header: nats.Header{}}
	for name, value := range headers {
		msg.Header.Set(name, value)
	}
	return msg
}

func TestRender_Subject(t *testing.T) {
	msg := newMsg("lab.metrics", "x", nil)
	assert.Equal(t, "got lab.metrics", Render("got $msg.subject", msg))
}

func TestRender_DataJSONNormalized(t *testing.T) {
	msg := newMsg("s", `{"a": 1,   "b": "two"}`, nil)
	assert.Equal(t, `echo {"a":1,"b":"two"}`, Render("echo $msg.data", msg))
}

func TestRender_DataRawWhenNotJSON(t *testing.T) {
	msg := newMsg("s", "plain text", nil)
	assert.Equal(t, "echo plain text", Render("echo $msg.data", msg))
}

func TestRender_HeaderValue(t *testing.T) {
	msg := newMsg("s", "x", map[string]string{"X-Trace": "abc123"})
	assert.Equal(t, "trace=abc123", Render("trace=$msg.headers.X-Trace", msg))
}

func TestRender_MissingHeaderEmpty(t *testing.T) {
	msg := newMsg("s", "x", nil)
	assert.Equal(t, "trace=", Render("trace=$msg.headers.X-Trace", msg))
}

func TestRender_JSONFieldString(t *testing.T) {
	msg := newMsg("s", `{"name": "alice", "age": 30}`, nil)
	assert.Equal(t, "hello alice", Render("hello $json.name", msg))
}

func TestRender_JSONFieldNonStringEncoded(t *testing.T) {
	msg := newMsg("s", `{"age": 30, "tags": ["a","b"]}`, nil)
	assert.Equal(t, "age=30", Render("age=$json.age", msg))
	assert.Equal(t, `tags=["a","b"]`, Render("tags=$json.tags", msg))
}

func TestRender_JSONFieldAbsentOrInvalid(t *testing.T) {
	msg := newMsg("s", `{"a": 1}`, nil)
	assert.Equal(t, "v=", Render("v=$json.missing", msg))

	notJSON := newMsg("s", "not json", nil)
	assert.Equal(t, "v=", Render("v=$json.a", notJSON))
}

func TestRender_UnknownTokensLiteral(t *testing.T) {
	msg := newMsg("s", "x", nil)
	assert.Equal(t, "$msg.unknown $other", Render("$msg.unknown $other", msg))
}

// Substituted content is not re-scanned for tokens
func TestRender_NonRecursive(t *testing.T) {
	msg := newMsg("lab.x", `$msg.subject`, nil)
	assert.Equal(t, "$msg.subject", Render("$msg.data", msg))
}

func TestRender_MultipleTokens(t *testing.T) {
	msg := newMsg("orders.created", `{"id": "o-1"}`, map[string]string{"X-Src": "web"})
	out := Render(`{"subject": "$msg.subject", "id": "$json.id", "src": "$msg.headers.X-Src"}`, msg)
	assert.Equal(t, `{"subject": "orders.created", "id": "o-1", "src": "web"}`, out)
}
