// Package template renders reply templates against inbound broker messages.
package template

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/nats-io/nats.go"
)

// tokenRe matches all supported substitution tokens in one pass, so
// substituted content is never re-scanned (rendering is non-recursive).
var tokenRe = regexp.MustCompile(`\$msg\.headers\.([A-Za-z0-9-]+)|\$msg\.subject|\$msg\.data|\$json\.([A-Za-z0-9_-]+)`)

// Render substitutes message values into a reply template:
//
//	$msg.data           message body, normalized JSON text when decodable
//	$msg.subject        message subject
//	$msg.headers.<name> header value, empty when absent
//	$json.<field>       top-level field of the JSON-decoded body; strings
//	                    verbatim, other values JSON-encoded, empty when the
//	                    body is not JSON or the field is absent
//
// Unknown token patterns are left as literal text.
func Render(tmpl string, msg *nats.Msg) string {
	return tokenRe.ReplaceAllStringFunc(tmpl, func(token string) string {
		switch {
		case strings.HasPrefix(token, "$msg.headers."):
			return msg.Header.Get(strings.TrimPrefix(token, "$msg.headers."))
		case token == "$msg.subject":
			return msg.Subject
		case token == "$msg.data":
			return dataText(msg.Data)
		case strings.HasPrefix(token, "$json."):
			return jsonField(msg.Data, strings.TrimPrefix(token, "$json."))
		}
		return token
	})
}

func dataText(data []byte) string {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return string(data)
	}
	encoded, err := json.Marshal(decoded)
	if err != nil {
		return string(data)
	}
	return string(encoded)
}

func jsonField(data []byte, field string) string {
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		return ""
	}
	raw, ok := decoded[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
