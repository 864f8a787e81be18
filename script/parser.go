package script

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/nats-io/nuid"

	"github.com/c360/natscript/action"
)

// Recognized metadata headers. Matched on the lowercased header name; these
// configure routing and behavior and are never forwarded on the wire.
const (
	metaServer    = "nats-server"
	metaTimeout   = "nats-timeout"
	metaStream    = "nats-stream"
	metaDurable   = "nats-durable"
	metaBatch     = "nats-batch"
	metaReplyMode = "nats-reply-mode"
	metaSubject   = "nats-subject"
)

var (
	commandRe  = regexp.MustCompile(`^\s*(?i:(SUBSCRIBE|REQUEST|PUBLISH|REPLY|JETSTREAM))\b\s*(.*?)\s*$`)
	headerRe   = regexp.MustCompile(`^([A-Za-z0-9-]+):\s*(.*?)\s*$`)
	randomIDRe = regexp.MustCompile(`(?i)randomId\(\)`)
)

// Parse turns a full document into the ordered sequence of actions its
// blocks describe. Blocks that do not resolve into a valid action are
// omitted; Parse never fails.
func Parse(text string) []action.Action {
	var actions []action.Action
	for _, seg := range Segments(text) {
		if seg.Kind != SegmentBlock {
			continue
		}
		if a, ok := parseBlock(seg); ok {
			actions = append(actions, a)
		}
	}
	return actions
}

func parseBlock(seg Segment) (action.Action, bool) {
	cmdIdx := -1
	for i, line := range seg.Lines {
		if strings.TrimSpace(line) == "" || isComment(line) || isCustomMeta(line) {
			continue
		}
		cmdIdx = i
		break
	}
	if cmdIdx < 0 {
		return action.Action{}, false
	}

	m := commandRe.FindStringSubmatch(seg.Lines[cmdIdx])
	if m == nil {
		return action.Action{}, false
	}
	keyword := strings.ToUpper(m[1])
	target := m[2]

	headers, bodyIdx := parseHeaderRun(seg.Lines, cmdIdx+1)
	meta, forwarded := partitionHeaders(headers)
	body := extractBody(seg.Lines, bodyIdx)

	server, subject, ok := resolveConnection(target, meta)
	if !ok {
		return action.Action{}, false
	}

	a := action.Action{
		Subject:    subject,
		Server:     server,
		SourceLine: seg.Start + cmdIdx,
		Headers:    forwarded,
	}
	if ms, err := strconv.Atoi(meta[metaTimeout]); err == nil {
		a.TimeoutMs = ms
	}

	switch keyword {
	case "SUBSCRIBE":
		a.Kind = action.KindSubscribe
		if a.Subject == "" {
			return action.Action{}, false
		}
	case "REQUEST":
		a.Kind = action.KindRequest
		if a.Subject == "" {
			return action.Action{}, false
		}
		a.Body = body
	case "PUBLISH":
		a.Kind = action.KindPublish
		if a.Subject == "" {
			return action.Action{}, false
		}
		a.Body = body
	case "REPLY":
		a.Kind = action.KindReply
		if a.Subject == "" {
			return action.Action{}, false
		}
		if replyPayloadMode(meta[metaReplyMode], body) {
			a.Body = body
		} else {
			a.Template = body
		}
	case "JETSTREAM":
		a.Kind = action.KindJetStreamPull
		a.Stream = meta[metaStream]
		a.Durable = meta[metaDurable]
		if a.Stream == "" || a.Durable == "" {
			return action.Action{}, false
		}
		a.BatchSize = 1
		if n, err := strconv.Atoi(meta[metaBatch]); err == nil && n > 1 {
			a.BatchSize = n
		}
	}

	return a, true
}

// parseHeaderRun consumes consecutive "Key: value" lines starting at from.
// Comment lines are skipped and do not terminate the run; a blank line or a
// line failing the key pattern ends it. The returned index is where the body
// begins, so a JSON body following the headers without a blank separator is
// recognized directly.
func parseHeaderRun(lines []string, from int) (map[string]string, int) {
	headers := make(map[string]string)
	i := from
	for ; i < len(lines); i++ {
		line := lines[i]
		if isComment(line) {
			continue
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		m := headerRe.FindStringSubmatch(line)
		if m == nil {
			break
		}
		headers[m[1]] = substituteRandomIDs(m[2])
	}
	return headers, i
}

func partitionHeaders(headers map[string]string) (meta map[string]string, forwarded map[string]string) {
	meta = make(map[string]string)
	for name, value := range headers {
		switch strings.ToLower(name) {
		case metaServer, metaTimeout, metaStream, metaDurable, metaBatch, metaReplyMode, metaSubject:
			meta[strings.ToLower(name)] = value
		default:
			if value != "" {
				if forwarded == nil {
					forwarded = make(map[string]string)
				}
				forwarded[name] = value
			}
		}
	}
	return meta, forwarded
}

func extractBody(lines []string, from int) string {
	if from >= len(lines) {
		return ""
	}
	body := lines[from:]
	for len(body) > 0 && strings.TrimSpace(body[0]) == "" {
		body = body[1:]
	}
	for len(body) > 0 && strings.TrimSpace(body[len(body)-1]) == "" {
		body = body[:len(body)-1]
	}
	if len(body) == 0 {
		return ""
	}
	return substituteRandomIDs(strings.Join(body, "\n"))
}

// resolveConnection determines the server identity and subject for a block.
// A target that parses as a broker URL carries both; otherwise the server
// must come from the NATS-Server metadata header and the subject from the
// bare target text or the NATS-Subject header.
func resolveConnection(target string, meta map[string]string) (server, subject string, ok bool) {
	if u := parseServerURL(target); u != nil {
		subject = strings.TrimPrefix(pathUnescaped(u), "/")
		if subject == "" {
			subject = meta[metaSubject]
		}
		return serverFromURL(u), subject, true
	}

	server = meta[metaServer]
	if server == "" {
		return "", "", false
	}
	subject = strings.TrimSpace(target)
	if subject == "" {
		subject = meta[metaSubject]
	}
	return server, subject, true
}

func parseServerURL(target string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return nil
	}
	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
		if u.Host == "" {
			return nil
		}
		return u
	}
	return nil
}

// serverFromURL rebuilds the connection identity from scheme, credentials,
// host and port, discarding path and query.
func serverFromURL(u *url.URL) string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	if u.User != nil {
		b.WriteString(u.User.String())
		b.WriteString("@")
	}
	b.WriteString(u.Host)
	return b.String()
}

func pathUnescaped(u *url.URL) string {
	if p, err := url.PathUnescape(u.EscapedPath()); err == nil {
		return p
	}
	return u.Path
}

// replyPayloadMode decides whether a Reply action responds with a static
// payload instead of rendering a template. An explicit NATS-Reply-Mode wins;
// otherwise a body opening like JSON or a quoted literal infers payload mode.
func replyPayloadMode(mode, body string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "template":
		return false
	case "payload":
		return true
	}
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return false
	}
	switch trimmed[0] {
	case '{', '[', '"', '\'':
		return true
	}
	return false
}

func isComment(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//")
}

func isCustomMeta(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), "@")
}

// substituteRandomIDs replaces each literal randomId() occurrence with a
// fresh quoted NUID, independently per occurrence.
func substituteRandomIDs(s string) string {
	return randomIDRe.ReplaceAllStringFunc(s, func(string) string {
		return `"` + nuid.Next() + `"`
	})
}
