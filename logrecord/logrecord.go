// Package logrecord assembles structured, human-readable records of session
// activity and hands them to an externally supplied sink.
package logrecord

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Sink consumes rendered record lines. Implementations are typically editor
// output channels, log files or stdout.
type Sink interface {
	AppendLine(text string)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(text string)

// AppendLine implements Sink
func (f SinkFunc) AppendLine(text string) { f(text) }

// Item is one titled entry within a record, such as an outgoing request or
// the response it produced.
type Item struct {
	Title   string
	Body    string
	Headers nats.Header
}

// Record is one structured log entry: timestamp, connection identity,
// routing information and a list of titled items.
type Record struct {
	Time    time.Time
	Server  string
	Subject string
	Stream  string
	Durable string
	Items   []Item
}

// New creates a record for a subject-addressed operation, stamped with the
// current time.
func New(server, subject string) *Record {
	return &Record{Time: time.Now(), Server: server, Subject: subject}
}

// NewStream creates a record for a stream/durable-addressed operation.
func NewStream(server, stream, durable string) *Record {
	return &Record{Time: time.Now(), Server: server, Stream: stream, Durable: durable}
}

// AddItem appends a titled item and returns the record for chaining.
func (r *Record) AddItem(title, body string, headers nats.Header) *Record {
	r.Items = append(r.Items, Item{Title: title, Body: body, Headers: headers})
	return r
}

// Format renders the record as multi-line text.
func (r *Record) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "--- %s  %s", r.Time.Format(time.RFC3339), r.Server)
	if r.Subject != "" {
		fmt.Fprintf(&b, "  %s", r.Subject)
	}
	if r.Stream != "" {
		fmt.Fprintf(&b, "  stream=%s durable=%s", r.Stream, r.Durable)
	}
	b.WriteString("\n")

	for _, item := range r.Items {
		fmt.Fprintf(&b, "%s:\n", item.Title)
		writeHeaders(&b, item.Headers)
		if item.Body != "" {
			for _, line := range strings.Split(item.Body, "\n") {
				fmt.Fprintf(&b, "  %s\n", line)
			}
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// AppendTo writes the formatted record to the sink, one sink call per line.
func (r *Record) AppendTo(sink Sink) {
	for _, line := range strings.Split(r.Format(), "\n") {
		sink.AppendLine(line)
	}
}

func writeHeaders(b *strings.Builder, headers nats.Header) {
	if len(headers) == 0 {
		return
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range headers[name] {
			fmt.Fprintf(b, "  %s: %s\n", name, value)
		}
	}
}
