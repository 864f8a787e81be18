// Package natscript runs line-oriented NATS scripts: plain-text documents
// whose blocks describe subscriptions, requests, publishes, reply handlers
// and JetStream pulls against one or more brokers.
//
// # Architecture
//
// A script flows through three stages:
//
//   - script: splits a document into blocks and parses each block into an
//     action. Parsing is tolerant; blocks that do not resolve to an action
//     are skipped so one bad block never aborts a document.
//   - session: holds the connection pool and the subscription and
//     reply-handler registries, and executes actions against them.
//     Connections are shared per normalized server identity.
//   - logrecord: renders the outcome of every operation as human-readable
//     records and appends them to a caller-supplied sink.
//
// Templates in reply handlers interpolate fields of the incoming message
// ($msg.subject, $msg.data, $msg.headers.X, $json.field) via the template
// package.
//
// The cmd/natscript binary wires these together behind a flag-driven CLI
// with YAML/environment configuration from the config package.
package natscript
