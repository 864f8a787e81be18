// Package natsclient provides the managed connection layer under the session
// manager: server identity normalization, an injectable connector capability,
// and per-connection liveness tracking.
//
// A connection identity is the normalized (scheme, credentials, host, port)
// tuple of a server URL; path and query are discarded. All script operations
// addressed to the same identity share one physical connection.
//
// The Connector type decouples the session manager from the wire client so
// tests can substitute in-memory connections; Dial is the production
// implementation backed by nats.go.
package natsclient
