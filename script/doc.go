// Package script parses plain-text messaging scripts into action records.
//
// A script is a sequence of blocks separated by delimiter lines of three or
// more hash marks. Each block holds one command line (SUBSCRIBE, REQUEST,
// PUBLISH, REPLY or JETSTREAM), an optional run of "Key: value" headers, and
// an optional body. Headers whose name is one of the recognized NATS-*
// metadata headers configure routing and behavior; all other headers are
// forwarded on the wire.
//
// Parsing is tolerant by contract: a document under active editing is full of
// transient syntactic gaps, so a block that cannot be resolved into a valid
// action is silently omitted and parsing as a whole never fails.
package script
