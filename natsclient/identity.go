package natsclient

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/c360/natscript/errors"
)

// supported broker URL schemes
var serverSchemes = map[string]bool{
	"nats": true,
	"tls":  true,
	"ws":   true,
	"wss":  true,
}

// ServerOptions carries everything the connector needs to establish a
// physical connection.
type ServerOptions struct {
	Servers []string
	User    string
	Pass    string
}

// Identity normalizes a server URL to its connection identity:
// scheme + credentials + host + port, with path and query discarded.
// A URL without a recognized scheme is treated as a bare nats:// address.
func Identity(rawURL string) (string, error) {
	u, err := parseServer(rawURL)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	if u.User != nil {
		b.WriteString(u.User.String())
		b.WriteString("@")
	}
	b.WriteString(u.Host)
	return b.String(), nil
}

// ParseServer resolves a raw server URL into its identity and the connector
// options to dial it.
func ParseServer(rawURL string) (string, ServerOptions, error) {
	u, err := parseServer(rawURL)
	if err != nil {
		return "", ServerOptions{}, err
	}

	opts := ServerOptions{}
	if u.User != nil {
		opts.User = u.User.Username()
		opts.Pass, _ = u.User.Password()
	}

	// The dial address keeps the scheme and host but not the credentials;
	// those travel separately so the client can authenticate properly.
	opts.Servers = []string{u.Scheme + "://" + u.Host}

	identity, err := Identity(rawURL)
	if err != nil {
		return "", ServerOptions{}, err
	}
	return identity, opts, nil
}

func parseServer(rawURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidServerURL, "natsclient", "parseServer", "parse empty URL")
	}

	// An explicit unsupported scheme is a mistake, not a bare host.
	if i := strings.Index(trimmed, "://"); i >= 0 && !serverSchemes[trimmed[:i]] {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unsupported scheme in %s", errors.ErrInvalidServerURL, rawURL),
			"natsclient", "parseServer", "validate scheme")
	}

	u, err := url.Parse(trimmed)
	if err != nil || !serverSchemes[u.Scheme] {
		// A bare host like "localhost:4222" parses with the host in the
		// scheme position; retry as a nats:// address.
		u, err = url.Parse("nats://" + trimmed)
		if err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %s", errors.ErrInvalidServerURL, rawURL),
				"natsclient", "parseServer", "parse server URL")
		}
	}
	if !serverSchemes[u.Scheme] || u.Host == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidServerURL, rawURL),
			"natsclient", "parseServer", "validate server URL")
	}
	return u, nil
}
