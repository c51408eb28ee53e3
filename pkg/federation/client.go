// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package federation probes the public federation surface of Matrix
// servers: well-known delegation, the federation version endpoint, and the
// server signing keys, which are verified against their own ed25519
// self-signatures.
//
// Probing needs no credentials. Transient failures are retried with
// backoff; a failed signature check is terminal for that server.
package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/retryafter"
)

// DefaultFederationPort is used when neither the server name nor its
// well-known delegation carries an explicit port.
const DefaultFederationPort = "8448"

const maxResponseSize = 1 << 20

// Client probes single servers. The zero value is not usable; construct
// with NewClient.
type Client struct {
	// HTTP performs the actual requests. Per-probe deadlines come from the
	// caller's context on top of this client's own timeout.
	HTTP *http.Client
	// Retries is the number of additional attempts after a transient
	// failure.
	Retries int
	// RetryBackoff is the base delay between attempts, doubled each retry.
	RetryBackoff time.Duration
	// Insecure switches to plain HTTP. Only for tests against local servers.
	Insecure bool

	log zerolog.Logger
}

// NewClient returns a probing client with production timeouts.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		HTTP:         &http.Client{Timeout: 30 * time.Second},
		Retries:      3,
		RetryBackoff: 250 * time.Millisecond,
		log:          log.With().Str("component", "federation").Logger(),
	}
}

// ProbeResult is the outcome of probing one server.
type ProbeResult struct {
	Server     string    `json:"server"`
	Reachable  bool      `json:"reachable"`
	Host       string    `json:"host,omitempty"`
	Software   string    `json:"software,omitempty"`
	Version    string    `json:"version,omitempty"`
	KeyIDs     []string  `json:"key_ids,omitempty"`
	ValidUntil time.Time `json:"valid_until,omitempty"`
	ProbedAt   time.Time `json:"probed_at"`
	Error      string    `json:"error,omitempty"`
}

type versionResponse struct {
	Server struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"server"`
}

type wellKnownResponse struct {
	Server string `json:"m.server"`
}

// Probe checks one server: resolve delegation, fetch the federation
// version, fetch and verify the signing keys. It never returns an error;
// per-server failures are recorded in the result so the crawl continues.
func (c *Client) Probe(ctx context.Context, server string) ProbeResult {
	result := ProbeResult{Server: server, ProbedAt: time.Now().UTC()}
	log := c.log.With().Str("server", server).Logger()

	result.Host = c.resolveHost(ctx, server)

	var version versionResponse
	if err := c.getJSON(ctx, result.Host, "/_matrix/federation/v1/version", &version); err != nil {
		log.Debug().Err(err).Msg("Federation version probe failed")
		result.Error = err.Error()
		return result
	}
	result.Software = version.Server.Name
	result.Version = version.Server.Version

	keyIDs, validUntil, err := c.fetchServerKeys(ctx, result.Host, server)
	if err != nil {
		// Key or signature trouble is terminal for this server: without
		// trustworthy key material the server cannot take part in
		// federation, so it counts as unreachable.
		log.Debug().Err(err).Msg("Server key verification failed")
		result.Error = err.Error()
		return result
	}
	result.KeyIDs = keyIDs
	result.ValidUntil = validUntil
	result.Reachable = true

	log.Debug().
		Str("host", result.Host).
		Str("software", result.Software).
		Msg("Server probed")
	return result
}

// resolveHost applies well-known delegation and default-port rules,
// falling back to the server name itself when the well-known lookup fails.
func (c *Client) resolveHost(ctx context.Context, server string) string {
	var wk wellKnownResponse
	err := c.getJSON(ctx, withDefaultPort(server, "443"), "/.well-known/matrix/server", &wk)
	if err == nil && wk.Server != "" {
		if delegated, ok := validDelegation(wk.Server); ok {
			return withDefaultPort(delegated, DefaultFederationPort)
		}
		c.log.Debug().Str("server", server).Str("delegated", wk.Server).Msg("Ignoring malformed well-known delegation")
	}
	return withDefaultPort(server, DefaultFederationPort)
}

func withDefaultPort(server, port string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(strings.Trim(server, "[]"), port)
}

func validDelegation(target string) (string, bool) {
	target = strings.TrimSpace(target)
	if target == "" || strings.ContainsAny(target, " /") {
		return "", false
	}
	return target, true
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

type statusError struct {
	code       int
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.code)
}

func (c *Client) scheme() string {
	if c.Insecure {
		return "http"
	}
	return "https"
}

func (c *Client) getJSON(ctx context.Context, host, path string, out any) error {
	body, err := c.getRaw(ctx, host, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", path, err)
	}
	return nil
}

// getRaw fetches one URL with transient-failure retries. 4xx responses
// other than 429 are permanent; network errors, 429 and 5xx are retried
// with capped exponential backoff, honoring Retry-After.
func (c *Client) getRaw(ctx context.Context, host, path string) ([]byte, error) {
	url := fmt.Sprintf("%s://%s%s", c.scheme(), host, path)
	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			delay := c.RetryBackoff << (attempt - 1)
			var status *statusError
			if errors.As(lastErr, &status) && status.retryAfter > delay {
				delay = status.retryAfter
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.getOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		var permanent *permanentError
		if errors.As(err, &permanent) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("giving up on %s after %d attempts: %w", url, c.Retries+1, lastErr)
}

func (c *Client) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &permanentError{err}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, err
		}
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &statusError{
			code:       resp.StatusCode,
			retryAfter: retryafter.Parse(resp.Header.Get("Retry-After"), c.RetryBackoff),
		}
	case resp.StatusCode >= 500:
		return nil, &statusError{code: resp.StatusCode}
	default:
		return nil, &permanentError{&statusError{code: resp.StatusCode}}
	}
}
