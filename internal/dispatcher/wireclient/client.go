// Package wireclient implements the outbound half of spec §6's dispatch
// wire protocol: POST .../dispatch with a form-encoded job, and HEAD
// .../dispatch for liveness. Grounded on the teacher's
// internal/clients/twilio.Client shape (Config, New, a small interface).
// Retrying a candidate belongs to internal/dispatcher/dispatcher.go's own
// candidate-iteration loop, not to this client.
package wireclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opencast/servicereg/internal/pkg/logger"
)

// Outcome is the dispatcher-relevant classification of a dispatch POST
// response, per spec §4.F.
type Outcome int

const (
	// OutcomeAccepted is HTTP 204: the candidate accepted the job.
	OutcomeAccepted Outcome = iota
	// OutcomeRefused is HTTP 503: candidate refuses, try next.
	OutcomeRefused
	// OutcomeNotReady is HTTP 405: candidate not yet reachable, try next.
	OutcomeNotReady
	// OutcomeRejected is HTTP 412: job permanently unacceptable.
	OutcomeRejected
	// OutcomeUnknown is any other response code or a network error; warn
	// and try next.
	OutcomeUnknown
)

func classify(statusCode int) Outcome {
	switch statusCode {
	case http.StatusNoContent:
		return OutcomeAccepted
	case http.StatusServiceUnavailable:
		return OutcomeRefused
	case http.StatusMethodNotAllowed:
		return OutcomeNotReady
	case http.StatusPreconditionFailed:
		return OutcomeRejected
	default:
		return OutcomeUnknown
	}
}

// Client is the dispatch wire protocol client.
type Client interface {
	// Dispatch POSTs the serialized job to {host}{path}/dispatch.
	Dispatch(ctx context.Context, host, path string, jobXML []byte, organization, user string) (Outcome, int, error)
	// Probe HEADs {host}{path}/dispatch for liveness (Component H).
	Probe(ctx context.Context, host, path string) (int, error)
}

type Config struct {
	Timeout time.Duration
}

type client struct {
	log  *logger.Logger
	http *http.Client
}

func New(baseLog *logger.Logger, cfg Config) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		log:  baseLog.With("component", "WireClient"),
		http: &http.Client{Timeout: timeout},
	}
}

func dispatchURL(host, path string) string {
	return strings.TrimRight(host, "/") + "/" + strings.TrimLeft(path, "/") + "/dispatch"
}

func (c *client) Dispatch(ctx context.Context, host, path string, jobXML []byte, organization, user string) (Outcome, int, error) {
	form := url.Values{}
	form.Set("job", string(jobXML))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dispatchURL(host, path), strings.NewReader(form.Encode()))
	if err != nil {
		return OutcomeUnknown, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Opencast-Organization", organization)
	req.Header.Set("X-Opencast-User", user)
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("dispatch POST failed", "host", host, "path", path, "error", err)
		return OutcomeUnknown, 0, err
	}
	defer resp.Body.Close()

	outcome := classify(resp.StatusCode)
	if outcome == OutcomeUnknown {
		c.log.Warn("unexpected dispatch response", "host", host, "path", path, "status", resp.StatusCode)
	}
	return outcome, resp.StatusCode, nil
}

func (c *client) Probe(ctx context.Context, host, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, dispatchURL(host, path), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
