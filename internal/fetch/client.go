// Package fetch is the outbound HTTP layer shared by the gallery and dataset
// clients: rate limiting, a circuit breaker per upstream and status checks.
package fetch

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"ehcalibre/internal/logging"
	"ehcalibre/internal/metrics"
)

const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.Code)
}

// Client executes requests through an optional limiter and a circuit breaker.
type Client struct {
	Name      string
	HTTP      *http.Client
	Limiter   *rate.Limiter
	UserAgent string

	cb *gobreaker.CircuitBreaker[[]byte]
}

func New(name string, hc *http.Client, limiter *rate.Limiter) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Client{Name: name, HTTP: hc, Limiter: limiter, UserAgent: DefaultUserAgent, cb: cb}
}

// client errors say nothing about upstream health
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code < 500 && se.Code != http.StatusTooManyRequests
	}
	return false
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Do sends req and returns the full body of a 2xx response.
func (c *Client) Do(req *http.Request) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if req.Header.Get("User-Agent") == "" && c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	body, err := c.cb.Execute(func() ([]byte, error) {
		resp, err := c.HTTP.Do(req)
		if err != nil {
			metrics.UpstreamRequests.WithLabelValues(c.Name, "error").Inc()
			return nil, err
		}
		defer resp.Body.Close()
		metrics.UpstreamRequests.WithLabelValues(c.Name, strconv.Itoa(resp.StatusCode)).Inc()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet := b
			if len(snippet) > 256 {
				snippet = snippet[:256]
			}
			return nil, &StatusError{Code: resp.StatusCode, URL: req.URL.String(), Body: string(snippet)}
		}
		return b, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	return body, nil
}

// State reports the breaker state, for health output.
func (c *Client) State() string {
	return c.cb.State().String()
}
