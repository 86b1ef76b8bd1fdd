// Package http provides the outbound HTTP client used for worker calls,
// with an optional circuit breaker in front of the wire.
package http

import (
	"fmt"
	"net/http"
	"time"

	"Minerva_2.0/pkg/circuitbreaker"
)

// Client is a custom HTTP client that wraps the standard http.Client
// and provides built-in support for circuit breaking.
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
}

// NewClient creates a Client with the given request timeout. breaker may be
// nil, in which case requests go straight to the wire.
func NewClient(timeout time.Duration, breaker circuitbreaker.CircuitBreaker) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
	}
}

// Do executes an HTTP request with circuit breaker protection.
// It considers status codes >= 500 as failures.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response

	_, breakerErr := c.breaker.Execute(func() (interface{}, error) {
		var err error
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		// Treat server-side errors as failures for the circuit breaker.
		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return nil, fmt.Errorf("server error: received status code %d", resp.StatusCode)
		}
		return resp, nil
	})
	if breakerErr != nil {
		return nil, breakerErr
	}

	return resp, nil
}
