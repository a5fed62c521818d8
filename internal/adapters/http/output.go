package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
)

// maxErrorBody bounds how much of a failed response body ends up in the error.
const maxErrorBody = 512

// NetworkOutput implements ports.TransmissionOutput by POSTing each
// transmission to the ingest endpoint.
type NetworkOutput struct {
	client   ports.HTTPClient
	endpoint string
	timeout  time.Duration
	headers  map[string]string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	stopped  bool
	inflight sync.WaitGroup
}

// NewNetworkOutput creates an output that posts to endpoint.
// timeout bounds each request; zero leaves it to the client.
// headers are added to every request (e.g. Authorization). They cannot
// override Content-Type or Content-Encoding.
func NewNetworkOutput(client ports.HTTPClient, endpoint string, timeout time.Duration, headers map[string]string) *NetworkOutput {
	ctx, cancel := context.WithCancel(context.Background())
	return &NetworkOutput{
		client:   client,
		endpoint: endpoint,
		timeout:  timeout,
		headers:  headers,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Endpoint returns the URL transmissions are posted to.
func (o *NetworkOutput) Endpoint() string {
	return o.endpoint
}

// Send performs a synchronous POST. It never panics outward; transport and
// protocol errors come back as a failed result.
func (o *NetworkOutput) Send(t *domain.Transmission) domain.SendResult {
	o.mu.RLock()
	if o.stopped {
		o.mu.RUnlock()
		return domain.Rejected(domain.ErrOutputStopped)
	}
	o.inflight.Add(1)
	o.mu.RUnlock()
	defer o.inflight.Done()

	ctx := o.ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(t.Content()))
	if err != nil {
		return domain.Failed(fmt.Errorf("create request: %w", err), 0, false, 0)
	}
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}
	// The body is encoded as the transmission says, whatever was configured.
	req.Header.Set("Content-Type", t.ContentType())
	req.Header.Set("Content-Encoding", t.ContentEncoding())

	resp, err := o.client.Do(req)
	if err != nil {
		return domain.Failed(fmt.Errorf("send request: %w", err), 0, true, time.Since(start))
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.Delivered(resp.StatusCode, time.Since(start))
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return domain.Failed(
		fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody)),
		resp.StatusCode,
		Retryable(resp.StatusCode),
		time.Since(start),
	)
}

// Stop rejects new sends and waits up to timeout for in-flight requests.
// Requests still running at the deadline are canceled.
func (o *NetworkOutput) Stop(timeout time.Duration) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-timer.C:
		o.cancel()
		return domain.ErrShutdownTimeout
	}
}

// Retryable reports whether a response status is worth another attempt.
// Request timeouts, throttling and server errors are; other client errors
// will fail the same way again.
func Retryable(statusCode int) bool {
	switch {
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusTooManyRequests:
		return true
	case statusCode >= 500:
		return true
	default:
		return false
	}
}
