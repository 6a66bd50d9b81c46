// Package httpclient is the HTTP Client Facade: a connection-pooled
// transport exposing a single "issue one request, fully drained" call,
// with every transport failure classified into spec.TransportErrorKind.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/arrowcurve/loadctl/pkg/spec"
	"golang.org/x/net/http2"
)

// Options configures Client construction. MaxConnsPerHost should be at
// least the dispatcher's concurrency cap so the pool never starves
// concurrent attempts of a connection; zero means 100. Connections are
// reused only when KeepAlive is set: the zero Options disables HTTP
// keep-alives, so every request opens a new connection. The H2C transport
// ignores MaxConnsPerHost, Insecure and KeepAlive.
type Options struct {
	MaxConnsPerHost int
	Insecure        bool
	H2C             bool
	HTTP2           bool
	KeepAlive       bool
}

// Client is the shared, connection-pooled facade every concurrent
// execution of a run issues requests through. It is safe for concurrent
// use by both dispatchers.
type Client struct {
	http *http.Client
}

// New builds a Client whose transport pool is sized for opts.MaxConnsPerHost
// concurrent requests, matching the teacher's Attack() transport setup.
func New(opts Options) *Client {
	maxConns := opts.MaxConnsPerHost
	if maxConns < 1 {
		maxConns = 100
	}

	var roundTripper http.RoundTripper
	if opts.H2C {
		roundTripper = &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext(ctx, network, addr)
			},
		}
	} else {
		transport := &http.Transport{
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: opts.Insecure},
			MaxIdleConns:        maxConns,
			MaxIdleConnsPerHost: maxConns,
			MaxConnsPerHost:     maxConns,
			IdleConnTimeout:     90 * time.Second,
			DisableKeepAlives:   !opts.KeepAlive,
			ForceAttemptHTTP2:   opts.HTTP2,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		}
		if opts.HTTP2 {
			_ = http2.ConfigureTransport(transport) // best effort: fall back to HTTP/1.1
		}
		roundTripper = transport
	}

	return &Client{http: &http.Client{Transport: roundTripper}}
}

// Close releases idle pooled connections. Call it after the dispatcher
// that owns this Client has returned.
func (c *Client) Close() {
	switch tr := c.http.Transport.(type) {
	case *http.Transport:
		tr.CloseIdleConnections()
	case *http2.Transport:
		tr.CloseIdleConnections()
	}
}

// Issue performs one HTTP request with the given per-attempt timeout,
// fully draining the response body so validators see no latency surprise
// inspecting it. On success it returns a *spec.Response; on any transport
// failure it returns a classified spec.TransportErrorKind.
func (c *Client) Issue(ctx context.Context, method, target string, headers map[string]string, body []byte, timeout time.Duration) (*spec.Response, spec.TransportErrorKind, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, spec.ErrOther, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Classify(err), err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify(err), err
	}

	return &spec.Response{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Body:    data,
	}, "", nil
}

// Classify maps a transport-level error into the closed
// spec.TransportErrorKind enumeration. Order matters: timeouts are
// checked before the coarser connection-refused/reset/DNS checks because
// a *url.Error wrapping a context deadline also satisfies net.Error.
func Classify(err error) spec.TransportErrorKind {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return classifyDeadline(err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return classifyDeadline(err)
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return spec.ErrDNSFailure
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED:
			return spec.ErrConnectionRefused
		case syscall.ECONNRESET:
			return spec.ErrConnectionReset
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Err != nil {
			if errors.As(opErr.Err, &errno) {
				switch errno {
				case syscall.ECONNREFUSED:
					return spec.ErrConnectionRefused
				case syscall.ECONNRESET:
					return spec.ErrConnectionReset
				}
			}
		}
		if opErr.Op == "dial" {
			return spec.ErrConnectionRefused
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return classifyDeadline(err)
	}

	var recErr tls.RecordHeaderError
	if errors.As(err, &recErr) {
		return spec.ErrTLSError
	}

	return spec.ErrOther
}

// classifyDeadline distinguishes a connect-phase timeout from a
// read-phase one by inspecting the *net.OpError's Op, matching the
// connect/read split spec.md §4.2 requires.
func classifyDeadline(err error) spec.TransportErrorKind {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial":
			return spec.ErrConnectTimeout
		case "read":
			return spec.ErrReadTimeout
		}
	}
	return spec.ErrReadTimeout
}
