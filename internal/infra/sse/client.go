// Package sse is a Server-Sent Events client with automatic reconnect.
package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// Frame is one dispatched event-stream message.
type Frame struct {
	Event string
	ID    string
	Data  []byte
}

// ErrControl is returned by OnFrame for frames that carry no payload, such
// as a server greeting. They do not count as progress on the connection.
var ErrControl = errors.New("control frame")

// Handlers receive stream lifecycle callbacks. Nil fields are skipped.
type Handlers struct {
	// OnOpen runs each time the server accepts a connection.
	OnOpen func()
	// OnFrame runs for every data frame in arrival order. Any error other
	// than ErrControl ends the connection, which is retried with backoff.
	OnFrame func(Frame) error
	// OnClose runs when an open connection ends, err is nil on clean EOF.
	OnClose func(err error)
}

// Client opens event streams and keeps them open.
type Client struct {
	HTTP      *http.Client
	BaseDelay time.Duration
	MaxDelay  time.Duration
	log       *slog.Logger
}

// NewClient creates a client. A nil httpClient uses one without timeout,
// since event streams are long lived.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		HTTP:      httpClient,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  30 * time.Second,
		log:       slog.Default().With("component", "sse"),
	}
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("event stream: http %d: %s", e.Code, e.Body)
}

// Subscribe streams url until ctx is cancelled, reconnecting with
// exponential backoff. The backoff resets only after a connection delivers
// a payload frame, so a server that accepts and then drops or rejects the
// stream is retried at a falling rate. It returns ctx.Err() on cancellation,
// or the error of a request the server rejected permanently (4xx other
// than 429).
func (c *Client) Subscribe(ctx context.Context, url string, h Handlers) error {
	b := c.backoff()
	for {
		resp, err := c.open(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var se *StatusError
			if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests {
				return err
			}
			c.log.Debug("stream connect failed", "url", url, "error", err)
			if err := c.wait(ctx, b); err != nil {
				return err
			}
			continue
		}

		if h.OnOpen != nil {
			h.OnOpen()
		}
		progressed := false
		readErr := read(resp.Body, func(f Frame) error {
			if h.OnFrame != nil {
				if err := h.OnFrame(f); err != nil {
					if errors.Is(err, ErrControl) {
						return nil
					}
					return err
				}
			}
			progressed = true
			return nil
		})
		resp.Body.Close()
		if ctx.Err() != nil {
			if h.OnClose != nil {
				h.OnClose(ctx.Err())
			}
			return ctx.Err()
		}
		if h.OnClose != nil {
			h.OnClose(readErr)
		}

		if progressed {
			b = c.backoff()
		}
		c.log.Debug("stream closed, reconnecting", "url", url, "progressed", progressed, "error", readErr)
		if err := c.wait(ctx, b); err != nil {
			return err
		}
	}
}

func (c *Client) backoff() retry.Backoff {
	b := retry.NewExponential(c.BaseDelay)
	b = retry.WithJitterPercent(10, b)
	return retry.WithCappedDuration(c.MaxDelay, b)
}

// wait sleeps for the next backoff step or until ctx is done.
func (c *Client) wait(ctx context.Context, b retry.Backoff) error {
	d, stop := b.Next()
	if stop {
		d = c.MaxDelay
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) open(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// read parses the event-stream format until EOF, a read error or an
// error from onFrame.
func read(body io.Reader, onFrame func(Frame) error) error {
	reader := bufio.NewReader(body)
	var (
		frame Frame
		data  []string
	)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(data) > 0 && onFrame != nil {
				frame.Data = []byte(strings.Join(data, "\n"))
				if err := onFrame(frame); err != nil {
					return err
				}
			}
			frame, data = Frame{}, nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			data = append(data, value)
		case "event":
			frame.Event = value
		case "id":
			frame.ID = value
		}
	}
}
