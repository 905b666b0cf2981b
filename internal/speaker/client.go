package speaker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default timeouts for device communication.
const (
	// DefaultConnectTimeout bounds dial plus write.
	DefaultConnectTimeout = 2 * time.Second

	// DefaultReplyTimeout bounds the optional reply read.
	DefaultReplyTimeout = 500 * time.Millisecond

	// maxReplyBody caps how much of an HTTP reply body is read for logging.
	maxReplyBody = 4096
)

// Framing selects how a rendered payload is put on the wire.
type Framing int

const (
	// FramingHTTP wraps the payload in an HTTP/1.1 POST with Connection: close.
	FramingHTTP Framing = iota
	// FramingRaw writes the payload bytes alone.
	FramingRaw
)

func (f Framing) String() string {
	switch f {
	case FramingHTTP:
		return "http"
	case FramingRaw:
		return "raw"
	default:
		return "Framing(" + strconv.Itoa(int(f)) + ")"
	}
}

// ParseFraming converts a config value ("http" or "raw") to a Framing.
func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "http":
		return FramingHTTP, nil
	case "raw":
		return FramingRaw, nil
	default:
		return 0, fmt.Errorf("%w: unknown framing %q", ErrInvalidConfig, s)
	}
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Dialer opens connections to the device. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Sender is the part of Client the controls depend on.
type Sender interface {
	Send(ctx context.Context, req Request) error
}

// Ensure Client implements Sender.
var _ Sender = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the network dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithTemplate replaces the embedded request template.
func WithTemplate(t *Template) Option {
	return func(c *Client) { c.tmpl = t }
}

// WithFraming selects the wire framing. Default: FramingHTTP.
func WithFraming(f Framing) Option {
	return func(c *Client) { c.framing = f }
}

// WithConnectTimeout sets the dial and write timeout. Default: 2s.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// WithReplyTimeout sets the reply wait. Must be shorter than the
// connect timeout. Default: 500ms.
func WithReplyTimeout(d time.Duration) Option {
	return func(c *Client) { c.replyTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRecorder sets the attempt recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// Client sends catalog actions to one speaker.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Every Send dials a fresh connection and closes it before returning.
type Client struct {
	endpoint       Endpoint
	dialer         Dialer
	tmpl           *Template
	framing        Framing
	connectTimeout time.Duration
	replyTimeout   time.Duration
	logger         Logger
	recorder       Recorder

	statsMu sync.Mutex
	stats   Stats
}

// NewClient creates a client for the given endpoint.
//
// Parameters:
//   - ep: Device address; a zero port means DefaultPort
//   - opts: Optional settings
//
// Returns:
//   - *Client: Ready to use, no connection is opened until Send
//   - error: ErrInvalidConfig for an empty host, bad port or timeouts
func NewClient(ep Endpoint, opts ...Option) (*Client, error) {
	if ep.Port == 0 {
		ep.Port = DefaultPort
	}

	c := &Client{
		endpoint:       ep,
		dialer:         &net.Dialer{},
		framing:        FramingHTTP,
		connectTimeout: DefaultConnectTimeout,
		replyTimeout:   DefaultReplyTimeout,
		logger:         noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.tmpl == nil {
		c.tmpl = DefaultTemplate()
	}

	switch {
	case ep.Host == "":
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	case ep.Port < 1 || ep.Port > 65535:
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, ep.Port)
	case c.connectTimeout <= 0:
		return nil, fmt.Errorf("%w: connect timeout must be positive", ErrInvalidConfig)
	case c.replyTimeout <= 0 || c.replyTimeout >= c.connectTimeout:
		return nil, fmt.Errorf("%w: reply timeout %v must be positive and shorter than connect timeout %v",
			ErrInvalidConfig, c.replyTimeout, c.connectTimeout)
	case c.framing != FramingHTTP && c.framing != FramingRaw:
		return nil, fmt.Errorf("%w: unknown framing %s", ErrInvalidConfig, c.framing)
	}

	return c, nil
}

// Endpoint returns the device address.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// Send validates, renders and delivers one request.
//
// A missing or late reply is a success. Validation errors are returned
// before any dial. Transport failures are logged, recorded and returned as
// *TransportError; they are not retried.
//
// Parameters:
//   - ctx: Cancels the attempt; the connect timeout applies on top
//   - req: Catalog action, zone and parameter
//
// Returns:
//   - error: ErrUnknownAction, ErrInvalidParameter or *TransportError
func (c *Client) Send(ctx context.Context, req Request) error {
	action, ok := LookupAction(req.Action)
	if !ok {
		return fmt.Errorf("%w: %q (known: %s)", ErrUnknownAction, req.Action, strings.Join(Actions(), ", "))
	}

	para, err := action.para(req.Param)
	if err != nil {
		return err
	}

	zone := req.zone()
	body, err := c.tmpl.Render(action.Name, zone, para)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	attempt := Attempt{
		RequestID: uuid.NewString(),
		Action:    action.Name,
		Zone:      zone,
		Para:      para,
		At:        time.Now(),
	}

	payload, err := c.frame(body)
	if err != nil {
		return err
	}

	outcome, status, err := c.deliver(ctx, payload)
	attempt.Outcome = outcome
	attempt.Status = status
	attempt.Duration = time.Since(attempt.At)
	attempt.Err = err

	c.finish(attempt)

	if err != nil {
		return &TransportError{Kind: outcome, RequestID: attempt.RequestID, Err: err}
	}
	return nil
}

// Stats returns a snapshot of the client counters.
func (c *Client) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// frame applies the configured wire framing to a rendered body.
func (c *Client) frame(body []byte) ([]byte, error) {
	if c.framing == FramingRaw {
		return body, nil
	}

	req, err := http.NewRequest(http.MethodPost, "http://"+c.endpoint.Address()+"/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Close = true

	var buf bytes.Buffer
	if err := req.Write(&buf); err != nil {
		return nil, fmt.Errorf("framing request: %w", err)
	}
	return buf.Bytes(), nil
}

// deliver dials, writes and waits briefly for a reply.
func (c *Client) deliver(ctx context.Context, payload []byte) (Outcome, int, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	conn, err := c.dialer.DialContext(dialCtx, "tcp", c.endpoint.Address())
	if err != nil {
		return classify(err), 0, fmt.Errorf("connecting to %s: %w", c.endpoint.Address(), err)
	}
	defer conn.Close() //nolint:errcheck // best-effort close

	if deadline, ok := dialCtx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return classify(err), 0, fmt.Errorf("setting write deadline: %w", err)
		}
	}

	if _, err := conn.Write(payload); err != nil {
		return classify(err), 0, fmt.Errorf("writing request: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.replyTimeout)); err != nil {
		// Request is already on the wire.
		return OutcomeNoReply, 0, nil //nolint:nilerr // reply is optional
	}

	return c.readReply(conn)
}

// readReply waits for an optional reply. Any read failure means the device
// did not answer, which is not an error.
func (c *Client) readReply(conn net.Conn) (Outcome, int, error) {
	if c.framing == FramingRaw {
		buf := make([]byte, 512)
		n, err := conn.Read(buf)
		if n > 0 {
			return OutcomeDelivered, 0, nil
		}
		c.logger.Debug("no reply from speaker", "address", c.endpoint.Address(), "reason", err)
		return OutcomeNoReply, 0, nil
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		c.logger.Debug("no reply from speaker", "address", c.endpoint.Address(), "reason", err)
		return OutcomeNoReply, 0, nil
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxReplyBody)) //nolint:errcheck // body is informational
		c.logger.Warn("speaker rejected request",
			"address", c.endpoint.Address(),
			"status", resp.StatusCode,
			"body", strings.TrimSpace(string(text)),
		)
	}
	return OutcomeDelivered, resp.StatusCode, nil
}

// finish logs, counts and records an attempt.
func (c *Client) finish(a Attempt) {
	c.statsMu.Lock()
	c.stats.Attempts++
	switch a.Outcome {
	case OutcomeDelivered:
		c.stats.Delivered++
	case OutcomeNoReply:
		c.stats.NoReply++
	default:
		c.stats.Failures++
	}
	c.stats.LastOutcome = a.Outcome
	c.stats.LastAttempt = a.At
	c.statsMu.Unlock()

	if a.Err != nil {
		c.logger.Error("speaker command failed",
			"request_id", a.RequestID,
			"action", a.Action,
			"para", a.Para,
			"outcome", string(a.Outcome),
			"duration", a.Duration,
			"error", a.Err,
		)
	} else {
		c.logger.Debug("speaker command sent",
			"request_id", a.RequestID,
			"action", a.Action,
			"para", a.Para,
			"outcome", string(a.Outcome),
			"duration", a.Duration,
		)
	}

	if c.recorder != nil {
		c.recorder.RecordAttempt(a)
	}
}
