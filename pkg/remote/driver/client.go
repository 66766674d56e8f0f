package driver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orderpilot/orderpilot/pkg/engine"
	"github.com/orderpilot/orderpilot/pkg/remote"
	"github.com/orderpilot/orderpilot/pkg/telemetry"
)

// Config contains driver client configuration.
type Config struct {
	// Path is the driver executable.
	Path string

	// Args are passed to the driver, typically the remote base URL and a
	// session-state file.
	Args []string

	// StartupTimeout bounds the wait for the READY handshake.
	StartupTimeout time.Duration

	// CommandTimeout is the default per-command deadline when the caller's
	// context carries none.
	CommandTimeout time.Duration
}

// Client drives one browser session through a driver subprocess. It
// implements remote.Surface; commands are serialized because the driven
// page exposes one logical edit cursor.
type Client struct {
	cfg     Config
	logger  *telemetry.Logger
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	encoder *Encoder
	decoder *Decoder
	ready   *ReadyMessage

	mu     sync.Mutex
	closed bool
}

// Start launches the driver process and waits for its READY handshake.
func Start(ctx context.Context, cfg Config, logger *telemetry.Logger) (*Client, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("driver path is required")
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = 30 * time.Second
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 30 * time.Second
	}

	c := &Client{
		cfg:    cfg,
		logger: logger.NewComponentLogger("driver"),
	}

	cmd := exec.CommandContext(ctx, cfg.Path, cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open driver stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open driver stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start driver: %w", err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.encoder = NewEncoder(stdin)
	c.decoder = NewDecoder(stdout)

	readyCtx, cancel := context.WithTimeout(ctx, cfg.StartupTimeout)
	defer cancel()

	readyCh := make(chan *ReadyMessage, 1)
	errCh := make(chan error, 1)
	go func() {
		msg, err := c.decoder.Decode()
		if err != nil {
			errCh <- err
			return
		}
		if msg.Type != MessageTypeReady {
			errCh <- fmt.Errorf("expected READY, got %s", msg.Type)
			return
		}
		var ready ReadyMessage
		if err := ParseParams(msg.Data, &ready); err != nil {
			errCh <- err
			return
		}
		readyCh <- &ready
	}()

	select {
	case <-readyCtx.Done():
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("timeout waiting for driver READY")
	case err := <-errCh:
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("failed to receive READY: %w", err)
	case ready := <-readyCh:
		c.ready = ready
		c.logger.WithField("browser", ready.Browser).
			WithField("session_id", ready.SessionID).
			Info("driver session ready")
		return c, nil
	}
}

// SessionID returns the driver-assigned session identifier.
func (c *Client) SessionID() string {
	if c.ready == nil {
		return ""
	}
	return c.ready.SessionID
}

// execute sends one command and waits for DONE or ERROR, draining EVENT
// messages in between.
func (c *Client) execute(ctx context.Context, ct CommandType, params interface{}, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return engine.NewNotFoundError("driver session is closed", nil).
			WithCode(engine.ErrCodeSessionLost)
	}

	timeout := c.cfg.CommandTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if timeout <= 0 {
		return engine.NewTimeoutError("deadline already expired", ctx.Err()).
			WithCode(engine.ErrCodeStepTimeout)
	}

	var paramBytes []byte
	if params != nil {
		var err error
		paramBytes, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
	}

	cmd := &CommandMessage{
		ID:      uuid.New().String(),
		Type:    ct,
		Timeout: int(timeout.Seconds()) + 1,
		Params:  paramBytes,
	}
	if err := c.encoder.EncodeCommand(cmd); err != nil {
		return fmt.Errorf("failed to send %s: %w", ct, err)
	}

	for {
		msg, err := c.decoder.Decode()
		if err != nil {
			return engine.NewTimeoutError(
				fmt.Sprintf("driver stream ended during %s", ct), err).
				WithCode(engine.ErrCodeSessionLost)
		}

		switch msg.Type {
		case MessageTypeEvent:
			var event EventMessage
			if err := ParseParams(msg.Data, &event); err == nil {
				c.logger.WithField("command_id", event.CommandID).Debug(event.Message)
			}

		case MessageTypeDone:
			var done DoneMessage
			if err := ParseParams(msg.Data, &done); err != nil {
				return fmt.Errorf("failed to parse done: %w", err)
			}
			if done.CommandID != cmd.ID {
				return fmt.Errorf("command ID mismatch: expected %s, got %s", cmd.ID, done.CommandID)
			}
			if result != nil && len(done.Result) > 0 {
				return ParseParams(done.Result, result)
			}
			return nil

		case MessageTypeError:
			var errMsg ErrorMessage
			if err := ParseParams(msg.Data, &errMsg); err != nil {
				return fmt.Errorf("failed to parse error: %w", err)
			}
			if errMsg.Timeout {
				return engine.NewTimeoutError(
					fmt.Sprintf("%s timed out in driver: %s", ct, errMsg.Message), nil).
					WithCode(engine.ErrCodeStepTimeout)
			}
			return engine.NewNotFoundError(
				fmt.Sprintf("%s failed: %s - %s", ct, errMsg.Code, errMsg.Message), nil)

		case MessageTypeExit:
			c.closed = true
			return engine.NewTimeoutError("driver exited mid-command", nil).
				WithCode(engine.ErrCodeSessionLost)

		default:
			return fmt.Errorf("unexpected message type %s", msg.Type)
		}
	}
}

// Navigate implements remote.Surface.
func (c *Client) Navigate(ctx context.Context, url string) error {
	return c.execute(ctx, CommandTypeNavigate, NavigateParams{URL: url}, nil)
}

// Reload implements remote.Surface.
func (c *Client) Reload(ctx context.Context) error {
	return c.execute(ctx, CommandTypeReload, nil, nil)
}

// Click implements remote.Surface.
func (c *Client) Click(ctx context.Context, selector string) error {
	return c.execute(ctx, CommandTypeClick, SelectorParams{Selector: selector}, nil)
}

// Fill implements remote.Surface.
func (c *Client) Fill(ctx context.Context, selector, text string) error {
	return c.execute(ctx, CommandTypeFill, FillParams{Selector: selector, Text: text}, nil)
}

// ReadValue implements remote.Surface.
func (c *Client) ReadValue(ctx context.Context, selector string) (string, error) {
	var res ValueResult
	if err := c.execute(ctx, CommandTypeReadValue, SelectorParams{Selector: selector}, &res); err != nil {
		return "", err
	}
	return res.Value, nil
}

// Query implements remote.Surface.
func (c *Client) Query(ctx context.Context, selector string) ([]remote.ElementInfo, error) {
	var res QueryResult
	if err := c.execute(ctx, CommandTypeQuery, SelectorParams{Selector: selector}, &res); err != nil {
		return nil, err
	}
	els := make([]remote.ElementInfo, len(res.Elements))
	for i, e := range res.Elements {
		els[i] = remote.ElementInfo{
			ID:      e.ID,
			Tag:     e.Tag,
			Visible: e.Visible,
			Text:    e.Text,
			Attrs:   e.Attrs,
		}
	}
	return els, nil
}

// HTML implements remote.Surface.
func (c *Client) HTML(ctx context.Context, selector string) (string, error) {
	var res HTMLResult
	if err := c.execute(ctx, CommandTypeHTML, SelectorParams{Selector: selector}, &res); err != nil {
		return "", err
	}
	return res.HTML, nil
}

// InvokeControl implements remote.Surface.
func (c *Client) InvokeControl(ctx context.Context, controlID, method string, args []string) error {
	return c.execute(ctx, CommandTypeInvoke, InvokeParams{
		ControlID: controlID,
		Method:    method,
		Args:      args,
	}, nil)
}

// Screenshot implements remote.Surface.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	var res ScreenshotResult
	if err := c.execute(ctx, CommandTypeScreenshot, nil, &res); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(res.PNGBase64)
}

// Close terminates the driver process.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.stdin.Close()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	return c.cmd.Wait()
}
