// Package driver implements the JSON-over-stdio protocol between
// OrderPilot and the external browser-driver process, and a client that
// exposes one driver session as a remote.Surface.
package driver

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType represents the type of message in the protocol.
type MessageType string

const (
	// MessageTypeReady indicates the driver is ready to receive commands
	MessageTypeReady MessageType = "READY"
	// MessageTypeCommand indicates a command from the controller
	MessageTypeCommand MessageType = "CMD"
	// MessageTypeEvent indicates a progress event from the driver
	MessageTypeEvent MessageType = "EVENT"
	// MessageTypeDone indicates successful completion
	MessageTypeDone MessageType = "DONE"
	// MessageTypeError indicates an error occurred
	MessageTypeError MessageType = "ERROR"
	// MessageTypeExit indicates the driver is exiting
	MessageTypeExit MessageType = "EXIT"
)

// CommandType represents the surface operation to perform.
type CommandType string

const (
	// CommandTypeNavigate loads a URL in the driven page
	CommandTypeNavigate CommandType = "page.navigate"
	// CommandTypeReload reloads the driven page
	CommandTypeReload CommandType = "page.reload"
	// CommandTypeClick clicks the first element matching a selector
	CommandTypeClick CommandType = "element.click"
	// CommandTypeFill select-alls and types into a matched input
	CommandTypeFill CommandType = "element.fill"
	// CommandTypeReadValue reads the current value of a matched input
	CommandTypeReadValue CommandType = "element.read_value"
	// CommandTypeQuery lists elements matching a selector
	CommandTypeQuery CommandType = "element.query"
	// CommandTypeHTML returns a rendered HTML fragment
	CommandTypeHTML CommandType = "page.html"
	// CommandTypeInvoke calls a method on a named client-side control
	CommandTypeInvoke CommandType = "control.invoke"
	// CommandTypeScreenshot captures a diagnostic image
	CommandTypeScreenshot CommandType = "page.screenshot"
)

// Message is the base structure for all protocol messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ReadyMessage is sent once when the driver has a session ready.
type ReadyMessage struct {
	Version   string            `json:"version"`
	Browser   string            `json:"browser"`
	PID       int               `json:"pid"`
	SessionID string            `json:"session_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// CommandMessage contains one surface operation to execute.
type CommandMessage struct {
	ID      string          `json:"id"`
	Type    CommandType     `json:"type"`
	Timeout int             `json:"timeout"` // seconds
	Params  json.RawMessage `json:"params,omitempty"`
}

// EventMessage carries driver-side progress or console output.
type EventMessage struct {
	CommandID string `json:"command_id"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// DoneMessage indicates successful command completion.
type DoneMessage struct {
	CommandID string          `json:"command_id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Duration  float64         `json:"duration"` // seconds
}

// ErrorMessage indicates a failed command.
type ErrorMessage struct {
	CommandID string `json:"command_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timeout   bool   `json:"timeout"`
}

// ExitMessage is sent before the driver terminates.
type ExitMessage struct {
	Reason   string `json:"reason"`
	ExitCode int    `json:"exit_code"`
}

// Command parameter and result structures.

// SelectorParams addresses elements by CSS selector.
type SelectorParams struct {
	Selector string `json:"selector"`
}

// NavigateParams names the URL to load.
type NavigateParams struct {
	URL string `json:"url"`
}

// FillParams types text over the full current content of an input.
type FillParams struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
}

// InvokeParams calls a client-side control method.
type InvokeParams struct {
	ControlID string   `json:"control_id"`
	Method    string   `json:"method"`
	Args      []string `json:"args,omitempty"`
}

// ValueResult carries a read string value.
type ValueResult struct {
	Value string `json:"value"`
}

// HTMLResult carries a rendered HTML fragment.
type HTMLResult struct {
	HTML string `json:"html"`
}

// QueryResult lists matched elements.
type QueryResult struct {
	Elements []ElementResult `json:"elements"`
}

// ElementResult describes one matched element.
type ElementResult struct {
	ID      string            `json:"id"`
	Tag     string            `json:"tag"`
	Visible bool              `json:"visible"`
	Text    string            `json:"text"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// ScreenshotResult carries a base64-encoded PNG.
type ScreenshotResult struct {
	PNGBase64 string `json:"png_base64"`
}

// Validate checks if the message type is valid.
func (mt MessageType) Validate() error {
	switch mt {
	case MessageTypeReady, MessageTypeCommand, MessageTypeEvent,
		MessageTypeDone, MessageTypeError, MessageTypeExit:
		return nil
	default:
		return fmt.Errorf("invalid message type: %s", mt)
	}
}

// Validate checks if the command type is valid.
func (ct CommandType) Validate() error {
	switch ct {
	case CommandTypeNavigate, CommandTypeReload, CommandTypeClick,
		CommandTypeFill, CommandTypeReadValue, CommandTypeQuery,
		CommandTypeHTML, CommandTypeInvoke, CommandTypeScreenshot:
		return nil
	default:
		return fmt.Errorf("invalid command type: %s", ct)
	}
}

// Validate checks if the command message is valid.
func (cmd *CommandMessage) Validate() error {
	if cmd.ID == "" {
		return fmt.Errorf("command ID is required")
	}
	if err := cmd.Type.Validate(); err != nil {
		return err
	}
	if cmd.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// ParseParams parses message data into a specific type.
func ParseParams(params json.RawMessage, target interface{}) error {
	if err := json.Unmarshal(params, target); err != nil {
		return fmt.Errorf("failed to parse params: %w", err)
	}
	return nil
}
