// Package control implements the MQTT control plane: JSON commands on a
// control topic, JSON responses on a response topic.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Command names.
const (
	CmdGetStatus = "get_status"
	CmdReset     = "reset"
	CmdResetSlot = "reset_slot"
	CmdEnable    = "enable"
	CmdDisable   = "disable"
	CmdSend      = "send"
	CmdStop      = "stop"
)

// Command represents a control plane command.
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a command response.
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// Client is the subset of mqtt.Client used by the handler.
type Client interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// Callbacks are invoked for each command. A nil callback makes the command
// report "not implemented".
type Callbacks struct {
	OnGetStatus func() map[string]interface{}
	OnReset     func() error
	OnResetSlot func(slot string) error
	OnEnable    func() error
	OnDisable   func() error
	OnSend      func(command string) error
	OnStop      func() error
}

// Options configures a Handler.
type Options struct {
	ControlTopic  string
	ResponseTopic string
	QoS           byte
	Logger        *slog.Logger
}

// Handler handles control plane commands.
type Handler struct {
	opts      Options
	client    Client
	callbacks Callbacks
	logger    *slog.Logger
	commands  chan Command

	stopOnce sync.Once
}

// NewHandler creates a control plane handler.
func NewHandler(client Client, opts Options, callbacks Callbacks) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		opts:      opts,
		client:    client,
		callbacks: callbacks,
		logger:    logger,
		commands:  make(chan Command, 10),
	}
}

// Start subscribes to the control topic and processes commands until ctx
// is done or Stop is called.
func (h *Handler) Start(ctx context.Context) error {
	h.logger.Info("subscribing to control plane", "topic", h.opts.ControlTopic, "qos", h.opts.QoS)

	token := h.client.Subscribe(h.opts.ControlTopic, h.opts.QoS, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	go h.processCommands(ctx)

	h.logger.Info("control plane handler started")
	return nil
}

// Stop unsubscribes and stops command processing.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		if h.client != nil && h.client.IsConnected() {
			h.client.Unsubscribe(h.opts.ControlTopic).WaitTimeout(2 * time.Second)
		}
		close(h.commands)
		h.logger.Info("control plane handler stopped")
	})
}

func (h *Handler) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		h.logger.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	h.logger.Info("control command received", "command", cmd.Command)

	defer func() {
		// Stop may close the channel while a late message arrives.
		if r := recover(); r != nil {
			h.logger.Warn("control handler stopped, dropping command", "command", cmd.Command)
		}
	}()

	select {
	case h.commands <- cmd:
	default:
		h.logger.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.sendResponse(h.handleCommand(cmd))
		}
	}
}

// handleCommand executes cmd and builds its response.
func (h *Handler) handleCommand(cmd Command) Response {
	resp := Response{CommandAck: cmd.Command}

	run := func(fn func() error, data map[string]interface{}) {
		if fn == nil {
			resp.Status = "error"
			resp.Error = cmd.Command + " not implemented"
			return
		}
		if err := fn(); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
			return
		}
		resp.Status = "success"
		resp.Data = data
	}

	switch cmd.Command {
	case CmdGetStatus:
		if h.callbacks.OnGetStatus == nil {
			resp.Status = "error"
			resp.Error = "get_status not implemented"
			break
		}
		resp.Status = "success"
		resp.Data = h.callbacks.OnGetStatus()

	case CmdReset:
		run(h.callbacks.OnReset, map[string]interface{}{"reset": "all"})

	case CmdResetSlot:
		slot, ok := cmd.Params["slot"].(string)
		if !ok || slot == "" {
			resp.Status = "error"
			resp.Error = "missing or invalid 'slot' parameter (expected string)"
			break
		}
		var fn func() error
		if h.callbacks.OnResetSlot != nil {
			fn = func() error { return h.callbacks.OnResetSlot(slot) }
		}
		run(fn, map[string]interface{}{"reset": slot})

	case CmdEnable:
		run(h.callbacks.OnEnable, map[string]interface{}{"enabled": true})

	case CmdDisable:
		run(h.callbacks.OnDisable, map[string]interface{}{"enabled": false})

	case CmdSend:
		command, ok := cmd.Params["command"].(string)
		if !ok || command == "" {
			resp.Status = "error"
			resp.Error = "missing or invalid 'command' parameter (expected string)"
			break
		}
		var fn func() error
		if h.callbacks.OnSend != nil {
			fn = func() error { return h.callbacks.OnSend(command) }
		}
		run(fn, map[string]interface{}{"command": command})

	case CmdStop:
		run(h.callbacks.OnStop, map[string]interface{}{"stopping": true})

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	if resp.Status == "error" {
		h.logger.Warn("control command failed", "command", cmd.Command, "error", resp.Error)
	}
	return resp
}

// sendResponse publishes resp to the response topic.
func (h *Handler) sendResponse(resp Response) {
	if h.opts.ResponseTopic == "" {
		return
	}
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("failed to marshal response", "error", err)
		return
	}

	token := h.client.Publish(h.opts.ResponseTopic, h.opts.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		h.logger.Warn("control response publish timeout", "command", resp.CommandAck)
		return
	}
	if err := token.Error(); err != nil {
		h.logger.Error("failed to publish control response", "error", err)
	}
}
