// Package dispatch decides when a stabilized skin tone label becomes an
// outbound command and delivers commands to lighting sinks.
package dispatch

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Mode selects when a finalized label is turned into a command.
type Mode string

const (
	// ModeFireOnce dispatches the first finalized label of a slot and ignores
	// the rest until the slot is reset.
	ModeFireOnce Mode = "fire_once"
	// ModeContinuous dispatches whenever the mapped command changes.
	ModeContinuous Mode = "continuous"
)

// DefaultFallbackCommand is sent for labels missing from the command table.
const DefaultFallbackCommand = "Bucket3"

// DefaultCommands maps the ten Monk scale labels onto five lighting buckets.
func DefaultCommands() map[string]string {
	m := make(map[string]string, 10)
	for i := 1; i <= 10; i++ {
		m[fmt.Sprintf("monk_%d", i)] = fmt.Sprintf("Bucket%d", (i+1)/2)
	}
	return m
}

// PolicyConfig configures a Policy.
type PolicyConfig struct {
	Mode     Mode
	Commands map[string]string
	// DefaultCommand is used for labels not in Commands. Empty disables the
	// fallback and such labels produce no command.
	DefaultCommand string
}

// DefaultPolicyConfig returns fire-once with the Monk bucket table.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Mode:           ModeFireOnce,
		Commands:       DefaultCommands(),
		DefaultCommand: DefaultFallbackCommand,
	}
}

// Validate checks the policy configuration.
func (c PolicyConfig) Validate() error {
	switch c.Mode {
	case ModeFireOnce, ModeContinuous:
	default:
		return fmt.Errorf("unknown dispatch mode %q", c.Mode)
	}
	for label, cmd := range c.Commands {
		if cmd == "" {
			return fmt.Errorf("empty command for label %q", label)
		}
	}
	return nil
}

// Policy turns finalized labels into commands, tracking per-slot history.
// It is safe for concurrent use.
type Policy struct {
	cfg    PolicyConfig
	logger *slog.Logger

	mu    sync.Mutex
	fired map[string]bool
	last  map[string]string
}

// NewPolicy creates a Policy. A nil logger uses slog.Default().
func NewPolicy(cfg PolicyConfig, logger *slog.Logger) (*Policy, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeFireOnce
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	commands := make(map[string]string, len(cfg.Commands))
	for k, v := range cfg.Commands {
		commands[k] = v
	}
	cfg.Commands = commands

	return &Policy{
		cfg:    cfg,
		logger: logger,
		fired:  make(map[string]bool),
		last:   make(map[string]string),
	}, nil
}

// Mode returns the configured mode.
func (p *Policy) Mode() Mode {
	return p.cfg.Mode
}

// Command maps a label to its command, falling back to DefaultCommand.
func (p *Policy) Command(label string) (string, bool) {
	if cmd, ok := p.cfg.Commands[label]; ok {
		return cmd, true
	}
	if p.cfg.DefaultCommand != "" {
		return p.cfg.DefaultCommand, true
	}
	return "", false
}

// Commands returns the label to command table sorted by label.
func (p *Policy) Commands() []Mapping {
	out := make([]Mapping, 0, len(p.cfg.Commands))
	for label, cmd := range p.cfg.Commands {
		out = append(out, Mapping{Label: label, Command: cmd})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Label < out[j].Label
	})
	return out
}

// Mapping is one row of the command table.
type Mapping struct {
	Label   string `json:"label"`
	Command string `json:"command"`
}

// Decide is called with each finalized label of a slot and returns the
// command to dispatch, if any.
func (p *Policy) Decide(slot, label string) (string, bool) {
	cmd, ok := p.Command(label)
	if !ok {
		p.logger.Warn("no command for label", "slot", slot, "label", label)
		return "", false
	}
	if _, mapped := p.cfg.Commands[label]; !mapped {
		p.logger.Debug("label not in command table, using fallback", "label", label, "command", cmd)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.cfg.Mode {
	case ModeContinuous:
		if prev, seen := p.last[slot]; seen && prev == cmd {
			return "", false
		}
	default:
		if p.fired[slot] {
			return "", false
		}
		p.fired[slot] = true
	}
	p.last[slot] = cmd
	return cmd, true
}

// Last returns the last command dispatched for a slot.
func (p *Policy) Last(slot string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cmd, ok := p.last[slot]
	return cmd, ok
}

// Retract undoes a Decide whose command was never delivered, so the next
// finalized label of the slot can fire again.
func (p *Policy) Retract(slot, command string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last[slot] != command {
		return
	}
	delete(p.fired, slot)
	delete(p.last, slot)
}

// Reset forgets the history of one slot.
func (p *Policy) Reset(slot string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.fired, slot)
	delete(p.last, slot)
}

// ResetAll forgets the history of every slot.
func (p *Policy) ResetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fired = make(map[string]bool)
	p.last = make(map[string]string)
}
