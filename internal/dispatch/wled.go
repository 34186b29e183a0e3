package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// DefaultResetPreset is the WLED preset applied when the pipeline resets.
const DefaultResetPreset = 6

// DefaultPresets maps the lighting buckets to WLED presets 1 to 5.
func DefaultPresets() map[string]int {
	return map[string]int{
		"Bucket1": 1,
		"Bucket2": 2,
		"Bucket3": 3,
		"Bucket4": 4,
		"Bucket5": 5,
		"reset":   DefaultResetPreset,
	}
}

// WLEDSink applies a preset on one or more WLED controllers using the
// legacy HTTP API (GET /win&PL=<preset>).
type WLEDSink struct {
	Hosts   []string
	Presets map[string]int
	Client  *http.Client
}

// NewWLEDSink creates a sink for the given hosts. Hosts may be bare
// addresses or base URLs.
func NewWLEDSink(hosts []string, presets map[string]int) *WLEDSink {
	if presets == nil {
		presets = DefaultPresets()
	}
	return &WLEDSink{
		Hosts:   hosts,
		Presets: presets,
		Client:  &http.Client{},
	}
}

func (s *WLEDSink) Name() string {
	return "wled"
}

// Preset resolves a command to a preset id. Numeric commands are used as is.
func (s *WLEDSink) Preset(command string) (int, error) {
	if p, ok := s.Presets[command]; ok {
		return p, nil
	}
	if p, err := strconv.Atoi(command); err == nil && p > 0 {
		return p, nil
	}
	return 0, fmt.Errorf("no wled preset for command %q", command)
}

// PresetURL returns the request URL applying preset on host.
func PresetURL(host string, preset int) string {
	base := strings.TrimRight(host, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return fmt.Sprintf("%s/win&PL=%d", base, preset)
}

// Send applies the preset on every host. Every host is attempted; failures
// are joined.
func (s *WLEDSink) Send(ctx context.Context, job Job) error {
	if len(s.Hosts) == 0 {
		return errors.New("no wled hosts configured")
	}
	preset, err := s.Preset(job.Command)
	if err != nil {
		return err
	}

	var errs []error
	for _, host := range s.Hosts {
		if err := s.apply(ctx, host, preset); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", host, err))
		}
	}
	return errors.Join(errs...)
}

func (s *WLEDSink) apply(ctx context.Context, host string, preset int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, PresetURL(host, preset), nil)
	if err != nil {
		return err
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
