package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
	"github.com/smartenit-eu/smartenit-sub001/dtm/device"
	"github.com/smartenit-eu/smartenit-sub001/dtm/economic"
	"github.com/smartenit-eu/smartenit-sub001/dtm/inventory"
	"github.com/smartenit-eu/smartenit-sub001/dtm/trace"
)

// Step targets.
const (
	targetBoth = "both"
	targetEA   = "ea"
	targetDTM  = "dtm"
)

var validTargets = map[string]bool{"": true, targetBoth: true, targetEA: true, targetDTM: true}

// ReplayScript is a sequence of counter reports for one AS.
type ReplayScript struct {
	SourceAS uint32 `yaml:"source_as"`
	// Links names the links the step values refer to, in order. Defaults to
	// the first two inventory links.
	Links []dtm.LinkID `yaml:"links"`
	Steps []ReplayStep `yaml:"steps"`
}

// ReplayStep is one report. Target selects the receiver: "ea", "dtm" or,
// by default, both.
type ReplayStep struct {
	X      []int64 `yaml:"x"`
	Z      []int64 `yaml:"z"`
	Target string  `yaml:"target"`
}

// ReplaySummary is what replay prints.
type ReplaySummary struct {
	Trace          *trace.TraceSummary `json:"trace"`
	Deliveries     int                 `json:"deliveries"`
	WithReference  int                 `json:"deliveries_with_reference"`
	DeviceChanges  int                 `json:"device_changes"`
	FinalReference *dtm.ReferenceVector `json:"final_reference,omitempty"`
}

// LoadReplayScript reads a script with strict field checking.
func LoadReplayScript(path string) (*ReplayScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading replay script: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var s ReplayScript
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing replay script %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks the script against the links it will be replayed on.
func (s *ReplayScript) Validate() error {
	if s.SourceAS == 0 {
		return fmt.Errorf("source_as must be set")
	}
	if len(s.Links) < 2 {
		return fmt.Errorf("need at least 2 links, got %d", len(s.Links))
	}
	for i, step := range s.Steps {
		if len(step.X) != len(s.Links) {
			return fmt.Errorf("step %d: x has %d values for %d links", i, len(step.X), len(s.Links))
		}
		if step.Z != nil && len(step.Z) != len(s.Links) {
			return fmt.Errorf("step %d: z has %d values for %d links", i, len(step.Z), len(s.Links))
		}
		if !validTargets[step.Target] {
			return fmt.Errorf("step %d: unknown target %q; valid: both, ea, dtm", i, step.Target)
		}
		if step.Target == targetEA || step.Target == "" || step.Target == targetBoth {
			if len(s.Links) != 2 {
				return fmt.Errorf("step %d: economic analyzer reports need exactly 2 links", i)
			}
		}
	}
	return nil
}

func newReplayCmd() *cobra.Command {
	var reportsPath, traceLevel string
	c := &cobra.Command{
		Use:   "replay",
		Short: "Drive the control loop in-process from a report script and print the decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !trace.IsValidTraceLevel(traceLevel) {
				return fmt.Errorf("invalid --trace %q; valid: none, decisions", traceLevel)
			}
			inv, err := inventory.Load(inventoryPath)
			if err != nil {
				return err
			}
			script, err := LoadReplayScript(reportsPath)
			if err != nil {
				return err
			}
			summary, err := replay(cmd.Context(), inv, script, trace.TraceLevel(traceLevel))
			if err != nil {
				return err
			}
			return printReplaySummary(cmd.OutOrStdout(), summary)
		},
	}
	c.Flags().StringVar(&reportsPath, "reports", "reports.yaml", "Path to the report script")
	c.Flags().StringVar(&traceLevel, "trace", string(trace.TraceLevelDecisions), "Decision trace level (none, decisions)")
	return c
}

// countingSender records deliveries instead of sending them.
type countingSender struct {
	mu            sync.Mutex
	deliveries    int
	withReference int
}

func (s *countingSender) Send(_ context.Context, _ dtm.PeerAddress, _ dtm.CompensationVector, r *dtm.ReferenceVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries++
	if r != nil {
		s.withReference++
	}
	return nil
}

// replay runs script through a registry and traffic manager sharing one
// single-worker dispatcher, so decisions happen in script order.
func replay(ctx context.Context, inv *inventory.Inventory, script *ReplayScript, level trace.TraceLevel) (*ReplaySummary, error) {
	if len(script.Links) == 0 {
		ids := inv.LinkIDs()
		script.Links = ids[:2]
	}
	if err := script.Validate(); err != nil {
		return nil, err
	}

	control, err := inv.SystemControl()
	if err != nil {
		return nil, err
	}
	dryRun := device.NewDryRun()
	var configurator dtm.DeviceConfigurator
	if control.DelayTolerant {
		configurator = dryRun
	}

	sender := &countingSender{}
	decisions := trace.NewDecisionTrace(trace.TraceConfig{Level: level})
	dispatcher := dtm.NewDispatcher(1, len(script.Steps)+1, 0, nil)
	dispatcher.Start(ctx)
	defer func() { _ = dispatcher.Close() }()

	tm, err := dtm.NewTrafficManager(inv, sender, configurator, dispatcher, dtm.WithTrace(decisions))
	if err != nil {
		return nil, err
	}
	registry := economic.NewRegistry(inv, tm, nil)

	for i, step := range script.Steps {
		x := dtm.XVector{SourceAS: script.SourceAS, Values: localValues(script.Links, step.X)}
		if step.Target != targetDTM {
			var zs []dtm.ZVector
			if step.Z != nil {
				zs = []dtm.ZVector{{Values: localValues(script.Links, step.Z)}}
			}
			if err := registry.UpdateXZVectors(ctx, x, zs); err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
		}
		if step.Target != targetEA {
			if err := tm.UpdateXVector(x); err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
		}
	}
	if err := dispatcher.Close(); err != nil {
		return nil, err
	}

	summary := &ReplaySummary{
		Trace:         trace.Summarize(decisions),
		Deliveries:    sender.deliveries,
		WithReference: sender.withReference,
		DeviceChanges: len(dryRun.Changes()),
	}
	if pair, ok := tm.Pair(script.SourceAS); ok {
		summary.FinalReference = pair.R
	}
	return summary, nil
}

func localValues(links []dtm.LinkID, values []int64) []dtm.LocalValue {
	out := make([]dtm.LocalValue, len(links))
	for i, l := range links {
		out[i] = dtm.LocalValue{Link: l, Value: values[i]}
	}
	return out
}

func printReplaySummary(w io.Writer, s *ReplaySummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "=== Replay Summary ===\n%s\n", data)
	return err
}
