package harness

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/termbase/internal/textio"
)

// Snapshot captures the trace and final knowledge base of a scenario
// run. The knowledge base is the Datalog export, one line per entry, so
// golden diffs read like source diffs.
type Snapshot struct {
	ScenarioName  string       `json:"scenario_name"`
	CommitID      string       `json:"commit_id,omitempty"`
	Trace         []TraceEvent `json:"trace"`
	KnowledgeBase []string     `json:"knowledge_base"`
}

// NewSnapshot builds the snapshot of result.
func NewSnapshot(name, commitID string, result *Result) (*Snapshot, error) {
	var buf bytes.Buffer
	if err := textio.Write(&buf, result.Terms); err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if buf.Len() == 0 {
		lines = []string{}
	}
	return &Snapshot{
		ScenarioName:  name,
		CommitID:      commitID,
		Trace:         result.Trace,
		KnowledgeBase: lines,
	}, nil
}

// Marshal renders the snapshot as indented JSON with a trailing newline.
func (s *Snapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	snap, err := NewSnapshot(scenario.Name, scenario.CommitID, result)
	if err != nil {
		return nil, err
	}
	if err := assertSnapshot(t, scenario.Name, snap); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snap, err := NewSnapshot(scenarioName, "", result)
	if err != nil {
		return err
	}
	return assertSnapshot(t, scenarioName, snap)
}

func assertSnapshot(t *testing.T, name string, snap *Snapshot) error {
	t.Helper()

	data, err := snap.Marshal()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
