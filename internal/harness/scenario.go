package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is a declarative conformance case: a manifest, an invocation
// context, some initial instances, and a sequence of command steps with
// expected outcomes. Scenarios run against the real runtime with a
// deterministic clock and ID generator, so outcomes are reproducible.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Manifest is the path to the manifest source file, relative to the
	// scenario file location.
	Manifest string `yaml:"manifest"`

	// Context carries the tenant, user, and role every step runs under.
	Context ContextSpec `yaml:"context"`

	// Setup lists instances created before the flow runs. Setup is
	// assumed to succeed; a setup failure fails the scenario outright.
	Setup []SetupStep `yaml:"setup,omitempty"`

	// Steps is the main flow: command invocations with expectations.
	Steps []CommandStep `yaml:"steps"`
}

// ContextSpec mirrors runtime.Context in YAML form.
type ContextSpec struct {
	TenantID string `yaml:"tenantId"`
	UserID   string `yaml:"userId"`
	Role     string `yaml:"role"`
}

// SetupStep creates one instance during scenario setup.
type SetupStep struct {
	Entity string         `yaml:"entity"`
	Values map[string]any `yaml:"values,omitempty"`
}

// CommandStep invokes one command and checks the result against Expect.
type CommandStep struct {
	Entity   string `yaml:"entity"`
	Instance string `yaml:"instance"`
	Command  string `yaml:"command"`

	Args map[string]any `yaml:"args,omitempty"`

	// IdempotencyKey, when set, is passed through to the provider so a
	// scenario can exercise replay behavior.
	IdempotencyKey string `yaml:"idempotencyKey,omitempty"`

	Expect Expectation `yaml:"expect"`
}

// Expectation describes the outcome a step must produce. Zero-valued
// fields are not checked, except Success which is always checked.
type Expectation struct {
	Success  bool `yaml:"success"`
	Replayed bool `yaml:"replayed,omitempty"`

	// Policy names the policy expected to deny the command.
	Policy string `yaml:"policy,omitempty"`

	// GuardIndex is the 1-based index of the guard expected to fail.
	GuardIndex int `yaml:"guardIndex,omitempty"`

	// BlockedBy names the blocking constraint expected to fail.
	BlockedBy string `yaml:"blockedBy,omitempty"`

	// ErrorContains matches a substring of the step's evaluation error.
	ErrorContains string `yaml:"errorContains,omitempty"`

	// Events lists the expected emitted event names, in order.
	Events []string `yaml:"events,omitempty"`

	// Properties asserts final instance property values after the step.
	Properties map[string]any `yaml:"properties,omitempty"`
}

// LoadScenario reads and decodes one scenario file. The scenario's
// manifest path stays relative; the runner resolves it against the
// scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("harness: read scenario %s: %w", path, err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("harness: parse scenario %s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("harness: scenario %s has no name", path)
	}
	if sc.Manifest == "" {
		return nil, fmt.Errorf("harness: scenario %s names no manifest", path)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("harness: scenario %s has no steps", path)
	}
	return &sc, nil
}

// ScenarioFiles lists the scenario YAML files under dir, sorted by name.
func ScenarioFiles(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
