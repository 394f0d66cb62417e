package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ipamtools/bamsync/internal/diff"
	"github.com/ipamtools/bamsync/internal/throttle"
)

// PolicyFileName is the project-local policy file inside .bamsync.
const PolicyFileName = "policy.yaml"

// Policy is the effective reconcile policy for a run: global config values
// overlaid by the nearest project policy file.
type Policy struct {
	UpdateMode      diff.UpdateMode
	SafeMode        bool
	OrphanDetection bool
	Concurrency     throttle.Config
}

// policyFile mirrors policy.yaml. Pointer fields distinguish "absent" from a
// zero value so the file only overrides what it actually sets.
type policyFile struct {
	UpdateMode      string `yaml:"update_mode"`
	SafeMode        *bool  `yaml:"safe_mode"`
	OrphanDetection *bool  `yaml:"orphan_detection"`
	Concurrency     struct {
		Initial        int    `yaml:"initial"`
		Min            int    `yaml:"min"`
		Max            int    `yaml:"max"`
		HealthyLatency string `yaml:"healthy_latency"`
		RaiseStreak    int    `yaml:"raise_streak"`
	} `yaml:"concurrency"`
}

// LoadPolicy resolves the run policy starting from dir ("" means the working
// directory). It returns the policy and the path of the policy file applied,
// or "" when only globals were used. A malformed policy file is an error, not
// a silent fallback.
func LoadPolicy(dir string) (*Policy, string, error) {
	p := globalPolicy()

	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve working directory: %w", err)
		}
		dir = cwd
	}
	path, ok := findPolicyFile(dir)
	if !ok {
		if err := p.validate(); err != nil {
			return nil, "", err
		}
		return p, "", nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the directory walk above
	if err != nil {
		return nil, "", fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, "", fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	if err := p.apply(&pf); err != nil {
		return nil, "", fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return nil, "", err
	}
	return p, path, nil
}

// globalPolicy builds a Policy from viper values alone.
func globalPolicy() *Policy {
	return &Policy{
		UpdateMode:      diff.UpdateMode(GetString("policy.update-mode")),
		SafeMode:        GetBool("policy.safe-mode"),
		OrphanDetection: GetBool("policy.orphan-detection"),
		Concurrency: throttle.Config{
			Initial:        GetInt("concurrency.initial"),
			Min:            GetInt("concurrency.min"),
			Max:            GetInt("concurrency.max"),
			HealthyLatency: GetDuration("concurrency.healthy-latency"),
			RaiseStreak:    GetInt("concurrency.raise-streak"),
		},
	}
}

func (p *Policy) apply(pf *policyFile) error {
	if pf.UpdateMode != "" {
		p.UpdateMode = diff.UpdateMode(pf.UpdateMode)
	}
	if pf.SafeMode != nil {
		p.SafeMode = *pf.SafeMode
	}
	if pf.OrphanDetection != nil {
		p.OrphanDetection = *pf.OrphanDetection
	}
	if pf.Concurrency.Initial > 0 {
		p.Concurrency.Initial = pf.Concurrency.Initial
	}
	if pf.Concurrency.Min > 0 {
		p.Concurrency.Min = pf.Concurrency.Min
	}
	if pf.Concurrency.Max > 0 {
		p.Concurrency.Max = pf.Concurrency.Max
	}
	if pf.Concurrency.RaiseStreak > 0 {
		p.Concurrency.RaiseStreak = pf.Concurrency.RaiseStreak
	}
	if pf.Concurrency.HealthyLatency != "" {
		d, err := time.ParseDuration(pf.Concurrency.HealthyLatency)
		if err != nil {
			return fmt.Errorf("concurrency.healthy_latency: %w", err)
		}
		p.Concurrency.HealthyLatency = d
	}
	return nil
}

func (p *Policy) validate() error {
	if p.UpdateMode == "" {
		p.UpdateMode = diff.ModeUpsert
	}
	if !p.UpdateMode.IsValid() {
		return fmt.Errorf("%w: %q", diff.ErrInvalidUpdateMode, p.UpdateMode)
	}
	if p.Concurrency.Min > 0 && p.Concurrency.Max > 0 && p.Concurrency.Min > p.Concurrency.Max {
		return fmt.Errorf("concurrency: min %d exceeds max %d", p.Concurrency.Min, p.Concurrency.Max)
	}
	return nil
}

// DiffOptions converts the policy into diff engine options.
func (p *Policy) DiffOptions() diff.Options {
	return diff.Options{
		UpdateMode:      p.UpdateMode,
		SafeMode:        p.SafeMode,
		OrphanDetection: p.OrphanDetection,
	}
}

// findPolicyFile walks up from dir looking for .bamsync/policy.yaml.
func findPolicyFile(dir string) (string, bool) {
	for ; ; dir = filepath.Dir(dir) {
		path := filepath.Join(dir, ProjectDirName, PolicyFileName)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
		if dir == filepath.Dir(dir) {
			return "", false
		}
	}
}
