// Package config loads the gate configuration from YAML and the policy
// rule bundles from JSON files, with live reload of the bundle
// directory.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codegate-dev/codegate/pkg/stagepolicy"
)

// ServiceConfig holds the HTTP service settings.
type ServiceConfig struct {
	Addr          string  `yaml:"addr"`
	AuthToken     string  `yaml:"auth_token,omitempty"`
	JWTSecret     string  `yaml:"jwt_secret,omitempty"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst"`
}

// GateConfig is the project-level configuration for gate runs.
type GateConfig struct {
	HardMode          stagepolicy.HardMode `yaml:"hard_mode"`
	ProtectedBranches []string             `yaml:"protected_branches"`
	PromoteToError    []string             `yaml:"promote_to_error"`
	MutedRules        []string             `yaml:"muted_rules"`
	Families          map[string]string    `yaml:"families"`
	MaxEvidenceAge    map[string]int       `yaml:"max_evidence_age_seconds"`
	EvidencePath      string               `yaml:"evidence_path"`
	ReceiptPath       string               `yaml:"receipt_path"`
	ReceiptDB         string               `yaml:"receipt_db"`
	BundleDir         string               `yaml:"bundle_dir"`
	SDDBypass         bool                 `yaml:"sdd_bypass"`
	LogLevel          string               `yaml:"log_level"`
	Service           ServiceConfig        `yaml:"service"`
}

// Default returns the configuration used when no file is present.
func Default() GateConfig {
	return GateConfig{
		ProtectedBranches: stagepolicy.DefaultProtectedBranches(),
		Families:          map[string]string{},
		EvidencePath:      ".codegate/evidence.json",
		ReceiptPath:       ".codegate/receipt.json",
		ReceiptDB:         ".codegate/receipts.db",
		BundleDir:         ".codegate/bundles",
		LogLevel:          "INFO",
		Service: ServiceConfig{
			Addr:          ":8080",
			RatePerSecond: 10,
			RateBurst:     20,
		},
	}
}

// Load reads the YAML config at path, layered over the defaults. A
// missing file yields the defaults; a malformed file is an error.
func Load(path string) (GateConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		applyEnv(&cfg)
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(cfg.ProtectedBranches) == 0 {
		cfg.ProtectedBranches = stagepolicy.DefaultProtectedBranches()
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *GateConfig) {
	if addr := os.Getenv("CODEGATE_ADDR"); addr != "" {
		cfg.Service.Addr = addr
	}
	if level := os.Getenv("CODEGATE_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if os.Getenv("CODEGATE_SDD_BYPASS") == "1" {
		cfg.SDDBypass = true
	}
}

// EvidenceAges converts the configured per-stage ages into durations,
// falling back to the stage defaults for stages left unset.
func (c GateConfig) EvidenceAges() map[stagepolicy.Stage]time.Duration {
	ages := stagepolicy.DefaultMaxEvidenceAge()
	for name, seconds := range c.MaxEvidenceAge {
		stage, err := stagepolicy.ParseStage(name)
		if err != nil || seconds <= 0 {
			continue
		}
		ages[stage] = time.Duration(seconds) * time.Second
	}
	return ages
}
