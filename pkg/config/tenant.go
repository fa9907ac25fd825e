package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/averbach/colloquy/pkg/api"
)

// Tenant identifies the (account, agent instance) pair that determines
// configuration for a request.
type Tenant struct {
	Account string
	Agent   string
}

// ID returns the canonical tenant identifier used in records and metrics.
func (t Tenant) ID() string {
	return t.Account + "/" + t.Agent
}

// AgentConfig is the per-tenant configuration resolved for a single request.
// It is immutable once resolved and never cached across requests.
type AgentConfig struct {
	// InstructionFile is the path (relative to the agents directory) of the
	// base persona instruction text. Required.
	InstructionFile string `yaml:"instruction_file"`

	// Modules lists selected instruction-module names, in assembly order.
	Modules []string `yaml:"modules"`

	// ToolRulesModule names the module whose content is placed first in the
	// assembled instructions, ahead of everything else. It is usually also
	// listed in Modules; the assembler deduplicates it.
	ToolRulesModule string `yaml:"tool_rules_module"`

	// Collections lists the directory collections this agent may search.
	// An empty list disables structured search for the tenant.
	Collections []string `yaml:"collections"`

	// SemanticSearch enables the nearest-neighbor passage search tool.
	SemanticSearch bool `yaml:"semantic_search"`

	// Provider and Model select the generative backend entry for price
	// table lookups. Empty values fall back to the process defaults.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	Temperature *float64 `yaml:"temperature"`
	MaxTokens   *int     `yaml:"max_tokens"`

	// BaseInstructions holds the loaded content of InstructionFile.
	// Populated by the Resolver, not by YAML.
	BaseInstructions string `yaml:"-"`

	// Tenant is the identity this configuration was resolved for.
	Tenant Tenant `yaml:"-"`
}

// nameRE restricts account and agent names to path-safe identifiers so a
// request can never escape the agents directory.
var nameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Resolver loads per-tenant agent configuration. Resolve re-reads the agent
// file and its instruction file on every call; tenant-derived state is
// never held across requests, so edits on disk take effect immediately.
type Resolver struct {
	agentsDir    string
	defaultModel string
	defaultProv  string
}

// NewResolver creates a Resolver rooted at the configured agents directory.
func NewResolver(cfg *Config) *Resolver {
	return &Resolver{
		agentsDir:    cfg.Tenants.AgentsDir,
		defaultModel: cfg.Backend.DefaultModel,
		defaultProv:  cfg.Backend.Provider,
	}
}

// Resolve loads the configuration for one tenant. A missing agent file is a
// not-found error; a missing or empty base instruction file is a fatal
// configuration error for the request.
func (r *Resolver) Resolve(tenant Tenant) (*AgentConfig, error) {
	if !nameRE.MatchString(tenant.Account) {
		return nil, api.NewInvalidRequestError("account", fmt.Sprintf("invalid account name %q", tenant.Account))
	}
	if !nameRE.MatchString(tenant.Agent) {
		return nil, api.NewInvalidRequestError("agent", fmt.Sprintf("invalid agent name %q", tenant.Agent))
	}

	path := filepath.Join(r.agentsDir, tenant.Account, tenant.Agent+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, api.NewNotFoundError(fmt.Sprintf("no agent %q for account %q", tenant.Agent, tenant.Account))
		}
		return nil, fmt.Errorf("reading agent config %s: %w", path, err)
	}

	var ac AgentConfig
	if err := yaml.Unmarshal(data, &ac); err != nil {
		return nil, api.NewConfigurationError("agent", fmt.Sprintf("malformed agent config %s: %s", path, err))
	}
	ac.Tenant = tenant

	if ac.Model == "" {
		ac.Model = r.defaultModel
	}
	if ac.Provider == "" {
		ac.Provider = r.defaultProv
	}
	if ac.Model == "" {
		return nil, api.NewConfigurationError("model", "agent config has no model and no default is configured")
	}

	if ac.InstructionFile == "" {
		return nil, api.NewConfigurationError("instruction_file", "agent config has no instruction_file")
	}

	instrPath := filepath.Join(r.agentsDir, tenant.Account, ac.InstructionFile)
	instr, err := os.ReadFile(instrPath)
	if err != nil {
		return nil, api.NewConfigurationError("instruction_file", fmt.Sprintf("reading base instructions %s: %s", instrPath, err))
	}
	if len(instr) == 0 {
		return nil, api.NewConfigurationError("instruction_file", fmt.Sprintf("base instructions %s are empty", instrPath))
	}
	ac.BaseInstructions = string(instr)

	return &ac, nil
}
