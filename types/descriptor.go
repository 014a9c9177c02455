package types

import (
	"fmt"
	"strings"
)

// RACI role codes with structural meaning. Any other short code is allowed
// on an agent but is not enforced at load time.
const (
	RACIResponsible = "r"
	RACIAccountable = "a"
)

// AgentDescriptor is the registry record for a single agent.
type AgentDescriptor struct {
	Identifier  string   `json:"identifier" yaml:"identifier"`
	RACIRole    string   `json:"raci_role" yaml:"raci_role"`
	AgentType   string   `json:"agent_type" yaml:"agent_type"`
	Description string   `json:"description" yaml:"description"`
	Goals       string   `json:"goals" yaml:"goals"`
	ToolRefs    []string `json:"tool_refs,omitempty" yaml:"tool_refs"`
	RAGEnabled  bool     `json:"rag_enabled" yaml:"rag_enabled"`
	Model       string   `json:"model" yaml:"model"`
	Randomness  float64  `json:"randomness" yaml:"randomness"`
}

// SwarmDescriptor is the registry record for a swarm: an ordered set of
// agent descriptors plus the swarm's own identity.
type SwarmDescriptor struct {
	Identifier string            `json:"identifier" yaml:"identifier"`
	SwarmType  string            `json:"swarm_type" yaml:"swarm_type"`
	Agents     []AgentDescriptor `json:"agents" yaml:"agents"`
}

// ToolDescriptor is the registry record for a tool endpoint an agent may
// invoke during a turn. Method decides how arguments travel: GET tools take
// query parameters, POST tools take a JSON body.
type ToolDescriptor struct {
	ID          string         `json:"id" yaml:"id"`
	Description string         `json:"description" yaml:"description"`
	Keywords    string         `json:"keywords" yaml:"keywords"`
	Method      string         `json:"method" yaml:"method"`
	Endpoint    string         `json:"endpoint" yaml:"endpoint"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters"`
}

// Validate checks the RACI cardinality invariant: exactly one Responsible
// and exactly one Accountable agent. A swarm violating it is invalid and
// must not start.
func (s *SwarmDescriptor) Validate() error {
	if len(s.Agents) == 0 {
		return fmt.Errorf("swarm %q has no agents", s.Identifier)
	}
	if _, err := s.SingleRoleAgent(RACIResponsible); err != nil {
		return err
	}
	if _, err := s.SingleRoleAgent(RACIAccountable); err != nil {
		return err
	}
	return nil
}

// SingleRoleAgent returns the unique agent carrying the given RACI role.
// Role comparison is case-insensitive.
func (s *SwarmDescriptor) SingleRoleAgent(role string) (*AgentDescriptor, error) {
	var found *AgentDescriptor
	total := 0
	for i := range s.Agents {
		if strings.EqualFold(s.Agents[i].RACIRole, role) {
			found = &s.Agents[i]
			total++
		}
	}
	switch {
	case total == 0:
		return nil, fmt.Errorf("swarm %q: no agent with raci_role %q", s.Identifier, role)
	case total > 1:
		return nil, fmt.Errorf("swarm %q: %d agents with raci_role %q, want exactly one", s.Identifier, total, role)
	}
	return found, nil
}

// Agent returns the descriptor with the given identifier, or nil.
func (s *SwarmDescriptor) Agent(identifier string) *AgentDescriptor {
	for i := range s.Agents {
		if s.Agents[i].Identifier == identifier {
			return &s.Agents[i]
		}
	}
	return nil
}

// Identifiers returns the agent identifiers in descriptor order.
func (s *SwarmDescriptor) Identifiers() []string {
	ids := make([]string, 0, len(s.Agents))
	for i := range s.Agents {
		ids = append(ids, s.Agents[i].Identifier)
	}
	return ids
}
