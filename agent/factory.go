package agent

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/swarmflow/swarmflow/tools"
	"github.com/swarmflow/swarmflow/types"
)

// BuildContext carries the role-specific collaborators a handler may need.
// The caller resolves them from the registry before building.
type BuildContext struct {
	// Swarm is the swarm the agent belongs to. Required by orchestrators
	// and proxies, ignored by plain specialists.
	Swarm *types.SwarmDescriptor
	// Tools is the resolved tool table for the agent, possibly empty.
	Tools *tools.Table
	// Logger is the base logger handlers derive their own from.
	Logger *zap.Logger
}

// Builder constructs a turn handler for one agent type.
type Builder func(rt *Runtime, bctx BuildContext) (TurnHandler, error)

var (
	buildersMu sync.RWMutex
	builders   = map[string]Builder{}
)

// Register makes a handler constructor available under an agent type name.
// Registering the same name twice panics: type names come from static
// registry records and a collision is a programming error.
func Register(agentType string, builder Builder) {
	buildersMu.Lock()
	defer buildersMu.Unlock()
	if _, dup := builders[agentType]; dup {
		panic(fmt.Sprintf("agent: Register called twice for type %q", agentType))
	}
	builders[agentType] = builder
}

// Build constructs the turn handler for the runtime's agent type.
func Build(rt *Runtime, bctx BuildContext) (TurnHandler, error) {
	agentType := rt.Descriptor().AgentType
	buildersMu.RLock()
	builder, ok := builders[agentType]
	buildersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("agent: unknown agent type %q (registered: %v)", agentType, Types())
	}
	return builder(rt, bctx)
}

// Types returns the registered agent type names, sorted.
func Types() []string {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
