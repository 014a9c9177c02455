// Package types provides the core protocol types shared by every swarmflow
// component: the conversation wire envelope (header + ordered messages) and
// the agent/swarm descriptors loaded from the registry.
//
// This package has ZERO dependencies on other swarmflow packages to avoid
// circular imports. All other packages should import types from here.
package types
