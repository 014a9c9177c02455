// Package agent contains the runtime shared by every swarm participant.
//
// A Runtime composes the message bus, the conversation cache, the model
// provider and an HTTP listener around a single TurnHandler extension
// point. Role-specific behavior (orchestration, specialist work, user
// proxying) lives in subpackages and plugs in through the handler
// registry keyed by agent type.
package agent
