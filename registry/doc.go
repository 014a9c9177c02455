// Package registry provides the descriptor registry: a read-only lookup
// service for agent, swarm and tool descriptors stored as YAML files, plus
// the HTTP client agents use to resolve their own configuration at startup.
package registry
