// Package config loads the process configuration for swarm agents and the
// registry server. Values resolve in three layers: compiled defaults, an
// optional YAML file, then SWARMFLOW_* environment variables.
package config
