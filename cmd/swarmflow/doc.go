// Command swarmflow runs the processes of a RACI swarm.
//
// Usage:
//
//	swarmflow agent <identifier>   # run one agent (specialist or proxy)
//	swarmflow swarm <identifier>   # run the orchestrator of a swarm
//	swarmflow registry             # serve descriptors over HTTP
//	swarmflow health               # probe a running process
//	swarmflow version              # print version information
//
// Every command accepts --config pointing at a YAML file; SWARMFLOW_*
// environment variables override both the file and the defaults.
package main
