package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "agent":
		runAgent(os.Args[2:])
	case "swarm":
		runSwarm(os.Args[2:])
	case "registry":
		runRegistry(os.Args[2:])
	case "health":
		runHealthCheck(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8000", "Address of the process to probe")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("OK")
}

func printVersion() {
	fmt.Printf("swarmflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`swarmflow - RACI swarm orchestration

Usage:
  swarmflow <command> [options]

Commands:
  agent <identifier>   Run one agent resolved from the registry
  swarm <identifier>   Run the orchestrator for a swarm
  registry             Serve agent/swarm/tool descriptors over HTTP
  health               Check a running process
  version              Show version information
  help                 Show this help message

Options:
  --config <path>   Path to configuration file (YAML)
  --swarm <id>      Swarm a proxy agent belongs to (agent command)

Examples:
  swarmflow agent writer --config /etc/swarmflow/config.yaml
  swarmflow agent p --swarm memo-swarm
  swarmflow swarm memo-swarm
  swarmflow registry
  swarmflow health --addr http://localhost:8000`)
}
