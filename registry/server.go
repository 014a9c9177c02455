package registry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/swarmflow/swarmflow/types"
)

// Server serves descriptors from a directory of YAML files. A file is
// classified by shape: records with an agent_type are agents, records with a
// swarm_type are swarms, records with an endpoint are tools. Files that fail
// to parse are skipped with a log line, never fatal.
type Server struct {
	dir    string
	logger *zap.Logger
}

// NewServer creates a registry server over the given descriptor directory.
func NewServer(dir string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		dir:    dir,
		logger: logger.With(zap.String("component", "registry")),
	}
}

// Routes returns the registry HTTP surface.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /agents", s.handleAgents)
	mux.HandleFunc("GET /agents/{identifier}", s.handleAgent)
	mux.HandleFunc("GET /swarms", s.handleSwarms)
	mux.HandleFunc("GET /swarms/{identifier}", s.handleSwarm)
	mux.HandleFunc("GET /tools", s.handleTools)
	mux.HandleFunc("GET /tools/{identifier}", s.handleTool)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents := []types.AgentDescriptor{}
	s.eachRecord(func(record map[string]any, raw []byte) {
		if _, ok := record["agent_type"]; !ok {
			return
		}
		var agent types.AgentDescriptor
		if err := yaml.Unmarshal(raw, &agent); err == nil {
			agents = append(agents, agent)
		}
	})
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")
	var found *types.AgentDescriptor
	s.eachRecord(func(record map[string]any, raw []byte) {
		if found != nil {
			return
		}
		if _, ok := record["agent_type"]; !ok {
			return
		}
		if record["identifier"] != identifier {
			return
		}
		var agent types.AgentDescriptor
		if err := yaml.Unmarshal(raw, &agent); err == nil {
			found = &agent
		}
	})
	if found == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("agent with identifier %q not found", identifier))
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleSwarms(w http.ResponseWriter, r *http.Request) {
	swarms := []types.SwarmDescriptor{}
	s.eachRecord(func(record map[string]any, raw []byte) {
		if _, ok := record["swarm_type"]; !ok {
			return
		}
		var swarm types.SwarmDescriptor
		if err := yaml.Unmarshal(raw, &swarm); err == nil {
			swarms = append(swarms, swarm)
		}
	})
	writeJSON(w, http.StatusOK, swarms)
}

func (s *Server) handleSwarm(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")
	var found *types.SwarmDescriptor
	s.eachRecord(func(record map[string]any, raw []byte) {
		if found != nil {
			return
		}
		if _, ok := record["swarm_type"]; !ok {
			return
		}
		if record["identifier"] != identifier {
			return
		}
		var swarm types.SwarmDescriptor
		if err := yaml.Unmarshal(raw, &swarm); err == nil {
			found = &swarm
		}
	})
	if found == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("swarm with identifier %q not found", identifier))
		return
	}
	// A swarm violating the RACI cardinality invariant must not start.
	if err := found.Validate(); err != nil {
		s.logger.Error("invalid swarm descriptor",
			zap.String("identifier", identifier),
			zap.Error(err),
		)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	tools := []types.ToolDescriptor{}
	s.eachRecord(func(record map[string]any, raw []byte) {
		if _, ok := record["endpoint"]; !ok {
			return
		}
		var tool types.ToolDescriptor
		if err := yaml.Unmarshal(raw, &tool); err == nil {
			tools = append(tools, tool)
		}
	})
	writeJSON(w, http.StatusOK, tools)
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")
	var found *types.ToolDescriptor
	s.eachRecord(func(record map[string]any, raw []byte) {
		if found != nil {
			return
		}
		if _, ok := record["endpoint"]; !ok {
			return
		}
		if record["id"] != identifier {
			return
		}
		var tool types.ToolDescriptor
		if err := yaml.Unmarshal(raw, &tool); err == nil {
			found = &tool
		}
	})
	if found == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("tool with id %q not found", identifier))
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"registry": "descriptor-registry"})
}

// eachRecord walks the descriptor directory and invokes fn for every YAML
// record that parses into a map.
func (s *Server) eachRecord(fn func(record map[string]any, raw []byte)) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(s.dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}

	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			s.logger.Error("failed to read descriptor file",
				zap.String("file", file),
				zap.Error(err),
			)
			continue
		}
		var record map[string]any
		if err := yaml.Unmarshal(raw, &record); err != nil {
			s.logger.Error("failed to parse descriptor file",
				zap.String("file", file),
				zap.Error(err),
			)
			continue
		}
		fn(record, raw)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
