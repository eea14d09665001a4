package api

import "github.com/bubbaloop/bubbaloopd/internal/node"

// NodeDTO is the JSON-facing projection of node.CachedNode shared by the
// REST surface, the JSON-queryable mirror, and MCP tool results (§4.7).
type NodeDTO struct {
	Name             string   `json:"name"`
	Path             string   `json:"path"`
	Version          string   `json:"version,omitempty"`
	NodeType         string   `json:"type,omitempty"`
	Description      string   `json:"description,omitempty"`
	Status           string   `json:"status"`
	Installed        bool     `json:"installed"`
	AutostartEnabled bool     `json:"autostart_enabled"`
	IsBuilt          bool     `json:"is_built"`
	Health           string   `json:"health"`
	LastHeartbeatMs  int64    `json:"last_heartbeat_ms,omitempty"`
	BuildSubstate    string   `json:"build_substate,omitempty"`
	BuildOutput      []string `json:"build_output,omitempty"`
	LastUpdatedMs    int64    `json:"last_updated_ms,omitempty"`
}

func toDTO(n *node.CachedNode) NodeDTO {
	d := NodeDTO{
		Name:             n.Name(),
		Path:             n.Path,
		Status:           n.Status.String(),
		Installed:        n.Installed,
		AutostartEnabled: n.AutostartEnabled,
		IsBuilt:          n.IsBuilt,
		Health:           n.Health.String(),
		LastHeartbeatMs:  n.LastHeartbeatMs,
		BuildSubstate:    n.BuildSubstate.String(),
		BuildOutput:      n.BuildOutput,
		LastUpdatedMs:    n.LastUpdatedMs,
	}
	if n.Manifest != nil {
		d.Version = n.Manifest.Version
		d.NodeType = string(n.Manifest.Type)
		d.Description = n.Manifest.Description
	}
	return d
}

func toDTOs(ns []*node.CachedNode) []NodeDTO {
	out := make([]NodeDTO, 0, len(ns))
	for _, n := range ns {
		out = append(out, toDTO(n))
	}
	return out
}

// HealthResponse is GET /health's body.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	NodesTotal   int    `json:"nodes_total"`
	NodesRunning int    `json:"nodes_running"`
}

// ErrorResponse is the uniform error body every failing REST call returns.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// AddNodeRequest is POST /api/v1/nodes/add's body.
type AddNodeRequest struct {
	Source string `json:"source"`
	Name   string `json:"name,omitempty"`
	Config string `json:"config,omitempty"`
}

// InstallRequest is POST /api/v1/nodes/install's body.
type InstallRequest struct {
	Name string `json:"name"`
}

// CommandRequest is POST /api/v1/nodes/{name}/command's body.
type CommandRequest struct {
	Command string `json:"command"`
	Source  string `json:"source,omitempty"`
}

// CommandResponse is the uniform result body for any mutating call.
type CommandResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Output  string   `json:"output,omitempty"`
	Node    *NodeDTO `json:"node,omitempty"`
}

func toCommandResponse(r node.Result) CommandResponse {
	cr := CommandResponse{Success: r.Success, Message: r.Message, Output: r.Output}
	if r.State != nil {
		d := toDTO(r.State)
		cr.Node = &d
	}
	return cr
}
