package api

import (
	"github.com/valyala/fasthttp"

	"github.com/bubbaloop/bubbaloopd/internal/errs"
	"github.com/bubbaloop/bubbaloopd/internal/manifest"
	"github.com/bubbaloop/bubbaloopd/internal/marketplace"
	"github.com/bubbaloop/bubbaloopd/internal/node"
	"github.com/bubbaloop/bubbaloopd/internal/rbac"
)

// handleHealth is the liveness probe; unauthenticated by design (§4.7
// "matching the /health security model").
func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	nodes := s.mgr.GetNodeList()
	var running int
	for _, n := range nodes {
		if n.Status == node.StatusRunning {
			running++
		}
	}
	writeJSON(ctx, fasthttp.StatusOK, HealthResponse{
		Status:       "ok",
		Version:      s.version,
		NodesTotal:   len(nodes),
		NodesRunning: running,
	})
}

func (s *Server) handleListNodes(ctx *fasthttp.RequestCtx) {
	if !s.auth.requireTier(ctx, rbac.Viewer) {
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, toDTOs(s.mgr.GetNodeList()))
}

func (s *Server) handleGetNode(ctx *fasthttp.RequestCtx, name string) {
	if !s.auth.requireTier(ctx, rbac.Viewer) {
		return
	}
	if !validateNodeName(ctx, name) {
		return
	}
	n, ok := s.mgr.GetNode(name)
	if !ok {
		writeErr(ctx, errs.NotFound("node not found: %s", name))
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, toDTO(n))
}

func (s *Server) handleDiscover(ctx *fasthttp.RequestCtx) {
	if !s.auth.requireTier(ctx, rbac.Viewer) {
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, toDTOs(s.mgr.PeekUnreconciled()))
}

func (s *Server) handleDoctor(ctx *fasthttp.RequestCtx) {
	if !s.auth.requireTier(ctx, rbac.Viewer) {
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, s.mgr.Doctor(ctx))
}

func (s *Server) handleGetLogs(ctx *fasthttp.RequestCtx, name string) {
	if !s.auth.requireTier(ctx, rbac.Operator) {
		return
	}
	if !validateNodeName(ctx, name) {
		return
	}
	res := s.mgr.ExecuteCommand(ctx, node.Command{Type: node.CmdGetLogs, NodeName: name})
	if !res.Success {
		writeError(ctx, fasthttp.StatusInternalServerError, res.Message)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, toCommandResponse(res))
}

func (s *Server) handleRefresh(ctx *fasthttp.RequestCtx) {
	if !s.auth.requireTier(ctx, rbac.Operator) {
		return
	}
	res := s.mgr.ExecuteCommand(ctx, node.Command{Type: node.CmdRefresh})
	writeJSON(ctx, fasthttp.StatusOK, toCommandResponse(res))
}

func (s *Server) handleAddNode(ctx *fasthttp.RequestCtx) {
	if !s.auth.requireTier(ctx, rbac.Operator) {
		return
	}
	var req AddNodeRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Source == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "source is required")
		return
	}
	res := s.mgr.ExecuteCommand(ctx, node.Command{Type: node.CmdAddNode, Source: req.Source})
	if !res.Success {
		writeErr(ctx, errs.InvalidInput("%s", res.Message))
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, toCommandResponse(res))
}

func (s *Server) handleRemoveNode(ctx *fasthttp.RequestCtx, name string) {
	if !s.auth.requireTier(ctx, rbac.Admin) {
		return
	}
	if !validateNodeName(ctx, name) {
		return
	}
	res := s.mgr.ExecuteCommand(ctx, node.Command{Type: node.CmdRemoveNode, NodeName: name})
	if !res.Success {
		writeError(ctx, fasthttp.StatusInternalServerError, res.Message)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, toCommandResponse(res))
}

// handleInstall drives the marketplace admin path (§4.7): look the name
// up in the cached sources list, download + verify + stage the binary,
// then dispatch AddNode so the regular registration path takes over.
func (s *Server) handleInstall(ctx *fasthttp.RequestCtx) {
	if !s.auth.requireTier(ctx, rbac.Admin) {
		return
	}
	var req InstallRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := manifest.ValidateName(req.Name); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	if s.installer == nil {
		writeErr(ctx, errs.New(errs.KindServiceManager, "marketplace installer not configured"))
		return
	}
	entry, ok := marketplace.Find(s.sources, req.Name)
	if !ok {
		writeErr(ctx, errs.NotFound("marketplace entry not found: %s", req.Name))
		return
	}
	nodeDir, err := s.installer.Install(ctx, entry)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	res := s.mgr.ExecuteCommand(ctx, node.Command{Type: node.CmdAddNode, Source: nodeDir})
	if !res.Success {
		writeErr(ctx, errs.InvalidInput("%s", res.Message))
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, toCommandResponse(res))
}

func (s *Server) handleCommand(ctx *fasthttp.RequestCtx, name string) {
	if !validateNodeName(ctx, name) {
		return
	}
	var req CommandRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	ct, ok := node.ParseCommand(req.Command)
	if !ok {
		writeError(ctx, fasthttp.StatusBadRequest, "unrecognized command: "+req.Command)
		return
	}
	if !s.auth.requireTier(ctx, tierForCommand(ct)) {
		return
	}
	res := s.mgr.ExecuteCommand(ctx, node.Command{Type: ct, NodeName: name, Source: req.Source})
	status := fasthttp.StatusOK
	if !res.Success {
		status = errs.KindOf(errs.New(errs.KindServiceManager, res.Message)).HTTPStatus()
	}
	writeJSON(ctx, status, toCommandResponse(res))
}

// tierForCommand mirrors the MCP tool tier table (§4.7) for the
// equivalent REST mutation, so both transports enforce identical policy.
func tierForCommand(ct node.CommandType) rbac.Tier {
	switch ct {
	case node.CmdInstall, node.CmdUninstall, node.CmdBuild, node.CmdClean, node.CmdRemoveNode:
		return rbac.Admin
	default:
		return rbac.Operator
	}
}
