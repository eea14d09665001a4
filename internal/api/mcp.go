package api

import (
	"github.com/valyala/fasthttp"

	"github.com/bubbaloop/bubbaloopd/internal/errs"
	"github.com/bubbaloop/bubbaloopd/internal/node"
	"github.com/bubbaloop/bubbaloopd/internal/rbac"
)

// protocolVersion is the MCP wire version this server speaks, matching
// the original bubbaloop-mcp-server crate.
const protocolVersion = "2024-11-05"

const (
	jsonRPCParseError     = -32700
	jsonRPCMethodNotFound = -32601
	jsonRPCInternalError  = -32603
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  rpcRawParams    `json:"params,omitempty"`
}

type rpcRawParams = jsonRawMessage

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// jsonRawMessage lets us defer decoding a params blob until we know which
// tool it belongs to, same shape as encoding/json.RawMessage but keeping
// every decode on the jsoniter codec already used elsewhere in this
// package.
type jsonRawMessage []byte

func (m *jsonRawMessage) UnmarshalJSON(data []byte) error {
	*m = append((*m)[0:0], data...)
	return nil
}

func (m jsonRawMessage) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	return m, nil
}

type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolCallResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type toolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type toolsListResult struct {
	Tools []toolDescriptor `json:"tools"`
}

type initializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	ServerInfo      map[string]string      `json:"serverInfo"`
	Capabilities    map[string]interface{} `json:"capabilities"`
}

type toolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// handleMCP is the single JSON-RPC endpoint exposing initialize,
// tools/list, tools/call and ping (§4.7), grounded on
// bubbaloop-mcp-server's dispatch table.
func (s *Server) handleMCP(ctx *fasthttp.RequestCtx) {
	var req rpcRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeRPC(ctx, nil, nil, &rpcError{Code: jsonRPCParseError, Message: "parse error: " + err.Error()})
		return
	}

	if req.Method == "initialized" {
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return
	}

	switch req.Method {
	case "initialize":
		writeRPC(ctx, req.ID, initializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      map[string]string{"name": "bubbaloopd", "version": s.version},
			Capabilities:    map[string]interface{}{"tools": map[string]interface{}{}},
		}, nil)
	case "ping":
		writeRPC(ctx, req.ID, map[string]string{"status": "ok"}, nil)
	case "tools/list":
		writeRPC(ctx, req.ID, toolsListResult{Tools: toolTable}, nil)
	case "tools/call":
		s.handleToolCall(ctx, req.ID, req.Params)
	default:
		writeRPC(ctx, req.ID, nil, &rpcError{Code: jsonRPCMethodNotFound, Message: "method not found: " + req.Method})
	}
}

func writeRPC(ctx *fasthttp.RequestCtx, id interface{}, result interface{}, rerr *rpcError) {
	writeJSON(ctx, fasthttp.StatusOK, rpcResponse{JSONRPC: "2.0", ID: id, Result: result, Error: rerr})
}

func (s *Server) handleToolCall(ctx *fasthttp.RequestCtx, id interface{}, raw rpcRawParams) {
	var params toolCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		writeRPC(ctx, id, nil, &rpcError{Code: jsonRPCParseError, Message: "invalid tool call params: " + err.Error()})
		return
	}

	required := rbac.RequiredTier(params.Name)
	p, ok := s.auth.principal(ctx)
	if !ok || !p.Tier.HasPermission(required) {
		writeRPC(ctx, id, toolErrorResult("caller lacks "+required.String()+" tier for tool "+params.Name), nil)
		return
	}

	result, err := s.callTool(ctx, params.Name, params.Arguments)
	if err != nil {
		writeRPC(ctx, id, toolErrorResult(err.Error()), nil)
		return
	}
	writeRPC(ctx, id, result, nil)
}

func toolErrorResult(msg string) toolCallResult {
	return toolCallResult{Content: []toolContent{{Type: "text", Text: msg}}, IsError: true}
}

func textResult(text string) toolCallResult {
	return toolCallResult{Content: []toolContent{{Type: "text", Text: text}}}
}

// toolTable maps one-to-one onto the REST operations plus the two
// discovery/diagnostic tools (§4.7 supplemental). Unknown tools never
// reach here: rbac.RequiredTier already fails closed to Admin for them,
// and callTool's default case reports "unknown tool" explicitly.
var toolTable = []toolDescriptor{
	{Name: "list_nodes", Description: "List every cached node and its state.", InputSchema: emptySchema()},
	{Name: "get_node_health", Description: "Get a single node's health and status.", InputSchema: nameSchema()},
	{Name: "get_node_manifest", Description: "Get a single node's manifest.", InputSchema: nameSchema()},
	{Name: "discover_nodes", Description: "List registered nodes not yet reconciled into the cache.", InputSchema: emptySchema()},
	{Name: "doctor", Description: "Cross-check cached invariants against live ground truth.", InputSchema: emptySchema()},
	{Name: "get_node_logs", Description: "Get the last lines of a node's service log.", InputSchema: nameSchema()},
	{Name: "start_node", Description: "Start a node's service.", InputSchema: nameSchema()},
	{Name: "stop_node", Description: "Stop a node's service.", InputSchema: nameSchema()},
	{Name: "restart_node", Description: "Restart a node's service.", InputSchema: nameSchema()},
	{Name: "send_command", Description: "Send an arbitrary lifecycle command to a node.", InputSchema: commandSchema()},
	{Name: "install_node", Description: "Install a marketplace node by name.", InputSchema: nameSchema()},
	{Name: "remove_node", Description: "Unregister a node.", InputSchema: nameSchema()},
	{Name: "build_node", Description: "Build a node's source tree.", InputSchema: nameSchema()},
}

func emptySchema() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

func nameSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"name": map[string]interface{}{"type": "string"}},
		"required":   []string{"name"},
	}
}

func commandSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name":    map[string]interface{}{"type": "string"},
			"command": map[string]interface{}{"type": "string"},
		},
		"required": []string{"name", "command"},
	}
}

func argString(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func (s *Server) callTool(ctx *fasthttp.RequestCtx, name string, args map[string]interface{}) (toolCallResult, error) {
	switch name {
	case "list_nodes":
		return textResult(mustJSON(toDTOs(s.mgr.GetNodeList()))), nil
	case "discover_nodes":
		return textResult(mustJSON(toDTOs(s.mgr.PeekUnreconciled()))), nil
	case "doctor":
		return textResult(mustJSON(s.mgr.Doctor(ctx))), nil
	case "get_node_health", "get_node_manifest":
		nm := argString(args, "name")
		if err := validateToolName(nm); err != nil {
			return toolCallResult{}, err
		}
		n, ok := s.mgr.GetNode(nm)
		if !ok {
			return toolCallResult{}, errs.NotFound("node not found: %s", nm)
		}
		return textResult(mustJSON(toDTO(n))), nil
	case "get_node_logs":
		return s.toolCommand(ctx, args, node.CmdGetLogs)
	case "start_node":
		return s.toolCommand(ctx, args, node.CmdStart)
	case "stop_node":
		return s.toolCommand(ctx, args, node.CmdStop)
	case "restart_node":
		return s.toolCommand(ctx, args, node.CmdRestart)
	case "install_node":
		return s.toolCommand(ctx, args, node.CmdInstall)
	case "remove_node":
		return s.toolCommand(ctx, args, node.CmdRemoveNode)
	case "build_node":
		return s.toolCommand(ctx, args, node.CmdBuild)
	case "send_command":
		cmdStr := argString(args, "command")
		ct, ok := node.ParseCommand(cmdStr)
		if !ok {
			return toolCallResult{}, errs.InvalidInput("unrecognized command: %s", cmdStr)
		}
		if p, ok := s.auth.principal(ctx); !ok || !p.Tier.HasPermission(tierForCommand(ct)) {
			return toolCallResult{}, errs.InvalidInput("caller lacks %s tier for command %s", tierForCommand(ct), cmdStr)
		}
		return s.toolCommand(ctx, args, ct)
	default:
		return toolCallResult{}, errs.InvalidInput("unknown tool: %s", name)
	}
}

func validateToolName(name string) error {
	if name == "" {
		return errs.InvalidInput("name argument is required")
	}
	return nil
}

func (s *Server) toolCommand(ctx *fasthttp.RequestCtx, args map[string]interface{}, ct node.CommandType) (toolCallResult, error) {
	nm := argString(args, "name")
	if err := validateToolName(nm); err != nil {
		return toolCallResult{}, err
	}
	res := s.mgr.ExecuteCommand(ctx, node.Command{Type: ct, NodeName: nm})
	return textResult(mustJSON(toCommandResponse(res))), nil
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
