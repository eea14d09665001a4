// Package api implements C7: the REST surface, its JSON-queryable mirror
// over the pub/sub fabric, and the MCP JSON-RPC tool-calling endpoint, all
// served from one fasthttp.Server the way the spec's "three-in-one"
// routing table describes. No fasthttp-based router exists anywhere in
// the retrieved example corpus, so the routing table below is hand-rolled
// rather than grounded on an in-pack companion.
package api

import (
	"context"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/bubbaloop/bubbaloopd/cmn/nlog"
	"github.com/bubbaloop/bubbaloopd/internal/errs"
	"github.com/bubbaloop/bubbaloopd/internal/manifest"
	"github.com/bubbaloop/bubbaloopd/internal/marketplace"
	"github.com/bubbaloop/bubbaloopd/internal/node"
	"github.com/bubbaloop/bubbaloopd/internal/rbac"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Manager is the subset of nodemanager.Manager the HTTP/MCP surface
// drives — listing, single-node lookup, command dispatch, and the two
// diagnostic reads added in §4.7 (PeekUnreconciled, Doctor).
type Manager interface {
	GetNodeList() []*node.CachedNode
	GetNode(name string) (*node.CachedNode, bool)
	ExecuteCommand(ctx context.Context, cmd node.Command) node.Result
	PeekUnreconciled() []*node.CachedNode
	Doctor(ctx context.Context) []string
}

// Server is the fasthttp-backed HTTP surface.
type Server struct {
	mgr         Manager
	auth        *Auth
	installer   *marketplace.Installer
	sources     []marketplace.Entry
	version     string
	metricsHTTP fasthttp.RequestHandler
}

// Config bundles Server's construction-time dependencies.
type Config struct {
	Manager          Manager
	Tokens           *rbac.TokenStore
	JWTSecret        []byte
	AllowLocalViewer bool
	Installer        *marketplace.Installer
	Sources          []marketplace.Entry
	Version          string
}

func New(cfg Config) *Server {
	return &Server{
		mgr: cfg.Manager,
		auth: &Auth{
			Tokens:           cfg.Tokens,
			JWTSecret:        cfg.JWTSecret,
			AllowLocalViewer: cfg.AllowLocalViewer,
		},
		installer:   cfg.Installer,
		sources:     cfg.Sources,
		version:     cfg.Version,
		metricsHTTP: fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()),
	}
}

// Handler returns the fasthttp.RequestHandler to pass to fasthttp.Server.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	path := string(ctx.Path())
	method := string(ctx.Method())
	s.route(ctx, method, path)
	nlog.Infof("api: %s %s -> %d (%s)", method, path, ctx.Response.StatusCode(), time.Since(start))
}

func (s *Server) route(ctx *fasthttp.RequestCtx, method, path string) {
	switch {
	case path == "/health" && method == fasthttp.MethodGet:
		s.handleHealth(ctx)
	case path == "/metrics":
		s.metricsHTTP(ctx)
	case path == "/refresh" && method == fasthttp.MethodPost:
		s.handleRefresh(ctx)
	case path == "/api/v1/nodes" && method == fasthttp.MethodGet:
		s.handleListNodes(ctx)
	case path == "/api/v1/nodes/add" && method == fasthttp.MethodPost:
		s.handleAddNode(ctx)
	case path == "/api/v1/nodes/install" && method == fasthttp.MethodPost:
		s.handleInstall(ctx)
	case path == "/api/v1/nodes/discover" && method == fasthttp.MethodGet:
		s.handleDiscover(ctx)
	case path == "/api/v1/doctor" && method == fasthttp.MethodGet:
		s.handleDoctor(ctx)
	case path == "/mcp" && method == fasthttp.MethodPost:
		s.handleMCP(ctx)
	case strings.HasPrefix(path, "/api/v1/nodes/"):
		s.routeNodeScoped(ctx, method, strings.TrimPrefix(path, "/api/v1/nodes/"))
	default:
		writeError(ctx, fasthttp.StatusNotFound, "no such route: "+method+" "+path)
	}
}

func (s *Server) routeNodeScoped(ctx *fasthttp.RequestCtx, method, rest string) {
	switch {
	case strings.HasSuffix(rest, "/logs") && method == fasthttp.MethodGet:
		s.handleGetLogs(ctx, strings.TrimSuffix(rest, "/logs"))
	case strings.HasSuffix(rest, "/command") && method == fasthttp.MethodPost:
		s.handleCommand(ctx, strings.TrimSuffix(rest, "/command"))
	case method == fasthttp.MethodGet:
		s.handleGetNode(ctx, rest)
	case method == fasthttp.MethodDelete:
		s.handleRemoveNode(ctx, rest)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "no such route: "+method+" /api/v1/nodes/"+rest)
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v interface{}) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	b, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"error":"encoding response"}`)
		return
	}
	ctx.SetBody(b)
}

func writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, ErrorResponse{Error: msg, Code: status})
}

// writeErr maps an errs.E onto its HTTP status and writes it; any other
// error is surfaced as a 500 (§7 propagation policy meets the transport
// here, the one place taxonomy and status code are joined).
func writeErr(ctx *fasthttp.RequestCtx, err error) {
	writeError(ctx, errs.KindOf(err).HTTPStatus(), err.Error())
}

func validateNodeName(ctx *fasthttp.RequestCtx, name string) bool {
	if err := manifest.ValidateName(name); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
		return false
	}
	return true
}
