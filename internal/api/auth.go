package api

import (
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/bubbaloop/bubbaloopd/internal/rbac"
)

// Auth resolves RBAC principals for incoming requests: bearer tokens first
// (static, then JWT), falling back to the localhost/Viewer policy knob
// (§4.7) when no credential is presented and the caller reached the
// server over a loopback connection.
type Auth struct {
	Tokens           *rbac.TokenStore
	JWTSecret        []byte
	AllowLocalViewer bool
}

func (a *Auth) principal(ctx *fasthttp.RequestCtx) (rbac.Principal, bool) {
	token := bearerToken(ctx)
	if token != "" {
		if a.Tokens != nil {
			if p, ok := a.Tokens.Authenticate(token); ok {
				return p, true
			}
		}
		if len(a.JWTSecret) > 0 {
			if p, err := rbac.AuthenticateJWT(token, a.JWTSecret); err == nil {
				return p, true
			}
		}
		return rbac.Principal{}, false
	}
	if a.AllowLocalViewer && isLoopback(ctx.RemoteIP().String()) {
		return rbac.LocalhostPrincipal, true
	}
	return rbac.Principal{}, false
}

func bearerToken(ctx *fasthttp.RequestCtx) string {
	h := string(ctx.Request.Header.Peek("Authorization"))
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}

func isLoopback(ip string) bool {
	return ip == "127.0.0.1" || ip == "::1" || strings.HasPrefix(ip, "127.")
}

// requireTier authenticates the request and checks the resolved
// principal's tier against required, writing a 401/403 response and
// returning false if either check fails.
func (a *Auth) requireTier(ctx *fasthttp.RequestCtx, required rbac.Tier) bool {
	p, ok := a.principal(ctx)
	if !ok {
		writeError(ctx, fasthttp.StatusUnauthorized, "missing or invalid credentials")
		return false
	}
	if !p.Tier.HasPermission(required) {
		writeError(ctx, fasthttp.StatusForbidden, "principal "+p.Name+" lacks "+required.String()+" tier")
		return false
	}
	return true
}
