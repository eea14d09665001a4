// Package rbac implements the three-tier access control the MCP and
// REST surfaces enforce (Viewer < Operator < Admin): a numeric tier
// ordering, the exact per-tool tier requirement table, and token-file
// based authentication with optional JWT bearer support.
package rbac

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// Tier is an access level; higher values grant everything lower values
// grant (Admin implies Operator implies Viewer).
type Tier uint8

const (
	Viewer Tier = iota
	Operator
	Admin
)

func (t Tier) String() string {
	switch t {
	case Viewer:
		return "viewer"
	case Operator:
		return "operator"
	case Admin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseTier parses the string form used in token files and config,
// case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "viewer":
		return Viewer, nil
	case "operator":
		return Operator, nil
	case "admin":
		return Admin, nil
	default:
		return 0, fmt.Errorf("rbac: unknown tier %q", s)
	}
}

// HasPermission reports whether a caller holding t may invoke a tool
// requiring required.
func (t Tier) HasPermission(required Tier) bool {
	return t >= required
}

// viewerTools, operatorTools and adminTools are the exact per-tool tier
// table: every name not listed here defaults to Admin, matching the
// "unknown tool requires the strictest tier" fail-closed rule.
var viewerTools = map[string]struct{}{
	"list_nodes":           {},
	"get_node_health":      {},
	"get_node_schema":      {},
	"get_stream_info":      {},
	"list_topics":          {},
	"get_system_status":    {},
	"get_machine_info":     {},
	"doctor":               {},
	"discover_nodes":       {},
	"get_node_manifest":    {},
	"list_commands":        {},
	"discover_capabilities": {},
}

var operatorTools = map[string]struct{}{
	"start_node":      {},
	"stop_node":       {},
	"restart_node":    {},
	"get_node_config": {},
	"set_node_config": {},
	"read_sensor":     {},
	"send_command":    {},
	"get_node_logs":   {},
}

var adminTools = map[string]struct{}{
	"install_node":         {},
	"remove_node":          {},
	"build_node":           {},
	"create_node_instance": {},
	"set_system_config":    {},
	"query_zenoh":          {},
}

// RequiredTier returns the minimum tier a caller must hold to invoke
// toolName. An unrecognized name requires Admin — fail closed rather
// than silently under-restricting a tool nobody has classified yet.
func RequiredTier(toolName string) Tier {
	if _, ok := viewerTools[toolName]; ok {
		return Viewer
	}
	if _, ok := operatorTools[toolName]; ok {
		return Operator
	}
	if _, ok := adminTools[toolName]; ok {
		return Admin
	}
	return Admin
}

// Principal is an authenticated caller.
type Principal struct {
	Name string
	Tier Tier
}

// TokenStore maps bearer tokens to principals, loaded from a flat
// "<token>:<tier>[:<name>]" file. A line whose tier field is missing or
// unparseable falls back to the default tier (operator) per the source's own
// comment, so an operator who forgets to tag a line doesn't lock
// themselves out entirely.
type TokenStore struct {
	byToken map[string]Principal
}

const defaultTier = Operator

// LoadTokenFile reads a token file; a missing file yields an empty,
// always-deny store rather than an error, since auth may be disabled
// entirely in some deployments (handled by the caller).
func LoadTokenFile(path string) (*TokenStore, error) {
	ts := &TokenStore{byToken: map[string]Principal{}}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return ts, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 1 || parts[0] == "" {
			continue
		}
		token := parts[0]
		tier := defaultTier
		if len(parts) >= 2 && parts[1] != "" {
			if t, err := ParseTier(parts[1]); err == nil {
				tier = t
			}
		}
		name := token
		if len(parts) == 3 && parts[2] != "" {
			name = parts[2]
		}
		ts.byToken[token] = Principal{Name: name, Tier: tier}
	}
	return ts, sc.Err()
}

// Authenticate resolves a bearer token (as presented in an
// Authorization: Bearer header) to a Principal.
func (ts *TokenStore) Authenticate(token string) (Principal, bool) {
	p, ok := ts.byToken[token]
	return p, ok
}

// jsonTokenEntry is one value in the ~/.bubbaloop/mcp_tokens.json map.
type jsonTokenEntry struct {
	Tier  string `json:"tier"`
	Label string `json:"label"`
}

// LoadJSONTokenFile reads the MCP surface's token file: a JSON object
// mapping each bearer token to {tier, label} (§4.7). A missing file
// yields an empty store, matching LoadTokenFile's tolerance.
func LoadJSONTokenFile(path string) (*TokenStore, error) {
	ts := &TokenStore{byToken: map[string]Principal{}}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ts, nil
	}
	if err != nil {
		return nil, err
	}
	var raw map[string]jsonTokenEntry
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("rbac: parsing %s: %w", path, err)
	}
	for token, entry := range raw {
		if token == "" {
			continue
		}
		tier := defaultTier
		if entry.Tier != "" {
			if t, err := ParseTier(entry.Tier); err == nil {
				tier = t
			}
		}
		name := entry.Label
		if name == "" {
			name = token
		}
		ts.byToken[token] = Principal{Name: name, Tier: tier}
	}
	return ts, nil
}

// Merge copies every entry of other into ts, overwriting any existing
// token, and returns ts for chaining.
func (ts *TokenStore) Merge(other *TokenStore) *TokenStore {
	if other == nil {
		return ts
	}
	for tok, p := range other.byToken {
		ts.byToken[tok] = p
	}
	return ts
}

// jwtClaims is the minimal claim set a signed JWT bearer token must
// carry: a tier and an optional subject name.
type jwtClaims struct {
	Tier string `json:"tier"`
	jwt.RegisteredClaims
}

// AuthenticateJWT verifies an HS256-signed bearer token against secret
// and extracts its tier claim. Used when a deployment prefers signed
// tokens over the flat token file.
func AuthenticateJWT(token string, secret []byte) (Principal, error) {
	claims := &jwtClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("rbac: unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("rbac: invalid token: %w", err)
	}
	tier, err := ParseTier(claims.Tier)
	if err != nil {
		return Principal{}, err
	}
	name := claims.Subject
	if name == "" {
		name = "jwt"
	}
	return Principal{Name: name, Tier: tier}, nil
}

// LocalhostPrincipal is returned for unauthenticated requests that
// originate from localhost when a deployment chooses to allow
// anonymous Viewer access from the loopback interface. Callers opt
// into this explicitly; it is never applied automatically.
var LocalhostPrincipal = Principal{Name: "localhost", Tier: Viewer}
