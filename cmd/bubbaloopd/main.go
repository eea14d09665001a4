// Command bubbaloopd is the core runtime process (C8): it wires the node
// manager (C3), health monitor (C4), pub/sub broker (C6), and HTTP/MCP
// surface (C7) together, opens the pub/sub session with a backed-off
// retry loop, and exits non-zero on any fatal init error — a duplicate
// daemon on the same host fails to bind its HTTP port and exits rather
// than silently coexisting (§6 exit codes).
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/valyala/fasthttp"

	"github.com/bubbaloop/bubbaloopd/cmn/nlog"
	"github.com/bubbaloop/bubbaloopd/internal/api"
	"github.com/bubbaloop/bubbaloopd/internal/config"
	"github.com/bubbaloop/bubbaloopd/internal/health"
	"github.com/bubbaloop/bubbaloopd/internal/marketplace"
	"github.com/bubbaloop/bubbaloopd/internal/nodemanager"
	"github.com/bubbaloop/bubbaloopd/internal/pubsub"
	"github.com/bubbaloop/bubbaloopd/internal/rbac"
	"github.com/bubbaloop/bubbaloopd/internal/registry"
	"github.com/bubbaloop/bubbaloopd/internal/svcmgr"
)

// version is the build-reported string surfaced on GET /health; overridden
// at link time with -ldflags "-X main.version=...".
var version = "dev"

const maxBackoff = 30 * time.Second

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		nlog.Errorf("bubbaloopd: loading configuration: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := registry.Open()
	svc := svcmgr.NewSystemd()
	nm := nodemanager.New(reg, svc)

	client, err := connectMQTT(ctx, cfg.MQTTBroker)
	if err != nil {
		nlog.Errorf("bubbaloopd: opening pub/sub session: %v", err)
		return 1
	}
	defer client.Disconnect(250)

	tokens := loadTokens(cfg)

	var jwtSecret []byte
	if cfg.JWTSecret != "" {
		jwtSecret = []byte(cfg.JWTSecret)
	}

	sourcesPath := marketplace.SourcesFile(registry.Home())
	sources, err := marketplace.LoadSources(sourcesPath)
	if err != nil {
		nlog.Warningf("bubbaloopd: loading %s: %v", sourcesPath, err)
	}
	nodesHome := cfg.NodesHome
	if nodesHome == "" {
		nodesHome = registry.Home() + "/nodes"
	}
	installer := marketplace.New(nodesHome)

	srv := api.New(api.Config{
		Manager:          nm,
		Tokens:           tokens,
		JWTSecret:        jwtSecret,
		AllowLocalViewer: true,
		Installer:        installer,
		Sources:          sources,
		Version:          version,
	})

	httpSrv := &fasthttp.Server{Handler: srv.Handler, Name: "bubbaloopd"}
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		nlog.Errorf("bubbaloopd: binding %s: %v", addr, err)
		return 1
	}

	errCh := make(chan error, 4)
	go func() { errCh <- httpSrv.Serve(ln) }()

	go nm.Run(ctx)

	healthTopic := fmt.Sprintf("%s/+/%s/+/health", cfg.PubSubPrefix, cfg.MachineID)
	monitor := health.New(client, healthTopic, nm, cfg.HealthWindow/2)
	go func() {
		if err := monitor.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	broker := pubsub.New(client, nm, cfg.PubSubPrefix, cfg.MachineID)
	go func() {
		if err := broker.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	bridge := api.NewQueryableBridge(client, nm, cfg.PubSubPrefix, cfg.MachineID)
	if err := bridge.Run(ctx); err != nil {
		nlog.Warningf("bubbaloopd: starting JSON-queryable bridge: %v", err)
	}

	nlog.Infof("bubbaloopd: listening on %s, machine_id=%s, broker=%s", addr, cfg.MachineID, cfg.MQTTBroker)

	select {
	case <-ctx.Done():
		nlog.Infoln("bubbaloopd: shutdown signal received")
	case err := <-errCh:
		nlog.Errorf("bubbaloopd: fatal: %v", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = httpSrv.ShutdownWithContext(shutdownCtx)
	return 0
}

// loadTokens builds the RBAC token store from the JSON token file at
// ~/.bubbaloop/mcp_tokens.json (§4.7) and, if BUBBALOOP_TOKEN_FILE names
// one, the legacy flat token file too — later entries win on conflict.
func loadTokens(cfg config.Config) *rbac.TokenStore {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}
	jsonPath := home + "/.bubbaloop/mcp_tokens.json"
	store, err := rbac.LoadJSONTokenFile(jsonPath)
	if err != nil {
		nlog.Warningf("bubbaloopd: loading %s: %v", jsonPath, err)
		store, _ = rbac.LoadJSONTokenFile("/nonexistent")
	}
	if cfg.TokenFile != "" {
		flat, err := rbac.LoadTokenFile(cfg.TokenFile)
		if err != nil {
			nlog.Warningf("bubbaloopd: loading %s: %v", cfg.TokenFile, err)
		} else {
			store.Merge(flat)
		}
	}
	return store
}

// connectMQTT opens the pub/sub session, retrying with exponential
// backoff capped at 30s (§5 "Retry / backoff").
func connectMQTT(ctx context.Context, broker string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID("bubbaloopd").SetAutoReconnect(true)
	backoff := time.Second
	for {
		client := mqtt.NewClient(opts)
		token := client.Connect()
		token.Wait()
		if token.Error() == nil {
			return client, nil
		}
		nlog.Warningf("bubbaloopd: connecting to %s: %v, retrying in %s", broker, token.Error(), backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
