// Package config loads the daemon's runtime configuration from
// hard-coded defaults, an optional ~/.bubbaloop/config.yaml file and
// environment variables, each layer overriding the one before it.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envHTTPPort      = "BUBBALOOP_HTTP_PORT"
	envMachineID     = "BUBBALOOP_MACHINE_ID"
	envPubSubPrefix  = "BUBBALOOP_PUBSUB_PREFIX"
	envHealthWindow  = "BUBBALOOP_HEALTH_WINDOW_SECS"
	envTokenFile     = "BUBBALOOP_TOKEN_FILE"
	envJWTSecret     = "BUBBALOOP_JWT_SECRET"
	envMQTTBroker    = "BUBBALOOP_MQTT_BROKER"
	envNodesHome     = "BUBBALOOP_NODES_HOME"

	defaultHTTPPort     = 8088
	defaultPubSubPrefix = "bubbaloop"
	defaultHealthWindow = 15 * time.Second
	defaultMQTTBroker   = "tcp://localhost:1883"
)

// Config is the fully resolved daemon configuration.
type Config struct {
	HTTPPort     int
	MachineID    string
	PubSubPrefix string
	HealthWindow time.Duration
	TokenFile    string
	JWTSecret    string
	MQTTBroker   string
	NodesHome    string
}

// fileLayer is the optional ~/.bubbaloop/config.yaml layer: every field is
// a pointer so an absent key in the file leaves the compiled-in default (or
// a later environment override) untouched.
type fileLayer struct {
	HTTPPort     *int    `yaml:"http_port"`
	PubSubPrefix *string `yaml:"pubsub_prefix"`
	HealthWindow *int    `yaml:"health_window_secs"`
	TokenFile    *string `yaml:"token_file"`
	JWTSecret    *string `yaml:"jwt_secret"`
	MQTTBroker   *string `yaml:"mqtt_broker"`
	NodesHome    *string `yaml:"nodes_home"`
}

// FilePath returns the location of the optional config file: <home>/.bubbaloop/config.yaml.
func FilePath(home string) string {
	return filepath.Join(home, ".bubbaloop", "config.yaml")
}

// loadFileLayer reads the optional config file. A missing file is not an
// error — the layer simply contributes nothing (§6 layering: defaults,
// then file, then environment, each overriding the last).
func loadFileLayer(path string) (fileLayer, error) {
	var fl fileLayer
	if path == "" {
		return fl, nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fl, nil
	}
	if err != nil {
		return fl, err
	}
	if err := yaml.Unmarshal(b, &fl); err != nil {
		return fl, err
	}
	return fl, nil
}

func (fl fileLayer) apply(c *Config) {
	if fl.HTTPPort != nil {
		c.HTTPPort = *fl.HTTPPort
	}
	if fl.PubSubPrefix != nil {
		c.PubSubPrefix = *fl.PubSubPrefix
	}
	if fl.HealthWindow != nil {
		c.HealthWindow = time.Duration(*fl.HealthWindow) * time.Second
	}
	if fl.TokenFile != nil {
		c.TokenFile = *fl.TokenFile
	}
	if fl.JWTSecret != nil {
		c.JWTSecret = *fl.JWTSecret
	}
	if fl.MQTTBroker != nil {
		c.MQTTBroker = *fl.MQTTBroker
	}
	if fl.NodesHome != nil {
		c.NodesHome = *fl.NodesHome
	}
}

// Load resolves configuration in three layers: compiled-in defaults, the
// optional ~/.bubbaloop/config.yaml file, then environment variables,
// each later layer overriding the former (§6).
func Load() (Config, error) {
	c := Config{
		HTTPPort:     defaultHTTPPort,
		PubSubPrefix: defaultPubSubPrefix,
		HealthWindow: defaultHealthWindow,
		MQTTBroker:   defaultMQTTBroker,
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		fl, ferr := loadFileLayer(FilePath(home))
		if ferr != nil {
			return Config{}, ferr
		}
		fl.apply(&c)
	}

	if v := os.Getenv(envHTTPPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		c.HTTPPort = port
	}

	if v := os.Getenv(envPubSubPrefix); v != "" {
		c.PubSubPrefix = v
	}

	if v := os.Getenv(envHealthWindow); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		c.HealthWindow = time.Duration(secs) * time.Second
	}

	if v := os.Getenv(envTokenFile); v != "" {
		c.TokenFile = v
	}
	if v := os.Getenv(envJWTSecret); v != "" {
		c.JWTSecret = v
	}

	if v := os.Getenv(envMQTTBroker); v != "" {
		c.MQTTBroker = v
	}

	if v := os.Getenv(envNodesHome); v != "" {
		c.NodesHome = v
	}

	c.MachineID = resolveMachineID()

	return c, nil
}

// resolveMachineID honors an explicit env override first; otherwise it
// derives one from the hostname. Either way every '-' is replaced with '_' since
// the pub/sub key grammar treats '-' as a path separator in some
// brokers' topic ACL matching and this daemon standardizes on
// underscores for any identifier that lands in a topic segment.
func resolveMachineID() string {
	if v := os.Getenv(envMachineID); v != "" {
		return strings.ReplaceAll(v, "-", "_")
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return strings.ReplaceAll(host, "-", "_")
}
