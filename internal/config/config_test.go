package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveMachineIDReplacesDashes(t *testing.T) {
	t.Setenv(envMachineID, "edge-node-07")
	if got := resolveMachineID(); got != "edge_node_07" {
		t.Errorf("got %q, want edge_node_07", got)
	}
}

func TestResolveMachineIDFallsBackToHostname(t *testing.T) {
	os.Unsetenv(envMachineID)
	got := resolveMachineID()
	if got == "" {
		t.Error("expected a non-empty machine id")
	}
}

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv(envHTTPPort)
	os.Unsetenv(envPubSubPrefix)
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.HTTPPort != defaultHTTPPort {
		t.Errorf("got port %d, want %d", c.HTTPPort, defaultHTTPPort)
	}
	if c.PubSubPrefix != defaultPubSubPrefix {
		t.Errorf("got prefix %q, want %q", c.PubSubPrefix, defaultPubSubPrefix)
	}
}

func TestLoadHTTPPortOverride(t *testing.T) {
	t.Setenv(envHTTPPort, "9090")
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.HTTPPort != 9090 {
		t.Errorf("got %d, want 9090", c.HTTPPort)
	}
}

func TestLoadFileLayerThenEnvOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	os.Unsetenv(envHTTPPort)
	os.Unsetenv(envMQTTBroker)

	if err := os.MkdirAll(filepath.Join(home, ".bubbaloop"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := "http_port: 9500\nmqtt_broker: \"tcp://fromfile:1883\"\n"
	if err := os.WriteFile(FilePath(home), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.HTTPPort != 9500 {
		t.Errorf("file layer not applied: got port %d, want 9500", c.HTTPPort)
	}
	if c.MQTTBroker != "tcp://fromfile:1883" {
		t.Errorf("file layer not applied: got broker %q", c.MQTTBroker)
	}

	t.Setenv(envHTTPPort, "9600")
	c2, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c2.HTTPPort != 9600 {
		t.Errorf("env should override file layer: got %d, want 9600", c2.HTTPPort)
	}
	if c2.MQTTBroker != "tcp://fromfile:1883" {
		t.Errorf("env absent for broker, file value should survive: got %q", c2.MQTTBroker)
	}
}
