package svcmgr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	sddbus "github.com/coreos/go-systemd/v22/dbus"

	"github.com/bubbaloop/bubbaloopd/cmn/nlog"
	"github.com/bubbaloop/bubbaloopd/internal/errs"
)

const unitPrefix = "bubbaloop-"

// Systemd drives the host's systemd user instance over D-Bus. One
// connection is opened per call rather than held open across the
// process lifetime, mirroring the source's SystemdClient::new()-per-
// operation shape — cheap relative to the bus round trip itself, and it
// sidesteps reconnect logic entirely.
type Systemd struct{}

func NewSystemd() *Systemd { return &Systemd{} }

func (s *Systemd) conn(ctx context.Context) (*sddbus.Conn, error) {
	c, err := sddbus.NewUserConnectionContext(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindServiceManager, err, "connecting to systemd user bus")
	}
	return c, nil
}

func (s *Systemd) ServiceName(name string) string { return unitPrefix + name + ".service" }

func (s *Systemd) ActiveState(ctx context.Context, unit string) (ActiveState, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return ActiveUnknown, err
	}
	defer c.Close()

	prop, err := c.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		// load_unit/get-property both fail the same way for a unit that
		// was never loaded; that is "not installed", not a bus error.
		return ActiveUnknown, nil
	}
	str, ok := prop.Value.Value().(string)
	if !ok {
		return ActiveUnknown, nil
	}
	return ActiveStateFromString(str), nil
}

func (s *Systemd) UnitFileState(ctx context.Context, unit string) (UnitFileState, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return UnitFileUnknown, err
	}
	defer c.Close()

	state, err := c.GetUnitFileStateContext(ctx, unit)
	if err != nil {
		return UnitFileUnknown, nil
	}
	return UnitFileStateFromString(state), nil
}

// Start submits a start job and returns once systemd has accepted it; it
// does not wait for the unit to reach a terminal state (§4.1 — the caller
// is expected to follow up with a reconciliation, e.g. polling ActiveState).
// The job channel is buffered so the eventual "done"/"failed" result can be
// dropped on the floor without leaking the dbus dispatch goroutine.
func (s *Systemd) Start(ctx context.Context, unit string) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	ch := make(chan string, 1)
	if _, err := c.StartUnitContext(ctx, unit, "replace", ch); err != nil {
		return errs.Wrap(errs.KindServiceManager, err, "starting %s", unit)
	}
	return nil
}

// Stop submits a stop job without waiting for it to complete; see Start.
func (s *Systemd) Stop(ctx context.Context, unit string) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	ch := make(chan string, 1)
	if _, err := c.StopUnitContext(ctx, unit, "replace", ch); err != nil {
		return errs.Wrap(errs.KindServiceManager, err, "stopping %s", unit)
	}
	return nil
}

// Restart submits a restart job without waiting for it to complete; see Start.
func (s *Systemd) Restart(ctx context.Context, unit string) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	ch := make(chan string, 1)
	if _, err := c.RestartUnitContext(ctx, unit, "replace", ch); err != nil {
		return errs.Wrap(errs.KindServiceManager, err, "restarting %s", unit)
	}
	return nil
}

func (s *Systemd) Enable(ctx context.Context, unit string) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	if _, _, err := c.EnableUnitFilesContext(ctx, []string{unit}, false, false); err != nil {
		return errs.Wrap(errs.KindServiceManager, err, "enabling %s", unit)
	}
	return nil
}

func (s *Systemd) Disable(ctx context.Context, unit string) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	if _, err := c.DisableUnitFilesContext(ctx, []string{unit}, false); err != nil {
		return errs.Wrap(errs.KindServiceManager, err, "disabling %s", unit)
	}
	return nil
}

func (s *Systemd) Reload(ctx context.Context) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.ReloadContext(ctx); err != nil {
		return errs.Wrap(errs.KindServiceManager, err, "daemon-reload")
	}
	return nil
}

func (s *Systemd) Install(ctx context.Context, nodeDir, name, nodeType, command string) error {
	dir := UserDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.KindServiceManager, err, "creating %s", dir)
	}
	unit := s.ServiceName(name)
	content := GenerateUnit(nodeDir, name, nodeType, command)
	path := filepath.Join(dir, unit)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return errs.Wrap(errs.KindServiceManager, err, "writing %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.KindServiceManager, err, "renaming %s", tmp)
	}
	if err := s.Reload(ctx); err != nil {
		return err
	}
	nlog.Infof("svcmgr: installed unit %s", path)
	return nil
}

func (s *Systemd) Uninstall(ctx context.Context, name string) error {
	unit := s.ServiceName(name)
	if err := s.Stop(ctx, unit); err != nil {
		nlog.Warningf("svcmgr: stop %s during uninstall: %v", unit, err)
	}
	if err := s.Disable(ctx, unit); err != nil {
		nlog.Warningf("svcmgr: disable %s during uninstall: %v", unit, err)
	}
	path := filepath.Join(UserDir(), unit)
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return errs.Wrap(errs.KindServiceManager, err, "removing %s", path)
		}
	}
	return s.Reload(ctx)
}

func (s *Systemd) IsInstalled(name string) bool {
	_, err := os.Stat(filepath.Join(UserDir(), s.ServiceName(name)))
	return err == nil
}

// UserDir is the per-user systemd unit directory.
func UserDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}
	return filepath.Join(home, ".config/systemd/user")
}

// GenerateUnit synthesises a unit file per §4.1's decision table: working
// directory, ExecStart resolution (cargo-prefixed / explicit / language
// default), environment, and an on-failure restart policy.
func GenerateUnit(nodeDir, name, nodeType, command string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/home/user"
	}
	cargoPath := filepath.Join(home, ".cargo/bin/cargo")
	pathEnv := fmt.Sprintf("PATH=%s:%s:/usr/local/bin:/usr/bin:/bin",
		filepath.Join(home, ".cargo/bin"), filepath.Join(home, ".pixi/bin"))

	var execStart, environment string
	switch {
	case command != "" && len(command) >= 6 && command[:6] == "cargo ":
		execStart = cargoPath + command[5:]
		environment = "RUST_LOG=info"
	case command != "":
		if filepath.IsAbs(command) {
			execStart = command
		} else {
			execStart = filepath.Join(nodeDir, command)
		}
		environment = "RUST_LOG=info"
	case nodeType == "rust":
		execStart = cargoPath + " run --release"
		environment = "RUST_LOG=info"
	default:
		execStart = filepath.Join(nodeDir, "venv/bin/python") + " main.py"
		environment = "PYTHONUNBUFFERED=1"
	}

	return fmt.Sprintf(`[Unit]
Description=Bubbaloop Node: %s
After=network.target

[Service]
Type=simple
WorkingDirectory=%s
ExecStart=%s
Restart=on-failure
RestartSec=5
Environment=%s
Environment=%s

[Install]
WantedBy=default.target
`, name, nodeDir, execStart, environment, pathEnv)
}
