// Package svcmgr talks to the OS service manager over its control bus:
// start/stop/restart/enable/disable units, query active and enabled
// state, write and remove unit files, reload. The production
// implementation (systemd.go) drives systemd's user D-Bus session;
// Fake (fake.go) backs tests without a live systemd.
package svcmgr

import "context"

type ActiveState int

const (
	ActiveUnknown ActiveState = iota
	Active
	Reloading
	Inactive
	Failed
	Activating
	Deactivating
)

func (a ActiveState) String() string {
	switch a {
	case Active:
		return "active"
	case Reloading:
		return "reloading"
	case Inactive:
		return "inactive"
	case Failed:
		return "failed"
	case Activating:
		return "activating"
	case Deactivating:
		return "deactivating"
	default:
		return "unknown"
	}
}

func ActiveStateFromString(s string) ActiveState {
	switch s {
	case "active":
		return Active
	case "reloading":
		return Reloading
	case "inactive":
		return Inactive
	case "failed":
		return Failed
	case "activating":
		return Activating
	case "deactivating":
		return Deactivating
	default:
		return ActiveUnknown
	}
}

type UnitFileState int

const (
	UnitFileUnknown UnitFileState = iota
	Enabled
	Disabled
	Static
	Masked
	Generated
	Transient
)

func UnitFileStateFromString(s string) UnitFileState {
	switch s {
	case "enabled":
		return Enabled
	case "disabled":
		return Disabled
	case "static":
		return Static
	case "masked":
		return Masked
	case "generated":
		return Generated
	case "transient":
		return Transient
	default:
		return UnitFileUnknown
	}
}

// Manager is the adapter contract (C1). Every method that talks to the
// bus takes a context so callers can bound a single attempt; none of
// these retry internally (§5: "retries are a client concern").
type Manager interface {
	ActiveState(ctx context.Context, unit string) (ActiveState, error)
	UnitFileState(ctx context.Context, unit string) (UnitFileState, error)
	Start(ctx context.Context, unit string) error
	Stop(ctx context.Context, unit string) error
	Restart(ctx context.Context, unit string) error
	Enable(ctx context.Context, unit string) error
	Disable(ctx context.Context, unit string) error
	Reload(ctx context.Context) error

	// Install writes a unit file for name, deriving ExecStart from
	// nodeType/command per the decision table in §4.1, and reloads.
	Install(ctx context.Context, nodeDir, name, nodeType, command string) error
	// Uninstall stops and disables the unit (swallowing errors so a
	// half-installed unit can be cleaned up idempotently), removes the
	// unit file if present, and reloads.
	Uninstall(ctx context.Context, name string) error
	IsInstalled(name string) bool

	ServiceName(name string) string
}
