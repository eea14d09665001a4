package svcmgr

import (
	"context"
	"sync"
)

// Fake is an in-memory Manager used by node-manager tests so scenarios
// S1-S6 (spec §8) don't require a live systemd user session.
type Fake struct {
	mu        sync.Mutex
	active    map[string]ActiveState
	unitFile  map[string]UnitFileState
	installed map[string]bool
	units     map[string]string // unit -> generated content
}

func NewFake() *Fake {
	return &Fake{
		active:    map[string]ActiveState{},
		unitFile:  map[string]UnitFileState{},
		installed: map[string]bool{},
		units:     map[string]string{},
	}
}

func (f *Fake) ServiceName(name string) string { return unitPrefix + name + ".service" }

func (f *Fake) ActiveState(_ context.Context, unit string) (ActiveState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.active[unit]; ok {
		return s, nil
	}
	return ActiveUnknown, nil
}

func (f *Fake) UnitFileState(_ context.Context, unit string) (UnitFileState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.unitFile[unit]; ok {
		return s, nil
	}
	return UnitFileUnknown, nil
}

func (f *Fake) Start(_ context.Context, unit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[unit] = Active
	return nil
}

func (f *Fake) Stop(_ context.Context, unit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[unit] = Inactive
	return nil
}

func (f *Fake) Restart(_ context.Context, unit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[unit] = Active
	return nil
}

func (f *Fake) Enable(_ context.Context, unit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unitFile[unit] = Enabled
	return nil
}

func (f *Fake) Disable(_ context.Context, unit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unitFile[unit] = Disabled
	return nil
}

func (f *Fake) Reload(_ context.Context) error { return nil }

func (f *Fake) Install(_ context.Context, nodeDir, name, nodeType, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	unit := f.ServiceName(name)
	f.units[unit] = GenerateUnit(nodeDir, name, nodeType, command)
	f.installed[unit] = true
	f.active[unit] = Inactive
	f.unitFile[unit] = Disabled
	return nil
}

func (f *Fake) Uninstall(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	unit := f.ServiceName(name)
	delete(f.units, unit)
	delete(f.installed, unit)
	delete(f.active, unit)
	delete(f.unitFile, unit)
	return nil
}

func (f *Fake) IsInstalled(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installed[f.ServiceName(name)]
}

// SetActiveState lets a test simulate an externally-driven state change.
func (f *Fake) SetActiveState(unit string, s ActiveState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[unit] = s
}
