package common

import (
	"errors"
	"fmt"
)

// Pausable modules.
const (
	ModuleFarm  = "farm"
	ModuleVault = "vault"
)

var (
	ErrModulePaused  = errors.New("module paused")
	ErrUnknownModule = errors.New("unknown module")
)

// PauseView reports whether user-facing entry points of a module are halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when module is paused in p. A nil view
// never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}

// CheckModule rejects names that no engine guards on.
func CheckModule(module string) error {
	switch normalizeModule(module) {
	case ModuleFarm, ModuleVault:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownModule, module)
	}
}
