// Package common holds helpers shared by ledger modules.
package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused rejects every mutation of a paused module.
var ErrModulePaused = errors.New("module paused")

// PauseView reports operator pauses by module name.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when module is paused. A nil view never
// pauses.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
