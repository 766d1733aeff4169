package shared

import (
	"errors"
	"fmt"
)

// ErrInvalidScope is returned when a ledger call carries no program
var ErrInvalidScope = errors.New("scope must name a program")

// Scope restricts every ledger read and write to one program.
// It is passed explicitly to repositories instead of living in the request context.
type Scope struct {
	ProgramID int64
}

// ProgramScope returns the scope of a single program
func ProgramScope(programID int64) Scope {
	return Scope{ProgramID: programID}
}

// Validate rejects the zero scope so an unscoped query can never reach the store
func (s Scope) Validate() error {
	if s.ProgramID <= 0 {
		return ErrInvalidScope
	}
	return nil
}

func (s Scope) String() string {
	return fmt.Sprintf("program:%d", s.ProgramID)
}
