package network

import (
	"errors"
	"fmt"

	"sigevo/internal/lineage"
	"sigevo/internal/node"
)

var (
	ErrForeignNode     = errors.New("node claims a different owning network")
	ErrUnaccountedNode = errors.New("node not accounted for by network closure")
	ErrLayoutMismatch  = errors.New("sensor or decision layout mismatch")
	ErrSensorCount     = errors.New("environment sensor slots do not match network")
	ErrInvalidLayout   = errors.New("invalid network layout")
	ErrHashMismatch    = errors.New("lineage hash does not match network content")
)

type Role string

const (
	RoleSensor   Role = "sensor"
	RoleDecision Role = "decision"
	RoleInternal Role = "internal"
)

// StructureError reports a structural invariant violation. The enclosing
// breeding step should discard the genome it names and carry on.
type StructureError struct {
	Genome   lineage.Hash
	Role     Role
	Position int
	Kind     node.Kind
	Err      error
}

func (e *StructureError) Error() string {
	if e.Position >= 0 {
		return fmt.Sprintf("genome %s: %s %d (%s): %v", e.Genome, e.Role, e.Position, e.Kind, e.Err)
	}
	return fmt.Sprintf("genome %s: %s node (%s): %v", e.Genome, e.Role, e.Kind, e.Err)
}

func (e *StructureError) Unwrap() error {
	return e.Err
}

func structureError(genome lineage.Hash, role Role, position int, n node.Node, err error) *StructureError {
	e := &StructureError{Genome: genome, Role: role, Position: position, Err: err}
	if n != nil {
		e.Kind = n.Kind()
	}
	return e
}

// IsStructural reports whether err is a structural invariant violation.
func IsStructural(err error) bool {
	var se *StructureError
	return errors.As(err, &se)
}
