package world

import (
	"errors"
	"fmt"

	"github.com/O7410/Industria/internal/pipe"
	"github.com/O7410/Industria/internal/protocol"
	"github.com/O7410/Industria/internal/sim/grid"
)

// Edit outcomes reported to the recorder.
const (
	OutcomeApplied  = "applied"
	OutcomeNoOp     = "noop"
	OutcomeRejected = "rejected"
)

var (
	ErrUnknownOp      = errors.New("unknown edit op")
	ErrMissingSpec    = errors.New("terminal spec required")
	ErrBadFace        = errors.New("unknown face")
	ErrNegativeAmount = errors.New("negative amount or capacity")
)

// ErrorCode maps an edit error to its protocol code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, pipe.ErrUnknownKind):
		return protocol.ErrUnknownKind
	case errors.Is(err, grid.ErrOccupied):
		return protocol.ErrOccupied
	default:
		return protocol.ErrBadRequest
	}
}

// ValidateEdit checks an edit without touching world state.
func (w *World) ValidateEdit(e protocol.Edit) error {
	switch e.Op {
	case protocol.OpPlacePipe, protocol.OpRemovePipe:
		if _, ok := w.reg.Kind(e.Kind); !ok {
			return fmt.Errorf("%w %q", pipe.ErrUnknownKind, e.Kind)
		}
	case protocol.OpSetTerminal:
		if _, ok := w.reg.Kind(e.Kind); !ok {
			return fmt.Errorf("%w %q", pipe.ErrUnknownKind, e.Kind)
		}
		if e.Terminal == nil {
			return ErrMissingSpec
		}
		if e.Terminal.Amount < 0 || e.Terminal.Capacity < 0 {
			return ErrNegativeAmount
		}
		if _, err := parseFaces(e.Terminal.Faces); err != nil {
			return err
		}
	case protocol.OpRemoveTerminal:
		if e.Kind != "" {
			if _, ok := w.reg.Kind(e.Kind); !ok {
				return fmt.Errorf("%w %q", pipe.ErrUnknownKind, e.Kind)
			}
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownOp, e.Op)
	}
	return nil
}

// applyEdit changes the grid and then tells the pipe editor. Rejected edits
// leave both untouched.
func (w *World) applyEdit(e protocol.Edit) (string, error) {
	if err := w.ValidateEdit(e); err != nil {
		return OutcomeRejected, err
	}
	pos := pipe.PosFromArray(e.Pos)

	switch e.Op {
	case protocol.OpPlacePipe:
		placed, err := w.grid.SetPipe(e.Kind, pos)
		if err != nil {
			return OutcomeRejected, err
		}
		if !placed {
			return OutcomeNoOp, nil
		}
		w.editor.PlacePipe(e.Kind, pos)

	case protocol.OpRemovePipe:
		if !w.grid.RemovePipe(e.Kind, pos) {
			return OutcomeNoOp, nil
		}
		w.editor.RemovePipe(e.Kind, pos)

	case protocol.OpSetTerminal:
		faces, _ := parseFaces(e.Terminal.Faces)
		s := pipe.NewStorage(e.Terminal.Capacity, e.Terminal.Insert, e.Terminal.Extract)
		s.SetAmount(e.Terminal.Amount)
		if err := w.grid.SetTerminal(pos, e.Kind, s, faces); err != nil {
			return OutcomeRejected, err
		}
		w.editor.TerminalChanged(pos)

	case protocol.OpRemoveTerminal:
		if !w.grid.RemoveTerminal(pos, e.Kind) {
			return OutcomeNoOp, nil
		}
		w.editor.TerminalChanged(pos)
	}
	return OutcomeApplied, nil
}

// parseFaces returns nil for an empty list so an existing terminal keeps its
// faces.
func parseFaces(names []string) ([]pipe.Direction, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]pipe.Direction, 0, len(names))
	for _, n := range names {
		d, ok := pipe.ParseDirection(n)
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrBadFace, n)
		}
		out = append(out, d)
	}
	return out, nil
}
