// Package session models the three step editing flow as immutable state
// snapshots. Transitions are computed by Reduce and never mutate their
// input; the Store swaps whole values per session.
package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
	"github.com/MeKo-Tech/glasscanvas/internal/pipeline"
)

// Step is the position in the upload, studio, trace flow.
type Step int

const (
	StepUpload Step = iota
	StepStudio
	StepTrace
)

var stepNames = [...]string{"upload", "studio", "trace"}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// MarshalText encodes the step by name.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a step name.
func (s *Step) UnmarshalText(text []byte) error {
	st, err := ParseStep(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseStep parses a step name.
func ParseStep(name string) (Step, error) {
	for i, n := range stepNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Step(i), nil
		}
	}
	return StepUpload, fmt.Errorf("unknown step %q", name)
}

// State is one immutable snapshot of an editing session.
type State struct {
	Step      Step
	Source    *imgbuf.Buffer
	Processed *imgbuf.Buffer
	Params    pipeline.Params
	// Err holds the message of the last failed render or rejected action.
	Err string
	// Revision changes whenever Source or Params change. A render result
	// is only accepted for the revision it was computed from.
	Revision uint64
	// Version counts every accepted transition.
	Version uint64
}

// NewState returns the empty state at the upload step.
func NewState() State {
	return State{Step: StepUpload, Params: pipeline.DefaultParams()}
}

// HasSource reports whether an image was uploaded.
func (s State) HasSource() bool {
	return !s.Source.Empty()
}

// HasRender reports whether a processed image is available.
func (s State) HasRender() bool {
	return !s.Processed.Empty()
}

// Action is a transition request. The set of actions is closed.
type Action interface {
	Name() string
	isAction()
}

type (
	// Upload replaces the source image and clears rotation and the last render.
	Upload struct{ Image *imgbuf.Buffer }
	// Next advances one step.
	Next struct{}
	// Back returns one step.
	Back struct{}
	// RotateLeft turns the image a quarter counter-clockwise.
	RotateLeft struct{}
	// RotateRight turns the image a quarter clockwise.
	RotateRight struct{}
	// SetParams replaces every knob except rotation.
	SetParams struct{ Params pipeline.Params }
	// Rendered records a successful render of Revision.
	Rendered struct {
		Image    *imgbuf.Buffer
		Revision uint64
	}
	// RenderFailed records a failed render of Revision; the last good image stays.
	RenderFailed struct {
		Err      error
		Revision uint64
	}
	// Reset discards everything and returns to the upload step.
	Reset struct{}
)

func (Upload) Name() string       { return "upload" }
func (Next) Name() string         { return "next" }
func (Back) Name() string         { return "back" }
func (RotateLeft) Name() string   { return "rotate_left" }
func (RotateRight) Name() string  { return "rotate_right" }
func (SetParams) Name() string    { return "set_params" }
func (Rendered) Name() string     { return "rendered" }
func (RenderFailed) Name() string { return "render_failed" }
func (Reset) Name() string        { return "reset" }

func (Upload) isAction()       {}
func (Next) isAction()         {}
func (Back) isAction()         {}
func (RotateLeft) isAction()   {}
func (RotateRight) isAction()  {}
func (SetParams) isAction()    {}
func (Rendered) isAction()     {}
func (RenderFailed) isAction() {}
func (Reset) isAction()        {}

// Check reports whether a may be applied to s. Reduce applies the same
// guards; Check lets callers reject a request before doing any work.
func Check(s State, a Action) error {
	switch a := a.(type) {
	case Upload:
		if a.Image.Empty() {
			return fmt.Errorf("%w: empty image", ErrNoSource)
		}
	case Next:
		switch s.Step {
		case StepUpload:
			if !s.HasSource() {
				return fmt.Errorf("%w: upload an image first", ErrNoSource)
			}
		case StepStudio:
			if !s.HasRender() {
				return fmt.Errorf("%w: nothing rendered yet", ErrNoRender)
			}
		}
	case RotateLeft, RotateRight:
		if !s.HasSource() {
			return fmt.Errorf("%w: nothing to rotate", ErrNoSource)
		}
	case SetParams:
		return a.Params.Validate()
	case nil:
		return errors.New("nil action")
	}
	return nil
}

// Reduce returns the state after applying a to s. A rejected action leaves
// the state as is except for Err.
func Reduce(s State, a Action) State {
	if err := Check(s, a); err != nil {
		s.Err = err.Error()
		return s
	}

	switch a := a.(type) {
	case Upload:
		s.Source = a.Image
		s.Processed = nil
		s.Params.Rotation = 0
		s.Err = ""
		if s.Step == StepTrace {
			s.Step = StepStudio
		}
		s.Revision++
	case Next:
		if s.Step < StepTrace {
			s.Step++
		}
		s.Err = ""
	case Back:
		if s.Step > StepUpload {
			s.Step--
		}
		s.Err = ""
	case RotateLeft:
		s.Params.Rotation = (s.Params.Quadrant() + 3) % 4
		s.Revision++
	case RotateRight:
		s.Params.Rotation = (s.Params.Quadrant() + 1) % 4
		s.Revision++
	case SetParams:
		rotation := s.Params.Rotation
		s.Params = a.Params
		s.Params.Rotation = rotation
		s.Revision++
	case Rendered:
		if a.Revision != s.Revision {
			return s
		}
		s.Processed = a.Image
		s.Err = ""
	case RenderFailed:
		if a.Revision != s.Revision {
			return s
		}
		if a.Err != nil {
			s.Err = a.Err.Error()
		}
	case Reset:
		v := s.Version
		s = NewState()
		s.Version = v
	}
	s.Version++
	return s
}
