package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/govm-net/starksim/core"
)

var ErrCallDepthExceeded = errors.New("call depth exceeded")

// CallFrame is one entry point execution on the call stack.
type CallFrame struct {
	Contract   core.Felt
	Caller     core.Felt
	EntryPoint string
	View       bool
}

func (f CallFrame) String() string {
	return f.Contract.Hex() + "." + f.EntryPoint
}

// CallStack records the contract call hierarchy of one transaction.
type CallStack struct {
	maxDepth int
	frames   []CallFrame
}

// NewCallStack returns a stack holding at most maxDepth frames. Zero means
// unbounded.
func NewCallStack(maxDepth int) *CallStack {
	return &CallStack{maxDepth: maxDepth}
}

// Enter pushes a frame.
func (s *CallStack) Enter(frame CallFrame) error {
	if s.maxDepth > 0 && len(s.frames) >= s.maxDepth {
		return fmt.Errorf("%w: max depth %d, calling %s from %s",
			ErrCallDepthExceeded, s.maxDepth, frame, s.Trace())
	}
	s.frames = append(s.frames, frame)
	return nil
}

// Exit pops the top frame.
func (s *CallStack) Exit() {
	if len(s.frames) > 0 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// Depth returns the number of active frames.
func (s *CallStack) Depth() int {
	return len(s.frames)
}

// Frames returns a copy of the active frames, outermost first.
func (s *CallStack) Frames() []CallFrame {
	return append([]CallFrame(nil), s.frames...)
}

// Trace formats the active frames, outermost first.
func (s *CallStack) Trace() string {
	frames := s.Frames()
	parts := make([]string, len(frames))
	for i, f := range frames {
		parts[i] = f.String()
	}
	return strings.Join(parts, " > ")
}
