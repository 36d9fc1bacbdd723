package pass

import "fmt"

// State is the lifecycle state of a pass.
type State int

const (
	StateUninitialized State = iota
	StateConfigured
	StateReady
	StateExecuting
	StateCleanedUp
)

var stateNames = [...]string{"uninitialized", "configured", "ready", "executing", "cleaned up"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Lifecycle tracks the state of one pass. Concrete passes embed it and call its guards at the
// start of every Pass method.
type Lifecycle struct {
	name  string
	kind  Kind
	state State
}

// NewLifecycle returns an uninitialized lifecycle for the named pass.
func NewLifecycle(name string, kind Kind) Lifecycle {
	return Lifecycle{name: name, kind: kind}
}

func (l *Lifecycle) Name() string {
	return l.name
}

func (l *Lifecycle) Kind() Kind {
	return l.kind
}

func (l *Lifecycle) State() State {
	return l.state
}

func (l *Lifecycle) errorf(op string, err error) error {
	return &StateError{Pass: l.name, Op: op, State: l.state, Err: err}
}

// BeginAttachments moves an uninitialized pass to configured.
func (l *Lifecycle) BeginAttachments() error {
	if l.state != StateUninitialized {
		return l.errorf("setup attachments", ErrInvalidTransition)
	}
	l.state = StateConfigured
	return nil
}

// RequireConfigured guards the setup steps that run between attachment setup and shader setup.
func (l *Lifecycle) RequireConfigured(op string) error {
	if l.state != StateConfigured {
		return l.errorf(op, ErrInvalidTransition)
	}
	return nil
}

// MarkReady completes setup.
func (l *Lifecycle) MarkReady() {
	l.state = StateReady
}

// BeginExecute moves a ready pass to executing.
//
// Returns:
//   - error: a *StateError wrapping ErrNotReady unless the pass is ready
func (l *Lifecycle) BeginExecute() error {
	if l.state != StateReady {
		return l.errorf("execute", ErrNotReady)
	}
	l.state = StateExecuting
	return nil
}

// EndExecute returns an executing pass to ready.
func (l *Lifecycle) EndExecute() {
	if l.state == StateExecuting {
		l.state = StateReady
	}
}

// RequireReady guards operations that need a fully set up pass.
func (l *Lifecycle) RequireReady(op string) error {
	if l.state != StateReady {
		return l.errorf(op, ErrNotReady)
	}
	return nil
}

// BeginCleanup moves the pass to cleaned up.
//
// Returns:
//   - error: a *StateError wrapping ErrAlreadyCleanedUp on a second call
func (l *Lifecycle) BeginCleanup() error {
	if l.state == StateCleanedUp {
		return l.errorf("cleanup", ErrAlreadyCleanedUp)
	}
	l.state = StateCleanedUp
	return nil
}
