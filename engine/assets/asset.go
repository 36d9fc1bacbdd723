// Package assets holds GPU assets whose data is prepared off the render goroutine. A loader task
// stores the prepared data and then publishes a ready flag; the render goroutine checks the flag,
// uploads the data once, and binds a fallback placeholder until then.
package assets

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrNotReady is returned by Upload when the asset data has not been published yet.
var ErrNotReady = errors.New("asset not ready")

// State is the upload state of an asset.
type State int32

const (
	// StatePending means the data is still being prepared.
	StatePending State = iota
	// StateReady means the data is published and waiting for upload.
	StateReady
	// StateUploaded means the GPU copy exists.
	StateUploaded
	// StateFailed means preparation or upload failed; the fallback stays bound.
	StateFailed
	// StateReleased means the GPU copy was released.
	StateReleased
)

var stateNames = [...]string{"pending", "ready", "uploaded", "failed", "released"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// asset is the publish/upload bookkeeping shared by Texture and Mesh. The data fields of the
// owning type are written before ready is stored and only read after ready is loaded.
type asset struct {
	id    uuid.UUID
	label string
	ready atomic.Bool
	state atomic.Int32
	err   error
}

func newAsset(label string) asset {
	return asset{id: uuid.New(), label: label}
}

// ID returns the unique id of the asset.
func (a *asset) ID() uuid.UUID {
	return a.id
}

// Label returns the debug label of the asset.
func (a *asset) Label() string {
	return a.label
}

// Ready reports whether the prepared data has been published.
func (a *asset) Ready() bool {
	return a.ready.Load()
}

// State returns the current upload state.
func (a *asset) State() State {
	return State(a.state.Load())
}

// Err returns the preparation or upload error of a failed asset.
func (a *asset) Err() error {
	if !a.ready.Load() {
		return nil
	}
	return a.err
}

// publish must be called after the owner's data fields are written.
func (a *asset) publish(err error) {
	a.err = err
	if err != nil {
		a.state.Store(int32(StateFailed))
	} else {
		a.state.Store(int32(StateReady))
	}
	a.ready.Store(true)
}

// beginUpload moves a ready asset into the upload step exactly once.
func (a *asset) beginUpload() (bool, error) {
	if !a.ready.Load() {
		return false, fmt.Errorf("upload %q: %w", a.label, ErrNotReady)
	}
	switch State(a.state.Load()) {
	case StateFailed:
		return false, fmt.Errorf("upload %q: %w", a.label, a.err)
	case StateReady:
		return true, nil
	}
	return false, nil
}

func (a *asset) fail(err error) error {
	a.err = err
	a.state.Store(int32(StateFailed))
	return err
}
