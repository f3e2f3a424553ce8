package equipment

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Controller exposes verified state operations over a Driver.
//
// SetState serializes the write/read-back pair per kind, so a delta-triggered
// write and a direct control write for the same kind cannot interleave. The
// returned value is always read back from hardware, never an echo of the
// request.
type Controller struct {
	driver Driver
	locks  map[Kind]*sync.Mutex
}

// New creates a Controller over the given driver.
func New(driver Driver) *Controller {
	locks := make(map[Kind]*sync.Mutex, len(Kinds()))
	for _, kind := range Kinds() {
		locks[kind] = &sync.Mutex{}
	}
	return &Controller{
		driver: driver,
		locks:  locks,
	}
}

// SetState drives the equipment to the requested state and returns the state
// read back from hardware afterwards. A verified value differing from the
// request is not an error; the caller decides how to surface the mismatch.
func (c *Controller) SetState(kind Kind, active bool) (bool, error) {
	lock, ok := c.locks[kind]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	lock.Lock()
	defer lock.Unlock()

	if err := c.driver.Write(kind, active); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", kind, err)
	}

	verified, err := c.driver.Read(kind)
	if err != nil {
		return false, fmt.Errorf("failed to read back %s: %w", kind, err)
	}

	log.Debug().Str("kind", string(kind)).Bool("requested", active).Bool("actual", verified).Msg("Equipment state set")
	return verified, nil
}

// GetState reads the current state of one kind from hardware. Reads are
// lock-free; a concurrent write may be observed mid-transition.
func (c *Controller) GetState(kind Kind) (bool, error) {
	if _, ok := c.locks[kind]; !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return c.driver.Read(kind)
}

// AllStates reads the current state of every kind from hardware.
func (c *Controller) AllStates() (map[Kind]bool, error) {
	states := make(map[Kind]bool, len(c.locks))
	for _, kind := range Kinds() {
		active, err := c.driver.Read(kind)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", kind, err)
		}
		states[kind] = active
	}
	return states, nil
}

// AllOff drives every output to the inactive state. Used to reach a safe
// state before shutdown.
func (c *Controller) AllOff() error {
	var firstErr error
	for _, kind := range Kinds() {
		if _, err := c.SetState(kind, false); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close releases the underlying driver.
func (c *Controller) Close() error {
	return c.driver.Close()
}
