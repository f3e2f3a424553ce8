package equipment

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/warthog618/go-gpiocdev"
)

// GPIOD drives relay outputs through the Linux GPIO character device.
// The relay boards this targets are active-low: line value 0 energizes the
// output, so all lines are initialized to the inactive level on request.
type GPIOD struct {
	lines     map[Kind]*gpiocdev.Line
	activeLow bool
}

// NewGPIOD requests the configured pins as outputs, driven to the inactive
// level.
func NewGPIOD(chip string, pins map[Kind]int, activeLow bool) (*GPIOD, error) {
	g := &GPIOD{
		lines:     make(map[Kind]*gpiocdev.Line, len(pins)),
		activeLow: activeLow,
	}

	for kind, pin := range pins {
		line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(g.level(false)))
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to request line %d (%s): %w", pin, kind, err)
		}
		g.lines[kind] = line
		log.Info().Str("chip", chip).Int("pin", pin).Str("kind", string(kind)).Msg("GPIO line initialized to OFF")
	}

	return g, nil
}

// level maps a logical active flag to the electrical line value.
func (g *GPIOD) level(active bool) int {
	if active == g.activeLow {
		return 0
	}
	return 1
}

// Write drives the line for the given kind.
func (g *GPIOD) Write(kind Kind, active bool) error {
	line, ok := g.lines[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := line.SetValue(g.level(active)); err != nil {
		return fmt.Errorf("failed to set line for %s: %w", kind, err)
	}
	return nil
}

// Read returns the current line state for the given kind.
func (g *GPIOD) Read(kind Kind) (bool, error) {
	line, ok := g.lines[kind]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read line for %s: %w", kind, err)
	}
	return v == g.level(true), nil
}

// Close releases all requested lines.
func (g *GPIOD) Close() error {
	var firstErr error
	for kind, line := range g.lines {
		if err := line.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close line for %s: %w", kind, err)
		}
	}
	return firstErr
}
