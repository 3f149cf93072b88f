package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
)

// Clock is the single source of "now" for the workflow engine
type Clock interface {
	GetCurrentTime() time.Time
}

// ClockService provides wall or simulated time. Simulation is toggled by an
// operator and only moves when advanced or set explicitly.
type ClockService struct {
	mu        sync.Mutex
	simulated bool
	current   time.Time
	lastWall  time.Time
	wall      func() time.Time
	loc       *time.Location
	subs      map[int]func(time.Time)
	nextSubID int
	logger    zerolog.Logger
}

// ClockOption configures a ClockService
type ClockOption func(*ClockService)

// WithWallClock replaces time.Now as the wall time source.
func WithWallClock(now func() time.Time) ClockOption {
	return func(c *ClockService) { c.wall = now }
}

func WithClockLogger(logger zerolog.Logger) ClockOption {
	return func(c *ClockService) { c.logger = logger }
}

// NewClockService creates a clock in real-time mode
func NewClockService(loc *time.Location, opts ...ClockOption) *ClockService {
	if loc == nil {
		loc = time.Local
	}
	c := &ClockService{
		wall:   time.Now,
		loc:    loc,
		subs:   make(map[int]func(time.Time)),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetCurrentTime returns the simulated instant in simulated mode, else wall time.
func (c *ClockService) GetCurrentTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *ClockService) nowLocked() time.Time {
	if c.simulated {
		return c.current
	}
	c.lastWall = c.wall()
	return c.lastWall
}

// ToggleSimulation flips the mode. Entering simulation starts from the last wall
// time read so the displayed time does not jump.
func (c *ClockService) ToggleSimulation() entities.ClockMode {
	c.mu.Lock()
	if c.simulated {
		c.simulated = false
		c.lastWall = c.wall()
	} else {
		seed := c.lastWall
		if seed.IsZero() {
			seed = c.wall()
		}
		c.simulated = true
		c.current = seed
	}
	mode := c.modeLocked()
	c.mu.Unlock()

	c.logger.Info().Bool("simulated", mode.Simulated).Time("instant", mode.CurrentInstant).Msg("clock mode toggled")
	c.notify(mode.CurrentInstant)
	return mode
}

// Advance moves simulated time forward by delta. In real-time mode, or when delta
// is not positive, it does nothing and returns the current time. SetTime is the
// only way to move simulated time backwards.
func (c *ClockService) Advance(delta time.Duration) time.Time {
	c.mu.Lock()
	if !c.simulated || delta <= 0 {
		now := c.nowLocked()
		c.mu.Unlock()
		return now
	}
	c.current = c.current.Add(delta)
	now := c.current
	c.mu.Unlock()

	c.notify(now)
	return now
}

// SetTime jumps simulated time to t.
func (c *ClockService) SetTime(t time.Time) error {
	if t.IsZero() {
		return apperrors.NewValidationError("time is required")
	}

	c.mu.Lock()
	if !c.simulated {
		c.mu.Unlock()
		return apperrors.NewValidationError("clock is not in simulated mode")
	}
	c.current = t
	c.mu.Unlock()

	c.notify(t)
	return nil
}

// FormatTime renders t as a clinic wall-clock label, e.g. "9:05 AM".
func (c *ClockService) FormatTime(t time.Time) string {
	return t.In(c.loc).Format("3:04 PM")
}

func (c *ClockService) Mode() entities.ClockMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modeLocked()
}

func (c *ClockService) modeLocked() entities.ClockMode {
	return entities.ClockMode{Simulated: c.simulated, CurrentInstant: c.nowLocked()}
}

func (c *ClockService) IsSimulated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.simulated
}

func (c *ClockService) Location() *time.Location {
	return c.loc
}

// Subscribe registers fn for every time change. Callbacks run synchronously on the
// goroutine that changed the time and must not call back into the clock's setters.
func (c *ClockService) Subscribe(fn func(time.Time)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *ClockService) notify(t time.Time) {
	c.mu.Lock()
	fns := make([]func(time.Time), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(t)
	}
}

// Run delivers wall-clock ticks to subscribers until ctx is done. Ticks are
// skipped while simulated.
func (c *ClockService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.simulated {
				c.mu.Unlock()
				continue
			}
			now := c.nowLocked()
			c.mu.Unlock()
			c.notify(now)
		}
	}
}
