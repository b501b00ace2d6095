package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"hemtjan.st/meter2car/config"
	"hemtjan.st/meter2car/goe"
	"hemtjan.st/meter2car/meter"
	"hemtjan.st/meter2car/metrics"
)

// Range of currents a car is expected to accept
const (
	minCarAmpere = 6
	maxCarAmpere = 16
)

type Meter interface {
	Read() (*meter.Reading, error)
}

type Charger interface {
	Status(ctx context.Context) (*goe.Status, error)
	SetChargingAllowed(ctx context.Context, allowed bool) error
	SetAmpere(ctx context.Context, ampere int) error
}

// Health describes how the control loop is doing.
type Health struct {
	Healthy     bool      `json:"healthy"`
	LastSuccess time.Time `json:"lastSuccess"`
	LastError   string    `json:"lastError,omitempty"`
	Iterations  uint64    `json:"iterations"`
}

// Controller throttles the charger to the power the house exports.
type Controller struct {
	meter   Meter
	charger Charger
	cfg     config.ControlConfig

	carAverage       *RunningAverage
	availableAverage *RunningAverage
	offCounter       int

	onReading func(*meter.Reading)
	sleep     func(context.Context, time.Duration) error
	now       func() time.Time
	log       *zap.Logger
	metrics   *metrics.AppMetrics

	mu          sync.Mutex
	lastSuccess time.Time
	lastErr     error
	iterations  uint64
}

type Option func(*Controller)

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

func WithMetrics(m *metrics.AppMetrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithReadingHook registers a function called with every successful meter reading.
func WithReadingHook(fn func(*meter.Reading)) Option {
	return func(c *Controller) {
		c.onReading = fn
	}
}

// WithSleep replaces the function used to wait between iterations and
// before allowing charging.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Controller) {
		c.sleep = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

func New(m Meter, ch Charger, cfg config.ControlConfig, opts ...Option) *Controller {
	c := &Controller{
		meter:            m,
		charger:          ch,
		cfg:              cfg,
		carAverage:       NewRunningAverage(cfg.Window),
		availableAverage: NewRunningAverage(cfg.Window),
		sleep:            sleep,
		now:              time.Now,
		log:              zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastSuccess = c.now()
	return c
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run calls Step once per period until ctx is done. Failed iterations are
// logged and retried on the next period.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info("starting control loop", zap.Duration("period", c.cfg.Period))
	for {
		if err := c.Step(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("control iteration failed", zap.Error(err))
		}
		if err := c.sleep(ctx, c.cfg.Period); err != nil {
			c.log.Info("control loop stopped")
			return nil
		}
	}
}

// Step runs one iteration: read the meter, fetch the charger status and
// adjust the charger.
func (c *Controller) Step(ctx context.Context) (err error) {
	ampere := -1
	defer func() {
		// The off counter counts iterations, successful or not
		c.offCounter++
		c.metrics.Iteration(ampere, err)
		c.record(err)
	}()

	r, err := c.meter.Read()
	if err != nil {
		return fmt.Errorf("reading meter: %w", err)
	}
	if c.onReading != nil {
		c.onReading(r)
	}
	available := int64(r.AvailablePower())

	status, err := c.charger.Status(ctx)
	if err != nil {
		return fmt.Errorf("fetching charger status: %w", err)
	}
	ampere = int(status.Ampere)
	c.log.Info("status",
		zap.Int64("available", available),
		zap.Stringer("car", status.ChargingStatus),
		zap.Uint8("ampere", status.Ampere),
		zap.Uint32("power", status.TotalPower),
		zap.Bool("allowed", status.ChargingAllowed),
		zap.Uint8("phases", status.Phases),
	)

	phases := int64(status.Phases)
	if phases < 1 {
		phases = 1
	}
	if status.ChargingAllowed {
		if status.ChargingStatus != goe.Charging {
			c.log.Debug("charging allowed but car is not charging")
			return nil
		}
		return c.throttle(ctx, status, available, phases)
	}
	return c.tryEnable(ctx, status, available, phases)
}

// throttle follows the power available for the car while it charges, and
// turns charging off when it stays too low.
func (c *Controller) throttle(ctx context.Context, status *goe.Status, available, phases int64) error {
	c.carAverage.Add(available + int64(status.TotalPower))
	avg := c.carAverage.Average()
	c.metrics.SetAverage("car", avg)
	desired := avg / (int64(c.cfg.Voltage) * phases)
	threshold := int64(c.cfg.TurnOff) * phases
	c.log.Info("power for car",
		zap.Int64("average", avg),
		zap.Int64("turnOff", threshold),
		zap.Int("offCounter", c.offCounter),
	)

	if c.offCounter >= c.cfg.OffPolls {
		if avg < threshold {
			c.log.Info("disabling charging", zap.Int64("average", avg), zap.Int64("turnOff", threshold))
			if err := c.charger.SetChargingAllowed(ctx, false); err != nil {
				return fmt.Errorf("disabling charging: %w", err)
			}
			c.carAverage.Deinit()
		}
		c.offCounter = 0
	}

	if desired != int64(status.Ampere) {
		if desired < minCarAmpere || desired > maxCarAmpere {
			c.log.Info("desired ampere out of range", zap.Int64("desired", desired))
		}
		c.log.Info("setting ampere", zap.Int64("desired", desired), zap.Uint8("current", status.Ampere))
		if err := c.charger.SetAmpere(ctx, int(desired)); err != nil {
			return fmt.Errorf("setting ampere: %w", err)
		}
	}
	return nil
}

// tryEnable turns charging on once enough power has been available for a
// while and a car is waiting.
func (c *Controller) tryEnable(ctx context.Context, status *goe.Status, available, phases int64) error {
	c.availableAverage.Add(available)
	avg := c.availableAverage.Average()
	c.metrics.SetAverage("available", avg)
	c.log.Info("average available power", zap.Int64("average", avg))

	if status.ChargingStatus != goe.Finished && status.ChargingStatus != goe.Waiting {
		return nil
	}
	if avg <= int64(c.cfg.TurnOn)*phases {
		return nil
	}

	ampere := avg / (int64(c.cfg.Voltage) * phases)
	c.log.Info("enabling charging", zap.Int64("ampere", ampere))
	if err := c.charger.SetAmpere(ctx, int(ampere)); err != nil {
		return fmt.Errorf("setting ampere: %w", err)
	}
	if err := c.sleep(ctx, c.cfg.SettleDelay); err != nil {
		return err
	}
	if err := c.charger.SetChargingAllowed(ctx, true); err != nil {
		return fmt.Errorf("enabling charging: %w", err)
	}
	return nil
}

func (c *Controller) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iterations++
	c.lastErr = err
	if err == nil {
		c.lastSuccess = c.now()
	}
}

// Health reports the loop as healthy while the last successful iteration is
// at most three periods old.
func (c *Controller) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := Health{
		Healthy:     c.now().Sub(c.lastSuccess) <= 3*c.cfg.Period,
		LastSuccess: c.lastSuccess,
		Iterations:  c.iterations,
	}
	if c.lastErr != nil {
		h.LastError = c.lastErr.Error()
	}
	return h
}
