package meter

import (
	"errors"
	"fmt"
	"io"

	"github.com/stianeikeland/go-rpio"
	"github.com/tarm/serial"
	"go.uber.org/zap"

	"hemtjan.st/meter2car/config"
	"hemtjan.st/meter2car/dlms"
	"hemtjan.st/meter2car/hdlc"
	"hemtjan.st/meter2car/metrics"
)

// Port is the serial line the meter pushes its readings on.
type Port interface {
	io.Reader
	// Flush discards unread input
	Flush() error
}

// Pin is the output that makes the meter transmit while it is high.
type Pin interface {
	High()
	Low()
}

// Meter is a session with one meter. It must not be used concurrently.
type Meter struct {
	port      Port
	pin       Pin
	reader    *hdlc.Reader
	decrypter *dlms.Decrypter
	closer    func() error
	closed    bool

	log       *zap.Logger
	metrics   *metrics.AppMetrics
	llc       bool
	maxFrames int
}

type Option func(*Meter)

func WithLogger(l *zap.Logger) Option {
	return func(m *Meter) {
		m.log = l
	}
}

func WithMetrics(am *metrics.AppMetrics) Option {
	return func(m *Meter) {
		m.metrics = am
	}
}

// WithLLC expects an LLC header in front of every information field.
func WithLLC() Option {
	return func(m *Meter) {
		m.llc = true
	}
}

// WithMaxFrames limits how many frames a single read consumes while waiting
// for a complete APDU.
func WithMaxFrames(n int) Option {
	return func(m *Meter) {
		if n > 0 {
			m.maxFrames = n
		}
	}
}

// New creates a session on an already opened port and pin.
func New(port Port, pin Pin, d *dlms.Decrypter, opts ...Option) *Meter {
	m := &Meter{
		port:      port,
		pin:       pin,
		decrypter: d,
		log:       zap.NewNop(),
		maxFrames: 8,
	}
	for _, opt := range opts {
		opt(m)
	}

	ropts := []hdlc.Option{
		hdlc.WithResyncHook(func(dropped byte, reason error) {
			m.metrics.Resync()
			m.log.Debug("resync", zap.Uint8("dropped", dropped), zap.Error(reason))
		}),
	}
	if m.llc {
		ropts = append(ropts, hdlc.WithLLC())
	}
	m.reader = hdlc.NewReader(port, ropts...)
	return m
}

// Open opens the serial device and the wake pin described by cfg.
func Open(cfg config.MeterConfig, d *dlms.Decrypter, opts ...Option) (*Meter, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Device, err)
	}

	if err := rpio.Open(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("opening gpio: %w", err)
	}
	pin := rpio.Pin(cfg.Pin)
	pin.Output()
	pin.Low()

	base := []Option{WithMaxFrames(cfg.MaxFrames)}
	if cfg.LLC {
		base = append(base, WithLLC())
	}
	m := New(port, pin, d, append(base, opts...)...)
	m.closer = func() error {
		pin.Low()
		return errors.Join(rpio.Close(), port.Close())
	}
	return m, nil
}

// Read wakes the meter and returns the next reading it sends. The wake pin
// is low again when Read returns.
func (m *Meter) Read() (*Reading, error) {
	apdu, err := m.receive()
	if err != nil {
		m.metrics.Read(0, err)
		return nil, err
	}
	r, err := ParseReading(apdu)
	if err != nil {
		m.metrics.Read(0, err)
		return nil, err
	}
	m.metrics.Read(r.AvailablePower(), nil)
	return r, nil
}

// AvailablePower reads the meter and returns exported minus imported power in watts.
func (m *Meter) AvailablePower() (int32, error) {
	apdu, err := m.receive()
	if err != nil {
		m.metrics.Read(0, err)
		return 0, err
	}
	p, err := AvailablePower(apdu)
	m.metrics.Read(p, err)
	return p, err
}

// receive wakes the meter and decodes frames until it has a complete APDU.
func (m *Meter) receive() (dlms.APDU, error) {
	if m.closed {
		return nil, ErrClosed
	}

	// Stale bytes from an earlier read must not end up in this one
	m.reader.Reset()
	if err := m.port.Flush(); err != nil {
		return nil, fmt.Errorf("flushing port: %w", err)
	}

	m.pin.High()
	defer m.pin.Low()

	var info []byte
	for i := 0; i < m.maxFrames; i++ {
		fr, err := m.reader.ReadFrame()
		if err != nil {
			return nil, err
		}
		m.metrics.Frame(fr.Segmented)
		info = append(info, fr.Information...)
		m.reader.Release()

		if fr.Segmented {
			continue
		}

		apdu, err := m.decrypter.Decrypt(info)
		var (
			incomplete *dlms.IncompleteError
			payload    *dlms.PayloadError
		)
		if errors.As(err, &incomplete) && !errors.As(err, &payload) {
			// The rest of the envelope should be in the next frame
			m.log.Debug("incomplete apdu", zap.Int("have", len(info)), zap.Int("needed", incomplete.Needed))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("decoding apdu: %w", err)
		}
		return apdu, nil
	}
	return nil, ErrTooManyFrames
}

// Close idles the wake pin and releases the port. Only sessions created by
// Open own their port.
func (m *Meter) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.pin.Low()
	if m.closer != nil {
		return m.closer()
	}
	return nil
}
