// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_tracker/internal/imu"
	"github.com/relabs-tech/inertial_tracker/internal/orientation"
	"github.com/relabs-tech/inertial_tracker/internal/status"
	"github.com/relabs-tech/inertial_tracker/internal/transport"
)

const (
	staleAfter = 1000 * time.Millisecond

	fastInterval = 10 * time.Millisecond
	slowInterval = 1000 * time.Millisecond
	tapInterval  = 100 * time.Millisecond

	// DefaultEpsilon is the per-component dedup tolerance.
	DefaultEpsilon = 1e-6
)

// ErrNotConfigured is returned for operations that need a successful Setup.
var ErrNotConfigured = errors.New("sensor not configured")

// Config describes one physical sensor and its forwarding policy.
type Config struct {
	ID      uint8
	Address uint16
	IntPin  string // empty: polled, no interrupt line
	Variant imu.Variant

	// Offset corrects every raw orientation for the board mounting.
	Offset orientation.Quaternion

	MagnetometerAllTheTime bool
	MagnetometerCorrection bool
	// Stabilization allows the AR/VR stabilized streams on variants that have them.
	Stabilization bool

	OptimizeUpdates bool
	Epsilon         float64
}

// absoluteOnly selects the reducer branch that forwards a single, deduped stream.
func (c Config) absoluteOnly() bool {
	return c.MagnetometerAllTheTime || !c.MagnetometerCorrection
}

// State is the health summary of a session.
type State uint8

const (
	StateOffline State = iota
	StateOK
	StateError
)

func (s State) String() string {
	switch s {
	case StateOK:
		return "OK"
	case StateError:
		return "ERROR"
	default:
		return "OFFLINE"
	}
}

// lifecycle is the session state machine. A session is either not yet
// configured, or configured and either receiving data or stale.
type lifecycle uint8

const (
	uninitialized lifecycle = iota
	working
	stale
)

// Stream is one report stream enabled at bring-up.
type Stream struct {
	Kind     imu.ReportKind
	Interval time.Duration
}

// Streams returns the report streams bring-up enables for cfg, in order.
func Streams(cfg Config) []Stream {
	stabilized := cfg.Stabilization && cfg.Variant.SupportsStabilization()

	var streams []Stream
	switch {
	case cfg.MagnetometerAllTheTime && stabilized:
		streams = append(streams, Stream{imu.KindStabilizedRotation, slowInterval})
	case cfg.MagnetometerAllTheTime:
		streams = append(streams, Stream{imu.KindRotation, slowInterval})
	case stabilized:
		streams = append(streams, Stream{imu.KindStabilizedGameRotation, fastInterval})
	default:
		streams = append(streams, Stream{imu.KindGameRotation, fastInterval})
	}
	if !cfg.MagnetometerAllTheTime && cfg.MagnetometerCorrection {
		streams = append(streams, Stream{imu.KindRotation, slowInterval})
	}
	return append(streams, Stream{imu.KindTap, tapInterval})
}

// Session owns one peripheral for its lifetime. Setup, Poll, SendData and
// Calibrate must all be called from the same goroutine.
type Session struct {
	cfg    Config
	dev    Peripheral
	out    transport.Sender
	leds   status.Indicator
	clk    clock.Clock
	logger *zap.SugaredLogger

	state    lifecycle
	fault    imu.FaultCode
	lastData time.Time

	quat     imu.Sample
	magQuat  imu.Sample
	lastSent orientation.Quaternion
	tap      uint8
}

// NewSession builds an unconfigured session. Call Setup before polling.
func NewSession(
	cfg Config,
	dev Peripheral,
	out transport.Sender,
	leds status.Indicator,
	clk clock.Clock,
	logger *zap.SugaredLogger,
) *Session {
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = DefaultEpsilon
	}
	if cfg.Offset == (orientation.Quaternion{}) {
		cfg.Offset = orientation.Identity
	}
	return &Session{
		cfg:    cfg,
		dev:    dev,
		out:    out,
		leds:   leds,
		clk:    clk,
		logger: logger,
		fault:  imu.NoFault,
	}
}

// ID returns the sensor id packets are tagged with.
func (s *Session) ID() uint8 { return s.cfg.ID }

// Variant returns the configured chip variant.
func (s *Session) Variant() imu.Variant { return s.cfg.Variant }

// Configured reports whether the last Setup succeeded.
func (s *Session) Configured() bool { return s.state != uninitialized }

// Working reports whether the session is configured and receiving data.
func (s *Session) Working() bool { return s.state == working }

// Fault returns the stored fault code.
func (s *Session) Fault() imu.FaultCode { return s.fault }

// State derives the health summary. An outstanding fault wins over the
// working flag.
func (s *Session) State() State {
	switch {
	case s.fault.Outstanding():
		return StateError
	case s.state == working:
		return StateOK
	default:
		return StateOffline
	}
}

// Setup brings the peripheral up and enables its report streams. On
// failure the session stays unconfigured and only a new Setup can change that.
func (s *Session) Setup() error {
	if err := s.dev.Begin(s.cfg.Address, s.cfg.IntPin); err != nil {
		s.state = uninitialized
		s.logger.Errorw("can't connect", "variant", s.cfg.Variant, "addr", fmt.Sprintf("0x%02X", s.cfg.Address), "err", err)
		s.leds.Pattern(status.LoadingLED, 50*time.Millisecond, 50*time.Millisecond, 200)
		return fmt.Errorf("sensor %d: begin %s at 0x%02X: %w", s.cfg.ID, s.cfg.Variant, s.cfg.Address, err)
	}
	s.logger.Infow("connected",
		"variant", s.cfg.Variant,
		"addr", fmt.Sprintf("0x%02X", s.cfg.Address),
		"firmware", s.dev.Version())

	for _, st := range Streams(s.cfg) {
		if err := s.dev.EnableReport(st.Kind, st.Interval); err != nil {
			s.logger.Warnw("enable report", "kind", st.Kind, "interval", st.Interval, "err", err)
			continue
		}
		s.logger.Debugw("report enabled", "kind", st.Kind, "interval", st.Interval)
	}

	s.fault = imu.FaultCode(s.dev.ResetReason())
	s.lastData = s.clk.Now()
	s.state = working
	return nil
}

// Poll checks link health, then drains the reports the peripheral has
// buffered into the staged samples. Acceleration is forwarded as it arrives.
func (s *Session) Poll() {
	if s.state == uninitialized {
		return
	}
	s.checkHealth()

	for {
		reports, ok := s.dev.Poll()
		if !ok {
			break
		}
		s.fault = imu.NoFault
		s.lastData = s.clk.Now()
		if s.state == stale {
			s.state = working
			s.logger.Infow("data resumed")
		}
		for _, r := range reports {
			s.reduce(r)
		}
		// without an interrupt line there is no way to tell if more is buffered
		if s.cfg.IntPin == "" || s.dev.I2CTimedOut() {
			break
		}
	}
}

func (s *Session) checkHealth() {
	now := s.clk.Now()
	if now.Sub(s.lastData) <= staleAfter {
		return
	}
	s.leds.SetStatus(status.StatusIMUError)
	s.state = stale
	s.lastData = now

	rr := imu.FaultCode(s.dev.ResetReason())
	if rr != s.fault {
		s.fault = rr
		if err := s.out.SendByte(uint8(rr), s.cfg.ID, transport.PacketError); err != nil {
			s.logger.Warnw("send reset reason", "err", err)
		}
	}
	s.logger.Errorw("sensor was reset", "reason", int(rr))
}

func (s *Session) reduce(r imu.Report) {
	switch {
	case r.Kind == imu.KindTap:
		if r.Tap != 0 {
			s.tap = r.Tap
		}
	case r.Kind == imu.KindAccel:
		if err := s.out.SendVector(r.Accel, transport.PacketAccel); err != nil {
			s.logger.Warnw("send accel", "err", err)
		}
	case s.cfg.absoluteOnly():
		if !r.Kind.Absolute() && !r.Kind.Relative() {
			return
		}
		q := r.Quat.Mul(s.cfg.Offset)
		if s.cfg.OptimizeUpdates && s.lastSent.EqualsWithEpsilon(q, s.cfg.Epsilon) {
			return
		}
		s.quat.Stage(q, r.Accuracy, r.Quality)
		s.lastSent = q
	case r.Kind.Relative():
		s.quat.Stage(r.Quat.Mul(s.cfg.Offset), r.Accuracy, r.Quality)
	case r.Kind.Absolute():
		s.magQuat.Stage(r.Quat.Mul(s.cfg.Offset), r.Accuracy, r.Quality)
	}
}

// SendData forwards every staged sample and a pending tap, in that order,
// and clears them.
func (s *Session) SendData() {
	if s.quat.Dirty {
		s.quat.Dirty = false
		s.sendRotation(s.quat, transport.DataNormal)
		if s.cfg.MagnetometerAllTheTime {
			s.sendMagAccuracy(s.quat.Accuracy)
		}
	}
	if s.magQuat.Dirty {
		s.magQuat.Dirty = false
		s.sendRotation(s.magQuat, transport.DataCorrection)
		s.sendMagAccuracy(s.magQuat.Accuracy)
	}
	if s.tap != 0 {
		if err := s.out.SendByte(s.tap, s.cfg.ID, transport.PacketTap); err != nil {
			s.logger.Warnw("send tap", "err", err)
		}
		s.tap = 0
	}
}

func (s *Session) sendRotation(smp imu.Sample, kind transport.DataKind) {
	if err := s.out.SendRotationData(smp.Quat, kind, smp.Quality, s.cfg.ID, transport.PacketRotationData); err != nil {
		s.logger.Warnw("send rotation", "kind", kind, "err", err)
	}
}

func (s *Session) sendMagAccuracy(v float64) {
	if err := s.out.SendMagnetometerAccuracy(v, s.cfg.ID, transport.PacketMagnetometerAccuracy); err != nil {
		s.logger.Warnw("send magnetometer accuracy", "err", err)
	}
}
