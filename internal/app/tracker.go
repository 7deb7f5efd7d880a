// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_tracker/internal/sensors"
	"github.com/relabs-tech/inertial_tracker/internal/status"
)

// ErrUnknownSensor is returned for calibration requests naming no session.
var ErrUnknownSensor = errors.New("unknown sensor")

// SensorStatus is the externally visible summary of one session.
type SensorStatus struct {
	ID         uint8  `json:"id"`
	Variant    string `json:"variant"`
	State      string `json:"state"`
	Configured bool   `json:"configured"`
	Fault      int    `json:"fault"`
}

type calibrationRequest struct {
	ctx    context.Context
	sensor uint8
	done   chan error
}

// Tracker drives every session from a single goroutine: poll, then flush,
// once per tick. Calibration requests are queued onto the same goroutine.
type Tracker struct {
	sessions []*sensors.Session
	leds     status.Indicator
	clk      clock.Clock
	logger   *zap.SugaredLogger
	interval time.Duration

	requests chan calibrationRequest
	imuError bool

	mu       sync.RWMutex
	snapshot []SensorStatus
}

// NewTracker builds a tracker over sessions, stepped every interval.
func NewTracker(
	sessions []*sensors.Session,
	leds status.Indicator,
	clk clock.Clock,
	logger *zap.SugaredLogger,
	interval time.Duration,
) *Tracker {
	t := &Tracker{
		sessions: sessions,
		leds:     leds,
		clk:      clk,
		logger:   logger,
		interval: interval,
		requests: make(chan calibrationRequest),
	}
	t.refresh()
	return t
}

// Setup brings every session up. Sessions that fail stay offline; the
// returned error combines all failures and is nil only if all succeeded.
func (t *Tracker) Setup() error {
	t.leds.SetStatus(status.StatusLoading)
	defer t.leds.UnsetStatus(status.StatusLoading)

	var errs error
	for _, s := range t.sessions {
		errs = multierr.Append(errs, s.Setup())
	}
	t.refresh()
	return errs
}

// Step polls every configured session and flushes what it staged.
func (t *Tracker) Step() {
	stale := false
	for _, s := range t.sessions {
		if !s.Configured() {
			continue
		}
		s.Poll()
		s.SendData()
		if !s.Working() {
			stale = true
		}
	}

	// sessions only ever raise the shared error status
	if !stale {
		t.leds.UnsetStatus(status.StatusIMUError)
		if t.imuError {
			t.logger.Infow("all sensors recovered")
		}
	}
	t.imuError = stale
	t.refresh()
}

// Run steps the sessions until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := t.clk.Ticker(t.interval)
	defer ticker.Stop()

	t.logger.Infow("tracker loop started", "sensors", len(t.sessions), "interval", t.interval)
	for {
		select {
		case <-ctx.Done():
			t.logger.Infow("tracker loop stopped")
			return nil
		case req := <-t.requests:
			req.done <- t.serve(ctx, req)
		case <-ticker.C:
			t.Step()
		}
	}
}

// serve calibrates for a queued request. Either the requester giving up or
// the loop stopping aborts the run so polling resumes.
func (t *Tracker) serve(loopCtx context.Context, req calibrationRequest) error {
	ctx, cancel := context.WithCancel(req.ctx)
	defer cancel()
	stop := context.AfterFunc(loopCtx, cancel)
	defer stop()
	return t.calibrate(ctx, req.sensor)
}

func (t *Tracker) session(id uint8) *sensors.Session {
	for _, s := range t.sessions {
		if s.ID() == id {
			return s
		}
	}
	return nil
}

func (t *Tracker) calibrate(ctx context.Context, id uint8) error {
	s := t.session(id)
	if s == nil {
		return fmt.Errorf("sensor %d: %w", id, ErrUnknownSensor)
	}
	err := s.Calibrate(ctx)
	if err != nil {
		t.logger.Warnw("calibration failed", "sensor", id, "err", err)
	}
	t.refresh()
	return err
}

// RequestCalibration queues a calibration of sensor onto the loop
// goroutine and waits for it. Cancelling ctx aborts the calibration and
// returns the loop to polling. Run must be active.
func (t *Tracker) RequestCalibration(ctx context.Context, sensor uint8) error {
	if t.session(sensor) == nil {
		return fmt.Errorf("sensor %d: %w", sensor, ErrUnknownSensor)
	}
	req := calibrationRequest{ctx: ctx, sensor: sensor, done: make(chan error, 1)}
	select {
	case t.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Calibrate runs a calibration directly. Use it only when Run is not active.
func (t *Tracker) Calibrate(ctx context.Context, sensor uint8) error {
	return t.calibrate(ctx, sensor)
}

func (t *Tracker) refresh() {
	snap := make([]SensorStatus, 0, len(t.sessions))
	for _, s := range t.sessions {
		snap = append(snap, SensorStatus{
			ID:         s.ID(),
			Variant:    s.Variant().String(),
			State:      s.State().String(),
			Configured: s.Configured(),
			Fault:      int(s.Fault()),
		})
	}
	t.mu.Lock()
	t.snapshot = snap
	t.mu.Unlock()
}

// Status returns the session summaries as of the last step. Safe to call
// from any goroutine.
func (t *Tracker) Status() []SensorStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SensorStatus, len(t.snapshot))
	copy(out, t.snapshot)
	return out
}
