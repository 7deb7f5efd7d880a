// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

const (
	statusInterval = time.Second
	errorBlinks    = 5
	errorBlinkTime = 100 * time.Millisecond
)

// Manager implements Indicator over GPIO output pins.
type Manager struct {
	clk    clock.Clock
	logger *zap.SugaredLogger

	// mu serializes pin access between sensors and the status loop.
	mu   sync.Mutex
	pins map[LED]gpio.PinOut

	statusMu sync.Mutex
	status   Status
}

// NewManager builds a manager over already opened pins. LEDs missing from
// pins are silently ignored.
func NewManager(clk clock.Clock, logger *zap.SugaredLogger, pins map[LED]gpio.PinOut) *Manager {
	m := &Manager{
		clk:    clk,
		logger: logger,
		pins:   pins,
	}
	for _, p := range pins {
		if err := p.Out(gpio.Low); err != nil {
			logger.Warnw("led init", "pin", p.String(), "err", err)
		}
	}
	return m
}

// OpenManager looks pins up by name in the periph registry. The periph host
// must already be initialized.
func OpenManager(clk clock.Clock, logger *zap.SugaredLogger, names map[LED]string) (*Manager, error) {
	pins := make(map[LED]gpio.PinOut, len(names))
	for led, name := range names {
		if name == "" {
			continue
		}
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("status: %s LED pin %q not found", led, name)
		}
		pins[led] = p
	}
	return NewManager(clk, logger, pins), nil
}

// set writes one pin. mu is held for a single write, never across a sleep.
func (m *Manager) set(led LED, l gpio.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pins[led]
	if !ok {
		return
	}
	if err := p.Out(l); err != nil {
		m.logger.Debugw("led write", "led", led, "err", err)
	}
}

// Pattern blinks led times times, on for on and off for off.
func (m *Manager) Pattern(led LED, on, off time.Duration, times int) {
	for i := 0; i < times; i++ {
		m.set(led, gpio.High)
		m.clk.Sleep(on)
		m.set(led, gpio.Low)
		m.clk.Sleep(off)
	}
}

// Blink lights led for d.
func (m *Manager) Blink(led LED, d time.Duration) {
	m.set(led, gpio.High)
	m.clk.Sleep(d)
	m.set(led, gpio.Low)
}

func (m *Manager) On(led LED) { m.set(led, gpio.High) }

func (m *Manager) Off(led LED) { m.set(led, gpio.Low) }

func (m *Manager) SetStatus(s Status) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	if m.status&s == s {
		return
	}
	m.status |= s
	m.logger.Infow("led status set", "status", m.status)
}

func (m *Manager) UnsetStatus(s Status) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	if m.status&s == 0 {
		return
	}
	m.status &^= s
	m.logger.Infow("led status cleared", "status", m.status)
}

// Status returns the current status bits.
func (m *Manager) Status() Status {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.status
}

// Run renders the status bits on the loading LED until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := m.clk.Ticker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.Status()&StatusIMUError != 0 {
				m.Pattern(LoadingLED, errorBlinkTime, errorBlinkTime, errorBlinks)
			}
		}
	}
}
