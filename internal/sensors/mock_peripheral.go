// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/relabs-tech/inertial_tracker/internal/imu"
	"github.com/relabs-tech/inertial_tracker/internal/orientation"
)

type mockStream struct {
	interval time.Duration
	next     time.Time
}

type mockPeripheral struct {
	clk     clock.Clock
	start   time.Time
	streams map[imu.ReportKind]*mockStream

	calibrating bool
	calPolls    int
}

// NewMockPeripheral returns a peripheral that produces a smoothly changing
// orientation on whatever rotation streams are enabled.
func NewMockPeripheral(clk clock.Clock) Peripheral {
	return &mockPeripheral{clk: clk, streams: map[imu.ReportKind]*mockStream{}}
}

func (m *mockPeripheral) Begin(uint16, string) error {
	m.start = m.clk.Now()
	return nil
}

func (m *mockPeripheral) Version() string { return "mock" }

func (m *mockPeripheral) EnableReport(kind imu.ReportKind, interval time.Duration) error {
	m.streams[kind] = &mockStream{interval: interval, next: m.clk.Now()}
	return nil
}

func (m *mockPeripheral) pose() orientation.Quaternion {
	elapsed := m.clk.Since(m.start).Seconds()
	return orientation.FromPose(orientation.Pose{
		Roll:  20 * math.Sin(elapsed),
		Pitch: 15 * math.Cos(elapsed*0.7),
		Yaw:   math.Mod(elapsed*30, 360),
	})
}

func (m *mockPeripheral) Poll() ([]imu.Report, bool) {
	now := m.clk.Now()
	var reports []imu.Report
	for kind, st := range m.streams {
		if kind == imu.KindTap || now.Before(st.next) {
			continue
		}
		st.next = now.Add(st.interval)
		r := imu.Report{Kind: kind, Quat: m.pose(), Quality: 3}
		if kind.Absolute() {
			r.Accuracy = 0.05
		}
		reports = append(reports, r)
	}
	return reports, len(reports) > 0
}

func (m *mockPeripheral) I2CTimedOut() bool  { return false }
func (m *mockPeripheral) ResetReason() uint8 { return 0 }

func (m *mockPeripheral) CalibrateGyro() {
	m.calibrating = true
	m.calPolls = 0
}

func (m *mockPeripheral) RequestCalibrationStatus() {
	if m.calibrating {
		m.calPolls++
	}
}

// CalibrationComplete finishes after a second's worth of status requests.
func (m *mockPeripheral) CalibrationComplete() bool {
	return !m.calibrating || m.calPolls >= 25
}

func (m *mockPeripheral) SaveCalibration() { m.calibrating = false }

func (m *mockPeripheral) GetReadings() { m.Poll() }
