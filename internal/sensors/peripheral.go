// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"time"

	"github.com/relabs-tech/inertial_tracker/internal/imu"
)

// Peripheral is the chip driver capability set a Session drives. One
// Peripheral belongs to exactly one Session.
type Peripheral interface {
	// Begin opens communication at addr. intPin is the interrupt line
	// name, empty when the sensor is polled.
	Begin(addr uint16, intPin string) error
	// Version describes the firmware, for logs.
	Version() string
	EnableReport(kind imu.ReportKind, interval time.Duration) error

	// Poll services one buffered report batch. ok is false when the
	// peripheral had nothing available.
	Poll() (reports []imu.Report, ok bool)
	// I2CTimedOut reports whether the last bus transaction timed out.
	I2CTimedOut() bool
	ResetReason() uint8

	CalibrateGyro()
	RequestCalibrationStatus()
	CalibrationComplete() bool
	SaveCalibration()
	// GetReadings drains pending reports so the chip can advance its
	// calibration state.
	GetReadings()
}
