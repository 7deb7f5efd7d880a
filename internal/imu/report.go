// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"strings"

	"github.com/relabs-tech/inertial_tracker/internal/orientation"
)

// ReportKind tags a single report pulled from the peripheral.
type ReportKind uint8

const (
	// KindRotation is the absolute-heading (magnetometer corrected) rotation vector.
	KindRotation ReportKind = iota + 1
	// KindGameRotation is the relative rotation vector (gyro + accel only).
	KindGameRotation
	// KindStabilizedRotation is the AR/VR stabilized absolute-heading rotation vector.
	KindStabilizedRotation
	// KindStabilizedGameRotation is the AR/VR stabilized relative rotation vector.
	KindStabilizedGameRotation
	// KindAccel is a linear acceleration reading.
	KindAccel
	// KindTap is a tap detector event.
	KindTap
)

func (k ReportKind) String() string {
	switch k {
	case KindRotation:
		return "rotation"
	case KindGameRotation:
		return "game_rotation"
	case KindStabilizedRotation:
		return "arvr_rotation"
	case KindStabilizedGameRotation:
		return "arvr_game_rotation"
	case KindAccel:
		return "accel"
	case KindTap:
		return "tap"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Absolute reports whether the kind carries a magnetometer-referenced heading.
func (k ReportKind) Absolute() bool {
	return k == KindRotation || k == KindStabilizedRotation
}

// Relative reports whether the kind is a gyro/accel-only rotation.
func (k ReportKind) Relative() bool {
	return k == KindGameRotation || k == KindStabilizedGameRotation
}

// Report is one reading produced by the peripheral adapter. Which fields are
// meaningful depends on Kind.
type Report struct {
	Kind ReportKind

	// rotation kinds
	Quat     orientation.Quaternion
	Accuracy float64 // heading accuracy estimate in radians (absolute kinds only)
	Quality  uint8   // calibration quality, 0 (unreliable) .. 3 (high)

	// KindAccel
	Accel [3]float64

	// KindTap
	Tap uint8
}

// Sample is an orientation value staged for forwarding.
type Sample struct {
	Quat     orientation.Quaternion
	Accuracy float64
	Quality  uint8
	Dirty    bool
}

// Stage replaces the sample value and marks it not yet forwarded.
func (s *Sample) Stage(q orientation.Quaternion, accuracy float64, quality uint8) {
	s.Quat = q
	s.Accuracy = accuracy
	s.Quality = quality
	s.Dirty = true
}

// FaultCode is the last hardware reset/error reason seen for a sensor.
type FaultCode int

// NoFault means no new fault since the last report.
const NoFault FaultCode = -1

// Outstanding reports whether the code still counts as an error.
func (c FaultCode) Outstanding() bool {
	return c > 0
}

// Variant identifies the sensor chip.
type Variant uint8

const (
	BNO080 Variant = iota + 1
	BNO085
	BNO086
)

func (v Variant) String() string {
	switch v {
	case BNO080:
		return "BNO080"
	case BNO085:
		return "BNO085"
	case BNO086:
		return "BNO086"
	default:
		return "unknown"
	}
}

// SupportsStabilization reports whether the chip firmware has the AR/VR
// stabilized rotation reports.
func (v Variant) SupportsStabilization() bool {
	return v == BNO085 || v == BNO086
}

// ParseVariant maps a config string to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BNO080":
		return BNO080, nil
	case "BNO085":
		return BNO085, nil
	case "BNO086":
		return BNO086, nil
	}
	return 0, fmt.Errorf("unknown sensor variant %q", s)
}
