// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package status drives the tracker's visual indicators.
package status

import (
	"strings"
	"time"
)

// LED names a logical indicator. Several LEDs may share one physical pin.
type LED uint8

const (
	LoadingLED LED = iota + 1
	CalibratingLED
)

func (l LED) String() string {
	switch l {
	case LoadingLED:
		return "loading"
	case CalibratingLED:
		return "calibrating"
	default:
		return "unknown"
	}
}

// Status is a bit set of conditions the indicator renders in the background.
type Status uint32

const (
	StatusLoading Status = 1 << iota
	StatusIMUError
	StatusServerConnecting
)

func (s Status) String() string {
	if s == 0 {
		return "ok"
	}
	var parts []string
	if s&StatusLoading != 0 {
		parts = append(parts, "loading")
	}
	if s&StatusIMUError != 0 {
		parts = append(parts, "imu_error")
	}
	if s&StatusServerConnecting != 0 {
		parts = append(parts, "server_connecting")
	}
	return strings.Join(parts, "|")
}

// Indicator is the visual feedback capability used by sensors.
// Pattern and Blink block for their full duration.
type Indicator interface {
	Pattern(led LED, on, off time.Duration, times int)
	Blink(led LED, d time.Duration)
	On(led LED)
	Off(led LED)
	SetStatus(s Status)
	UnsetStatus(s Status)
}
