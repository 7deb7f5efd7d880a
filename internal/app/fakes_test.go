package app

import (
	"sync"
	"time"

	"github.com/relabs-tech/inertial_tracker/internal/imu"
	"github.com/relabs-tech/inertial_tracker/internal/orientation"
	"github.com/relabs-tech/inertial_tracker/internal/status"
	"github.com/relabs-tech/inertial_tracker/internal/transport"
)

// stubPeripheral emits one game rotation report per poll while active.
type stubPeripheral struct {
	beginErr error
	active   bool

	// neverCalibrates keeps the calibration loop spinning
	neverCalibrates bool
	calibrating     chan struct{}
}

func (p *stubPeripheral) Begin(uint16, string) error                       { return p.beginErr }
func (p *stubPeripheral) Version() string                                  { return "stub" }
func (p *stubPeripheral) EnableReport(imu.ReportKind, time.Duration) error { return nil }
func (p *stubPeripheral) I2CTimedOut() bool                                { return false }
func (p *stubPeripheral) ResetReason() uint8                               { return 0 }
func (p *stubPeripheral) RequestCalibrationStatus()                        {}
func (p *stubPeripheral) SaveCalibration()                                 {}
func (p *stubPeripheral) GetReadings()                                     {}

func (p *stubPeripheral) CalibrateGyro() {
	if p.calibrating != nil {
		select {
		case p.calibrating <- struct{}{}:
		default:
		}
	}
}

func (p *stubPeripheral) CalibrationComplete() bool { return !p.neverCalibrates }

func (p *stubPeripheral) Poll() ([]imu.Report, bool) {
	if !p.active {
		return nil, false
	}
	return []imu.Report{{Kind: imu.KindGameRotation, Quat: orientation.Identity, Quality: 3}}, true
}

type countingSender struct {
	mu     sync.Mutex
	counts map[transport.PacketType]int
}

func (s *countingSender) add(p transport.PacketType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = map[transport.PacketType]int{}
	}
	s.counts[p]++
	return nil
}

func (s *countingSender) count(p transport.PacketType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[p]
}

func (s *countingSender) SendRotationData(_ orientation.Quaternion, _ transport.DataKind, _ uint8, _ uint8, p transport.PacketType) error {
	return s.add(p)
}

func (s *countingSender) SendMagnetometerAccuracy(_ float64, _ uint8, p transport.PacketType) error {
	return s.add(p)
}

func (s *countingSender) SendVector(_ [3]float64, p transport.PacketType) error { return s.add(p) }

func (s *countingSender) SendByte(_ uint8, _ uint8, p transport.PacketType) error { return s.add(p) }

type statusIndicator struct {
	mu     sync.Mutex
	status status.Status
}

func (i *statusIndicator) Pattern(status.LED, time.Duration, time.Duration, int) {}
func (i *statusIndicator) Blink(status.LED, time.Duration)                       {}
func (i *statusIndicator) On(status.LED)                                         {}
func (i *statusIndicator) Off(status.LED)                                        {}

func (i *statusIndicator) SetStatus(s status.Status) {
	i.mu.Lock()
	i.status |= s
	i.mu.Unlock()
}

func (i *statusIndicator) UnsetStatus(s status.Status) {
	i.mu.Lock()
	i.status &^= s
	i.mu.Unlock()
}

func (i *statusIndicator) has(s status.Status) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status&s != 0
}
