// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers/bno08x"

	"github.com/relabs-tech/inertial_tracker/internal/imu"
	"github.com/relabs-tech/inertial_tracker/internal/orientation"
)

// SH-2 reset causes.
const (
	resetNone    uint8 = 0
	resetPowerOn uint8 = 1
	resetOther   uint8 = 5
)

// SH-2 sensor report ids.
var reportIDs = map[imu.ReportKind]bno08x.SensorID{
	imu.KindAccel:                  bno08x.SensorAccelerometer,
	imu.KindRotation:               bno08x.SensorRotationVector,
	imu.KindGameRotation:           bno08x.SensorGameRotationVector,
	imu.KindTap:                    bno08x.SensorTapDetector,
	imu.KindStabilizedRotation:     bno08x.SensorARVRStabilizedRV,
	imu.KindStabilizedGameRotation: bno08x.SensorARVRStabilizedGRV,
}

// sensorBus pins every transaction to one device address and remembers
// whether the last one timed out.
type sensorBus struct {
	bus      i2c.Bus
	addr     uint16
	timedOut bool
}

func (b *sensorBus) Tx(_ uint16, w, r []byte) error {
	err := b.bus.Tx(b.addr, w, r)
	b.timedOut = isTimeout(err)
	return err
}

func isTimeout(err error) bool {
	return errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, os.ErrDeadlineExceeded)
}

// hub is the part of the driver device the adapter drives.
type hub interface {
	EnableReport(id bno08x.SensorID, intervalUs uint32) error
	GetSensorEvent() (bno08x.SensorValue, bool)
	WasReset() bool
}

// sensorEvent is the accessor set of a decoded driver event. The driver's
// accessors panic when called for the wrong report id.
type sensorEvent interface {
	ID() bno08x.SensorID
	Status() uint8
	Quaternion() bno08x.Quaternion
	QuaternionAccuracy() float32
	Accelerometer() bno08x.Vector3
	TapDetector() bno08x.TapDetector
}

// BNO08x adapts the tinygo bno08x driver over a periph I2C bus.
type BNO08x struct {
	bus    *sensorBus
	dev    hub
	intPin gpio.PinIn
	logger *zap.SugaredLogger

	// reset is sticky: the chip keeps reporting its last reset cause
	reset uint8
}

// NewBNO08x wraps an already opened bus. Several sensors may share it;
// the caller serializes access.
func NewBNO08x(bus i2c.Bus, logger *zap.SugaredLogger) *BNO08x {
	return &BNO08x{bus: &sensorBus{bus: bus}, logger: logger}
}

// OpenBus initializes the periph host and opens an I2C bus by name
// ("" for the first available).
func OpenBus(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("i2c open %q: %w", name, err)
	}
	return bus, nil
}

func (b *BNO08x) Begin(addr uint16, intPin string) error {
	b.bus.addr = addr
	b.intPin = nil
	if intPin != "" {
		p := gpioreg.ByName(intPin)
		if p == nil {
			return fmt.Errorf("interrupt pin %q not found", intPin)
		}
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return fmt.Errorf("interrupt pin %q: %w", intPin, err)
		}
		b.intPin = p
	}

	dev := bno08x.NewI2C(b.bus)
	if err := dev.Configure(bno08x.Config{Address: addr}); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	b.dev = dev

	// bring-up always resets the hub
	b.reset = resetNone
	if dev.WasReset() {
		b.reset = resetPowerOn
	}
	return nil
}

func (b *BNO08x) Version() string {
	return fmt.Sprintf("bno08x@%s", b.bus.bus)
}

func (b *BNO08x) EnableReport(kind imu.ReportKind, interval time.Duration) error {
	id, ok := reportIDs[kind]
	if !ok {
		return fmt.Errorf("no report id for %s", kind)
	}
	return b.dev.EnableReport(id, uint32(interval.Microseconds()))
}

// Poll reads one event. The interrupt line is active low; when it is high
// nothing is buffered and the bus is left alone.
func (b *BNO08x) Poll() ([]imu.Report, bool) {
	if b.dev == nil {
		return nil, false
	}
	if b.intPin != nil && b.intPin.Read() == gpio.High {
		return nil, false
	}
	event, ok := b.dev.GetSensorEvent()
	if !ok {
		return nil, false
	}
	r, ok := reportFor(event)
	if !ok {
		// an event arrived but carries nothing the session consumes
		return nil, true
	}
	return []imu.Report{r}, true
}

func reportFor(ev sensorEvent) (imu.Report, bool) {
	kind, ok := kindFor(ev.ID())
	if !ok {
		return imu.Report{}, false
	}
	r := imu.Report{Kind: kind}
	switch {
	case kind == imu.KindTap:
		r.Tap = ev.TapDetector().Flags
	case kind == imu.KindAccel:
		v := ev.Accelerometer()
		r.Accel = [3]float64{float64(v.X), float64(v.Y), float64(v.Z)}
	default:
		q := ev.Quaternion()
		r.Quat = orientation.Quaternion{X: float64(q.I), Y: float64(q.J), Z: float64(q.K), W: float64(q.Real)}
		// low two status bits carry the calibration accuracy
		r.Quality = ev.Status() & 0x03
		if kind.Absolute() {
			r.Accuracy = float64(ev.QuaternionAccuracy())
		}
	}
	return r, true
}

func kindFor(id bno08x.SensorID) (imu.ReportKind, bool) {
	for k, v := range reportIDs {
		if v == id {
			return k, true
		}
	}
	return 0, false
}

func (b *BNO08x) I2CTimedOut() bool { return b.bus.timedOut }

// ResetReason reports the last reset cause seen: power-on for the
// bring-up reset, other for any reset after that.
func (b *BNO08x) ResetReason() uint8 {
	if b.dev != nil && b.dev.WasReset() {
		b.reset = resetOther
	}
	return b.reset
}

func (b *BNO08x) CalibrateGyro() {
	b.logger.Warnw("on-chip calibration is not supported by the bno08x driver")
}

func (b *BNO08x) RequestCalibrationStatus() {}

// CalibrationComplete reports true immediately since the driver cannot
// run the calibration commands.
func (b *BNO08x) CalibrationComplete() bool { return true }

func (b *BNO08x) SaveCalibration() {}

func (b *BNO08x) GetReadings() {
	for i := 0; i < 16; i++ {
		if _, ok := b.Poll(); !ok {
			return
		}
	}
}
