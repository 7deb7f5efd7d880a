package sensors

import (
	"fmt"
	"time"

	"github.com/relabs-tech/inertial_tracker/internal/imu"
	"github.com/relabs-tech/inertial_tracker/internal/orientation"
	"github.com/relabs-tech/inertial_tracker/internal/status"
	"github.com/relabs-tech/inertial_tracker/internal/transport"
)

// journal records calls across fakes so tests can check ordering.
type journal struct {
	calls []string
}

func (j *journal) add(format string, args ...interface{}) {
	if j != nil {
		j.calls = append(j.calls, fmt.Sprintf(format, args...))
	}
}

type fakePeripheral struct {
	j *journal

	beginErr error
	enabled  []Stream
	batches  [][]imu.Report
	polls    int
	timedOut bool
	reset    uint8

	completeAfter  int
	statusRequests int
	saved          bool
}

func (f *fakePeripheral) Begin(addr uint16, intPin string) error {
	f.j.add("begin 0x%02X %q", addr, intPin)
	return f.beginErr
}

func (f *fakePeripheral) Version() string { return "fake" }

func (f *fakePeripheral) EnableReport(kind imu.ReportKind, interval time.Duration) error {
	f.enabled = append(f.enabled, Stream{kind, interval})
	return nil
}

func (f *fakePeripheral) queue(reports ...imu.Report) {
	f.batches = append(f.batches, reports)
}

func (f *fakePeripheral) Poll() ([]imu.Report, bool) {
	f.polls++
	if len(f.batches) == 0 {
		return nil, false
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, true
}

func (f *fakePeripheral) I2CTimedOut() bool  { return f.timedOut }
func (f *fakePeripheral) ResetReason() uint8 { return f.reset }

func (f *fakePeripheral) CalibrateGyro() { f.j.add("calibrate gyro") }

func (f *fakePeripheral) RequestCalibrationStatus() {
	f.statusRequests++
	f.j.add("request status")
}

func (f *fakePeripheral) CalibrationComplete() bool {
	return f.statusRequests >= f.completeAfter
}

func (f *fakePeripheral) SaveCalibration() {
	f.saved = true
	f.j.add("save")
}

func (f *fakePeripheral) GetReadings() { f.j.add("readings") }

type sent struct {
	packet  transport.PacketType
	sensor  uint8
	kind    transport.DataKind
	quat    orientation.Quaternion
	quality uint8
	value   float64
}

type fakeSender struct {
	sent []sent
}

func (f *fakeSender) SendRotationData(q orientation.Quaternion, kind transport.DataKind, accuracy uint8, sensorID uint8, packet transport.PacketType) error {
	f.sent = append(f.sent, sent{packet: packet, sensor: sensorID, kind: kind, quat: q, quality: accuracy})
	return nil
}

func (f *fakeSender) SendMagnetometerAccuracy(value float64, sensorID uint8, packet transport.PacketType) error {
	f.sent = append(f.sent, sent{packet: packet, sensor: sensorID, value: value})
	return nil
}

func (f *fakeSender) SendVector(v [3]float64, packet transport.PacketType) error {
	f.sent = append(f.sent, sent{packet: packet, value: v[0]})
	return nil
}

func (f *fakeSender) SendByte(value uint8, sensorID uint8, packet transport.PacketType) error {
	f.sent = append(f.sent, sent{packet: packet, sensor: sensorID, value: float64(value)})
	return nil
}

func (f *fakeSender) count(p transport.PacketType) int {
	n := 0
	for _, s := range f.sent {
		if s.packet == p {
			n++
		}
	}
	return n
}

func (f *fakeSender) packets() []transport.PacketType {
	out := make([]transport.PacketType, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.packet)
	}
	return out
}

type fakeIndicator struct {
	j      *journal
	status status.Status
}

func (f *fakeIndicator) Pattern(led status.LED, on, off time.Duration, times int) {
	f.j.add("pattern %s %v %v %d", led, on, off, times)
}

func (f *fakeIndicator) Blink(led status.LED, d time.Duration) { f.j.add("blink %s %v", led, d) }
func (f *fakeIndicator) On(led status.LED)                     { f.j.add("on %s", led) }
func (f *fakeIndicator) Off(led status.LED)                    { f.j.add("off %s", led) }
func (f *fakeIndicator) SetStatus(s status.Status)             { f.status |= s }
func (f *fakeIndicator) UnsetStatus(s status.Status)           { f.status &^= s }
