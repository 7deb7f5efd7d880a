package status

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func newTestManager(t *testing.T) (*Manager, *gpiotest.Pin, *clock.Mock) {
	t.Helper()
	pin := &gpiotest.Pin{N: "LED", L: gpio.High}
	clk := clock.NewMock()
	m := NewManager(clk, zaptest.NewLogger(t).Sugar(), map[LED]gpio.PinOut{
		LoadingLED:     pin,
		CalibratingLED: pin,
	})
	return m, pin, clk
}

// advanceUntil moves the mock clock forward until done is closed.
func advanceUntil(clk *clock.Mock, step time.Duration, done <-chan struct{}) time.Duration {
	var elapsed time.Duration
	for {
		select {
		case <-done:
			return elapsed
		default:
			clk.Add(step)
			elapsed += step
			runtime.Gosched()
		}
	}
}

func TestOnOff(t *testing.T) {
	m, pin, _ := newTestManager(t)
	test.That(t, pin.Read(), test.ShouldEqual, gpio.Low)

	m.On(CalibratingLED)
	test.That(t, pin.Read(), test.ShouldEqual, gpio.High)
	m.Off(CalibratingLED)
	test.That(t, pin.Read(), test.ShouldEqual, gpio.Low)
}

func TestUnmappedLED(t *testing.T) {
	clk := clock.NewMock()
	m := NewManager(clk, zaptest.NewLogger(t).Sugar(), map[LED]gpio.PinOut{})
	m.On(LoadingLED)
	m.Off(LoadingLED)
	m.SetStatus(StatusIMUError)
	test.That(t, m.Status(), test.ShouldEqual, StatusIMUError)
}

func TestPatternBlocks(t *testing.T) {
	m, pin, clk := newTestManager(t)

	done := make(chan struct{})
	go func() {
		m.Pattern(LoadingLED, 50*time.Millisecond, 50*time.Millisecond, 3)
		close(done)
	}()
	elapsed := advanceUntil(clk, 10*time.Millisecond, done)

	test.That(t, elapsed, test.ShouldBeGreaterThanOrEqualTo, 300*time.Millisecond)
	test.That(t, pin.Read(), test.ShouldEqual, gpio.Low)
}

func TestBlink(t *testing.T) {
	m, pin, clk := newTestManager(t)

	done := make(chan struct{})
	go func() {
		m.Blink(CalibratingLED, 2*time.Second)
		close(done)
	}()
	elapsed := advanceUntil(clk, 100*time.Millisecond, done)

	test.That(t, elapsed, test.ShouldBeGreaterThanOrEqualTo, 2*time.Second)
	test.That(t, pin.Read(), test.ShouldEqual, gpio.Low)
}

func TestStatusBits(t *testing.T) {
	m, _, _ := newTestManager(t)
	test.That(t, m.Status(), test.ShouldEqual, Status(0))

	m.SetStatus(StatusIMUError)
	m.SetStatus(StatusLoading)
	test.That(t, m.Status(), test.ShouldEqual, StatusIMUError|StatusLoading)
	test.That(t, m.Status().String(), test.ShouldEqual, "loading|imu_error")

	m.UnsetStatus(StatusIMUError)
	test.That(t, m.Status(), test.ShouldEqual, StatusLoading)
	m.UnsetStatus(StatusLoading)
	test.That(t, m.Status().String(), test.ShouldEqual, "ok")
}

func TestErrorRenderingDoesNotStallOtherLEDs(t *testing.T) {
	loading := &gpiotest.Pin{N: "LOADING"}
	calibrating := &gpiotest.Pin{N: "CAL"}
	clk := clock.NewMock()
	m := NewManager(clk, zaptest.NewLogger(t).Sugar(), map[LED]gpio.PinOut{
		LoadingLED:     loading,
		CalibratingLED: calibrating,
	})
	m.SetStatus(StatusIMUError)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// wait until the error pattern is lit and sleeping
	lit := make(chan struct{})
	go func() {
		for loading.Read() != gpio.High {
			runtime.Gosched()
		}
		close(lit)
	}()
	advanceUntil(clk, 10*time.Millisecond, lit)

	written := make(chan struct{})
	go func() {
		m.On(CalibratingLED)
		m.Off(CalibratingLED)
		m.On(CalibratingLED)
		close(written)
	}()
	select {
	case <-written:
	case <-time.After(time.Second):
		t.Fatal("calibrating LED writes blocked behind the error pattern")
	}
	test.That(t, calibrating.Read(), test.ShouldEqual, gpio.High)
}
