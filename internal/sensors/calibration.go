package sensors

import (
	"context"
	"fmt"
	"time"

	"github.com/relabs-tech/inertial_tracker/internal/status"
)

const calibrationPause = 20 * time.Millisecond

// Calibrate runs the on-chip gyroscope calibration and saves the result to
// the chip. It blocks until the chip reports completion; there is no
// timeout, only ctx cancellation, in which case nothing is saved.
//
// Calibrate must not run concurrently with Poll or SendData.
func (s *Session) Calibrate(ctx context.Context) error {
	if s.state == uninitialized {
		return fmt.Errorf("sensor %d: calibrate: %w", s.cfg.ID, ErrNotConfigured)
	}
	s.logger.Infow("calibration started", "mode", "gyro")

	s.leds.Pattern(status.CalibratingLED, 20*time.Millisecond, 20*time.Millisecond, 10)
	s.leds.Blink(status.CalibratingLED, 2000*time.Millisecond)
	s.dev.CalibrateGyro()

	cycles := 0
	for {
		s.leds.On(status.CalibratingLED)
		s.dev.RequestCalibrationStatus()
		s.clk.Sleep(calibrationPause)
		s.dev.GetReadings()
		s.leds.Off(status.CalibratingLED)
		s.clk.Sleep(calibrationPause)
		cycles++

		if s.dev.CalibrationComplete() {
			break
		}
		if err := ctx.Err(); err != nil {
			s.logger.Warnw("calibration aborted", "cycles", cycles, "err", err)
			return fmt.Errorf("sensor %d: calibrate: %w", s.cfg.ID, err)
		}
	}

	s.dev.SaveCalibration()
	s.logger.Infow("calibration saved", "cycles", cycles)
	return nil
}
