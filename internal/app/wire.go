package app

import (
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_tracker/internal/config"
	"github.com/relabs-tech/inertial_tracker/internal/imu"
	"github.com/relabs-tech/inertial_tracker/internal/orientation"
	"github.com/relabs-tech/inertial_tracker/internal/sensors"
	"github.com/relabs-tech/inertial_tracker/internal/status"
	"github.com/relabs-tech/inertial_tracker/internal/transport"
)

// Runtime is a fully wired tracker and the resources it holds open.
type Runtime struct {
	Tracker *Tracker
	LEDs    *status.Manager

	closers []io.Closer
}

// Close releases every opened resource.
func (r *Runtime) Close() error {
	var errs error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, r.closers[i].Close())
	}
	return errs
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// SessionConfigs maps the configured sensor slots to session configs.
func SessionConfigs(cfg *config.Config) ([]sensors.Config, error) {
	out := make([]sensors.Config, 0, len(cfg.Sensors))
	for i, sc := range cfg.Sensors {
		variant, err := imu.ParseVariant(sc.Type)
		if err != nil {
			return nil, fmt.Errorf("sensor %d: %w", i, err)
		}
		out = append(out, sensors.Config{
			ID:                     uint8(i),
			Address:                sc.Address,
			IntPin:                 sc.IntPin,
			Variant:                variant,
			Offset:                 orientation.MountingOffset(sc.RotationDeg),
			MagnetometerAllTheTime: cfg.MagnetometerAllTheTime,
			MagnetometerCorrection: cfg.MagnetometerCorrection,
			Stabilization:          cfg.ARVRStabilization,
			OptimizeUpdates:        cfg.OptimizeUpdates,
			Epsilon:                cfg.DedupEpsilon,
		})
	}
	return out, nil
}

// Build opens the transport, bus and LEDs named by cfg and assembles the
// tracker. On error everything opened so far is closed.
func Build(cfg *config.Config, clk clock.Clock, logger *zap.SugaredLogger) (_ *Runtime, err error) {
	rt := &Runtime{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, rt.Close())
		}
	}()

	out, err := openTransport(cfg, logger, rt)
	if err != nil {
		return nil, err
	}

	var newPeripheral func(sensors.Config) sensors.Peripheral
	if cfg.MockSensors {
		logger.Infow("using mock sensors")
		newPeripheral = func(sensors.Config) sensors.Peripheral { return sensors.NewMockPeripheral(clk) }
	} else {
		bus, err := sensors.OpenBus(cfg.I2CBus)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, bus)
		newPeripheral = func(sc sensors.Config) sensors.Peripheral {
			return sensors.NewBNO08x(bus, logger.With("sensor", sc.ID))
		}
	}

	// LED pins resolve through the periph registry even with mock sensors
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	leds, err := status.OpenManager(clk, logger.Named("led"), map[status.LED]string{
		status.LoadingLED:     cfg.LEDPin,
		status.CalibratingLED: cfg.CalibratingLEDPin,
	})
	if err != nil {
		return nil, err
	}
	rt.LEDs = leds

	scs, err := SessionConfigs(cfg)
	if err != nil {
		return nil, err
	}
	sessions := make([]*sensors.Session, 0, len(scs))
	for _, sc := range scs {
		sessions = append(sessions, sensors.NewSession(
			sc, newPeripheral(sc), out, leds, clk,
			logger.Named("sensor").With("sensor", sc.ID),
		))
	}

	rt.Tracker = NewTracker(sessions, leds, clk, logger.Named("tracker"),
		time.Duration(cfg.PollInterval)*time.Millisecond)
	return rt, nil
}

func openTransport(cfg *config.Config, logger *zap.SugaredLogger, rt *Runtime) (transport.Sender, error) {
	switch cfg.Transport {
	case "serial":
		lines, closer, err := transport.OpenSerial(cfg.SerialPort, uint(cfg.SerialBaud))
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, closer)
		logger.Infow("forwarding over serial", "port", cfg.SerialPort, "baud", cfg.SerialBaud)
		return lines, nil
	default:
		client, err := transport.Dial(cfg.MQTTBroker, cfg.MQTTClientID, logger)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, closerFunc(func() error {
			client.Disconnect(250)
			return nil
		}))
		return transport.NewMQTT(client, cfg.TopicPrefix), nil
	}
}
