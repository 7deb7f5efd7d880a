package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_tracker/internal/transport"
)

// FormatPacket renders one upstream packet as a console line.
func FormatPacket(p transport.Packet) string {
	sensor := "-"
	if p.Sensor != nil {
		sensor = fmt.Sprintf("%d", *p.Sensor)
	}
	switch {
	case p.Type == transport.PacketRotationData && p.Quat != nil:
		pose := p.Quat.ToPose()
		tag := "ROT "
		if p.Kind == transport.DataCorrection {
			tag = "MAG "
		}
		var quality uint8
		if p.Quality != nil {
			quality = *p.Quality
		}
		return fmt.Sprintf("[%s %s]  ROLL=%7.2f  PITCH=%7.2f  YAW=%7.2f  q=%d",
			tag, sensor, pose.Roll, pose.Pitch, pose.Yaw, quality)
	case p.Type == transport.PacketMagnetometerAccuracy && p.Accuracy != nil:
		return fmt.Sprintf("[ACC  %s]  magnetometer accuracy=%.3f", sensor, *p.Accuracy)
	case p.Type == transport.PacketAccel && p.Vector != nil:
		v := *p.Vector
		return fmt.Sprintf("[ACCEL]  ax=%7.3f ay=%7.3f az=%7.3f", v[0], v[1], v[2])
	case p.Type == transport.PacketTap && p.Value != nil:
		return fmt.Sprintf("[TAP  %s]  0x%02X", sensor, *p.Value)
	case p.Type == transport.PacketError && p.Value != nil:
		return fmt.Sprintf("[ERR  %s]  reset reason=%d", sensor, *p.Value)
	default:
		return fmt.Sprintf("[%s %s]  malformed", p.Type, sensor)
	}
}

// RunConsoleMQTT prints every packet published under prefix until ctx is done.
func RunConsoleMQTT(ctx context.Context, client mqtt.Client, prefix string, out io.Writer, logger *zap.SugaredLogger) error {
	topic := prefix + "/#"
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p transport.Packet
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			logger.Warnw("console: payload unmarshal error", "topic", msg.Topic(), "err", err)
			return
		}
		fmt.Fprintln(out, FormatPacket(p))
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("console: subscribe %s: %w", topic, err)
	}
	logger.Infow("console: subscribed", "topic", topic)

	<-ctx.Done()
	logger.Infow("console: shutting down")
	if t := client.Unsubscribe(topic); t.Wait() && t.Error() != nil {
		logger.Warnw("console: unsubscribe", "err", t.Error())
	}
	return nil
}
