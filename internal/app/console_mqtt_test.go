package app

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"github.com/relabs-tech/inertial_tracker/internal/orientation"
	"github.com/relabs-tech/inertial_tracker/internal/transport"
)

func u8(v uint8) *uint8      { return &v }
func f64(v float64) *float64 { return &v }

func TestFormatPacket(t *testing.T) {
	q := orientation.FromPose(orientation.Pose{Roll: 10, Pitch: -5, Yaw: 90})
	for _, tc := range []struct {
		name string
		p    transport.Packet
		want []string
	}{
		{
			name: "rotation",
			p:    transport.Packet{Type: transport.PacketRotationData, Sensor: u8(0), Kind: transport.DataNormal, Quat: &q, Quality: u8(3)},
			want: []string{"[ROT  0]", "ROLL=  10.00", "PITCH=  -5.00", "YAW=  90.00", "q=3"},
		},
		{
			name: "correction",
			p:    transport.Packet{Type: transport.PacketRotationData, Sensor: u8(1), Kind: transport.DataCorrection, Quat: &q, Quality: u8(1)},
			want: []string{"[MAG  1]"},
		},
		{
			name: "magnetometer accuracy",
			p:    transport.Packet{Type: transport.PacketMagnetometerAccuracy, Sensor: u8(0), Accuracy: f64(0.25)},
			want: []string{"[ACC  0]", "accuracy=0.250"},
		},
		{
			name: "accel",
			p:    transport.Packet{Type: transport.PacketAccel, Vector: &[3]float64{0, 0, 9.81}},
			want: []string{"[ACCEL]", "az=  9.810"},
		},
		{
			name: "tap",
			p:    transport.Packet{Type: transport.PacketTap, Sensor: u8(1), Value: u8(0x21)},
			want: []string{"[TAP  1]", "0x21"},
		},
		{
			name: "error",
			p:    transport.Packet{Type: transport.PacketError, Sensor: u8(0), Value: u8(3)},
			want: []string{"[ERR  0]", "reset reason=3"},
		},
		{
			name: "missing payload",
			p:    transport.Packet{Type: transport.PacketRotationData},
			want: []string{"[rotation -]", "malformed"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			line := FormatPacket(tc.p)
			for _, w := range tc.want {
				test.That(t, line, test.ShouldContainSubstring, w)
			}
		})
	}
}

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

// subscriberClient embeds the interface so only the used methods need bodies.
type subscriberClient struct {
	mqtt.Client
	subscribed   chan mqtt.MessageHandler
	topic        string
	unsubscribed []string
}

func (c *subscriberClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.topic = topic
	c.subscribed <- cb
	return doneToken{}
}

func (c *subscriberClient) Unsubscribe(topics ...string) mqtt.Token {
	c.unsubscribed = append(c.unsubscribed, topics...)
	return doneToken{}
}

func TestRunConsoleMQTT(t *testing.T) {
	client := &subscriberClient{subscribed: make(chan mqtt.MessageHandler, 1)}
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- RunConsoleMQTT(ctx, client, "tracker", &out, zaptest.NewLogger(t).Sugar()) }()

	handler := <-client.subscribed
	payload, err := json.Marshal(transport.Packet{Type: transport.PacketTap, Sensor: u8(0), Value: u8(5)})
	test.That(t, err, test.ShouldBeNil)
	handler(client, fakeMessage{topic: "tracker/0/tap", payload: payload})
	handler(client, fakeMessage{topic: "tracker/0/tap", payload: []byte("not json")})

	cancel()
	test.That(t, <-done, test.ShouldBeNil)
	test.That(t, client.topic, test.ShouldEqual, "tracker/#")
	test.That(t, client.unsubscribed, test.ShouldResemble, []string{"tracker/#"})
	test.That(t, out.String(), test.ShouldEqual, "[TAP  0]  0x05\n")
}
