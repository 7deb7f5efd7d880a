package orientation

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestMulIdentity(t *testing.T) {
	q := Quaternion{X: 0.1, Y: 0.2, Z: 0.3, W: 0.9}.Normalized()
	test.That(t, q.Mul(Identity), test.ShouldResemble, q)
	test.That(t, Identity.Mul(q), test.ShouldResemble, q)
}

func TestMountingOffset(t *testing.T) {
	off := MountingOffset(90)
	test.That(t, off.Z, test.ShouldAlmostEqual, math.Sqrt2/2)
	test.That(t, off.W, test.ShouldAlmostEqual, math.Sqrt2/2)

	// two quarter turns make a half turn around Z
	half := off.Mul(off)
	test.That(t, half.Z, test.ShouldAlmostEqual, 1)
	test.That(t, half.W, test.ShouldAlmostEqual, 0)
	test.That(t, math.Abs(half.ToPose().Yaw), test.ShouldAlmostEqual, 180)
}

func TestEqualsWithEpsilon(t *testing.T) {
	a := Quaternion{X: 0.5, Y: 0.5, Z: 0.5, W: 0.5}
	b := Quaternion{X: 0.5 + 1e-7, Y: 0.5, Z: 0.5, W: 0.5}
	c := Quaternion{X: 0.51, Y: 0.5, Z: 0.5, W: 0.5}

	test.That(t, a.EqualsWithEpsilon(b, 1e-6), test.ShouldBeTrue)
	test.That(t, a.EqualsWithEpsilon(c, 1e-6), test.ShouldBeFalse)
}

func TestPoseRoundTrip(t *testing.T) {
	p := Pose{Roll: 10, Pitch: -20, Yaw: 30}
	got := FromPose(p).ToPose()
	test.That(t, got.Roll, test.ShouldAlmostEqual, p.Roll, 1e-9)
	test.That(t, got.Pitch, test.ShouldAlmostEqual, p.Pitch, 1e-9)
	test.That(t, got.Yaw, test.ShouldAlmostEqual, p.Yaw, 1e-9)
}

func TestNormalizedZero(t *testing.T) {
	test.That(t, Quaternion{}.Normalized(), test.ShouldResemble, Identity)
}
