package orientation

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Quaternion is a rotation in the sensor frame. The zero value is not a
// valid rotation, use Identity.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Identity is the no-rotation quaternion.
var Identity = Quaternion{W: 1}

func (q Quaternion) number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func fromNumber(n quat.Number) Quaternion {
	return Quaternion{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}

// Mul returns q*r.
func (q Quaternion) Mul(r Quaternion) Quaternion {
	return fromNumber(quat.Mul(q.number(), r.number()))
}

// Norm returns the quaternion magnitude.
func (q Quaternion) Norm() float64 {
	return quat.Abs(q.number())
}

// Normalized returns q scaled to unit length. A zero quaternion is returned as Identity.
func (q Quaternion) Normalized() Quaternion {
	n := q.Norm()
	if n == 0 {
		return Identity
	}
	return fromNumber(quat.Scale(1/n, q.number()))
}

// EqualsWithEpsilon compares component-wise.
func (q Quaternion) EqualsWithEpsilon(r Quaternion, eps float64) bool {
	return math.Abs(q.X-r.X) < eps &&
		math.Abs(q.Y-r.Y) < eps &&
		math.Abs(q.Z-r.Z) < eps &&
		math.Abs(q.W-r.W) < eps
}

// FromAxisAngle builds a rotation of angle radians around the (x, y, z) axis.
func FromAxisAngle(x, y, z, angle float64) Quaternion {
	n := math.Sqrt(x*x + y*y + z*z)
	if n == 0 {
		return Identity
	}
	s := math.Sin(angle/2) / n
	return Quaternion{X: x * s, Y: y * s, Z: z * s, W: math.Cos(angle / 2)}
}

// MountingOffset returns the correction applied to every raw sample for a
// board mounted rotated by deg degrees around the sensor Z axis.
func MountingOffset(deg float64) Quaternion {
	return FromAxisAngle(0, 0, 1, deg*math.Pi/180.0)
}

// Pose is roll/pitch/yaw in degrees, used for logs and the console.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// ToPose converts a quaternion to Euler angles (ZYX convention).
func (q Quaternion) ToPose() Pose {
	sinrCosp := 2 * (q.W*q.X + q.Y*q.Z)
	cosrCosp := 1 - 2*(q.X*q.X+q.Y*q.Y)
	roll := math.Atan2(sinrCosp, cosrCosp)

	sinp := 2 * (q.W*q.Y - q.Z*q.X)
	var pitch float64
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}

	sinyCosp := 2 * (q.W*q.Z + q.X*q.Y)
	cosyCosp := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	yaw := math.Atan2(sinyCosp, cosyCosp)

	return Pose{
		Roll:  roll * 180.0 / math.Pi,
		Pitch: pitch * 180.0 / math.Pi,
		Yaw:   yaw * 180.0 / math.Pi,
	}
}

// FromPose is the inverse of ToPose.
func FromPose(p Pose) Quaternion {
	r := p.Roll * math.Pi / 180.0 / 2
	pt := p.Pitch * math.Pi / 180.0 / 2
	y := p.Yaw * math.Pi / 180.0 / 2

	cr, sr := math.Cos(r), math.Sin(r)
	cp, sp := math.Cos(pt), math.Sin(pt)
	cy, sy := math.Cos(y), math.Sin(y)

	return Quaternion{
		W: cr*cp*cy + sr*sp*sy,
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
	}
}
