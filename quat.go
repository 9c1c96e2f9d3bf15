package viekf

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
	"github.com/westphae/quaternion"
)

// eZ is the canonical bearing direction before rotation by a bearing quaternion.
var eZ = vec3(0, 0, 1)

// Quat is a Hamilton unit quaternion (w, x, y, z). The product and conjugate
// come from westphae/quaternion; the manifold operations (exponential map,
// retraction, rotation matrices) live here.
type Quat struct {
	quaternion.Quaternion
}

// NewQuat returns the quaternion with the given scalar and vector parts.
func NewQuat(w, x, y, z float64) Quat {
	return Quat{quaternion.Quaternion{W: w, X: x, Y: y, Z: z}}
}

// QuatIdentity returns the identity rotation.
func QuatIdentity() Quat {
	return NewQuat(1, 0, 0, 0)
}

// QuatFromVec reads a (w, x, y, z) quaternion from rows i..i+3 of v.
func QuatFromVec(v *mat64.Vector, i int) Quat {
	return NewQuat(v.At(i, 0), v.At(i+1, 0), v.At(i+2, 0), v.At(i+3, 0))
}

// Vec returns the quaternion as a 4-vector (w, x, y, z).
func (q Quat) Vec() *mat64.Vector {
	return mat64.NewVector(4, []float64{q.W, q.X, q.Y, q.Z})
}

// Mul returns the Hamilton product q*p.
func (q Quat) Mul(p Quat) Quat {
	return Quat{quaternion.Prod(q.Quaternion, p.Quaternion)}
}

// Inverse returns the rotation inverse (conjugate for a unit quaternion).
func (q Quat) Inverse() Quat {
	return Quat{q.Quaternion.Conj()}
}

// Norm returns the quaternion norm.
func (q Quat) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// Normalized returns q scaled to unit norm.
func (q Quat) Normalized() Quat {
	n := q.Norm()
	return NewQuat(q.W/n, q.X/n, q.Y/n, q.Z/n)
}

// R returns the passive rotation matrix of q, i.e. Invrot(v) = R*v.
func (q Quat) R() *mat64.Dense {
	w := q.W
	x, y, z := q.X, q.Y, q.Z
	return mat64.NewDense(3, 3, []float64{
		2*w*w - 1 + 2*x*x, 2*w*z + 2*x*y, -2*w*y + 2*x*z,
		-2*w*z + 2*x*y, 2*w*w - 1 + 2*y*y, 2*w*x + 2*y*z,
		2*w*y + 2*x*z, -2*w*x + 2*y*z, 2*w*w - 1 + 2*z*z})
}

// Rot actively rotates v by q: Rot(v) = R(q)' * v.
func (q Quat) Rot(v *mat64.Vector) *mat64.Vector {
	qv := vec3(q.X, q.Y, q.Z)
	t := cross(qv, v)
	tt := cross(qv, t)
	return vec3(
		v.At(0, 0)+2*q.W*t.At(0, 0)+2*tt.At(0, 0),
		v.At(1, 0)+2*q.W*t.At(1, 0)+2*tt.At(1, 0),
		v.At(2, 0)+2*q.W*t.At(2, 0)+2*tt.At(2, 0))
}

// Invrot rotates v by the inverse of q: Invrot(v) = R(q) * v.
func (q Quat) Invrot(v *mat64.Vector) *mat64.Vector {
	qv := vec3(q.X, q.Y, q.Z)
	t := cross(qv, v)
	tt := cross(qv, t)
	return vec3(
		v.At(0, 0)-2*q.W*t.At(0, 0)+2*tt.At(0, 0),
		v.At(1, 0)-2*q.W*t.At(1, 0)+2*tt.At(1, 0),
		v.At(2, 0)-2*q.W*t.At(2, 0)+2*tt.At(2, 0))
}

// QuatExp maps a rotation vector to a unit quaternion.
func QuatExp(delta *mat64.Vector) Quat {
	theta := norm(delta)
	if theta < 1e-10 {
		// first-order expansion near zero
		return NewQuat(1, delta.At(0, 0)/2, delta.At(1, 0)/2, delta.At(2, 0)/2).Normalized()
	}
	s := math.Sin(theta/2) / theta
	return NewQuat(math.Cos(theta/2), s*delta.At(0, 0), s*delta.At(1, 0), s*delta.At(2, 0))
}

// Log maps a unit quaternion to its rotation vector, choosing the shortest
// representation so that the returned angle never exceeds pi.
func (q Quat) Log() *mat64.Vector {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	if w < 0 {
		w, x, y, z = -w, -x, -y, -z
	}
	nv := math.Sqrt(x*x + y*y + z*z)
	if nv < 1e-10 {
		return vec3(2*x/w, 2*y/w, 2*z/w)
	}
	s := 2 * math.Atan2(nv, w) / nv
	return vec3(s*x, s*y, s*z)
}

// FromTwoUnitVectors returns the quaternion q such that q.Rot(u) = v for unit u, v.
func FromTwoUnitVectors(u, v *mat64.Vector) Quat {
	w := 1 + dot(u, v)
	axis := cross(u, v)
	if w < 1e-12 && norm(axis) < 1e-12 {
		// antipodal inputs: rotate half a turn about any axis orthogonal to u
		ortho := cross(u, vec3(1, 0, 0))
		if norm(ortho) < 1e-6 {
			ortho = cross(u, vec3(0, 1, 0))
		}
		n := norm(ortho)
		return NewQuat(0, ortho.At(0, 0)/n, ortho.At(1, 0)/n, ortho.At(2, 0)/n)
	}
	return NewQuat(w, axis.At(0, 0), axis.At(1, 0), axis.At(2, 0)).Normalized()
}

// Boxplus retracts a 3-dimensional tangent increment onto the unit quaternions.
func (q Quat) Boxplus(delta *mat64.Vector) Quat {
	return q.Mul(QuatExp(delta))
}

// Boxminus returns the tangent vector taking p to q, the inverse of Boxplus.
func (q Quat) Boxminus(p Quat) *mat64.Vector {
	return p.Inverse().Mul(q).Log()
}

func (q Quat) String() string {
	return fmt.Sprintf("[%g, %gi, %gj, %gk]", q.W, q.X, q.Y, q.Z)
}

// TZeta returns the 3x2 basis of the tangent plane to the unit sphere at
// zeta = q.Rot(eZ); its columns are the rotated x and y axes.
func TZeta(q Quat) *mat64.Dense {
	tx := q.Rot(vec3(1, 0, 0))
	ty := q.Rot(vec3(0, 1, 0))
	return mat64.NewDense(3, 2, []float64{
		tx.At(0, 0), ty.At(0, 0),
		tx.At(1, 0), ty.At(1, 0),
		tx.At(2, 0), ty.At(2, 0)})
}

// QFeatBoxplus retracts a 2-dimensional tangent increment onto the bearing
// sphere: the increment is lifted through TZeta and applied as a left rotation.
func QFeatBoxplus(q Quat, delta *mat64.Vector) Quat {
	var s mat64.Vector
	s.MulVec(TZeta(q), delta)
	return QuatExp(&s).Mul(q)
}

// QFeatBoxminus returns the 2-vector taking the bearing of q2 to the bearing
// of q1, expressed in the tangent basis at q2.
func QFeatBoxminus(q1, q2 Quat) *mat64.Vector {
	zeta1 := q1.Rot(eZ)
	zeta2 := q2.Rot(eZ)

	var diff mat64.Vector
	diff.SubVec(zeta1, zeta2)
	if norm(&diff) < 1e-16 {
		return mat64.NewVector(2, nil)
	}

	axis := cross(zeta2, zeta1)
	n := norm(axis)
	c := dot(zeta2, zeta1)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	angle := math.Acos(c)

	var out mat64.Vector
	w := vec3(angle*axis.At(0, 0)/n, angle*axis.At(1, 0)/n, angle*axis.At(2, 0)/n)
	out.MulVec(TZeta(q2).T(), w)
	return &out
}
