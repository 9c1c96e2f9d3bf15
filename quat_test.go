package viekf

import (
	"math"
	"math/rand"
	"testing"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
)

const propertyDraws = 100

func randVec3(r *rand.Rand, scale float64) *mat64.Vector {
	return vec3(
		(2*r.Float64()-1)*scale,
		(2*r.Float64()-1)*scale,
		(2*r.Float64()-1)*scale)
}

func randUnitVec3(r *rand.Rand) *mat64.Vector {
	for {
		v := randVec3(r, 1)
		if n := norm(v); n > 1e-3 {
			return vec3(v.At(0, 0)/n, v.At(1, 0)/n, v.At(2, 0)/n)
		}
	}
}

func randQuat(r *rand.Rand) Quat {
	return NewQuat(2*r.Float64()-1, 2*r.Float64()-1, 2*r.Float64()-1, 2*r.Float64()-1).Normalized()
}

func vecsEqual(t *testing.T, name string, a, b *mat64.Vector, tol float64) {
	t.Helper()
	if a.Len() != b.Len() {
		t.Fatalf("%s: length mismatch %d != %d", name, a.Len(), b.Len())
	}
	for i := 0; i < a.Len(); i++ {
		if !floats.EqualWithinAbs(a.At(i, 0), b.At(i, 0), tol) {
			t.Fatalf("%s: row %d: %g != %g\na=%v\nb=%v", name, i, a.At(i, 0), b.At(i, 0),
				mat64.Formatted(a.T()), mat64.Formatted(b.T()))
		}
	}
}

func TestQuatRotInvrotR(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < propertyDraws; i++ {
		q := randQuat(r)
		v := randVec3(r, 1)
		R := q.R()

		var Rv, Rtv mat64.Vector
		Rv.MulVec(R, v)
		Rtv.MulVec(R.T(), v)

		vecsEqual(t, "rot vs R'v", q.Rot(v), &Rtv, 1e-8)
		vecsEqual(t, "invrot vs Rv", q.Invrot(v), &Rv, 1e-8)

		// rotations are inverses of each other
		vecsEqual(t, "invrot(rot(v))", q.Invrot(q.Rot(v)), v, 1e-8)
	}
}

func TestQuatFromTwoUnitVectors(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < propertyDraws; i++ {
		v1 := randUnitVec3(r)
		v2 := randUnitVec3(r)
		vecsEqual(t, "rot(v1)=v2", FromTwoUnitVectors(v1, v2).Rot(v1), v2, 1e-8)
		vecsEqual(t, "invrot(v1)=v2", FromTwoUnitVectors(v2, v1).Invrot(v1), v2, 1e-8)
	}
}

func TestQuatExpLogRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < propertyDraws; i++ {
		omega := randVec3(r, 1.5) // norm < pi
		vecsEqual(t, "log(exp(w))", QuatExp(omega).Log(), omega, 1e-8)

		q := randQuat(r)
		qr := QuatExp(q.Log())
		v := randVec3(r, 1)
		vecsEqual(t, "exp(log(q)) rotation", qr.Rot(v), q.Rot(v), 1e-8)
	}
}

func TestQuatBoxplusBoxminus(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	zeros := mat64.NewVector(3, nil)
	for i := 0; i < propertyDraws; i++ {
		q := randQuat(r)
		q2 := randQuat(r)
		delta1 := randVec3(r, 1)
		delta2 := randVec3(r, 1)

		// q [+] 0 = q
		v := randVec3(r, 1)
		vecsEqual(t, "q+0", q.Boxplus(zeros).Rot(v), q.Rot(v), 1e-8)

		// q [+] (q2 [-] q) = q2
		vecsEqual(t, "q+(q2-q)", q.Boxplus(q2.Boxminus(q)).Rot(v), q2.Rot(v), 1e-8)

		// (q [+] d) [-] q = d
		vecsEqual(t, "(q+d)-q", q.Boxplus(delta1).Boxminus(q), delta1, 1e-8)

		// nonexpansive
		var dd mat64.Vector
		dd.SubVec(delta1, delta2)
		lhs := norm(q.Boxplus(delta1).Boxminus(q.Boxplus(delta2)))
		if lhs > norm(&dd)+1e-9 {
			t.Fatalf("boxminus expanded: %g > %g", lhs, norm(&dd))
		}
	}
}

func TestTZetaOrthogonal(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	for i := 0; i < propertyDraws; i++ {
		v := randUnitVec3(r)
		q := FromTwoUnitVectors(eZ, v)
		var proj mat64.Vector
		proj.MulVec(TZeta(q).T(), q.Rot(eZ))
		vecsEqual(t, "Tzeta' * zeta", &proj, mat64.NewVector(2, nil), 1e-8)
	}
}

// the directional derivative of Tzeta(q)'*v along the sphere tangent equals
// -Tzeta'*skew(v)*Tzeta
func TestTZetaDerivative(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	const epsilon = 1e-6
	for j := 0; j < propertyDraws; j++ {
		v := randVec3(r, 1)
		q := randQuat(r)
		q = NewQuat(q.W, q.X, q.Y, 0).Normalized()
		Tz := TZeta(q)

		var x0 mat64.Vector
		x0.MulVec(Tz.T(), v)

		var analytic mat64.Dense
		var sv mat64.Dense
		sv.Mul(skew(v), Tz)
		analytic.Mul(Tz.T(), &sv)
		analytic.Scale(-1, &analytic)

		fd := mat64.NewDense(2, 2, nil)
		for i := 0; i < 2; i++ {
			delta := mat64.NewVector(2, nil)
			delta.SetVec(i, epsilon)
			qplus := QFeatBoxplus(q, delta)
			var xprime mat64.Vector
			xprime.MulVec(TZeta(qplus).T(), v)
			for c := 0; c < 2; c++ {
				fd.Set(i, c, (xprime.At(c, 0)-x0.At(c, 0))/epsilon)
			}
		}
		for ri := 0; ri < 2; ri++ {
			for c := 0; c < 2; c++ {
				if !floats.EqualWithinAbs(fd.At(ri, c), analytic.At(ri, c), 1e-4) {
					t.Fatalf("dTdq (%d,%d): fd=%g analytic=%g", ri, c, fd.At(ri, c), analytic.At(ri, c))
				}
			}
		}
	}
}

func TestQFeatManifoldOperations(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	zeros := mat64.NewVector(2, nil)
	for i := 0; i < propertyDraws; i++ {
		omega := randVec3(r, 1)
		omega2 := randVec3(r, 1)
		omega.SetVec(2, 0)
		omega2.SetVec(2, 0)
		dx := mat64.NewVector(2, []float64{(2*r.Float64() - 1) / 2, (2*r.Float64() - 1) / 2})

		x := QuatExp(omega)
		y := QuatExp(omega2)

		// x [+] 0 = x
		vecsEqual(t, "qfeat x+0", QFeatBoxplus(x, zeros).Rot(eZ), x.Rot(eZ), 1e-8)

		// x [+] (y [-] x) points where y points
		vecsEqual(t, "qfeat x+(y-x)", QFeatBoxplus(x, QFeatBoxminus(y, x)).Rot(eZ), y.Rot(eZ), 1e-8)

		// (x [+] dx) [-] x = dx
		vecsEqual(t, "qfeat (x+dx)-x", QFeatBoxminus(QFeatBoxplus(x, dx), x), dx, 1e-8)
	}
}

// the sphere retraction differentiated through the sphere boxminus is the identity
func TestQFeatBoxminusDerivative(t *testing.T) {
	r := rand.New(rand.NewSource(8))
	const epsilon = 1e-6
	for j := 0; j < propertyDraws; j++ {
		q := randQuat(r)
		if j == 0 {
			q = QuatIdentity()
		}
		for i := 0; i < 2; i++ {
			delta := mat64.NewVector(2, nil)
			delta.SetVec(i, epsilon)
			qprime := QFeatBoxplus(q, delta)
			dq := QFeatBoxminus(qprime, q)
			for c := 0; c < 2; c++ {
				want := 0.0
				if c == i {
					want = 1.0
				}
				if !floats.EqualWithinAbs(dq.At(c, 0)/epsilon, want, 1e-2) {
					t.Fatalf("dqdq (%d,%d) = %g, want %g", i, c, dq.At(c, 0)/epsilon, want)
				}
			}
		}
	}
}

func TestQuatNormInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	for i := 0; i < propertyDraws; i++ {
		q := randQuat(r)
		d := randVec3(r, 2)
		if n := q.Boxplus(d).Norm(); math.Abs(n-1) > 1e-9 {
			t.Fatalf("boxplus broke unit norm: %g", n)
		}
	}
}
