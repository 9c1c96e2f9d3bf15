package viekf

import (
	"math/rand"
	"testing"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
)

const (
	jacEpsilon = 1e-6
	jacTol     = 1e-3
)

// fdStateJacobian computes the central-difference Jacobian of the dynamics
// with respect to the error state, perturbing through the manifold boxplus.
func fdStateJacobian(kf *VIEKF, x, u *mat64.Vector) *mat64.Dense {
	n := dxDim(kf.lenFeatures)
	fd := mat64.NewDense(dxMax, dxMax, nil)
	xPlus := mat64.NewVector(xMax, nil)
	xMinus := mat64.NewVector(xMax, nil)
	delta := mat64.NewVector(dxMax, nil)
	for i := 0; i < n; i++ {
		zeroVec(delta)
		delta.SetVec(i, jacEpsilon)
		kf.boxplus(x, delta, xPlus)
		delta.SetVec(i, -jacEpsilon)
		kf.boxplus(x, delta, xMinus)

		dxPlus, _, _ := kf.Dynamics(xPlus, u)
		dxMinus, _, _ := kf.Dynamics(xMinus, u)
		for r := 0; r < n; r++ {
			fd.Set(r, i, (dxPlus.At(r, 0)-dxMinus.At(r, 0))/(2*jacEpsilon))
		}
	}
	return fd
}

// fdInputJacobian computes the central-difference Jacobian of the dynamics
// with respect to the input.
func fdInputJacobian(kf *VIEKF, x, u *mat64.Vector) *mat64.Dense {
	n := dxDim(kf.lenFeatures)
	fd := mat64.NewDense(dxMax, uTotal, nil)
	uPlus := mat64.NewVector(uTotal, nil)
	uMinus := mat64.NewVector(uTotal, nil)
	for i := 0; i < uTotal; i++ {
		uPlus.CopyVec(u)
		uMinus.CopyVec(u)
		uPlus.SetVec(i, u.At(i, 0)+jacEpsilon)
		uMinus.SetVec(i, u.At(i, 0)-jacEpsilon)

		dxPlus, _, _ := kf.Dynamics(x, uPlus)
		dxMinus, _, _ := kf.Dynamics(x, uMinus)
		for r := 0; r < n; r++ {
			fd.Set(r, i, (dxPlus.At(r, 0)-dxMinus.At(r, 0))/(2*jacEpsilon))
		}
	}
	return fd
}

func matsEqual(t *testing.T, name string, a, fd *mat64.Dense, rows, cols int) {
	t.Helper()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if !floats.EqualWithinAbsOrRel(a.At(i, j), fd.At(i, j), jacTol, jacTol) {
				t.Errorf("%s(%d,%d): analytic=%g fd=%g", name, i, j, a.At(i, j), fd.At(i, j))
			}
		}
	}
}

func TestDynamicsStateJacobian(t *testing.T) {
	r := rand.New(rand.NewSource(20))
	kf, x0, u0 := newRandomFilter(t, r, false, 3)

	_, A, _ := kf.Dynamics(x0, u0)
	fd := fdStateJacobian(kf, x0, u0)
	n := dxDim(kf.lenFeatures)
	matsEqual(t, "dfdx", A, fd, n, n)
}

func TestDynamicsStateJacobianDrag(t *testing.T) {
	r := rand.New(rand.NewSource(21))
	kf, x0, u0 := newRandomFilter(t, r, true, 3)

	_, A, _ := kf.Dynamics(x0, u0)
	fd := fdStateJacobian(kf, x0, u0)
	n := dxDim(kf.lenFeatures)
	matsEqual(t, "dfdx drag", A, fd, n, n)
}

func TestDynamicsInputJacobian(t *testing.T) {
	r := rand.New(rand.NewSource(22))
	kf, x0, u0 := newRandomFilter(t, r, false, 3)

	_, _, G := kf.Dynamics(x0, u0)
	fd := fdInputJacobian(kf, x0, u0)
	n := dxDim(kf.lenFeatures)
	matsEqual(t, "dfdu", G, fd, n, uTotal)
}

func TestDynamicsInputJacobianDrag(t *testing.T) {
	r := rand.New(rand.NewSource(23))
	kf, x0, u0 := newRandomFilter(t, r, true, 3)

	_, _, G := kf.Dynamics(x0, u0)
	fd := fdInputJacobian(kf, x0, u0)
	n := dxDim(kf.lenFeatures)
	matsEqual(t, "dfdu drag", G, fd, n, uTotal)
}

// the derivative workspace must leave inactive feature rows zero so the
// full-capacity covariance products stay exact
func TestDynamicsInactiveRowsZero(t *testing.T) {
	r := rand.New(rand.NewSource(24))
	kf, x0, u0 := newRandomFilter(t, r, false, 2)

	xdot, A, G := kf.Dynamics(x0, u0)
	n := dxDim(kf.lenFeatures)
	for i := n; i < dxMax; i++ {
		if xdot.At(i, 0) != 0 {
			t.Fatalf("xdot row %d active past the prefix", i)
		}
		for j := 0; j < dxMax; j++ {
			if A.At(i, j) != 0 || A.At(j, i) != 0 {
				t.Fatalf("A row/col %d active past the prefix", i)
			}
		}
		for j := 0; j < uTotal; j++ {
			if G.At(i, j) != 0 {
				t.Fatalf("G row %d active past the prefix", i)
			}
		}
	}
}
