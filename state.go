package viekf

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
)

// Ambient state indices. The state vector stores position, body-frame
// velocity, the body-to-inertial attitude quaternion, IMU biases, the drag
// coefficient, and then five rows per feature (bearing quaternion + inverse
// depth).
const (
	xPOS = 0
	xVEL = 3
	xATT = 6
	xBA  = 10
	xBG  = 13
	xMU  = 16
	xZ   = 17
)

// Error-state (tangent) indices. Attitude uses a 3-dimensional tangent and
// each feature a 2-dimensional sphere tangent plus one inverse-depth row, so
// the two index families part ways from the bias blocks onward (they share
// the position, velocity and attitude start indices).
const (
	dxPOS = 0
	dxVEL = 3
	dxATT = 6
	dxBA  = 9
	dxBG  = 12
	dxMU  = 15
	dxZ   = 16
)

// Input vector indices: accelerometer then gyro.
const (
	uA     = 0
	uG     = 3
	uTotal = 6
)

// MaxFeatures is the fixed feature-slot capacity. All state, covariance and
// Jacobian storage is preallocated for this many features.
const MaxFeatures = 16

const (
	xMax    = xZ + 5*MaxFeatures
	dxMax   = dxZ + 3*MaxFeatures
	maxZDim = 4
)

// xDim returns the active ambient state length for n features.
func xDim(n int) int { return xZ + 5*n }

// dxDim returns the active tangent length for n features.
func dxDim(n int) int { return dxZ + 3*n }

// boxplus retracts the tangent vector dx onto the state manifold about x,
// writing the result to out. Aliasing out with x is allowed. Only the fixed
// block and the active feature slots are touched.
func (kf *VIEKF) boxplus(x, dx, out *mat64.Vector) {
	for i := 0; i < 3; i++ {
		out.SetVec(xPOS+i, x.At(xPOS+i, 0)+dx.At(dxPOS+i, 0))
		out.SetVec(xVEL+i, x.At(xVEL+i, 0)+dx.At(dxVEL+i, 0))
	}

	q := QuatFromVec(x, xATT).Boxplus(subVec3(dx, dxATT)).Normalized()
	out.SetVec(xATT, q.W)
	out.SetVec(xATT+1, q.X)
	out.SetVec(xATT+2, q.Y)
	out.SetVec(xATT+3, q.Z)

	for i := 0; i < 3; i++ {
		out.SetVec(xBA+i, x.At(xBA+i, 0)+dx.At(dxBA+i, 0))
		out.SetVec(xBG+i, x.At(xBG+i, 0)+dx.At(dxBG+i, 0))
	}
	out.SetVec(xMU, x.At(xMU, 0)+dx.At(dxMU, 0))

	for i := 0; i < kf.lenFeatures; i++ {
		xi := xZ + 5*i
		dxi := dxZ + 3*i
		qz := QFeatBoxplus(QuatFromVec(x, xi), mat64.NewVector(2, []float64{dx.At(dxi, 0), dx.At(dxi+1, 0)})).Normalized()
		out.SetVec(xi, qz.W)
		out.SetVec(xi+1, qz.X)
		out.SetVec(xi+2, qz.Y)
		out.SetVec(xi+3, qz.Z)
		out.SetVec(xi+4, x.At(xi+4, 0)+dx.At(dxi+2, 0))
	}
}

// boxminus computes the tangent vector from x2 to x1 on the active prefix.
func (kf *VIEKF) boxminus(x1, x2, out *mat64.Vector) {
	for i := 0; i < 3; i++ {
		out.SetVec(dxPOS+i, x1.At(xPOS+i, 0)-x2.At(xPOS+i, 0))
		out.SetVec(dxVEL+i, x1.At(xVEL+i, 0)-x2.At(xVEL+i, 0))
	}

	datt := QuatFromVec(x1, xATT).Boxminus(QuatFromVec(x2, xATT))
	for i := 0; i < 3; i++ {
		out.SetVec(dxATT+i, datt.At(i, 0))
		out.SetVec(dxBA+i, x1.At(xBA+i, 0)-x2.At(xBA+i, 0))
		out.SetVec(dxBG+i, x1.At(xBG+i, 0)-x2.At(xBG+i, 0))
	}
	out.SetVec(dxMU, x1.At(xMU, 0)-x2.At(xMU, 0))

	for i := 0; i < kf.lenFeatures; i++ {
		xi := xZ + 5*i
		dxi := dxZ + 3*i
		dz := QFeatBoxminus(QuatFromVec(x1, xi), QuatFromVec(x2, xi))
		out.SetVec(dxi, dz.At(0, 0))
		out.SetVec(dxi+1, dz.At(1, 0))
		out.SetVec(dxi+2, x1.At(xi+4, 0)-x2.At(xi+4, 0))
	}
}

// localFeatureIndex resolves a global feature id to its slot. An unknown id
// is a programmer error: ids must be introduced by a FEAT update or
// InitFeature before any other use.
func (kf *VIEKF) localFeatureIndex(id int) int {
	for i, fid := range kf.featureIDs {
		if fid == id {
			return i
		}
	}
	panic(fmt.Errorf("viekf: feature id %d is not tracked", id))
}

// hasFeature reports whether the global id is currently tracked.
func (kf *VIEKF) hasFeature(id int) bool {
	for _, fid := range kf.featureIDs {
		if fid == id {
			return true
		}
	}
	return false
}

// LenFeatures returns the number of active feature slots.
func (kf *VIEKF) LenFeatures() int {
	return kf.lenFeatures
}

// FeatureIDs returns the tracked global ids in slot order.
func (kf *VIEKF) FeatureIDs() []int {
	out := make([]int, len(kf.featureIDs))
	copy(out, kf.featureIDs)
	return out
}

// State returns a copy of the full preallocated state vector; rows past the
// active prefix are zero.
func (kf *VIEKF) State() *mat64.Vector {
	out := mat64.NewVector(xMax, nil)
	out.CopyVec(kf.x)
	return out
}

// Covariance returns a copy of the full error-state covariance; rows and
// columns past the active prefix are zero.
func (kf *VIEKF) Covariance() *mat64.Dense {
	out := mat64.NewDense(dxMax, dxMax, nil)
	out.Copy(kf.P)
	return out
}

// Depths returns the estimated depth (1/rho) of each active feature.
func (kf *VIEKF) Depths() *mat64.Vector {
	out := mat64.NewVector(kf.lenFeatures, nil)
	for i := 0; i < kf.lenFeatures; i++ {
		out.SetVec(i, 1.0/kf.x.At(xZ+5*i+4, 0))
	}
	return out
}

// Zetas returns the unit bearing of each active feature as columns of a 3xN
// matrix; with no active feature it returns a single zero column.
func (kf *VIEKF) Zetas() *mat64.Dense {
	out := mat64.NewDense(3, maxInt(kf.lenFeatures, 1), nil)
	for i := 0; i < kf.lenFeatures; i++ {
		zeta := QuatFromVec(kf.x, xZ+5*i).Rot(eZ)
		for r := 0; r < 3; r++ {
			out.Set(r, i, zeta.At(r, 0))
		}
	}
	return out
}

// QZetas returns the bearing quaternion of each active feature as columns of a
// 4xN matrix; with no active feature it returns a single zero column.
func (kf *VIEKF) QZetas() *mat64.Dense {
	out := mat64.NewDense(4, maxInt(kf.lenFeatures, 1), nil)
	for i := 0; i < kf.lenFeatures; i++ {
		for r := 0; r < 4; r++ {
			out.Set(r, i, kf.x.At(xZ+5*i+r, 0))
		}
	}
	return out
}

// Zeta returns the unit bearing of slot i.
func (kf *VIEKF) Zeta(i int) *mat64.Vector {
	return QuatFromVec(kf.x, xZ+5*i).Rot(eZ)
}

// Depth returns the estimated depth of the feature with the given global id.
func (kf *VIEKF) Depth(id int) float64 {
	i := kf.localFeatureIndex(id)
	return 1.0 / kf.x.At(xZ+5*i+4, 0)
}

// Feat returns the predicted pixel location of the feature with the given global id.
func (kf *VIEKF) Feat(id int) *mat64.Vector {
	i := kf.localFeatureIndex(id)
	qz := QuatFromVec(kf.x, xZ+5*i)
	zeta := qz.Rot(eZ)
	ezTzeta := dot(eZ, zeta)

	var px mat64.Vector
	px.MulVec(kf.camF, zeta)
	return mat64.NewVector(2, []float64{
		px.At(0, 0)/ezTzeta + kf.camCenter.At(0, 0),
		px.At(1, 0)/ezTzeta + kf.camCenter.At(1, 0)})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
