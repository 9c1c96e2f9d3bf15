package viekf

import (
	"fmt"
	"math"
	"time"

	"github.com/gonum/matrix/mat64"
)

// Innovation reports the prediction and residual of an accepted measurement.
// ZHat has the measurement dimension (the full quaternion for ATT and
// QZETA); the residual lives in the tangent space (3 rows for ATT, 2 for
// QZETA).
type Innovation struct {
	ZHat     *mat64.Vector
	Residual *mat64.Vector
}

// Update applies one measurement of the given kind. R must be square with
// the residual dimension. When active is false the prediction and residual
// are computed and returned but neither the state nor the covariance is
// touched. id selects the feature for feature-relative kinds and is ignored
// otherwise; depth optionally seeds the inverse depth when a FEAT update
// implicitly initializes a new feature (pass NaN when unknown).
//
// A nil Innovation with a nil error means the measurement was ignored: z
// held a NaN, the FEAT id was new (the feature was initialized instead), or
// the feature capacity was exhausted.
func (kf *VIEKF) Update(z *mat64.Vector, meas MeasurementType, R mat64.Matrix, active bool, id int, depth float64) (*Innovation, error) {
	start := time.Now()

	for i := 0; i < z.Len(); i++ {
		if math.IsNaN(z.At(i, 0)) {
			return nil, nil
		}
	}

	// a FEAT measurement with an unseen id introduces the feature instead of
	// updating
	if meas == MeasFeat && id >= 0 && !kf.hasFeature(id) {
		kf.InitFeature(z, id, depth)
		return nil, nil
	}

	fn, ok := kf.handlers[meas]
	if !ok {
		return nil, fmt.Errorf("viekf: unsupported measurement type %s", meas)
	}

	zeroVec(kf.zhat)
	zeroDense(kf.H)
	fn(kf, kf.x, kf.zhat, kf.H, id)

	var residual *mat64.Vector
	zhatRows := z.Len()
	switch meas {
	case MeasQZeta:
		if err := checkVecDim(z, "z", 4); err != nil {
			return nil, err
		}
		residual = QFeatBoxminus(QuatFromVec(z, 0), QuatFromVec(kf.zhat, 0))
	case MeasAtt:
		if err := checkVecDim(z, "z", 4); err != nil {
			return nil, err
		}
		residual = QuatFromVec(z, 0).Boxminus(QuatFromVec(kf.zhat, 0))
	default:
		residual = mat64.NewVector(z.Len(), nil)
		for i := 0; i < z.Len(); i++ {
			residual.SetVec(i, z.At(i, 0)-kf.zhat.At(i, 0))
		}
	}
	zDim := residual.Len()

	if err := checkNoiseDim(R, zDim); err != nil {
		return nil, err
	}

	if active {
		if err := kf.applyUpdate(residual, zDim, R); err != nil {
			return nil, err
		}
		kf.fixDepth()
	}

	kf.updateTimes[int(meas)] += 0.1 * (time.Since(start).Seconds() - kf.updateTimes[int(meas)])
	if kf.log != nil {
		kf.log.writeMeas(kf, meas, kf.prevT-kf.startT, z, zDim, id)
	}

	return &Innovation{ZHat: prefixVec(kf.zhat, zhatRows), Residual: residual}, nil
}

// applyUpdate performs the fixed-gain partial Schmidt-Kalman correction on
// the manifold using the top zDim rows of the measurement Jacobian.
func (kf *VIEKF) applyUpdate(residual *mat64.Vector, zDim int, R mat64.Matrix) error {
	Hz := block(kf.H, 0, 0, zDim, dxMax)

	var PHt, S mat64.Dense
	PHt.Mul(kf.P, Hz.T())
	S.Mul(Hz, &PHt)
	S.Add(&S, R)
	if err := S.Inverse(&S); err != nil {
		return fmt.Errorf("viekf: could not invert innovation covariance: %s", err)
	}

	var K mat64.Dense
	K.Mul(&PHt, &S)

	// mean: x <- x [+] diag(gamma) * K * r
	var Kr mat64.Vector
	Kr.MulVec(&K, residual)
	for i := 0; i < dxMax; i++ {
		Kr.SetVec(i, kf.gamma.At(i, 0)*Kr.At(i, 0))
	}
	kf.boxplus(kf.x, &Kr, kf.x)

	// covariance: P <- P - (gamma*gamma') .* (K * Hz * P)
	var KH, KHP mat64.Dense
	KH.Mul(&K, Hz)
	KHP.Mul(&KH, kf.P)
	n := dxDim(kf.lenFeatures)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			kf.P.Set(i, j, kf.P.At(i, j)-kf.ggT.At(i, j)*KHP.At(i, j))
		}
	}
	return nil
}
