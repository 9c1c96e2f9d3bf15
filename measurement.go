package viekf

import (
	"github.com/gonum/matrix/mat64"
)

// MeasurementType selects the measurement model used by Update.
type MeasurementType uint8

const (
	MeasAcc MeasurementType = iota + 1
	MeasAlt
	MeasAtt
	MeasPos
	MeasVel
	MeasQZeta
	MeasFeat
	MeasPixelVel
	MeasDepth
	MeasInvDepth

	numMeasurementTypes = int(MeasInvDepth) + 1
)

var measurementNames = map[MeasurementType]string{
	MeasAcc:      "ACC",
	MeasAlt:      "ALT",
	MeasAtt:      "ATT",
	MeasPos:      "POS",
	MeasVel:      "VEL",
	MeasQZeta:    "QZETA",
	MeasFeat:     "FEAT",
	MeasPixelVel: "PIXEL_VEL",
	MeasDepth:    "DEPTH",
	MeasInvDepth: "INV_DEPTH",
}

func (m MeasurementType) String() string {
	if name, ok := measurementNames[m]; ok {
		return name
	}
	return "UNKNOWN"
}

// measurementFn fills the prediction zhat and the error-state Jacobian H for
// one measurement kind. H rows beyond the measurement dimension stay zero.
type measurementFn func(kf *VIEKF, x *mat64.Vector, zhat *mat64.Vector, H *mat64.Dense, id int)

// measurementHandlers returns the handler table consulted at the top of
// Update. PIXEL_VEL has no handler and is rejected.
func measurementHandlers() map[MeasurementType]measurementFn {
	return map[MeasurementType]measurementFn{
		MeasAcc:      (*VIEKF).hAcc,
		MeasAlt:      (*VIEKF).hAlt,
		MeasAtt:      (*VIEKF).hAtt,
		MeasPos:      (*VIEKF).hPos,
		MeasVel:      (*VIEKF).hVel,
		MeasQZeta:    (*VIEKF).hQZeta,
		MeasFeat:     (*VIEKF).hFeat,
		MeasDepth:    (*VIEKF).hDepth,
		MeasInvDepth: (*VIEKF).hInvDepth,
	}
}

// hAcc predicts the x/y accelerometer reading from the drag model.
func (kf *VIEKF) hAcc(x *mat64.Vector, zhat *mat64.Vector, H *mat64.Dense, id int) {
	_ = id
	mu := x.At(xMU, 0)
	for i := 0; i < 2; i++ {
		zhat.SetVec(i, -mu*x.At(xVEL+i, 0)+x.At(xBA+i, 0))
		H.Set(i, dxVEL+i, -mu)
		H.Set(i, dxBA+i, 1)
		H.Set(i, dxMU, -x.At(xVEL+i, 0))
	}
}

// hAlt predicts an altimeter reading (positive up, position z down).
func (kf *VIEKF) hAlt(x *mat64.Vector, zhat *mat64.Vector, H *mat64.Dense, id int) {
	_ = id
	zhat.SetVec(0, -x.At(xPOS+2, 0))
	H.Set(0, dxPOS+2, -1)
}

// hAtt predicts the attitude quaternion; the residual is formed with the
// quaternion boxminus so H is identity on the attitude tangent.
func (kf *VIEKF) hAtt(x *mat64.Vector, zhat *mat64.Vector, H *mat64.Dense, id int) {
	_ = id
	for i := 0; i < 4; i++ {
		zhat.SetVec(i, x.At(xATT+i, 0))
	}
	for i := 0; i < 3; i++ {
		H.Set(i, dxATT+i, 1)
	}
}

func (kf *VIEKF) hPos(x *mat64.Vector, zhat *mat64.Vector, H *mat64.Dense, id int) {
	_ = id
	for i := 0; i < 3; i++ {
		zhat.SetVec(i, x.At(xPOS+i, 0))
		H.Set(i, dxPOS+i, 1)
	}
}

func (kf *VIEKF) hVel(x *mat64.Vector, zhat *mat64.Vector, H *mat64.Dense, id int) {
	_ = id
	for i := 0; i < 3; i++ {
		zhat.SetVec(i, x.At(xVEL+i, 0))
		H.Set(i, dxVEL+i, 1)
	}
}

// hQZeta predicts the bearing quaternion of a feature; the residual is formed
// with the sphere boxminus so H is identity on the feature's bearing tangent.
func (kf *VIEKF) hQZeta(x *mat64.Vector, zhat *mat64.Vector, H *mat64.Dense, id int) {
	i := kf.localFeatureIndex(id)
	for r := 0; r < 4; r++ {
		zhat.SetVec(r, x.At(xZ+5*i+r, 0))
	}
	H.Set(0, dxZ+3*i, 1)
	H.Set(1, dxZ+3*i+1, 1)
}

// hFeat projects a feature bearing through the camera intrinsics to a pixel.
func (kf *VIEKF) hFeat(x *mat64.Vector, zhat *mat64.Vector, H *mat64.Dense, id int) {
	i := kf.localFeatureIndex(id)
	qZeta := QuatFromVec(x, xZ+5*i)
	zeta := qZeta.Rot(eZ)
	skewZeta := skew(zeta)
	ezTzeta := dot(eZ, zeta)
	Tz := TZeta(qZeta)

	var px mat64.Vector
	px.MulVec(kf.camF, zeta)
	zhat.SetVec(0, px.At(0, 0)/ezTzeta+kf.camCenter.At(0, 0))
	zhat.SetVec(1, px.At(1, 0)/ezTzeta+kf.camCenter.At(1, 0))

	// d(pixel)/d(bearing tangent)
	var skTz, proj, scaled mat64.Dense
	skTz.Mul(skewZeta, Tz)
	// zeta * e_z' * skew(zeta) * Tz: outer product of zeta with the bottom row
	outer := mat64.NewDense(3, 2, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 2; c++ {
			outer.Set(r, c, zeta.At(r, 0)*skTz.At(2, c))
		}
	}
	proj.Scale(1/ezTzeta, &skTz)
	scaled.Scale(1/(ezTzeta*ezTzeta), outer)
	proj.Sub(&proj, &scaled)
	var jac mat64.Dense
	jac.Mul(kf.camF, &proj)
	jac.Scale(-1, &jac)
	setBlock(H, 0, dxZ+3*i, &jac)
}

// hDepth predicts the feature range along its bearing.
func (kf *VIEKF) hDepth(x *mat64.Vector, zhat *mat64.Vector, H *mat64.Dense, id int) {
	i := kf.localFeatureIndex(id)
	rho := x.At(xZ+5*i+4, 0)
	zhat.SetVec(0, 1/rho)
	H.Set(0, dxZ+3*i+2, -1/(rho*rho))
}

// hInvDepth predicts the inverse depth state directly.
func (kf *VIEKF) hInvDepth(x *mat64.Vector, zhat *mat64.Vector, H *mat64.Dense, id int) {
	i := kf.localFeatureIndex(id)
	zhat.SetVec(0, x.At(xZ+5*i+4, 0))
	H.Set(0, dxZ+3*i+2, 1)
}
