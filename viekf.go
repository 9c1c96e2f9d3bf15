// Package viekf implements a visual-inertial extended Kalman filter. The
// filter fuses IMU specific force and angular rate with bearing observations
// of tracked visual landmarks, estimating vehicle pose, velocity, IMU biases,
// an optional rotor-drag coefficient, and the bearing plus inverse depth of
// each landmark. The state lives on a manifold mixing Euclidean blocks with
// unit quaternions, so all corrections are applied through boxplus/boxminus
// retractions; the update step is a fixed-gain partial Schmidt-Kalman
// correction.
package viekf

import (
	"fmt"
	"math"
	"time"

	"github.com/gonum/matrix/mat64"
)

// gravity is the inertial-frame gravity vector.
var gravity = vec3(0, 0, 9.80665)

const (
	// avgRho is the inverse-depth value restored by the sanitizer.
	avgRho = 2.0
	// maxRho bounds inverse depth before the sanitizer resets it.
	maxRho = 1e2
)

// Config collects the filter tuning, camera geometry and logging options.
// All noise and gain entries are diagonals.
type Config struct {
	P0    *mat64.Vector // initial fixed-block covariance diagonal (16)
	Qx    *mat64.Vector // fixed-block process noise diagonal (16)
	Qu    *mat64.Vector // input noise diagonal (6)
	Gamma *mat64.Vector // fixed-block partial-update gains (16)

	P0Feat    *mat64.Vector // per-feature initial covariance diagonal (3)
	QxFeat    *mat64.Vector // per-feature process noise diagonal (3)
	GammaFeat *mat64.Vector // per-feature partial-update gains (3)

	CamCenter *mat64.Vector // image center (2)
	FocalLen  *mat64.Vector // focal lengths fx, fy (2)
	QBC       Quat          // body-to-camera rotation
	PBC       *mat64.Vector // body-to-camera translation (3)

	MinDepth    float64
	UseDragTerm bool

	// LogDirectory enables the prop/meas/perf/conf streams when non-empty.
	LogDirectory string
}

// VIEKF is a visual-inertial extended Kalman filter over a fixed-capacity
// manifold state. It is not safe for concurrent use; propagate and update
// calls must arrive in non-decreasing timestamp order from a single writer.
type VIEKF struct {
	x *mat64.Vector // ambient state, preallocated at capacity
	P *mat64.Dense  // error-state covariance, preallocated at capacity

	Qx     *mat64.Dense // process noise, fixed block plus every feature slot
	Qu     *mat64.Dense
	P0Feat *mat64.Dense
	gamma  *mat64.Vector
	ggT    *mat64.Dense

	lenFeatures   int
	nextFeatureID int
	featureIDs    []int

	// preallocated workspace
	dx   *mat64.Vector
	A    *mat64.Dense
	G    *mat64.Dense
	zhat *mat64.Vector
	H    *mat64.Dense

	useDragTerm bool
	minDepth    float64
	prevT       float64
	startT      float64
	seenT       bool

	camCenter *mat64.Vector
	camF      *mat64.Dense
	qBC       Quat
	pBC       *mat64.Vector

	handlers map[MeasurementType]measurementFn

	propTime    float64
	updateTimes [numMeasurementTypes]float64

	log *filterLogger
}

// New returns a VIEKF initialized about x0, which holds the fixed ambient
// block (length 17); features are introduced later through FEAT updates or
// InitFeature.
func New(x0 *mat64.Vector, cfg Config) (*VIEKF, error) {
	if err := checkVecDim(x0, "x0", xZ); err != nil {
		return nil, err
	}
	for _, chk := range []struct {
		v    *mat64.Vector
		name string
		rows int
	}{
		{cfg.P0, "P0", dxZ},
		{cfg.Qx, "Qx", dxZ},
		{cfg.Gamma, "gamma", dxZ},
		{cfg.Qu, "Qu", uTotal},
		{cfg.P0Feat, "P0feat", 3},
		{cfg.QxFeat, "Qxfeat", 3},
		{cfg.GammaFeat, "gammafeat", 3},
		{cfg.CamCenter, "camcenter", 2},
		{cfg.FocalLen, "focallen", 2},
		{cfg.PBC, "pbc", 3},
	} {
		if err := checkVecDim(chk.v, chk.name, chk.rows); err != nil {
			return nil, err
		}
	}
	if cfg.MinDepth <= 0 {
		return nil, fmt.Errorf("viekf: min depth must be positive, got %g", cfg.MinDepth)
	}
	if cfg.QBC.Norm() == 0 {
		return nil, fmt.Errorf("viekf: body-to-camera rotation must be a unit quaternion")
	}

	kf := &VIEKF{
		x:           mat64.NewVector(xMax, nil),
		P:           mat64.NewDense(dxMax, dxMax, nil),
		Qx:          mat64.NewDense(dxMax, dxMax, nil),
		Qu:          mat64.NewDense(uTotal, uTotal, nil),
		P0Feat:      mat64.NewDense(3, 3, nil),
		gamma:       mat64.NewVector(dxMax, nil),
		dx:          mat64.NewVector(dxMax, nil),
		A:           mat64.NewDense(dxMax, dxMax, nil),
		G:           mat64.NewDense(dxMax, uTotal, nil),
		zhat:        mat64.NewVector(maxZDim, nil),
		H:           mat64.NewDense(maxZDim, dxMax, nil),
		featureIDs:  make([]int, 0, MaxFeatures),
		useDragTerm: cfg.UseDragTerm,
		minDepth:    cfg.MinDepth,
		camCenter:   mat64.NewVector(2, []float64{cfg.CamCenter.At(0, 0), cfg.CamCenter.At(1, 0)}),
		qBC:         cfg.QBC.Normalized(),
		pBC:         subVec3(cfg.PBC, 0),
	}

	for i := 0; i < xZ; i++ {
		kf.x.SetVec(i, x0.At(i, 0))
	}
	for i := 0; i < dxZ; i++ {
		kf.P.Set(i, i, cfg.P0.At(i, 0))
		kf.Qx.Set(i, i, cfg.Qx.At(i, 0))
		kf.gamma.SetVec(i, cfg.Gamma.At(i, 0))
	}
	for i := 0; i < uTotal; i++ {
		kf.Qu.Set(i, i, cfg.Qu.At(i, 0))
	}
	for j := 0; j < 3; j++ {
		kf.P0Feat.Set(j, j, cfg.P0Feat.At(j, 0))
	}
	// every feature slot carries the same process noise and gains
	for i := 0; i < MaxFeatures; i++ {
		for j := 0; j < 3; j++ {
			kf.Qx.Set(dxZ+3*i+j, dxZ+3*i+j, cfg.QxFeat.At(j, 0))
			kf.gamma.SetVec(dxZ+3*i+j, cfg.GammaFeat.At(j, 0))
		}
	}
	kf.ggT = mat64.NewDense(dxMax, dxMax, nil)
	kf.ggT.Mul(kf.gamma, kf.gamma.T())

	fx := cfg.FocalLen.At(0, 0)
	fy := cfg.FocalLen.At(1, 0)
	kf.camF = mat64.NewDense(2, 3, []float64{
		fx, 0, 0,
		0, fy, 0})

	kf.handlers = measurementHandlers()

	if cfg.LogDirectory != "" {
		l, err := newFilterLogger(cfg.LogDirectory)
		if err != nil {
			return nil, err
		}
		kf.log = l
		kf.log.writeConf(kf, cfg)
	}

	return kf, nil
}

// Close tears down the optional log streams.
func (kf *VIEKF) Close() error {
	if kf.log == nil {
		return nil
	}
	return kf.log.Close()
}

// SetImuBias overwrites the gyro and accelerometer bias states.
func (kf *VIEKF) SetImuBias(bg, ba *mat64.Vector) {
	for i := 0; i < 3; i++ {
		kf.x.SetVec(xBG+i, bg.At(i, 0))
		kf.x.SetVec(xBA+i, ba.At(i, 0))
	}
}

// SetX0 overwrites the fixed ambient block of the state.
func (kf *VIEKF) SetX0(x0 *mat64.Vector) error {
	if err := checkVecDim(x0, "x0", xZ); err != nil {
		return err
	}
	for i := 0; i < xZ; i++ {
		kf.x.SetVec(i, x0.At(i, 0))
	}
	return nil
}

// Propagate advances the mean on the manifold and the covariance with a
// first-order Euler step from the previous IMU timestamp to t. The first
// call only latches the timestamp.
func (kf *VIEKF) Propagate(u *mat64.Vector, t float64) error {
	if err := checkVecDim(u, "u", uTotal); err != nil {
		return err
	}
	start := time.Now()

	if !kf.seenT {
		kf.seenT = true
		kf.startT = t
		kf.prevT = t
		return nil
	}

	dt := t - kf.prevT
	kf.prevT = t

	kf.dynamics(kf.x, u)

	var dxdt mat64.Vector
	dxdt.ScaleVec(dt, kf.dx)
	kf.boxplus(kf.x, &dxdt, kf.x)

	var AP, PAt, GQu, GQuGt mat64.Dense
	AP.Mul(kf.A, kf.P)
	PAt.Mul(kf.P, kf.A.T())
	GQu.Mul(kf.G, kf.Qu)
	GQuGt.Mul(&GQu, kf.G.T())

	n := dxDim(kf.lenFeatures)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			kf.P.Set(i, j, kf.P.At(i, j)+(AP.At(i, j)+PAt.At(i, j)+GQuGt.At(i, j)+kf.Qx.At(i, j))*dt)
		}
	}

	kf.fixDepth()

	kf.propTime += 0.1 * (time.Since(start).Seconds() - kf.propTime)
	if kf.log != nil {
		kf.log.writeProp(kf, t-kf.startT)
		kf.log.writePerf(kf, t-kf.startT)
	}
	return nil
}

// fixDepth applies the inverse-depth inequality constraint to every active
// slot: NaNs and runaway values are reset, negative depths are reset with the
// corresponding variance inflated.
func (kf *VIEKF) fixDepth() {
	for i := 0; i < kf.lenFeatures; i++ {
		xRho := xZ + 5*i + 4
		dxRho := dxZ + 3*i + 2
		rho := kf.x.At(xRho, 0)
		switch {
		case math.IsNaN(rho):
			kf.x.SetVec(xRho, avgRho)
		case rho < 0:
			err := avgRho - rho
			kf.P.Set(dxRho, dxRho, kf.P.At(dxRho, dxRho)+err*err)
			kf.x.SetVec(xRho, avgRho)
		case rho > maxRho:
			kf.P.Set(dxRho, dxRho, kf.P0Feat.At(2, 2))
			kf.x.SetVec(xRho, avgRho)
		}
	}
}

// NaNsInTheHouse reports whether the active state or covariance prefix holds a NaN.
func (kf *VIEKF) NaNsInTheHouse() bool {
	for i := 0; i < xDim(kf.lenFeatures); i++ {
		if math.IsNaN(kf.x.At(i, 0)) {
			return true
		}
	}
	n := dxDim(kf.lenFeatures)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if math.IsNaN(kf.P.At(i, j)) {
				return true
			}
		}
	}
	return false
}

// BlowingUp reports whether any state or covariance element exceeds 1e6.
func (kf *VIEKF) BlowingUp() bool {
	for i := 0; i < xMax; i++ {
		if kf.x.At(i, 0) > 1e6 {
			return true
		}
	}
	for i := 0; i < dxMax; i++ {
		for j := 0; j < dxMax; j++ {
			if kf.P.At(i, j) > 1e6 {
				return true
			}
		}
	}
	return false
}

// NegativeDepth reports whether any active inverse depth is negative.
func (kf *VIEKF) NegativeDepth() bool {
	for i := 0; i < kf.lenFeatures; i++ {
		if kf.x.At(xZ+5*i+4, 0) < 0 {
			return true
		}
	}
	return false
}

func (kf *VIEKF) String() string {
	n := dxDim(kf.lenFeatures)
	return fmt.Sprintf("VIEKF{features=%v\nx=%v\ndiag(P)=%v}", kf.featureIDs,
		mat64.Formatted(prefixVec(kf.x, xDim(kf.lenFeatures)), mat64.Prefix("  ")),
		mat64.Formatted(diagOf(kf.P, n), mat64.Prefix("       ")))
}

// prefixVec copies the first n rows of v.
func prefixVec(v *mat64.Vector, n int) *mat64.Vector {
	out := mat64.NewVector(n, nil)
	for i := 0; i < n; i++ {
		out.SetVec(i, v.At(i, 0))
	}
	return out
}

// diagOf extracts the first n diagonal entries of m as a vector.
func diagOf(m *mat64.Dense, n int) *mat64.Vector {
	out := mat64.NewVector(n, nil)
	for i := 0; i < n; i++ {
		out.SetVec(i, m.At(i, i))
	}
	return out
}
