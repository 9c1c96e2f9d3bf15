package viekf

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
	"github.com/gonum/stat"
)

// NEES returns the normalized estimation error squared of the filter against
// a ground-truth ambient state (length 17 + 5N for the current N). The error
// is formed with the manifold boxminus and weighted by the inverse of the
// active covariance prefix.
func (kf *VIEKF) NEES(truth *mat64.Vector) (float64, error) {
	if err := checkVecDim(truth, "truth", xDim(kf.lenFeatures)); err != nil {
		return 0, err
	}

	n := dxDim(kf.lenFeatures)
	xt := mat64.NewVector(xMax, nil)
	for i := 0; i < truth.Len(); i++ {
		xt.SetVec(i, truth.At(i, 0))
	}
	e := mat64.NewVector(dxMax, nil)
	kf.boxminus(xt, kf.x, e)

	var PInv mat64.Dense
	PInv.Clone(block(kf.P, 0, 0, n, n))
	if err := PInv.Inverse(&PInv); err != nil {
		return 0, fmt.Errorf("viekf: could not invert covariance for NEES: %s", err)
	}

	var we mat64.Vector
	we.MulVec(&PInv, prefixVec(e, n))
	return dot(prefixVec(e, n), &we), nil
}

// ConsistencyRun accumulates NEES samples over a simulated trajectory so the
// mean can be compared against the chi-square expectation (the active tangent
// dimension for a consistent filter).
type ConsistencyRun struct {
	samples []float64
}

// Add records the NEES of the filter against the supplied truth state.
func (c *ConsistencyRun) Add(kf *VIEKF, truth *mat64.Vector) error {
	nees, err := kf.NEES(truth)
	if err != nil {
		return err
	}
	c.samples = append(c.samples, nees)
	return nil
}

// Len returns the number of recorded samples.
func (c *ConsistencyRun) Len() int {
	return len(c.samples)
}

// Mean returns the average NEES over the recorded samples.
func (c *ConsistencyRun) Mean() float64 {
	if len(c.samples) == 0 {
		return 0
	}
	return stat.Mean(c.samples, nil)
}
