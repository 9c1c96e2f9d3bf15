package viekf

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
)

// checkVecDim checks that a configuration or measurement vector has the
// expected number of rows. Returns an error if not.
func checkVecDim(v *mat64.Vector, name string, rows int) error {
	if v == nil {
		return fmt.Errorf("%s must not be nil", name)
	}
	if r, _ := v.Dims(); r != rows {
		return fmt.Errorf("dimensions must agree: %s(%dx1) expected (%dx1)", name, r, rows)
	}
	return nil
}

// checkNoiseDim checks that a measurement noise matrix is square with the
// residual dimension (the tangent dimension for the quaternion-valued
// kinds). Returns an error if not.
func checkNoiseDim(R mat64.Matrix, zDim int) error {
	if R == nil {
		return fmt.Errorf("measurement noise must not be nil")
	}
	r, c := R.Dims()
	if r != c || r != zDim {
		return fmt.Errorf("dimensions must agree: R(%dx%d) expected (%dx%d) to match the residual", r, c, zDim, zDim)
	}
	return nil
}
