package viekf

import (
	"math"

	"github.com/gonum/matrix/mat64"
)

// Identity returns an identity matrix of the provided size.
func Identity(n int) mat64.Symmetric {
	vals := make([]float64, n*n)
	for j := 0; j < n*n; j++ {
		if j%(n+1) == 0 {
			vals[j] = 1
		}
	}
	return mat64.NewSymDense(n, vals)
}

// vec3 builds a 3-vector.
func vec3(x, y, z float64) *mat64.Vector {
	return mat64.NewVector(3, []float64{x, y, z})
}

// subVec3 extracts the 3-vector starting at row i of v.
func subVec3(v *mat64.Vector, i int) *mat64.Vector {
	return vec3(v.At(i, 0), v.At(i+1, 0), v.At(i+2, 0))
}

// cross returns a x b for 3-vectors.
func cross(a, b *mat64.Vector) *mat64.Vector {
	return vec3(
		a.At(1, 0)*b.At(2, 0)-a.At(2, 0)*b.At(1, 0),
		a.At(2, 0)*b.At(0, 0)-a.At(0, 0)*b.At(2, 0),
		a.At(0, 0)*b.At(1, 0)-a.At(1, 0)*b.At(0, 0))
}

// dot returns the inner product of two equally sized vectors.
func dot(a, b *mat64.Vector) float64 {
	s := 0.0
	for i := 0; i < a.Len(); i++ {
		s += a.At(i, 0) * b.At(i, 0)
	}
	return s
}

// norm returns the Euclidean norm of v.
func norm(v *mat64.Vector) float64 {
	return math.Sqrt(dot(v, v))
}

// skew returns the skew-symmetric cross-product matrix of a 3-vector.
func skew(v *mat64.Vector) *mat64.Dense {
	x, y, z := v.At(0, 0), v.At(1, 0), v.At(2, 0)
	return mat64.NewDense(3, 3, []float64{
		0, -z, y,
		z, 0, -x,
		-y, x, 0})
}

// setBlock copies src into dst starting at row r, column c.
func setBlock(dst *mat64.Dense, r, c int, src mat64.Matrix) {
	br, bc := src.Dims()
	for i := 0; i < br; i++ {
		for j := 0; j < bc; j++ {
			dst.Set(r+i, c+j, src.At(i, j))
		}
	}
}

// block copies the r x c submatrix of m rooted at (i, j).
func block(m *mat64.Dense, i, j, r, c int) *mat64.Dense {
	out := mat64.NewDense(r, c, nil)
	for bi := 0; bi < r; bi++ {
		for bj := 0; bj < c; bj++ {
			out.Set(bi, bj, m.At(i+bi, j+bj))
		}
	}
	return out
}

// zeroDense sets every element of m to zero without resizing it.
func zeroDense(m *mat64.Dense) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, 0)
		}
	}
}

// zeroVec sets every element of v to zero.
func zeroVec(v *mat64.Vector) {
	for i := 0; i < v.Len(); i++ {
		v.SetVec(i, 0)
	}
}

