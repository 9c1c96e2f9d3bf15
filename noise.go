package viekf

import (
	"fmt"
	"math/rand"

	"github.com/gonum/matrix/mat64"
	"github.com/gonum/stat/distmv"
)

// SensorNoise draws zero-mean Gaussian noise for one aiding sensor in a
// simulated filter run. It carries the same R matrix the driver hands to
// Update with each observation, so the simulated corruption and the filter
// tuning cannot drift apart.
type SensorNoise struct {
	cov  mat64.Symmetric
	dist *distmv.Normal
}

// NewSensorNoise builds a sampler for observations with covariance R. The
// seed keeps simulated runs repeatable.
func NewSensorNoise(R mat64.Symmetric, seed int64) *SensorNoise {
	rows, _ := R.Dims()
	dist, ok := distmv.NewNormal(make([]float64, rows), R, rand.New(rand.NewSource(seed)))
	if !ok {
		panic("measurement covariance is not positive definite")
	}
	return &SensorNoise{R, dist}
}

// R returns the covariance to pass to Update alongside perturbed measurements.
func (n *SensorNoise) R() mat64.Symmetric {
	return n.cov
}

// Sample returns one noise draw.
func (n *SensorNoise) Sample() *mat64.Vector {
	v := n.dist.Rand(nil)
	return mat64.NewVector(len(v), v)
}

// Perturb returns z plus one noise draw.
func (n *SensorNoise) Perturb(z *mat64.Vector) *mat64.Vector {
	var out mat64.Vector
	out.AddVec(z, n.Sample())
	return &out
}

// InputNoise corrupts IMU samples with the accelerometer and gyro noise
// densities of the Qu diagonal, the same vector handed to New, so a
// simulated IMU stream matches what Propagate assumes about its input.
type InputNoise struct {
	dist *distmv.Normal
}

// NewInputNoise builds an IMU sampler from the input noise diagonal (length 6).
func NewInputNoise(Qu *mat64.Vector, seed int64) (*InputNoise, error) {
	if err := checkVecDim(Qu, "Qu", uTotal); err != nil {
		return nil, err
	}
	cov := mat64.NewSymDense(uTotal, nil)
	for i := 0; i < uTotal; i++ {
		cov.SetSym(i, i, Qu.At(i, 0))
	}
	dist, ok := distmv.NewNormal(make([]float64, uTotal), cov, rand.New(rand.NewSource(seed)))
	if !ok {
		return nil, fmt.Errorf("viekf: Qu diagonal must be positive to sample input noise")
	}
	return &InputNoise{dist}, nil
}

// Perturb returns the specific force and angular rate u plus one noise draw.
func (n *InputNoise) Perturb(u *mat64.Vector) *mat64.Vector {
	v := n.dist.Rand(nil)
	var out mat64.Vector
	out.AddVec(u, mat64.NewVector(len(v), v))
	return &out
}
