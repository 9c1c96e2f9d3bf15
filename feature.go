package viekf

import (
	"math"

	"github.com/gonum/matrix/mat64"
)

// InitFeature appends a feature slot initialized from the pixel location l.
// The bearing follows the inverse pinhole projection through the configured
// intrinsics; depth seeds the inverse depth when positive, otherwise
// 2*MinDepth is used. A non-negative id is adopted as the global id of the
// feature; pass -1 to have the filter assign the next one. Returns false
// without modifying the filter when all slots are in use.
func (kf *VIEKF) InitFeature(l *mat64.Vector, id int, depth float64) bool {
	if kf.lenFeatures >= MaxFeatures {
		return false
	}

	lx := l.At(0, 0) - kf.camCenter.At(0, 0)
	ly := l.At(1, 0) - kf.camCenter.At(1, 0)
	fx := kf.camF.At(0, 0)
	fy := kf.camF.At(1, 1)

	zeta := vec3(lx, ly*fx/fy, fx)
	n := norm(zeta)
	zeta = vec3(zeta.At(0, 0)/n, zeta.At(1, 0)/n, zeta.At(2, 0)/n)
	qZeta := FromTwoUnitVectors(eZ, zeta)

	initDepth := depth
	if math.IsNaN(depth) || depth <= 0 {
		initDepth = 2.0 * kf.minDepth
	}

	if id < 0 {
		id = kf.nextFeatureID
	}
	kf.featureIDs = append(kf.featureIDs, id)
	if id >= kf.nextFeatureID {
		kf.nextFeatureID = id + 1
	}
	kf.lenFeatures++

	xi := xDim(kf.lenFeatures) - 5
	kf.x.SetVec(xi, qZeta.W)
	kf.x.SetVec(xi+1, qZeta.X)
	kf.x.SetVec(xi+2, qZeta.Y)
	kf.x.SetVec(xi+3, qZeta.Z)
	kf.x.SetVec(xi+4, 1.0/initDepth)

	// zero the cross-covariance and reset the uncertainty of the new slot
	dxi := dxDim(kf.lenFeatures) - 3
	for r := 0; r < 3; r++ {
		for c := 0; c < dxMax; c++ {
			kf.P.Set(dxi+r, c, 0)
			kf.P.Set(c, dxi+r, 0)
		}
	}
	setBlock(kf.P, dxi, dxi, kf.P0Feat)

	return true
}

// ClearFeature removes the feature with the given global id, compacting the
// state vector and covariance and zeroing the vacated trailing region.
func (kf *VIEKF) ClearFeature(id int) {
	i := kf.localFeatureIndex(id)
	xZetaI := xZ + 5*i
	dxZetaI := dxZ + 3*i

	kf.featureIDs = append(kf.featureIDs[:i], kf.featureIDs[i+1:]...)
	kf.lenFeatures--
	xActive := xDim(kf.lenFeatures)
	dxActive := dxDim(kf.lenFeatures)

	// shift trailing slots into the vacated rows and columns
	for r := xZetaI; r < xMax-5; r++ {
		kf.x.SetVec(r, kf.x.At(r+5, 0))
	}
	for r := dxZetaI; r < dxMax-3; r++ {
		for c := 0; c < dxMax; c++ {
			kf.P.Set(r, c, kf.P.At(r+3, c))
		}
	}
	for c := dxZetaI; c < dxMax-3; c++ {
		for r := 0; r < dxMax; r++ {
			kf.P.Set(r, c, kf.P.At(r, c+3))
		}
	}

	// zero everything past the active prefix
	for r := xActive; r < xMax; r++ {
		kf.x.SetVec(r, 0)
	}
	for r := 0; r < dxMax; r++ {
		for c := dxActive; c < dxMax; c++ {
			kf.P.Set(r, c, 0)
			kf.P.Set(c, r, 0)
		}
	}
}

// KeepOnlyFeatures drops every tracked feature whose id is not listed.
func (kf *VIEKF) KeepOnlyFeatures(ids []int) {
	var remove []int
	for _, fid := range kf.featureIDs {
		keep := false
		for _, id := range ids {
			if fid == id {
				keep = true
				break
			}
		}
		if !keep {
			remove = append(remove, fid)
		}
	}
	for _, fid := range remove {
		kf.ClearFeature(fid)
	}
}
