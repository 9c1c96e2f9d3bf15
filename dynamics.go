package viekf

import (
	"github.com/gonum/matrix/mat64"
)

// Dynamics evaluates the continuous-time dynamics at an arbitrary state and
// input, returning copies of the state derivative (in tangent coordinates)
// and the analytic error-state and input Jacobians.
func (kf *VIEKF) Dynamics(x, u *mat64.Vector) (xdot *mat64.Vector, dfdx, dfdu *mat64.Dense) {
	kf.dynamics(x, u)

	xdot = mat64.NewVector(dxMax, nil)
	xdot.CopyVec(kf.dx)
	dfdx = mat64.NewDense(dxMax, dxMax, nil)
	dfdx.Copy(kf.A)
	dfdu = mat64.NewDense(dxMax, uTotal, nil)
	dfdu.Copy(kf.G)
	return xdot, dfdx, dfdu
}

// dynamics fills the dx, A and G workspace from the state x and input u.
// Inactive feature rows stay zero so full-capacity matrix products remain
// exact on the active prefix.
func (kf *VIEKF) dynamics(x, u *mat64.Vector) {
	zeroVec(kf.dx)
	zeroDense(kf.A)
	zeroDense(kf.G)

	vel := subVec3(x, xVEL)
	qIB := QuatFromVec(x, xATT)

	var omega, acc mat64.Vector
	omega.SubVec(subVec3(u, uG), subVec3(x, xBG))
	acc.SubVec(subVec3(u, uA), subVec3(x, xBA))
	mu := x.At(xMU, 0)

	gravityB := qIB.Invrot(gravity)
	velI := qIB.Invrot(vel)
	velXY := vec3(vel.At(0, 0), vel.At(1, 0), 0)

	// fixed-block dynamics
	for i := 0; i < 3; i++ {
		kf.dx.SetVec(dxPOS+i, velI.At(i, 0))
		kf.dx.SetVec(dxATT+i, omega.At(i, 0))
	}
	if kf.useDragTerm {
		kf.dx.SetVec(dxVEL, gravityB.At(0, 0)-mu*velXY.At(0, 0))
		kf.dx.SetVec(dxVEL+1, gravityB.At(1, 0)-mu*velXY.At(1, 0))
		kf.dx.SetVec(dxVEL+2, acc.At(2, 0)+gravityB.At(2, 0))
	} else {
		for i := 0; i < 3; i++ {
			kf.dx.SetVec(dxVEL+i, acc.At(i, 0)+gravityB.At(i, 0))
		}
	}

	// fixed-block state Jacobian
	setBlock(kf.A, dxPOS, dxVEL, qIB.R())
	setBlock(kf.A, dxPOS, dxATT, skew(velI))
	if kf.useDragTerm {
		kf.A.Set(dxVEL, dxVEL, -mu)
		kf.A.Set(dxVEL+1, dxVEL+1, -mu)
		kf.A.Set(dxVEL+2, dxBA+2, -1)
		kf.A.Set(dxVEL, dxMU, -velXY.At(0, 0))
		kf.A.Set(dxVEL+1, dxMU, -velXY.At(1, 0))
	} else {
		for i := 0; i < 3; i++ {
			kf.A.Set(dxVEL+i, dxBA+i, -1)
		}
	}
	setBlock(kf.A, dxVEL, dxATT, skew(gravityB))
	for i := 0; i < 3; i++ {
		kf.A.Set(dxATT+i, dxBG+i, -1)
	}

	// fixed-block input Jacobian
	if kf.useDragTerm {
		kf.G.Set(dxVEL+2, uA+2, 1)
	} else {
		for i := 0; i < 3; i++ {
			kf.G.Set(dxVEL+i, uA+i, 1)
		}
	}
	for i := 0; i < 3; i++ {
		kf.G.Set(dxATT+i, uG+i, 1)
	}

	if kf.lenFeatures == 0 {
		return
	}

	// camera motion
	lever := cross(&omega, kf.pBC)
	var velLessLever mat64.Vector
	velLessLever.SubVec(vel, lever)
	velCI := kf.qBC.Invrot(&velLessLever)
	omegaCI := kf.qBC.Invrot(&omega)

	RBC := kf.qBC.R()
	skewPBC := skew(kf.pBC)
	skewVelC := skew(velCI)

	for i := 0; i < kf.lenFeatures; i++ {
		xZetaI := xZ + 5*i
		xRhoI := xZ + 5*i + 4
		dxZetaI := dxZ + 3*i
		dxRhoI := dxZ + 3*i + 2

		qZeta := QuatFromVec(x, xZetaI)
		rho := x.At(xRhoI, 0)
		rho2 := rho * rho
		zeta := qZeta.Rot(eZ)
		Tz := TZeta(qZeta)
		skewZeta := skew(zeta)

		// feature dynamics
		zetaCrossVel := cross(zeta, velCI)
		var w mat64.Vector
		w.AddScaledVec(omegaCI, rho, zetaCrossVel)
		var dzeta mat64.Vector
		dzeta.MulVec(Tz.T(), &w)
		kf.dx.SetVec(dxZetaI, -dzeta.At(0, 0))
		kf.dx.SetVec(dxZetaI+1, -dzeta.At(1, 0))
		kf.dx.SetVec(dxRhoI, rho2*dot(zeta, velCI))

		// feature state Jacobian
		var TzT, sZRBC, m23 mat64.Dense
		TzT.Clone(Tz.T())
		sZRBC.Mul(skewZeta, RBC)
		m23.Mul(&TzT, &sZRBC)
		m23.Scale(-rho, &m23)
		setBlock(kf.A, dxZetaI, dxVEL, &m23)

		var leverJac, bgJac mat64.Dense
		leverJac.Mul(&sZRBC, skewPBC)
		leverJac.Scale(rho, &leverJac)
		leverJac.Add(&leverJac, RBC)
		bgJac.Mul(&TzT, &leverJac)
		setBlock(kf.A, dxZetaI, dxBG, &bgJac)

		var inner, selfJac, selfJacT mat64.Dense
		var zetaVel, rotVel mat64.Vector
		zetaVel.MulVec(skewZeta, velCI)
		rotVel.AddScaledVec(omegaCI, rho, &zetaVel)
		inner.Mul(skewVelC, skewZeta)
		inner.Scale(rho, &inner)
		inner.Add(&inner, skew(&rotVel))
		selfJac.Mul(&inner, Tz)
		selfJacT.Mul(&TzT, &selfJac)
		selfJacT.Scale(-1, &selfJacT)
		setBlock(kf.A, dxZetaI, dxZetaI, &selfJacT)

		var rhoJac mat64.Vector
		rhoJac.MulVec(&TzT, zetaCrossVel)
		kf.A.Set(dxZetaI, dxRhoI, -rhoJac.At(0, 0))
		kf.A.Set(dxZetaI+1, dxRhoI, -rhoJac.At(1, 0))

		var zetaRBC mat64.Vector
		zetaRBC.MulVec(RBC.T(), zeta) // zeta' * RBC as a column
		for j := 0; j < 3; j++ {
			kf.A.Set(dxRhoI, dxVEL+j, rho2*zetaRBC.At(j, 0))
		}
		var zetaRBCsk mat64.Vector
		zetaRBCsk.MulVec(skewPBC.T(), &zetaRBC) // zeta' * RBC * skew(pBC)
		for j := 0; j < 3; j++ {
			kf.A.Set(dxRhoI, dxBG+j, -rho2*zetaRBCsk.At(j, 0))
		}
		var velSkZ, velSkZTz mat64.Vector
		velSkZ.MulVec(skewZeta.T(), velCI) // velCI' * skew(zeta) as a column
		velSkZTz.MulVec(Tz.T(), &velSkZ)
		kf.A.Set(dxRhoI, dxZetaI, -rho2*velSkZTz.At(0, 0))
		kf.A.Set(dxRhoI, dxZetaI+1, -rho2*velSkZTz.At(1, 0))
		kf.A.Set(dxRhoI, dxRhoI, 2*rho*dot(zeta, velCI))

		// feature input Jacobian
		var gyroJac mat64.Dense
		gyroJac.Mul(&sZRBC, skewPBC)
		gyroJac.Scale(rho, &gyroJac)
		gyroJac.Add(&gyroJac, RBC)
		var gyroJacT mat64.Dense
		gyroJacT.Mul(&TzT, &gyroJac)
		gyroJacT.Scale(-1, &gyroJacT)
		setBlock(kf.G, dxZetaI, uG, &gyroJacT)
		for j := 0; j < 3; j++ {
			kf.G.Set(dxRhoI, uG+j, rho2*zetaRBCsk.At(j, 0))
		}
	}
}
