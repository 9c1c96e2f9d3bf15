package viekf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gonum/matrix/mat64"
)

// filterLogger owns the optional file-backed streams: propagation history,
// measurement history, performance counters and the configuration snapshot.
type filterLogger struct {
	prop *os.File
	meas *os.File
	perf *os.File
	conf *os.File

	propCount  int
	perfCount  int
	measCounts [numMeasurementTypes]int
}

const (
	propDecimation = 10
	measDecimation = 10
	perfDecimation = 1000
)

// newFilterLogger creates the log directory and opens the four streams.
func newFilterLogger(dir string) (*filterLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	l := &filterLogger{}
	var err error
	if l.prop, err = os.Create(filepath.Join(dir, "prop.txt")); err != nil {
		return nil, err
	}
	if l.meas, err = os.Create(filepath.Join(dir, "meas.txt")); err != nil {
		l.Close()
		return nil, err
	}
	if l.perf, err = os.Create(filepath.Join(dir, "perf.txt")); err != nil {
		l.Close()
		return nil, err
	}
	if l.conf, err = os.Create(filepath.Join(dir, "conf.txt")); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// Close closes every open stream, keeping the first error.
func (l *filterLogger) Close() (err error) {
	for _, f := range []*os.File{l.prop, l.meas, l.perf, l.conf} {
		if f == nil {
			continue
		}
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// writeConf dumps the configuration snapshot at init time.
func (l *filterLogger) writeConf(kf *VIEKF, cfg Config) {
	fmt.Fprintf(l.conf, "# Creation date (UTC): %s\n", time.Now().UTC())
	fmt.Fprintf(l.conf, "Using Drag Term: %v\n", cfg.UseDragTerm)
	fmt.Fprintf(l.conf, "num features: %d\n", MaxFeatures)
	fmt.Fprintf(l.conf, "min depth: %g\n", cfg.MinDepth)
	fmt.Fprintf(l.conf, "P0: %s\n", rowString(cfg.P0))
	fmt.Fprintf(l.conf, "P0_feat: %s\n", rowString(cfg.P0Feat))
	fmt.Fprintf(l.conf, "Qx: %s\n", rowString(cfg.Qx))
	fmt.Fprintf(l.conf, "Qx_feat: %s\n", rowString(cfg.QxFeat))
	fmt.Fprintf(l.conf, "Qu: %s\n", rowString(cfg.Qu))
	fmt.Fprintf(l.conf, "gamma: %s\n", rowString(cfg.Gamma))
	fmt.Fprintf(l.conf, "gamma_feat: %s\n", rowString(cfg.GammaFeat))
	fmt.Fprintf(l.conf, "cam_center: %s\n", rowString(cfg.CamCenter))
	fmt.Fprintf(l.conf, "focal_len: %s\n", rowString(cfg.FocalLen))
}

// writeProp appends the state and covariance diagonal on a decimated cadence.
func (l *filterLogger) writeProp(kf *VIEKF, t float64) {
	l.propCount++
	if l.propCount < propDecimation {
		return
	}
	l.propCount = 0
	n := dxDim(kf.lenFeatures)
	fmt.Fprintf(l.prop, "%g\t%s\t%s\n", t,
		rowString(prefixVec(kf.x, xDim(kf.lenFeatures))),
		rowString(diagOf(kf.P, n)))
}

// writeMeas appends one measurement record on a per-kind decimated cadence.
func (l *filterLogger) writeMeas(kf *VIEKF, meas MeasurementType, t float64, z *mat64.Vector, zDim, id int) {
	l.measCounts[int(meas)]++
	if l.measCounts[int(meas)] < measDecimation {
		return
	}
	l.measCounts[int(meas)] = 0
	fmt.Fprintf(l.meas, "%s\t%g\t%s\t%s\t", meas, t, rowString(z), rowString(prefixVec(kf.zhat, zDim)))
	if meas == MeasDepth || meas == MeasInvDepth {
		i := kf.localFeatureIndex(id)
		fmt.Fprintf(l.meas, "%g\t", kf.P.At(dxZ+3*i+2, dxZ+3*i+2))
	}
	fmt.Fprintf(l.meas, "%d\n", id)
}

// writePerf appends the exponentially weighted timing averages.
func (l *filterLogger) writePerf(kf *VIEKF, t float64) {
	l.perfCount++
	if l.perfCount < perfDecimation {
		return
	}
	l.perfCount = 0
	vals := make([]string, 0, numMeasurementTypes+2)
	vals = append(vals, fmt.Sprintf("%g", t), fmt.Sprintf("%g", kf.propTime))
	for i := 1; i < numMeasurementTypes; i++ {
		vals = append(vals, fmt.Sprintf("%g", kf.updateTimes[i]))
	}
	fmt.Fprintln(l.perf, strings.Join(vals, "\t"))
}

// rowString renders a vector as a tab-separated row.
func rowString(v *mat64.Vector) string {
	vals := make([]string, v.Len())
	for i := 0; i < v.Len(); i++ {
		vals[i] = fmt.Sprintf("%g", v.At(i, 0))
	}
	return strings.Join(vals, "\t")
}
