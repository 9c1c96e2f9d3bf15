package viekf

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gonum/matrix/mat64"
)

func TestLoggerStreams(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.LogDirectory = dir

	kf := newTestFilter(t, cfg)

	u := mat64.NewVector(uTotal, []float64{0, 0, -9.80665, 0, 0, 0})
	z := mat64.NewVector(3, nil)
	for k := 0; k <= 100; k++ {
		if err := kf.Propagate(u, float64(k)*0.01); err != nil {
			t.Fatal(err)
		}
		if _, err := kf.Update(z, MeasPos, Identity(3), true, -1, math.NaN()); err != nil {
			t.Fatal(err)
		}
	}
	if err := kf.Close(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"prop.txt", "meas.txt", "perf.txt", "conf.txt"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("missing stream %s: %s", name, err)
		}
		// perf is decimated far below this run length
		if name != "perf.txt" && info.Size() == 0 {
			t.Fatalf("stream %s is empty", name)
		}
	}
}

func TestNoLoggerIsQuiet(t *testing.T) {
	kf := newTestFilter(t, testConfig())
	u := mat64.NewVector(uTotal, []float64{0, 0, -9.80665, 0, 0, 0})
	if err := kf.Propagate(u, 0); err != nil {
		t.Fatal(err)
	}
	if err := kf.Propagate(u, 0.01); err != nil {
		t.Fatal(err)
	}
	if err := kf.Close(); err != nil {
		t.Fatal(err)
	}
}
