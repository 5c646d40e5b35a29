package container

import (
	"math"
	"math/rand/v2"
)

// SyntheticSpec builds a demo container of diffraction-like frames: a flat
// background with Gaussian Bragg peaks, a dead border and one bad column.
// The same seed always yields the same spec.
func SyntheticSpec(rows, cols, events int, seed uint64) *Spec {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	spec := &Spec{
		Rows:       rows,
		Cols:       cols,
		Images:     make([][]float32, events),
		PeakCounts: make([]int32, events),
		Codec:      CodecLZ4,
	}

	mask := make([]uint8, rows*cols)
	badCol := cols / 3
	for x := 0; x < rows; x++ {
		for y := 0; y < cols; y++ {
			border := x == 0 || y == 0 || x == rows-1 || y == cols-1
			if border || y == badCol {
				mask[x*cols+y] = 1
			}
		}
	}
	spec.Masks = [][]uint8{mask}

	for e := 0; e < events; e++ {
		img := make([]float32, rows*cols)
		for i := range img {
			img[i] = float32(10 + rng.NormFloat64())
		}
		peaks := 1 + rng.IntN(4)
		for p := 0; p < peaks; p++ {
			cx, cy := rng.Float64()*float64(rows), rng.Float64()*float64(cols)
			amp := 50 + 100*rng.Float64()
			for x := 0; x < rows; x++ {
				for y := 0; y < cols; y++ {
					dx, dy := float64(x)-cx, float64(y)-cy
					img[x*cols+y] += float32(amp * math.Exp(-(dx*dx+dy*dy)/4))
				}
			}
		}
		spec.Images[e] = img
		spec.PeakCounts[e] = int32(peaks)
	}
	return spec
}
