package chessboard

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/montanaflynn/stats"
)

// MarkerConfig holds the policy parameters for photometric marker sampling.
// The defaults mirror the target the tool was tuned on; other target
// geometries or resolutions may need different values.
type MarkerConfig struct {
	// SampleRadius is the half-width of the square neighborhood whose mean
	// brightness is sampled at each outer-square center.
	SampleRadius int
	// BorderMargin excludes outer-square centers this close to the image
	// edge from sampling.
	BorderMargin int
	// Tolerance is the absolute brightness band above the darkest sampled
	// outer square within which a square still counts as a marker candidate.
	Tolerance float64
	// NotSampled is the sentinel brightness for positions that could not be
	// sampled.
	NotSampled float64
}

// DefaultMarkerConfig returns the marker sampling defaults.
func DefaultMarkerConfig() MarkerConfig {
	return MarkerConfig{
		SampleRadius: 2,
		BorderMargin: 2,
		Tolerance:    10.0,
		NotSampled:   1e6,
	}
}

// OuterSquareCenters extrapolates half a square-step beyond the extreme grid
// corners along both axes, yielding the centers of the four outer squares in
// orientation order (top-left, top-right, bottom-left, bottom-right).
func OuterSquareCenters(g Grid) [4]r2.Point {
	tl, tr, bl, br := g.OuterCorners()
	dx := tr.Sub(tl).Mul(1 / float64(g.Cols()-1))
	dy := bl.Sub(tl).Mul(1 / float64(g.Rows()-1))
	halfX := dx.Mul(0.5)
	halfY := dy.Mul(0.5)
	return [4]r2.Point{
		tl.Sub(halfX).Sub(halfY),
		tr.Add(halfX).Sub(halfY),
		bl.Sub(halfX).Add(halfY),
		br.Add(halfX).Add(halfY),
	}
}

// OuterSquareBrightness samples the mean brightness of a small neighborhood
// around each outer-square center. Centers within BorderMargin of the image
// bounds are left at the NotSampled sentinel.
func OuterSquareBrightness(gray *image.Gray, g Grid, cfg MarkerConfig) [4]float64 {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	margin := float64(cfg.BorderMargin)

	vals := [4]float64{cfg.NotSampled, cfg.NotSampled, cfg.NotSampled, cfg.NotSampled}
	for i, pt := range OuterSquareCenters(g) {
		if pt.X < margin || pt.Y < margin || pt.X > float64(w)-margin-1 || pt.Y > float64(h)-margin-1 {
			continue
		}
		cx, cy := int(pt.X), int(pt.Y)
		pixels := make([]float64, 0, (2*cfg.SampleRadius+1)*(2*cfg.SampleRadius+1))
		for y := cy - cfg.SampleRadius; y <= cy+cfg.SampleRadius; y++ {
			for x := cx - cfg.SampleRadius; x <= cx+cfg.SampleRadius; x++ {
				if x < bounds.Min.X || y < bounds.Min.Y || x >= bounds.Max.X || y >= bounds.Max.Y {
					continue
				}
				pixels = append(pixels, float64(gray.GrayAt(x, y).Y))
			}
		}
		if len(pixels) == 0 {
			continue
		}
		mean, err := stats.Mean(pixels)
		if err != nil {
			continue
		}
		vals[i] = mean
	}
	return vals
}

// MarkerCandidates returns the orientations whose outer square is within
// Tolerance of the darkest sampled outer square. When no outer square could
// be sampled, the result is empty. Brightness alone is unreliable under
// lighting variation, so callers treat these as hints, not answers.
func MarkerCandidates(gray *image.Gray, g Grid, cfg MarkerConfig) []Orientation {
	vals := OuterSquareBrightness(gray, g, cfg)
	minVal := cfg.NotSampled
	for _, v := range vals {
		if v < minVal {
			minVal = v
		}
	}
	if minVal >= cfg.NotSampled {
		return nil
	}
	var candidates []Orientation
	for i, v := range vals {
		if v < minVal+cfg.Tolerance {
			candidates = append(candidates, Orientation(i))
		}
	}
	return candidates
}
