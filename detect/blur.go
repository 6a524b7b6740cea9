package detect

import (
	"image"

	"github.com/montanaflynn/stats"
)

// Blur thresholds on the Laplacian variance. Live camera frames are noisier
// than stills from disk, so they get a lower bar.
const (
	BlurThreshold       = 100.0
	BlurThresholdCamera = 70.0
)

// LaplacianVariance convolves the 4-neighbor Laplacian kernel over a
// grayscale image and returns the variance of the response. Sharp images
// have strong edges and a high variance; blurred ones do not.
func LaplacianVariance(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}
	responses := make([]float64, 0, (w-2)*(h-2))
	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			lap := float64(gray.GrayAt(x-1, y).Y) +
				float64(gray.GrayAt(x+1, y).Y) +
				float64(gray.GrayAt(x, y-1).Y) +
				float64(gray.GrayAt(x, y+1).Y) -
				4*center
			responses = append(responses, lap)
		}
	}
	variance, err := stats.PopulationVariance(responses)
	if err != nil {
		return 0
	}
	return variance
}

// IsBlurred reports whether the frame is too blurred to contribute a
// trustworthy corner grid. useCamera selects the lower live-capture
// threshold.
func IsBlurred(gray *image.Gray, useCamera bool) bool {
	threshold := BlurThreshold
	if useCamera {
		threshold = BlurThresholdCamera
	}
	return LaplacianVariance(gray) < threshold
}
