package enroll

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
)

// sizeNorm is the face area, in pixels, that earns a full size score.
const sizeNorm = 10000.0

// Quality scores a face region by sharpness, size and lighting. The blur
// term is the Laplacian variance of the grayscale face, so sharp faces can
// score well above 10.
func Quality(face image.Image) float64 {
	b := face.Bounds()
	if b.Empty() {
		return 0
	}
	gray := imaging.Grayscale(face)

	blur := laplacianVariance(gray)
	size := math.Min(float64(b.Dx()*b.Dy())/sizeNorm, 1.0)
	lighting := 1.0 - histogramStdDev(gray)/100

	return (blur*0.4 + size*0.4 + lighting*0.2) / 100
}

func luma(img *image.NRGBA, x, y int) float64 {
	return float64(img.Pix[img.PixOffset(x, y)])
}

// laplacianVariance applies the 4-neighbour Laplacian kernel and returns
// the population variance of the response. Edge pixels replicate.
func laplacianVariance(img *image.NRGBA) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 1 || h < 1 {
		return 0
	}
	at := func(x, y int) float64 {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return luma(img, b.Min.X+x, b.Min.Y+y)
	}
	resp := make([]float64, 0, w*h)
	for y := range h {
		for x := range w {
			resp = append(resp, at(x-1, y)+at(x+1, y)+at(x, y-1)+at(x, y+1)-4*at(x, y))
		}
	}
	return stat.PopVariance(resp, nil)
}

// histogramStdDev returns the standard deviation of the 256-bin grayscale
// histogram counts.
func histogramStdDev(img *image.NRGBA) float64 {
	hist := make([]float64, 256)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[img.Pix[img.PixOffset(x, y)]]++
		}
	}
	return stat.PopStdDev(hist, nil)
}
