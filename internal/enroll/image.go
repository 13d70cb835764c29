package enroll

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/okian/facesense/internal/domain/model"
)

// Enhance boosts contrast, brightness and sharpness before detection.
func Enhance(img image.Image) *image.NRGBA {
	out := imaging.AdjustContrast(img, 30)
	out = imaging.AdjustBrightness(out, 10)
	return imaging.Sharpen(out, 0.5)
}

// Variations returns the padded face crop, the crop rotated by -5 and +5
// degrees, and brighter and darker copies of it.
func Variations(img image.Image, box model.BoundingBox) []image.Image {
	crop := imaging.Crop(img, paddedRect(img.Bounds(), box))
	return []image.Image{
		crop,
		imaging.Rotate(crop, 5, color.Black),
		imaging.Rotate(crop, -5, color.Black),
		scaleAbs(crop, 1.2, 10),
		scaleAbs(crop, 0.8, -10),
	}
}

// paddedRect grows box by 20% of its shorter side, clipped to bounds.
func paddedRect(bounds image.Rectangle, box model.BoundingBox) image.Rectangle {
	pad := min(box.Width, box.Height) / 5
	r := image.Rect(box.X-pad, box.Y-pad, box.X+box.Width+pad, box.Y+box.Height+pad)
	return r.Intersect(bounds)
}

func faceRect(bounds image.Rectangle, box model.BoundingBox) image.Rectangle {
	return image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height).Intersect(bounds)
}

// scaleAbs maps every channel c to clamp(alpha*c + beta).
func scaleAbs(img image.Image, alpha, beta float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		f := func(v uint8) uint8 {
			return uint8(min(max(alpha*float64(v)+beta, 0), 255) + 0.5)
		}
		return color.NRGBA{R: f(c.R), G: f(c.G), B: f(c.B), A: c.A}
	})
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func largest(boxes []model.BoundingBox) model.BoundingBox {
	best := boxes[0]
	for _, b := range boxes[1:] {
		if b.Area() > best.Area() {
			best = b
		}
	}
	return best
}
