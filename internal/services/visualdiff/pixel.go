package visualdiff

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"
)

// pixelDiff is the raw comparison of two equally sized images. Intensity
// holds one byte per pixel: 0 where the sides agree within threshold,
// otherwise the scaled color distance.
type pixelDiff struct {
	width      int
	height     int
	diffPixels int
	intensity  []uint8
	diffImage  *image.RGBA
	heatmap    *image.RGBA
}

func (d *pixelDiff) totalPixels() int {
	return d.width * d.height
}

func (d *pixelDiff) ratio() float64 {
	total := d.totalPixels()
	if total == 0 {
		return 0
	}
	return float64(d.diffPixels) / float64(total)
}

func decodePNG(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG: %w", err)
	}
	return img, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// resample scales img to width x height with nearest-neighbor, which keeps
// hard edges hard so the pixel diff does not blame the scaler.
func resample(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return dst
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == image.Pt(0, 0) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Copy(dst, image.Pt(0, 0), img, b, xdraw.Src, nil)
	return dst
}

// compareImages diffs two same-sized images. threshold is the per-pixel
// tolerance in [0,1]; a pixel counts as different when its normalized
// color distance exceeds it. The returned struct carries the diff image
// (dimmed baseline with differing pixels in red) and the heatmap.
func compareImages(baseline, candidate *image.RGBA, threshold float64) *pixelDiff {
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}

	width := baseline.Bounds().Dx()
	height := baseline.Bounds().Dy()

	d := &pixelDiff{
		width:     width,
		height:    height,
		intensity: make([]uint8, width*height),
		diffImage: image.NewRGBA(image.Rect(0, 0, width, height)),
		heatmap:   image.NewRGBA(image.Rect(0, 0, width, height)),
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			bo := baseline.PixOffset(x, y)
			co := candidate.PixOffset(x, y)

			br, bg, bb := baseline.Pix[bo], baseline.Pix[bo+1], baseline.Pix[bo+2]
			cr, cg, cb := candidate.Pix[co], candidate.Pix[co+1], candidate.Pix[co+2]

			dist := colorDistance(br, bg, bb, cr, cg, cb)
			idx := y*width + x

			if dist > threshold {
				d.diffPixels++
				intensity := uint8(dist * 255)
				if intensity == 0 {
					intensity = 1
				}
				d.intensity[idx] = intensity
				d.diffImage.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
				d.heatmap.SetRGBA(x, y, heatColor(intensity))
			} else {
				// Same within tolerance: dimmed grayscale baseline so the
				// red marks stand out in the diff image.
				gray := uint8((uint16(br)*299 + uint16(bg)*587 + uint16(bb)*114) / 1000)
				faded := gray/2 + 96
				d.diffImage.SetRGBA(x, y, color.RGBA{R: faded, G: faded, B: faded, A: 255})
			}
		}
	}

	return d
}

// colorDistance is the normalized euclidean RGB distance in [0,1]
func colorDistance(r1, g1, b1, r2, g2, b2 uint8) float64 {
	dr := float64(r1) - float64(r2)
	dg := float64(g1) - float64(g2)
	db := float64(b1) - float64(b2)
	// 441.67 = sqrt(3 * 255^2), the maximal RGB distance
	return math.Sqrt(dr*dr+dg*dg+db*db) / 441.6729559300637
}

// heatColor maps a diff intensity onto the heatmap scale: transparent at
// zero, green for faint differences, yellow in the middle band, red
// above 200.
func heatColor(intensity uint8) color.RGBA {
	switch {
	case intensity == 0:
		return color.RGBA{}
	case intensity > 200:
		return color.RGBA{R: 255, A: 200}
	case intensity > 100:
		// yellow at 100 fading to red at 200
		g := uint8(uint16(200-intensity) * 255 / 100)
		return color.RGBA{R: 255, G: g, A: 200}
	default:
		// green at the bottom warming to yellow at 100
		r := uint8(uint16(intensity) * 255 / 100)
		return color.RGBA{R: r, G: 255, A: 180}
	}
}
