package visualdiff

import (
	"math"

	"github.com/ternarybob/paritas/internal/models"
)

// detectLayoutShift scans the diff intensity map on a gridSize x gridSize
// grid. Every cell holding more than minPixels differing pixels becomes a
// shift region; its magnitude is the distance between the region's
// center of mass and the image center. Returns the regions and the
// largest magnitude.
func detectLayoutShift(d *pixelDiff, gridSize, minPixels int) ([]models.ShiftRegion, float64) {
	if gridSize <= 0 {
		gridSize = 10
	}
	if minPixels <= 0 {
		minPixels = 5
	}
	if d.width == 0 || d.height == 0 {
		return nil, 0
	}

	cellW := (d.width + gridSize - 1) / gridSize
	cellH := (d.height + gridSize - 1) / gridSize
	centerX := float64(d.width) / 2
	centerY := float64(d.height) / 2

	var regions []models.ShiftRegion
	var maxShift float64

	for gy := 0; gy < gridSize; gy++ {
		for gx := 0; gx < gridSize; gx++ {
			x0 := gx * cellW
			y0 := gy * cellH
			if x0 >= d.width || y0 >= d.height {
				continue
			}
			x1 := min(x0+cellW, d.width)
			y1 := min(y0+cellH, d.height)

			count := 0
			var sumX, sumY float64
			for y := y0; y < y1; y++ {
				row := y * d.width
				for x := x0; x < x1; x++ {
					if d.intensity[row+x] > 0 {
						count++
						sumX += float64(x)
						sumY += float64(y)
					}
				}
			}
			if count <= minPixels {
				continue
			}

			comX := sumX / float64(count)
			comY := sumY / float64(count)
			shift := math.Hypot(comX-centerX, comY-centerY)
			if shift > maxShift {
				maxShift = shift
			}

			regions = append(regions, models.ShiftRegion{
				X:          x0,
				Y:          y0,
				Width:      x1 - x0,
				Height:     y1 - y0,
				DiffPixels: count,
				Shift:      shift,
			})
		}
	}

	return regions, maxShift
}
