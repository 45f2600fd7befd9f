package vision

import "image"

// Region is one maximal connected foreground component of a mask.
type Region struct {
	BBox      image.Rectangle
	Area      int     // Foreground pixel count
	Perimeter float64 // Boundary pixel count
	Centroid  image.Point
}

// ConnectedRegions extracts the 8-connected foreground components of m.
// Regions are returned in discovery order: the raster order of each
// component's first pixel. The order carries no meaning across frames.
func ConnectedRegions(m *Mask) []Region {
	labels := make([]int32, m.W*m.H)
	var regions []Region
	next := int32(0)

	// Reused BFS queue, pixel indices.
	queue := make([]int, 0, 256)

	for start := 0; start < len(m.Pix); start++ {
		if m.Pix[start] == 0 || labels[start] != 0 {
			continue
		}
		next++
		label := next

		queue = queue[:0]
		queue = append(queue, start)
		labels[start] = label

		minX, minY := start%m.W, start/m.W
		maxX, maxY := minX, minY
		area := 0
		boundary := 0
		sumX, sumY := 0, 0

		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := idx%m.W, idx/m.W

			area++
			sumX += x
			sumY += y
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
			if !m.At(x-1, y) || !m.At(x+1, y) || !m.At(x, y-1) || !m.At(x, y+1) {
				boundary++
			}

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= m.W || ny >= m.H {
						continue
					}
					nIdx := ny*m.W + nx
					if m.Pix[nIdx] != 0 && labels[nIdx] == 0 {
						labels[nIdx] = label
						queue = append(queue, nIdx)
					}
				}
			}
		}

		regions = append(regions, Region{
			BBox:      image.Rect(minX, minY, maxX+1, maxY+1),
			Area:      area,
			Perimeter: float64(boundary),
			Centroid:  image.Point{X: sumX / area, Y: sumY / area},
		})
	}

	return regions
}
