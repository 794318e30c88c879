package service

import (
	"fmt"
	"image"
	"image/draw"
	"sort"

	xdraw "golang.org/x/image/draw"

	"github.com/mnansary/DocSignerNML/config"
	"github.com/mnansary/DocSignerNML/model"
)

// dilateKernelRadius is half the width of the 5x5 dilation kernel used
// to merge nearby difference specks into contiguous regions.
const dilateKernelRadius = 2

// VisualDiffer computes pixel-level difference regions between two
// page images rendered at the same DPI.
type VisualDiffer struct {
	threshold        uint8
	dilateIterations int
	padding          int
}

func NewVisualDiffer(cfg *config.AuditConfig) *VisualDiffer {
	return &VisualDiffer{
		threshold:        uint8(cfg.PixelThreshold),
		dilateIterations: cfg.DilateIterations,
		padding:          cfg.BBoxPadding,
	}
}

// Compare subtracts the two images channel-wise and reports bounding
// boxes around every visually distinguishable change region. A missing
// image is a hard processing error, never a silent mismatch. When the
// images differ in dimensions the SV image is resized to the NSV's
// dimensions first and SourceMatch is reported false: the mismatch
// itself is a signal worth surfacing, not something to normalize away.
func (d *VisualDiffer) Compare(nsvImg, svImg image.Image) (*model.VisualDiffResult, error) {
	if nsvImg == nil || svImg == nil {
		return nil, fmt.Errorf("page image missing: nsv=%t sv=%t", nsvImg != nil, svImg != nil)
	}

	nsv := toRGBA(nsvImg)
	sv := toRGBA(svImg)

	result := &model.VisualDiffResult{SourceMatch: true}

	if !nsv.Bounds().Size().Eq(sv.Bounds().Size()) {
		result.SourceMatch = false
		sv = resizeTo(sv, nsv.Bounds())
	}

	if identicalPixels(nsv, sv) {
		result.ContentMatch = true
		return result, nil
	}

	result.ContentMatch = false
	result.DifferenceBBoxes = d.differenceBoxes(nsv, sv)
	return result, nil
}

// differenceBoxes thresholds the grayscale absolute difference,
// dilates it to merge adjacent specks, and extracts a padded bounding
// box per connected component. The threshold suppresses sub-visible
// noise; the dilation guarantees single-character-width changes still
// surface as at least one box.
func (d *VisualDiffer) differenceBoxes(nsv, sv *image.RGBA) []model.BBox {
	b := nsv.Bounds()
	w, h := b.Dx(), b.Dy()

	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := nsv.PixOffset(b.Min.X+x, b.Min.Y+y)
			j := sv.PixOffset(sv.Bounds().Min.X+x, sv.Bounds().Min.Y+y)
			g1 := grayValue(nsv.Pix[i], nsv.Pix[i+1], nsv.Pix[i+2])
			g2 := grayValue(sv.Pix[j], sv.Pix[j+1], sv.Pix[j+2])
			if absDiff(g1, g2) > d.threshold {
				mask[y*w+x] = true
			}
		}
	}

	for i := 0; i < d.dilateIterations; i++ {
		mask = dilate(mask, w, h)
	}

	boxes := connectedComponentBoxes(mask, w, h)

	for i := range boxes {
		boxes[i].X1 = clamp(boxes[i].X1-d.padding, 0, w)
		boxes[i].Y1 = clamp(boxes[i].Y1-d.padding, 0, h)
		boxes[i].X2 = clamp(boxes[i].X2+d.padding, 0, w)
		boxes[i].Y2 = clamp(boxes[i].Y2+d.padding, 0, h)
	}

	sort.Slice(boxes, func(i, j int) bool {
		if boxes[i].Y1 != boxes[j].Y1 {
			return boxes[i].Y1 < boxes[j].Y1
		}
		return boxes[i].X1 < boxes[j].X1
	})

	return boxes
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return dst
}

func resizeTo(src *image.RGBA, bounds image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(bounds)
	xdraw.ApproxBiLinear.Scale(dst, bounds, src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// identicalPixels reports whether every channel of every pixel matches
// exactly.
func identicalPixels(a, b *image.RGBA) bool {
	ab, bb := a.Bounds(), b.Bounds()
	if !ab.Size().Eq(bb.Size()) {
		return false
	}
	w, h := ab.Dx(), ab.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := a.PixOffset(ab.Min.X+x, ab.Min.Y+y)
			j := b.PixOffset(bb.Min.X+x, bb.Min.Y+y)
			if a.Pix[i] != b.Pix[j] || a.Pix[i+1] != b.Pix[j+1] || a.Pix[i+2] != b.Pix[j+2] {
				return false
			}
		}
	}
	return true
}

// grayValue is the standard luma approximation used by image/color.
func grayValue(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

// dilate applies one pass of a rectangular max filter over the mask.
func dilate(mask []bool, w, h int) []bool {
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask[y*w+x] {
				continue
			}
			for dy := -dilateKernelRadius; dy <= dilateKernelRadius; dy++ {
				for dx := -dilateKernelRadius; dx <= dilateKernelRadius; dx++ {
					nx, ny := x+dx, y+dy
					if nx >= 0 && nx < w && ny >= 0 && ny < h {
						out[ny*w+nx] = true
					}
				}
			}
		}
	}
	return out
}

// connectedComponentBoxes labels 8-connected regions of the mask and
// returns one tight bounding box per region.
func connectedComponentBoxes(mask []bool, w, h int) []model.BBox {
	visited := make([]bool, len(mask))
	var boxes []model.BBox
	var queue []int

	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}

		minX, minY := w, h
		maxX, maxY := 0, 0

		queue = append(queue[:0], start)
		visited[start] = true

		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]

			x, y := idx%w, idx/w
			if x < minX {
				minX = x
			}
			if y < minY {
				minY = y
			}
			if x > maxX {
				maxX = x
			}
			if y > maxY {
				maxY = y
			}

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					nidx := ny*w + nx
					if mask[nidx] && !visited[nidx] {
						visited[nidx] = true
						queue = append(queue, nidx)
					}
				}
			}
		}

		boxes = append(boxes, model.BBox{X1: minX, Y1: minY, X2: maxX + 1, Y2: maxY + 1})
	}

	return boxes
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
