package record

import (
	"image"
	"image/color"
	"image/draw"
)

// Outline colours. Filled matches the job badge.
var (
	FilledColor  = color.RGBA{22, 163, 74, 255}
	SkippedColor = color.RGBA{234, 179, 8, 255}
)

// outlineWidth is the stroke width of a field outline in pixels.
const outlineWidth = 3

// Box is a field's on-screen rectangle and whether autofill wrote to it.
type Box struct {
	Rect   image.Rectangle
	Filled bool
}

// Highlight returns a copy of frame with every box outlined.
func Highlight(frame image.Image, boxes []Box) image.Image {
	bounds := frame.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, frame, bounds.Min, draw.Src)

	for _, b := range boxes {
		c := SkippedColor
		if b.Filled {
			c = FilledColor
		}
		r := b.Rect.Canon()
		for i := 0; i < outlineWidth; i++ {
			drawRect(out, r.Inset(-i), c)
		}
	}
	return out
}

func drawRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	drawLine(img, r.Min.X, r.Min.Y, r.Max.X-1, r.Min.Y, c)
	drawLine(img, r.Max.X-1, r.Min.Y, r.Max.X-1, r.Max.Y-1, c)
	drawLine(img, r.Max.X-1, r.Max.Y-1, r.Min.X, r.Max.Y-1, c)
	drawLine(img, r.Min.X, r.Max.Y-1, r.Min.X, r.Min.Y, c)
}

// drawLine draws a line between two points using Bresenham's algorithm
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx := 1
	if x1 > x2 {
		sx = -1
	}
	sy := 1
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy

	for {
		setPixelSafe(img, x1, y1, c)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func setPixelSafe(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
