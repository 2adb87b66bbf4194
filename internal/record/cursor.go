package record

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// CursorSize is the size of the cursor sprite
const CursorSize = 20

// cursorPos is a cursor position on one frame.
type cursorPos struct {
	X, Y  int
	Click bool
}

// Animate expands shots into frames: for each shot with a click, tween
// frames move the cursor from the previous click point over the screenshot,
// and a final frame shows the click ripple.
func Animate(shots []Shot, tween int) []image.Image {
	var frames []image.Image
	var prev image.Point
	for _, s := range shots {
		if s.Click == (image.Point{}) {
			frames = append(frames, drawCursorOnFrame(s.Image, cursorPos{X: prev.X, Y: prev.Y}))
			continue
		}
		for _, p := range interpolate(prev, s.Click, tween) {
			frames = append(frames, drawCursorOnFrame(s.Image, p))
		}
		frames = append(frames, drawCursorOnFrame(s.Image, cursorPos{X: s.Click.X, Y: s.Click.Y, Click: true}))
		prev = s.Click
	}
	return frames
}

// interpolate returns n eased positions from a towards b, excluding b.
func interpolate(a, b image.Point, n int) []cursorPos {
	if a == (image.Point{}) || n <= 0 {
		return nil
	}
	out := make([]cursorPos, n)
	for i := 0; i < n; i++ {
		t := easeInOut(float64(i) / float64(n))
		out[i] = cursorPos{
			X: int(float64(a.X) + t*float64(b.X-a.X)),
			Y: int(float64(a.Y) + t*float64(b.Y-a.Y)),
		}
	}
	return out
}

// easeInOut provides smooth acceleration and deceleration
func easeInOut(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - math.Pow(-2*t+2, 2)/2
}

// drawCursorOnFrame creates a new image with cursor overlay
func drawCursorOnFrame(frame image.Image, pos cursorPos) image.Image {
	bounds := frame.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, frame, bounds.Min, draw.Src)

	// Not yet positioned
	if pos.X == 0 && pos.Y == 0 {
		return result
	}
	if pos.Click {
		drawClickRipple(result, pos.X, pos.Y)
	}
	drawCursor(result, pos.X, pos.Y)
	return result
}

// drawCursor draws a simple arrow cursor
func drawCursor(img *image.RGBA, x, y int) {
	outline := color.RGBA{0, 0, 0, 255}
	fill := color.RGBA{255, 255, 255, 255}

	points := []struct{ dx, dy int }{
		{0, 0},
		{0, 16},
		{4, 12},
		{7, 18},
		{10, 17},
		{7, 11},
		{12, 11},
	}

	for dy := 0; dy < 18; dy++ {
		for dx := 0; dx < 13; dx++ {
			if isInsideCursor(dx, dy) {
				setPixelSafe(img, x+dx, y+dy, fill)
			}
		}
	}
	for i := 0; i < len(points); i++ {
		p1 := points[i]
		p2 := points[(i+1)%len(points)]
		drawLine(img, x+p1.dx, y+p1.dy, x+p2.dx, y+p2.dy, outline)
	}
}

func isInsideCursor(dx, dy int) bool {
	if dy < 0 || dy > 16 || dx < 0 {
		return false
	}
	if dy <= 11 {
		return dx <= dy*12/16
	}
	return dx <= 4
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

// drawClickRipple draws a circle around the click point
func drawClickRipple(img *image.RGBA, x, y int) {
	ripple := color.RGBA{66, 133, 244, 100}
	radius := 15

	for angle := 0.0; angle < 360; angle++ {
		rad := angle * math.Pi / 180
		px := x + int(float64(radius)*math.Cos(rad))
		py := y + int(float64(radius)*math.Sin(rad))
		setPixelSafe(img, px, py, ripple)
		setPixelSafe(img, px+1, py, ripple)
		setPixelSafe(img, px, py+1, ripple)
	}
}

func setPixelSafe(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.Set(x, y, c)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
