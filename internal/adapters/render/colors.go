package render

import "image/color"

var (
	blueLight   = color.RGBA{R: 198, G: 219, B: 239, A: 255}
	blueDark    = color.RGBA{R: 8, G: 48, B: 107, A: 255}
	orangeLight = color.RGBA{R: 253, G: 208, B: 162, A: 255}
	orangeDark  = color.RGBA{R: 166, G: 54, B: 3, A: 255}
	barColor    = color.RGBA{R: 52, G: 152, B: 219, A: 255}
)

// palette cycles through distinct colors for series.
var palette = []color.RGBA{
	{R: 52, G: 152, B: 219, A: 255},
	{R: 231, G: 76, B: 60, A: 255},
	{R: 155, G: 89, B: 182, A: 255},
	{R: 243, G: 156, B: 18, A: 255},
	{R: 46, G: 204, B: 113, A: 255},
	{R: 52, G: 73, B: 94, A: 255},
}

func seriesColor(i int) color.RGBA { return palette[i%len(palette)] }

// gradient interpolates between a (t=0) and b (t=1).
func gradient(a, b color.RGBA, t float64) color.RGBA {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	mix := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5) }
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}
