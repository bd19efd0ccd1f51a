package ebitenadapter

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/kestrelworks/worldstream"
)

// SignRasterizer is the adapter's worldstream.SignRasterizer: it rasterizes
// a sign's text onto a fixed-size RGBA canvas using the stdlib-adjacent
// golang.org/x/image/font/basicfont face (no TTF asset to embed for a demo),
// grounded on willow's text.go "rasterize to an offscreen image, upload as a
// texture" shape (there implemented with ebiten/v2/text/v2 and an embedded
// TTF; here with the bitmap face already reachable through the pack's
// golang.org/x/image dependency).
type SignRasterizer struct{}

const signCanvasWidth, signCanvasHeight = 256, 64

// RasterizeSign implements worldstream.SignRasterizer.
func (SignRasterizer) RasterizeSign(spec worldstream.SignSpec) (worldstream.TextureImage, error) {
	img := image.NewRGBA(image.Rect(0, 0, signCanvasWidth, signCanvasHeight))
	back := rgba(spec.BackColor)
	draw.Draw(img, img.Bounds(), &image.Uniform{C: back}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, spec.Text).Ceil()
	scale := spec.Scale
	if scale <= 0 {
		scale = 1
	}

	var x int
	switch spec.Align {
	case "left":
		x = int(spec.HMargin)
	case "right":
		x = signCanvasWidth - textWidth - int(spec.HMargin)
	default: // center
		x = (signCanvasWidth - textWidth) / 2
	}
	y := signCanvasHeight/2 + face.Ascent/2

	fg := rgba(spec.Color)
	if spec.Shadow {
		drawString(img, face, x+1, y+1, spec.Text, color.Black)
	}
	drawString(img, face, x, y, spec.Text, fg)

	return &TextureHandle{Image: ebiten.NewImageFromImage(img)}, nil
}

func drawString(dst draw.Image, face font.Face, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func rgba(c [4]float32) color.RGBA {
	return color.RGBA{
		R: uint8(clamp01(float64(c[0])) * 255),
		G: uint8(clamp01(float64(c[1])) * 255),
		B: uint8(clamp01(float64(c[2])) * 255),
		A: uint8(clamp01(float64(c[3])) * 255),
	}
}
