// Package imageproc post-processes screenshots: WebP recompression, a
// synthetic browser frame and pixel diffs.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// Output formats.
const (
	FormatWebP = "webp"
	FormatPNG  = "png"
)

// FrameHeight is the height of the synthetic browser chrome.
const FrameHeight = 80

// DiffThreshold is the summed per-channel difference above which a pixel counts as changed.
const DiffThreshold = 15

// Decode decodes PNG bytes.
func Decode(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeWebP encodes img as lossy WebP.
func EncodeWebP(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

// Compress recompresses PNG bytes as WebP. On failure it returns the input
// unchanged with FormatPNG together with the cause.
func Compress(data []byte, quality int) ([]byte, string, error) {
	img, err := Decode(data)
	if err != nil {
		return data, FormatPNG, err
	}
	out, err := EncodeWebP(img, quality)
	if err != nil {
		return data, FormatPNG, err
	}
	return out, FormatWebP, nil
}

// Present frames a screenshot with browser chrome showing url, then
// compresses it. Every failure degrades to the best artifact available:
// framed PNG, then the raw capture.
func Present(data []byte, url string, quality int) ([]byte, string, error) {
	img, err := Decode(data)
	if err != nil {
		return data, FormatPNG, err
	}
	framed := AddBrowserFrame(img, url)
	if out, err := EncodeWebP(framed, quality); err == nil {
		return out, FormatWebP, nil
	}
	out, err := EncodePNG(framed)
	if err != nil {
		return data, FormatPNG, err
	}
	return out, FormatPNG, fmt.Errorf("webp unavailable, kept png")
}

const (
	barColor    = "#f1f3f4"
	urlBarFill  = "#e8eaed"
	urlBarEdge  = "#dadce0"
	urlBarText  = "#5f6368"
	urlBarTop   = 45.0
	urlBarRise  = 30.0
	urlTextLeft = 70.0
)

var dotColors = []string{"#ff5f56", "#ffbd2e", "#27ca3f"}

// AddBrowserFrame returns img below an 80px browser title and URL bar.
func AddBrowserFrame(img image.Image, url string) image.Image {
	b := img.Bounds()
	w := float64(b.Dx())
	dc := gg.NewContext(b.Dx(), b.Dy()+FrameHeight)
	dc.SetColor(color.White)
	dc.Clear()

	dc.SetHexColor(barColor)
	dc.DrawRectangle(0, 0, w, 40)
	dc.Fill()
	for i, c := range dotColors {
		dc.SetHexColor(c)
		dc.DrawCircle(20+float64(i)*20, 20, 6)
		dc.Fill()
	}

	if barWidth := w - 20 - 60; barWidth > 0 {
		dc.DrawRoundedRectangle(60, urlBarTop, barWidth, urlBarRise, 4)
		dc.SetHexColor(urlBarFill)
		dc.FillPreserve()
		dc.SetHexColor(urlBarEdge)
		dc.SetLineWidth(1)
		dc.Stroke()
	}

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetHexColor(urlBarText)
	text := fitText(dc, url, w-90)
	dc.DrawString(text, urlTextLeft, urlBarTop+8+float64(basicfont.Face7x13.Ascent))

	dc.DrawImage(img, 0, FrameHeight)
	return dc.Image()
}

func fitText(dc *gg.Context, s string, maxWidth float64) string {
	if width, _ := dc.MeasureString(s); width <= maxWidth {
		return s
	}
	r := []rune(s)
	for len(r) > 10 {
		r = r[:len(r)-1]
		if width, _ := dc.MeasureString(string(r) + "..."); width <= maxWidth {
			break
		}
	}
	return string(r) + "..."
}

// Diff compares two renders after resizing both to the smaller of each
// dimension. Changed pixels are painted red and the rest dimmed to 30%.
// score is the floored percentage of changed pixels.
func Diff(base, compare image.Image) (image.Image, int) {
	w := min(base.Bounds().Dx(), compare.Bounds().Dx())
	h := min(base.Bounds().Dy(), compare.Bounds().Dy())
	if w == 0 || h == 0 {
		return image.NewNRGBA(image.Rect(0, 0, 0, 0)), 0
	}
	a := fit(base, w, h)
	b := fit(compare, w, h)

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	changed := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := a.NRGBAAt(x, y)
			q := b.NRGBAAt(x, y)
			if absDiff(p.R, q.R)+absDiff(p.G, q.G)+absDiff(p.B, q.B) > DiffThreshold {
				out.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
				changed++
				continue
			}
			out.SetNRGBA(x, y, color.NRGBA{R: dim(p.R), G: dim(p.G), B: dim(p.B), A: 255})
		}
	}
	return out, changed * 100 / (w * h)
}

func fit(img image.Image, w, h int) *image.NRGBA {
	if img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func dim(v uint8) uint8 {
	return uint8(float64(v) * 0.3)
}
