package main

import (
	"image"
	"image/color"
	"image/png"
	"os"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// grayImage maps data, an ns x nt grid with s varying fastest, to an 8-bit
// image scaled to its maximum. Row 0 of the image is the largest t.
func grayImage(data []float32, ns, nt int) *image.Gray {
	var peak float32
	for _, v := range data {
		peak = max(peak, v)
	}
	img := image.NewGray(image.Rect(0, 0, ns, nt))
	if peak <= 0 {
		return img
	}
	for it := range nt {
		row := img.Pix[(nt-1-it)*img.Stride:]
		for is := range ns {
			v := max(data[it*ns+is], 0) / peak
			row[is] = uint8(v*255 + 0.5)
		}
	}
	return img
}

// savePreview writes data as a PNG of the given width with a caption.
func savePreview(path string, data []float32, ns, nt, width int, caption string) error {
	src := grayImage(data, ns, nt)
	width = max(width, 1)
	height := max(width*nt/ns, 1)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 200, A: 255}),
		Face: face,
		Dot:  fixed.P(6, 6+face.Ascent),
	}
	d.DrawString(caption)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, dst); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
