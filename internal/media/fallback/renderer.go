// Package fallback draws the placeholder banner used when no remote image
// service delivers. Layout uses fixed offsets, not measured glyph extents, so
// it works with any face including the built-in bitmap font.
package fallback

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/mitchellh/go-wordwrap"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/linkedin-autopost/pkg/logger"
)

const (
	size       = 1024
	maxTitle   = 120
	wrapWidth  = 22
	lineHeight = 60
	boxInset   = 80
	textX      = 100
)

// Palette holds the background colors
var Palette = []color.RGBA{
	{25, 118, 210, 255}, // blue
	{56, 142, 60, 255},  // green
	{123, 31, 162, 255}, // purple
	{245, 124, 0, 255},  // orange
	{2, 136, 209, 255},  // light blue
}

var (
	panelColor  = color.RGBA{255, 255, 255, 255}
	textColor   = color.RGBA{20, 20, 20, 255}
	footerColor = color.RGBA{230, 230, 230, 255}
)

// Renderer draws title banners
type Renderer struct {
	fontPath string
	footer   string
	intn     func(n int) int
	log      *logger.Logger
}

// Option configures a Renderer
type Option func(*Renderer)

// WithRand replaces the palette draw
func WithRand(intn func(n int) int) Option {
	return func(r *Renderer) { r.intn = intn }
}

// New creates a renderer preferring the TrueType font at fontPath
func New(fontPath, footer string, log *logger.Logger, opts ...Option) *Renderer {
	if footer == "" {
		footer = "Daily Tech Snapshot"
	}
	r := &Renderer{
		fontPath: fontPath,
		footer:   footer,
		intn:     rand.IntN,
		log:      log.WithComponent("fallback-image"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render writes a PNG banner for title to outPath. Drawing cannot fail;
// only creating the file can.
func (r *Renderer) Render(title, outPath string) error {
	img := r.Draw(title)

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create banner file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode banner: %w", err)
	}
	return f.Close()
}

// Draw renders the banner in memory
func (r *Renderer) Draw(title string) *image.RGBA {
	bg := Palette[r.intn(len(Palette))]
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	titleFace, footerFace := r.faces()

	lines := WrapTitle(title)
	startY := (size - len(lines)*lineHeight) / 2

	boxBottom := startY + len(lines)*lineHeight + 20
	box := image.Rect(boxInset, startY-60, size-boxInset, boxBottom)
	draw.Draw(img, box, image.NewUniform(panelColor), image.Point{}, draw.Src)

	// PIL-style top-left placement: shift by the ascent to get the baseline
	ascent := titleFace.Metrics().Ascent.Ceil()
	for i, line := range lines {
		drawString(img, titleFace, textColor, textX, startY+i*lineHeight+ascent, line)
	}

	footerAscent := footerFace.Metrics().Ascent.Ceil()
	drawString(img, footerFace, footerColor, size/2-150, boxBottom+25+footerAscent, r.footer)

	return img
}

// faces loads the preferred font, substituting the built-in face on any error
func (r *Renderer) faces() (font.Face, font.Face) {
	if r.fontPath != "" {
		titleFace, footerFace, err := loadFaces(r.fontPath)
		if err == nil {
			return titleFace, footerFace
		}
		r.log.Debug().Err(err).Str("font", r.fontPath).Msg("Preferred font unavailable, using built-in face")
	}
	return basicfont.Face7x13, basicfont.Face7x13
}

func loadFaces(path string) (font.Face, font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, nil, err
	}
	titleFace, err := opentype.NewFace(f, &opentype.FaceOptions{Size: 48, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, nil, err
	}
	footerFace, err := opentype.NewFace(f, &opentype.FaceOptions{Size: 28, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, nil, err
	}
	return titleFace, footerFace, nil
}

func drawString(dst draw.Image, face font.Face, c color.Color, x, y int, s string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// WrapTitle truncates title to 120 characters and wraps it at 22 columns.
// Words longer than a line are split.
func WrapTitle(title string) []string {
	title = strings.Join(strings.Fields(title), " ")
	if runes := []rune(title); len(runes) > maxTitle {
		title = string(runes[:maxTitle])
	}

	var lines []string
	for _, line := range strings.Split(wordwrap.WrapString(title, wrapWidth), "\n") {
		runes := []rune(strings.TrimSpace(line))
		for len(runes) > wrapWidth {
			lines = append(lines, string(runes[:wrapWidth]))
			runes = runes[wrapWidth:]
		}
		if len(runes) > 0 {
			lines = append(lines, string(runes))
		}
	}
	return lines
}
