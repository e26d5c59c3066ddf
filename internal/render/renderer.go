// Package render resizes a source image to a platform canvas and
// composites a text overlay onto it.
package render

import (
	"bytes"
	"fmt"
	"image/png"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomedium"

	// Register webp decoding for imaging.Decode; png/jpeg come with
	// the imaging import.
	_ "golang.org/x/image/webp"

	"github.com/cardsmith/og-card-service/internal/ogcard"
)

// Input carries everything needed to render one card.
type Input struct {
	Source     []byte
	Title      string
	Subtitle   string
	Platform   ogcard.Platform
	TemplateID ogcard.TemplateID
}

// Output is the encoded card plus its dimensions.
type Output struct {
	PNG    []byte
	Width  int
	Height int
}

// Renderer composites card images. Safe for concurrent use; font faces
// are created per render.
type Renderer struct {
	bold   *truetype.Font
	medium *truetype.Font
}

// New parses the embedded typefaces and returns a Renderer.
func New() (*Renderer, error) {
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	medium, err := truetype.Parse(gomedium.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse medium font: %w", err)
	}
	return &Renderer{bold: bold, medium: medium}, nil
}

// Render decodes the source, covers the platform canvas with it
// (center-cropped, never letterboxed or distorted), draws the template
// overlay, and encodes the result as PNG.
func (r *Renderer) Render(in Input) (Output, error) {
	preset, ok := ogcard.PresetFor(in.Platform)
	if !ok {
		return Output{}, ogcard.NewError(
			ogcard.CodeInvalidPlatform,
			fmt.Sprintf("unsupported platform: %s", in.Platform),
			http.StatusBadRequest,
		)
	}
	if !ogcard.ValidTemplate(in.TemplateID) {
		return Output{}, ogcard.NewError(
			ogcard.CodeInvalidTemplate,
			fmt.Sprintf("unsupported template: %s", in.TemplateID),
			http.StatusBadRequest,
		)
	}

	src, err := imaging.Decode(bytes.NewReader(in.Source))
	if err != nil {
		return Output{}, renderFault()
	}

	resized := imaging.Fill(src, preset.Width, preset.Height, imaging.Center, imaging.Lanczos)

	dc := gg.NewContext(preset.Width, preset.Height)
	dc.DrawImage(resized, 0, 0)

	switch in.TemplateID {
	case ogcard.TemplateGradientBottom:
		r.drawGradientBottom(dc, preset.Width, preset.Height, in.Title, in.Subtitle)
	case ogcard.TemplateCenterDark:
		r.drawCenterDark(dc, preset.Width, preset.Height, in.Title, in.Subtitle)
	}

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := encoder.Encode(&buf, dc.Image()); err != nil {
		return Output{}, renderFault()
	}

	return Output{PNG: buf.Bytes(), Width: preset.Width, Height: preset.Height}, nil
}

func (r *Renderer) titleFace(size int) font.Face {
	return truetype.NewFace(r.bold, &truetype.Options{Size: float64(size)})
}

func (r *Renderer) subtitleFace(size int) font.Face {
	return truetype.NewFace(r.medium, &truetype.Options{Size: float64(size)})
}

// renderFault hides imaging-backend detail behind a generic internal
// error, keeping corrupt-image faults distinct from bad-input codes.
func renderFault() error {
	return ogcard.NewError(ogcard.CodeRenderFailed, "failed to render card image", http.StatusInternalServerError)
}
