package render

import (
	"image/color"
	"math"

	"github.com/fogleman/gg"
)

var (
	titleColor            = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	gradientSubtitleColor = color.RGBA{R: 0xD9, G: 0xDF, B: 0xE8, A: 0xFF}
	centerSubtitleColor   = color.RGBA{R: 0xDC, G: 0xE1, B: 0xEA, A: 0xFF}
)

// lineStep is the baseline-to-baseline distance for a font size.
func lineStep(fontSize int) int {
	return int(math.Ceil(float64(fontSize) * 1.2))
}

// drawGradientBottom paints a transparent-to-dark vertical gradient over
// the whole canvas and anchors a left-aligned text block near the
// bottom edge.
func (r *Renderer) drawGradientBottom(dc *gg.Context, width, height int, title, subtitle string) {
	gradient := gg.NewLinearGradient(0, 0, 0, float64(height))
	gradient.AddColorStop(0, color.RGBA{})
	gradient.AddColorStop(1, color.RGBA{A: 184}) // rgba(0,0,0,0.72)
	dc.SetFillStyle(gradient)
	dc.DrawRectangle(0, 0, float64(width), float64(height))
	dc.Fill()

	titleFit := fitText(title, width-120, 2, 66, 36)
	titleStartY := height - 170

	dc.SetFontFace(r.titleFace(titleFit.fontSize))
	dc.SetColor(titleColor)
	for i, line := range titleFit.lines {
		y := titleStartY + i*lineStep(titleFit.fontSize)
		dc.DrawString(line, 60, float64(y))
	}

	if subtitle == "" {
		return
	}
	subtitleFit := fitText(subtitle, width-120, 1, 38, 24)
	if len(subtitleFit.lines) == 0 {
		return
	}
	subtitleY := titleStartY + len(titleFit.lines)*lineStep(titleFit.fontSize) + 24
	dc.SetFontFace(r.subtitleFace(subtitleFit.fontSize))
	dc.SetColor(gradientSubtitleColor)
	dc.DrawString(subtitleFit.lines[0], 60, float64(subtitleY))
}

// drawCenterDark tints the full canvas and centers the text block both
// horizontally and vertically.
func (r *Renderer) drawCenterDark(dc *gg.Context, width, height int, title, subtitle string) {
	dc.SetColor(color.RGBA{A: 122}) // rgba(0,0,0,0.48)
	dc.DrawRectangle(0, 0, float64(width), float64(height))
	dc.Fill()

	titleFit := fitText(title, width-180, 2, 72, 38)
	var subtitleFit *fitResult
	if subtitle != "" {
		fit := fitText(subtitle, width-200, 1, 34, 22)
		subtitleFit = &fit
	}

	blockHeight := len(titleFit.lines) * int(math.Ceil(float64(titleFit.fontSize)*1.18))
	if subtitleFit != nil {
		blockHeight += subtitleFit.fontSize + 24
	}
	titleStartY := (height-blockHeight)/2 + titleFit.fontSize
	centerX := float64(width) / 2

	dc.SetFontFace(r.titleFace(titleFit.fontSize))
	dc.SetColor(titleColor)
	for i, line := range titleFit.lines {
		y := titleStartY + i*lineStep(titleFit.fontSize)
		dc.DrawStringAnchored(line, centerX, float64(y), 0.5, 0)
	}

	if subtitleFit == nil || len(subtitleFit.lines) == 0 {
		return
	}
	subtitleY := titleStartY + len(titleFit.lines)*lineStep(titleFit.fontSize) + 18
	dc.SetFontFace(r.subtitleFace(subtitleFit.fontSize))
	dc.SetColor(centerSubtitleColor)
	dc.DrawStringAnchored(subtitleFit.lines[0], centerX, float64(subtitleY), 0.5, 0)
}
