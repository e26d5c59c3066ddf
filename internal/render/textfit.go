package render

import (
	"math"
	"strings"
)

// charWidthFactor approximates glyph width as a fraction of the font
// size. It is a deliberate heuristic, not font metrics; rendered
// fixtures depend on this exact value.
const charWidthFactor = 0.56

// fontSizeStep is the decrement used while searching for a fitting size.
const fontSizeStep = 2

type fitResult struct {
	lines    []string
	fontSize int
}

// fitText finds the largest font size in [minFontSize, maxFontSize]
// whose greedy word-wrap of text stays within maxLines, estimating
// character width as charWidthFactor x fontSize. When nothing fits, the
// smallest size is used and the final line is ellipsized so overflow
// never corrupts layout.
func fitText(text string, maxWidthPx, maxLines, maxFontSize, minFontSize int) fitResult {
	normalized := strings.Join(strings.Fields(text), " ")

	for size := maxFontSize; size >= minFontSize; size -= fontSizeStep {
		lines := wrapByWidth(normalized, charBudget(maxWidthPx, size))
		if len(lines) <= maxLines {
			return fitResult{lines: lines, fontSize: size}
		}
	}

	budget := charBudget(maxWidthPx, minFontSize)
	wrapped := wrapByWidth(normalized, budget)
	if len(wrapped) > maxLines {
		wrapped = wrapped[:maxLines]
	}
	last := len(wrapped) - 1
	wrapped[last] = clampLineWithEllipsis(wrapped[last], budget)
	return fitResult{lines: wrapped, fontSize: minFontSize}
}

// charBudget converts a pixel width into a per-line character budget,
// never below 10 characters.
func charBudget(maxWidthPx, fontSize int) int {
	approxCharWidth := float64(fontSize) * charWidthFactor
	budget := int(math.Floor(float64(maxWidthPx) / approxCharWidth))
	if budget < 10 {
		budget = 10
	}
	return budget
}

// wrapByWidth greedily packs words into lines of at most maxChars
// characters. A single word longer than the budget is hard-split.
func wrapByWidth(text string, maxChars int) []string {
	words := strings.Fields(text)
	var lines []string
	current := ""

	for _, word := range words {
		next := word
		if current != "" {
			next = current + " " + word
		}
		if runeLen(next) <= maxChars {
			current = next
			continue
		}
		if current != "" {
			lines = append(lines, current)
			current = word
			continue
		}
		runes := []rune(word)
		lines = append(lines, string(runes[:maxChars]))
		current = string(runes[maxChars:])
	}

	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// clampLineWithEllipsis truncates value to maxChars, replacing the tail
// with "..." (or bare dots when the budget cannot even hold them).
func clampLineWithEllipsis(value string, maxChars int) string {
	runes := []rune(value)
	if len(runes) <= maxChars {
		return value
	}
	if maxChars <= 3 {
		return strings.Repeat(".", maxChars)
	}
	return string(runes[:maxChars-3]) + "..."
}

func runeLen(s string) int {
	return len([]rune(s))
}
