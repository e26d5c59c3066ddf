package ogcard

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresetDimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		platform Platform
		width    int
		height   int
	}{
		{PlatformOG, 1200, 630},
		{PlatformTwitter, 1200, 675},
		{PlatformLinkedIn, 1200, 627},
	}
	for _, tc := range tests {
		p, ok := PresetFor(tc.platform)
		require.True(t, ok)
		require.Equal(t, tc.width, p.Width)
		require.Equal(t, tc.height, p.Height)
	}

	_, ok := PresetFor("instagram")
	require.False(t, ok)
}

func TestTemplateCatalog(t *testing.T) {
	t.Parallel()

	ts := Templates()
	require.Len(t, ts, 2)
	require.Equal(t, TemplateGradientBottom, ts[0].ID)
	require.Equal(t, TemplateCenterDark, ts[1].ID)

	require.True(t, ValidTemplate(TemplateCenterDark))
	require.False(t, ValidTemplate("polaroid"))
}

func TestCodedErrorUnwrapsThroughWrapping(t *testing.T) {
	t.Parallel()

	base := NewError(CodeSourceTooLarge, "source image exceeded 10 bytes", 422).
		WithDetails(map[string]any{"maxBytes": 10})
	wrapped := fmt.Errorf("resolve source: %w", base)

	coded, ok := AsError(wrapped)
	require.True(t, ok)
	require.Equal(t, CodeSourceTooLarge, coded.Code)
	require.Equal(t, 422, coded.Status)
	require.Equal(t, 10, coded.Details["maxBytes"])

	require.False(t, errors.Is(wrapped, ErrJobNotFound))
}
