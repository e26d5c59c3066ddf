package ogcard

// Preset is a fixed output canvas size for one platform.
type Preset struct {
	ID     Platform `json:"id"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
}

// presets maps each platform to its canvas. Output dimensions come from
// this table only, never from the source image.
var presets = map[Platform]Preset{
	PlatformOG:       {ID: PlatformOG, Width: 1200, Height: 630},
	PlatformTwitter:  {ID: PlatformTwitter, Width: 1200, Height: 675},
	PlatformLinkedIn: {ID: PlatformLinkedIn, Width: 1200, Height: 627},
}

// PresetFor returns the canvas preset for a platform.
func PresetFor(platform Platform) (Preset, bool) {
	p, ok := presets[platform]
	return p, ok
}

// Presets returns every canvas preset in platform order.
func Presets() []Preset {
	out := make([]Preset, 0, len(Platforms))
	for _, platform := range Platforms {
		out = append(out, presets[platform])
	}
	return out
}

// Template describes one overlay strategy for the listing endpoint.
type Template struct {
	ID          TemplateID `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
}

var templates = []Template{
	{
		ID:          TemplateGradientBottom,
		Name:        "Gradient Bottom",
		Description: "Bottom gradient overlay with left-aligned title and subtitle.",
	},
	{
		ID:          TemplateCenterDark,
		Name:        "Center Dark",
		Description: "Full-screen dark tint with centered title and subtitle.",
	},
}

// Templates returns the fixed template catalog.
func Templates() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

// ValidPlatform reports whether platform is a member of the closed enum.
func ValidPlatform(platform Platform) bool {
	_, ok := presets[platform]
	return ok
}

// ValidTemplate reports whether id is a member of the closed enum.
func ValidTemplate(id TemplateID) bool {
	for _, t := range templates {
		if t.ID == id {
			return true
		}
	}
	return false
}
