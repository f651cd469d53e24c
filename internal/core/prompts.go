package core

import (
	"fmt"
	"regexp"
	"strings"
)

const logoSystemPrompt = `You are a senior brand designer who writes prompts for text-to-image models.
Turn the brief into ONE English prompt for a logo. Describe the symbol, composition, colors and style.
The logo must be flat, centered, on a plain white background, without mockups or photographs.
Answer with the prompt only, no quotes, no explanations.`

const svgLogoSystemPrompt = `You are a senior brand designer who draws logos directly as SVG code.
Return only one complete <svg>...</svg> document with xmlns="http://www.w3.org/2000/svg" and a viewBox.
Use simple shapes and at most four colors. Do not use external images, fonts, scripts or markdown fences.`

const imagePromptSystemPrompt = `You improve prompts for text-to-image models.
Rewrite the user's idea (which may be Chinese) as one detailed English prompt covering subject, setting, lighting, style and composition.
Answer with the prompt only.`

const defaultLogoNegativePrompt = "photo, realistic, mockup, watermark, blurry, low quality, extra text"

// LogoBrief describes what the logo should express
type LogoBrief struct {
	BrandName   string   `json:"brandName" form:"brandName" validate:"required,max=64"`
	Description string   `json:"description" form:"description" validate:"max=500"`
	Style       string   `json:"style" form:"style" validate:"max=64"`
	Colors      []string `json:"colors" form:"colors" validate:"max=6"`
}

func (b LogoBrief) userPrompt() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Brand name: %s\n", strings.TrimSpace(b.BrandName))
	if d := strings.TrimSpace(b.Description); d != "" {
		fmt.Fprintf(&sb, "Business: %s\n", d)
	}
	if s := strings.TrimSpace(b.Style); s != "" {
		fmt.Fprintf(&sb, "Style: %s\n", s)
	}
	if len(b.Colors) > 0 {
		fmt.Fprintf(&sb, "Preferred colors: %s\n", strings.Join(b.Colors, ", "))
	}
	return sb.String()
}

// fallbackLogoPrompt is used when no chat model is configured
func (b LogoBrief) fallbackLogoPrompt() string {
	parts := []string{fmt.Sprintf("minimalist flat vector logo for the brand \"%s\"", strings.TrimSpace(b.BrandName))}
	if d := strings.TrimSpace(b.Description); d != "" {
		parts = append(parts, "representing "+d)
	}
	if s := strings.TrimSpace(b.Style); s != "" {
		parts = append(parts, s+" style")
	}
	if len(b.Colors) > 0 {
		parts = append(parts, "colors "+strings.Join(b.Colors, " and "))
	}
	parts = append(parts, "centered on a plain white background")
	return strings.Join(parts, ", ")
}

var svgDocument = regexp.MustCompile(`(?is)<svg[\s>].*</svg>`)

// extractSVG pulls the first <svg>...</svg> document out of a model reply
func extractSVG(reply string) (string, bool) {
	m := svgDocument.FindString(reply)
	if m == "" {
		return "", false
	}
	return m, true
}

// cleanPrompt strips quotes and code fences a chat model may add
func cleanPrompt(reply string) string {
	p := strings.TrimSpace(reply)
	p = strings.TrimPrefix(p, "```")
	p = strings.TrimSuffix(p, "```")
	p = strings.Trim(strings.TrimSpace(p), `"'“”`)
	return strings.TrimSpace(p)
}
