package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jo-hoe/imagecube/internal/backend/commands"
)

// matches fill="#abc", stroke='#aabbcc', style="fill: #abc" and friends
var svgColorRef = regexp.MustCompile(`(?i)((?:fill|stroke|stop-color|flood-color)\s*(?:=\s*["']|:\s*))(#[0-9a-f]{6}\b|#[0-9a-f]{3}\b)`)

var svgSizeAttr = regexp.MustCompile(`(?i)\s(width|height)\s*=\s*("[^"]*"|'[^']*')`)

func normalizeHex(s string) (string, error) {
	c, err := commands.ParseHexColor(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B), nil
}

// RecolorSVG replaces fill and stroke colors according to mapping (from -> to).
// Matching is on the normalized hex value, so #ABC matches #aabbcc.
func RecolorSVG(svg []byte, mapping map[string]string) ([]byte, error) {
	if len(mapping) == 0 {
		return nil, invalidf("color mapping must not be empty")
	}
	if format, err := commands.DetectFormat(svg); err != nil || format != commands.FormatSVG {
		return nil, invalidf("input is not an SVG document")
	}

	normalized := make(map[string]string, len(mapping))
	for from, to := range mapping {
		f, err := normalizeHex(from)
		if err != nil {
			return nil, invalidInput(err)
		}
		t, err := normalizeHex(to)
		if err != nil {
			return nil, invalidInput(err)
		}
		normalized[f] = t
	}

	out := svgColorRef.ReplaceAllStringFunc(string(svg), func(match string) string {
		parts := svgColorRef.FindStringSubmatch(match)
		current, err := normalizeHex(parts[2])
		if err != nil {
			return match
		}
		if replacement, ok := normalized[current]; ok {
			return parts[1] + replacement
		}
		return match
	})
	return []byte(out), nil
}

// SVGColors lists the distinct fill/stroke hex colors in document order
func SVGColors(svg []byte) []string {
	seen := map[string]bool{}
	var colors []string
	for _, parts := range svgColorRef.FindAllStringSubmatch(string(svg), -1) {
		c, err := normalizeHex(parts[2])
		if err != nil || seen[c] {
			continue
		}
		seen[c] = true
		colors = append(colors, c)
	}
	return colors
}

// SetSize rewrites the root width and height. A viewBox is added from the
// previous size when missing so the drawing scales instead of being clipped.
func SetSize(svg []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, invalidf("width and height must be positive, got %dx%d", width, height)
	}
	s := string(svg)
	start := strings.Index(strings.ToLower(s), "<svg")
	if start < 0 {
		return nil, invalidf("input is not an SVG document")
	}
	end := strings.Index(s[start:], ">")
	if end < 0 {
		return nil, invalidf("unterminated <svg> tag")
	}
	end += start

	tag := s[start:end]
	selfClosing := strings.HasSuffix(tag, "/")
	if selfClosing {
		tag = tag[:len(tag)-1]
	}

	var oldW, oldH string
	for _, m := range svgSizeAttr.FindAllStringSubmatch(tag, -1) {
		value := strings.Trim(m[2], `"'`)
		if strings.EqualFold(m[1], "width") {
			oldW = value
		} else {
			oldH = value
		}
	}
	tag = svgSizeAttr.ReplaceAllString(tag, "")

	attrs := fmt.Sprintf(` width="%d" height="%d"`, width, height)
	if !strings.Contains(strings.ToLower(tag), "viewbox") {
		w, wErr := strconv.ParseFloat(strings.TrimSuffix(oldW, "px"), 64)
		h, hErr := strconv.ParseFloat(strings.TrimSuffix(oldH, "px"), 64)
		if wErr == nil && hErr == nil && w > 0 && h > 0 {
			attrs += fmt.Sprintf(` viewBox="0 0 %s %s"`, strconv.FormatFloat(w, 'f', -1, 64), strconv.FormatFloat(h, 'f', -1, 64))
		}
	}

	tag = tag[:4] + attrs + tag[4:]
	if selfClosing {
		tag += "/"
	}
	return []byte(s[:start] + tag + s[end:]), nil
}
