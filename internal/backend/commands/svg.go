package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// maxSVGDimension bounds the raster size so a hostile viewBox cannot exhaust memory
const maxSVGDimension = 8192

// isSVGData performs a lightweight detection of SVG content from raw bytes.
// It checks for "<svg" tag or SVG namespace in the initial portion of the data.
func isSVGData(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	// Only inspect the first ~4KB for detection
	n := len(data)
	if n > 4096 {
		n = 4096
	}
	header := bytes.ToLower(bytes.TrimSpace(data[:n]))
	return bytes.Contains(header, []byte("<svg")) ||
		bytes.Contains(header, []byte("xmlns=\"http://www.w3.org/2000/svg\"")) ||
		bytes.Contains(header, []byte("xmlns='http://www.w3.org/2000/svg'"))
}

// svgRootTag returns the lower-cased start tag of the root <svg> element
func svgRootTag(data []byte) (string, bool) {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	s := strings.ToLower(string(data[:n]))
	i := strings.Index(s, "<svg")
	if i < 0 {
		return "", false
	}
	j := strings.Index(s[i:], ">")
	if j < 0 {
		return s[i:], true
	}
	return s[i : i+j], true
}

// parseSvgExplicitSize attempts to extract width and height attributes from the SVG.
// Returns width, height, and ok=true if both are found and parseable.
func parseSvgExplicitSize(data []byte) (int, int, bool) {
	tag, ok := svgRootTag(data)
	if !ok {
		return 0, 0, false
	}
	w, wOk := parseNumericAttr(tag, "width")
	h, hOk := parseNumericAttr(tag, "height")
	if wOk && hOk && w > 0 && h > 0 {
		return w, h, true
	}
	return 0, 0, false
}

// attrValue extracts the quoted value of an attribute from a start tag.
// The attribute name must be preceded by whitespace so "stroke-width" does not match "width".
func attrValue(tag, attr string) (string, bool) {
	search := tag
	offset := 0
	for {
		pos := strings.Index(search, attr)
		if pos < 0 {
			return "", false
		}
		abs := offset + pos
		after := abs + len(attr)
		precededBySpace := abs > 0 && strings.ContainsRune(" \t\r\n", rune(tag[abs-1]))
		rest := strings.TrimLeft(tag[after:], " \t\r\n")
		if precededBySpace && strings.HasPrefix(rest, "=") {
			rest = strings.TrimLeft(rest[1:], " \t\r\n")
			if rest == "" {
				return "", false
			}
			quote := rest[0]
			if quote != '"' && quote != '\'' {
				return "", false
			}
			end := strings.IndexByte(rest[1:], quote)
			if end < 0 {
				return rest[1:], true
			}
			return rest[1 : 1+end], true
		}
		offset = after
		search = tag[after:]
	}
}

// parseNumericAttr extracts the leading numeric value of an attribute (e.g., width="123px").
// Percentages are rejected since they carry no pixel size.
func parseNumericAttr(tag, attr string) (int, bool) {
	val, ok := attrValue(tag, attr)
	if !ok || strings.HasSuffix(strings.TrimSpace(val), "%") {
		return 0, false
	}
	num := 0
	found := false
	for i := 0; i < len(val); i++ {
		ch := val[i]
		if ch >= '0' && ch <= '9' {
			found = true
			num = num*10 + int(ch-'0')
		} else if found {
			break
		}
	}
	if !found || num <= 0 {
		return 0, false
	}
	return num, true
}

// resolveSVGSize picks the raster size: requested dimensions win, a single
// requested side keeps the intrinsic aspect ratio, otherwise the explicit
// width/height and finally the viewBox are used.
func resolveSVGSize(data []byte, icon *oksvg.SvgIcon, reqW, reqH int) (int, int, error) {
	intrinsicW, intrinsicH, ok := parseSvgExplicitSize(data)
	if !ok && icon.ViewBox.W > 0 && icon.ViewBox.H > 0 {
		intrinsicW = int(math.Round(icon.ViewBox.W))
		intrinsicH = int(math.Round(icon.ViewBox.H))
		ok = true
	}

	w, h := reqW, reqH
	switch {
	case w > 0 && h > 0:
	case w > 0 && ok:
		h = int(math.Round(float64(w) * float64(intrinsicH) / float64(intrinsicW)))
	case h > 0 && ok:
		w = int(math.Round(float64(h) * float64(intrinsicW) / float64(intrinsicH)))
	case ok:
		w, h = intrinsicW, intrinsicH
	default:
		return 0, 0, fmt.Errorf("SVG has no width/height or viewBox; render size required")
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid target dimensions for SVG rendering: %dx%d", w, h)
	}
	if w > maxSVGDimension || h > maxSVGDimension {
		return 0, 0, fmt.Errorf("SVG render size %dx%d exceeds limit %d", w, h, maxSVGDimension)
	}
	if err := checkPixels(w, h); err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

// SVGSize returns the intrinsic size of an SVG document from its
// width/height attributes or its viewBox.
func SVGSize(svgData []byte) (int, int, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData), oksvg.IgnoreErrorMode)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse SVG: %w", err)
	}
	intrinsicW, intrinsicH, ok := parseSvgExplicitSize(svgData)
	if !ok && icon.ViewBox.W > 0 && icon.ViewBox.H > 0 {
		intrinsicW = int(math.Round(icon.ViewBox.W))
		intrinsicH = int(math.Round(icon.ViewBox.H))
		ok = true
	}
	if !ok || intrinsicW <= 0 || intrinsicH <= 0 {
		return 0, 0, fmt.Errorf("SVG has no width/height or viewBox")
	}
	return intrinsicW, intrinsicH, nil
}

// rasterizeSVG renders SVG bytes into an RGBA image. A nil background leaves
// the canvas transparent.
func rasterizeSVG(svgData []byte, reqW, reqH int, bg color.Color) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}

	w, h, err := resolveSVGSize(svgData, icon, reqW, reqH)
	if err != nil {
		return nil, err
	}

	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		// without a viewBox the user space is the explicit width/height
		if iw, ih, ok := parseSvgExplicitSize(svgData); ok {
			icon.ViewBox.W, icon.ViewBox.H = float64(iw), float64(ih)
		} else {
			icon.ViewBox.W, icon.ViewBox.H = float64(w), float64(h)
		}
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if bg != nil {
		draw.Draw(dst, dst.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)
	}

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.Draw(dasher, 1.0)

	return dst, nil
}
