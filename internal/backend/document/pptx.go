package document

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"io"
	"math"
	"strings"

	"github.com/jo-hoe/imagecube/internal/backend/commands"
)

const (
	// 16:9 slide in EMU (English Metric Units)
	SlideWidthEMU  = 12192000
	SlideHeightEMU = 6858000

	// SVGs are rendered to fit 2x the 960x540 px slide
	SvgRenderWidth  = 1920
	SvgRenderHeight = 1080

	PPTXMimeType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

type pptxSlide struct {
	png           []byte
	width, height int
}

// PPTXWriter assembles a minimal Office Open XML presentation where each
// slide holds one centered picture.
type PPTXWriter struct {
	slides []pptxSlide
}

func NewPPTXWriter() *PPTXWriter {
	return &PPTXWriter{}
}

// AddImageSlide appends a slide showing the PNG scaled to fit
func (p *PPTXWriter) AddImageSlide(pngData []byte) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(pngData))
	if err != nil {
		return fmt.Errorf("failed to read slide image: %w", err)
	}
	if format != commands.FormatPNG {
		return fmt.Errorf("%w: slide images must be png, got %s", commands.ErrUnsupportedFormat, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("slide image has no area")
	}
	p.slides = append(p.slides, pptxSlide{png: pngData, width: cfg.Width, height: cfg.Height})
	return nil
}

func (p *PPTXWriter) SlideCount() int {
	return len(p.slides)
}

// fitRect scales w x h into the slide keeping the aspect ratio and centers it
func fitRect(w, h int) (x, y, cx, cy int64) {
	cx, cy = SlideWidthEMU, SlideHeightEMU
	if int64(w)*SlideHeightEMU > int64(h)*SlideWidthEMU {
		cy = int64(h) * SlideWidthEMU / int64(w)
	} else {
		cx = int64(w) * SlideHeightEMU / int64(h)
	}
	return (SlideWidthEMU - cx) / 2, (SlideHeightEMU - cy) / 2, cx, cy
}

// Write emits the .pptx archive
func (p *PPTXWriter) Write(w io.Writer) error {
	if len(p.slides) == 0 {
		return ErrNoImages
	}

	zw := zip.NewWriter(w)
	add := func(name, content string) error {
		f, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = io.WriteString(f, content)
		return err
	}

	parts := []struct{ name, content string }{
		{"[Content_Types].xml", p.contentTypes()},
		{"_rels/.rels", rootRels},
		{"docProps/app.xml", fmt.Sprintf(appXML, len(p.slides))},
		{"docProps/core.xml", coreXML},
		{"ppt/presentation.xml", p.presentation()},
		{"ppt/_rels/presentation.xml.rels", p.presentationRels()},
		{"ppt/slideMasters/slideMaster1.xml", slideMasterXML},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", slideMasterRels},
		{"ppt/slideLayouts/slideLayout1.xml", slideLayoutXML},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", slideLayoutRels},
		{"ppt/theme/theme1.xml", themeXML},
	}
	for i, s := range p.slides {
		n := i + 1
		x, y, cx, cy := fitRect(s.width, s.height)
		parts = append(parts,
			struct{ name, content string }{fmt.Sprintf("ppt/slides/slide%d.xml", n), fmt.Sprintf(slideXML, n, x, y, cx, cy)},
			struct{ name, content string }{fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n), fmt.Sprintf(slideRels, n)},
		)
	}
	for _, part := range parts {
		if err := add(part.name, part.content); err != nil {
			return fmt.Errorf("failed to write %s: %w", part.name, err)
		}
	}

	for i, s := range p.slides {
		name := fmt.Sprintf("ppt/media/image%d.png", i+1)
		// PNG is already compressed
		f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		if _, err := f.Write(s.png); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	return zw.Close()
}

// Bytes returns the .pptx archive
func (p *PPTXWriter) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fitRenderSize scales w x h to fit SvgRenderWidth x SvgRenderHeight
func fitRenderSize(w, h int) (int, int) {
	scale := math.Min(float64(SvgRenderWidth)/float64(w), float64(SvgRenderHeight)/float64(h))
	return max(int(math.Round(float64(w)*scale)), 1), max(int(math.Round(float64(h)*scale)), 1)
}

// SvgToPPTX renders each SVG to PNG and puts it on its own slide
func SvgToPPTX(svgs [][]byte) ([]byte, error) {
	if len(svgs) == 0 {
		return nil, ErrNoImages
	}
	writer := NewPPTXWriter()
	for i, svg := range svgs {
		w, h, err := commands.SVGSize(svg)
		if err != nil {
			return nil, fmt.Errorf("svg %d: %w", i+1, err)
		}
		renderW, renderH := fitRenderSize(w, h)
		render, err := commands.NewSvgRenderCommand(map[string]any{
			"width":  renderW,
			"height": renderH,
			"format": commands.FormatPNG,
		})
		if err != nil {
			return nil, err
		}
		png, err := render.Execute(svg)
		if err != nil {
			return nil, fmt.Errorf("svg %d: %w", i+1, err)
		}
		if err := writer.AddImageSlide(png); err != nil {
			return nil, fmt.Errorf("svg %d: %w", i+1, err)
		}
	}
	return writer.Bytes()
}

func (p *PPTXWriter) contentTypes() string {
	var overrides strings.Builder
	for i := range p.slides {
		fmt.Fprintf(&overrides, `<Override PartName="/ppt/slides/slide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`, i+1)
	}
	return fmt.Sprintf(contentTypesXML, overrides.String())
}

func (p *PPTXWriter) presentation() string {
	var ids strings.Builder
	for i := range p.slides {
		// rId1 is the master, slides start at rId2
		fmt.Fprintf(&ids, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, i+2)
	}
	return fmt.Sprintf(presentationXML, ids.String(), SlideWidthEMU, SlideHeightEMU)
}

func (p *PPTXWriter) presentationRels() string {
	var rels strings.Builder
	for i := range p.slides {
		fmt.Fprintf(&rels, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide%d.xml"/>`, i+2, i+1)
	}
	themeID := len(p.slides) + 2
	return fmt.Sprintf(presentationRelsXML, rels.String(), themeID)
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

const contentTypesXML = xmlHeader + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Default Extension="png" ContentType="image/png"/>` +
	`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>` +
	`<Override PartName="/ppt/slideMasters/slideMaster1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"/>` +
	`<Override PartName="/ppt/slideLayouts/slideLayout1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"/>` +
	`<Override PartName="/ppt/theme/theme1.xml" ContentType="application/vnd.openxmlformats-officedocument.theme+xml"/>` +
	`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>` +
	`<Override PartName="/docProps/app.xml" ContentType="application/vnd.openxmlformats-officedocument.extended-properties+xml"/>` +
	`%s</Types>`

const rootRels = xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="ppt/presentation.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
	`<Relationship Id="rId3" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/extended-properties" Target="docProps/app.xml"/>` +
	`</Relationships>`

const appXML = xmlHeader + `<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties">` +
	`<Application>imagecube</Application><Slides>%d</Slides></Properties>`

const coreXML = xmlHeader + `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">` +
	`<dc:title>SVG slides</dc:title><dc:creator>imagecube</dc:creator></cp:coreProperties>`

const presentationXML = xmlHeader + `<p:presentation xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">` +
	`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>` +
	`<p:sldIdLst>%s</p:sldIdLst>` +
	`<p:sldSz cx="%d" cy="%d"/><p:notesSz cx="6858000" cy="9144000"/>` +
	`</p:presentation>`

const presentationRelsXML = xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster" Target="slideMasters/slideMaster1.xml"/>` +
	`%s<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/theme" Target="theme/theme1.xml"/>` +
	`</Relationships>`

const emptySpTree = `<p:cSld><p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
	`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>` +
	`</p:spTree></p:cSld>`

const slideMasterXML = xmlHeader + `<p:sldMaster xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">` +
	emptySpTree +
	`<p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>` +
	`<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst>` +
	`</p:sldMaster>`

const slideMasterRels = xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout" Target="../slideLayouts/slideLayout1.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/theme" Target="../theme/theme1.xml"/>` +
	`</Relationships>`

const slideLayoutXML = xmlHeader + `<p:sldLayout xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" type="blank" preserve="1">` +
	emptySpTree +
	`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sldLayout>`

const slideLayoutRels = xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster" Target="../slideMasters/slideMaster1.xml"/>` +
	`</Relationships>`

// slideXML takes the slide number and the picture offset and extent in EMU
const slideXML = xmlHeader + `<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">` +
	`<p:cSld><p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
	`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>` +
	`<p:pic><p:nvPicPr><p:cNvPr id="2" name="Picture %d"/><p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr>` +
	`<p:blipFill><a:blip r:embed="rId2"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>` +
	`<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>` +
	`</p:pic></p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`

const slideRels = xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout" Target="../slideLayouts/slideLayout1.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/image%d.png"/>` +
	`</Relationships>`

const themeXML = xmlHeader + `<a:theme xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" name="Office Theme"><a:themeElements>` +
	`<a:clrScheme name="Office">` +
	`<a:dk1><a:sysClr val="windowText" lastClr="000000"/></a:dk1><a:lt1><a:sysClr val="window" lastClr="FFFFFF"/></a:lt1>` +
	`<a:dk2><a:srgbClr val="44546A"/></a:dk2><a:lt2><a:srgbClr val="E7E6E6"/></a:lt2>` +
	`<a:accent1><a:srgbClr val="4472C4"/></a:accent1><a:accent2><a:srgbClr val="ED7D31"/></a:accent2>` +
	`<a:accent3><a:srgbClr val="A5A5A5"/></a:accent3><a:accent4><a:srgbClr val="FFC000"/></a:accent4>` +
	`<a:accent5><a:srgbClr val="5B9BD5"/></a:accent5><a:accent6><a:srgbClr val="70AD47"/></a:accent6>` +
	`<a:hlink><a:srgbClr val="0563C1"/></a:hlink><a:folHlink><a:srgbClr val="954F72"/></a:folHlink>` +
	`</a:clrScheme>` +
	`<a:fontScheme name="Office"><a:majorFont><a:latin typeface="Calibri Light"/><a:ea typeface=""/><a:cs typeface=""/></a:majorFont>` +
	`<a:minorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:minorFont></a:fontScheme>` +
	`<a:fmtScheme name="Office">` +
	`<a:fillStyleLst><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:fillStyleLst>` +
	`<a:lnStyleLst><a:ln w="6350"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln><a:ln w="12700"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln><a:ln w="19050"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln></a:lnStyleLst>` +
	`<a:effectStyleLst><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle></a:effectStyleLst>` +
	`<a:bgFillStyleLst><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:bgFillStyleLst>` +
	`</a:fmtScheme></a:themeElements></a:theme>`
