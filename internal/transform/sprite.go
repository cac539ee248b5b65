package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

const (
	svgNS   = "http://www.w3.org/2000/svg"
	xlinkNS = "http://www.w3.org/1999/xlink"

	// stackStyle shows only the symbol addressed by the URL fragment.
	stackStyle = ":root>svg{display:none}:root>svg:target{display:block}"
)

// SpriteBuilder assembles a stack-mode SVG sprite: every input becomes a
// nested <svg> with an id, hidden unless it is the :target of the URL, so
// sprites.svg#name renders a single icon.
type SpriteBuilder struct {
	doc  *etree.Document
	root *etree.Element
	ids  map[string]bool
}

// NewSpriteBuilder returns an empty sprite.
func NewSpriteBuilder() *SpriteBuilder {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("svg")
	root.CreateAttr("xmlns", svgNS)
	root.CreateAttr("xmlns:xlink", xlinkNS)
	root.CreateElement("style").SetText(stackStyle)
	return &SpriteBuilder{doc: doc, root: root, ids: map[string]bool{}}
}

// SpriteID derives a symbol id from a path relative to the sprite source
// directory: "icons/arrow.svg" becomes "icons--arrow".
func SpriteID(rel string) string {
	rel = strings.TrimSuffix(rel, ".svg")
	return strings.ReplaceAll(rel, "/", "--")
}

// Add parses data as an SVG document and appends it under id. Invalid
// documents and duplicate ids are rejected without changing the sprite.
func (b *SpriteBuilder) Add(id string, data []byte) error {
	if b.ids[id] {
		return fmt.Errorf("duplicate sprite id %q", id)
	}

	src := etree.NewDocument()
	if err := src.ReadFromBytes(data); err != nil {
		return fmt.Errorf("parse svg: %w", err)
	}
	svg := src.Root()
	if svg == nil || svg.Tag != "svg" {
		return fmt.Errorf("not an svg document")
	}

	el := svg.Copy()
	el.Space = ""
	el.RemoveAttr("xmlns")
	el.RemoveAttr("xmlns:xlink")
	el.RemoveAttr("id")
	if el.SelectAttr("viewBox") == nil {
		w, h := el.SelectAttrValue("width", ""), el.SelectAttrValue("height", "")
		if w != "" && h != "" {
			el.CreateAttr("viewBox", "0 0 "+strings.TrimSuffix(w, "px")+" "+strings.TrimSuffix(h, "px"))
		}
	}
	el.CreateAttr("id", id)
	namespaceIDs(el, id)

	b.root.AddChild(el)
	b.ids[id] = true
	return nil
}

// urlRefRe matches local references such as url(#g) or url('#g').
var urlRefRe = regexp.MustCompile(`url\(\s*['"]?#([^'")\s]+)['"]?\s*\)`)

// namespaceIDs prefixes every id below el with "<prefix>-" and rewrites the
// references to them, so two icons defining the same gradient id keep
// pointing at their own definitions.
func namespaceIDs(el *etree.Element, prefix string) {
	descendants := el.FindElements(".//*")
	renamed := map[string]string{}
	for _, d := range descendants {
		if a := d.SelectAttr("id"); a != nil && a.Value != "" {
			renamed[a.Value] = prefix + "-" + a.Value
			a.Value = renamed[a.Value]
		}
	}
	if len(renamed) == 0 {
		return
	}

	rewrite := func(v string) string {
		return urlRefRe.ReplaceAllStringFunc(v, func(m string) string {
			old := urlRefRe.FindStringSubmatch(m)[1]
			if n, ok := renamed[old]; ok {
				return "url(#" + n + ")"
			}
			return m
		})
	}
	for _, d := range append([]*etree.Element{el}, descendants...) {
		for i := range d.Attr {
			a := &d.Attr[i]
			if a.Key == "href" && strings.HasPrefix(a.Value, "#") {
				if n, ok := renamed[a.Value[1:]]; ok {
					a.Value = "#" + n
				}
				continue
			}
			if a.Key != "id" && strings.Contains(a.Value, "url(") {
				a.Value = rewrite(a.Value)
			}
		}
		if d.Tag == "style" {
			d.SetText(rewrite(d.Text()))
		}
	}
}

// Len reports how many symbols have been added.
func (b *SpriteBuilder) Len() int { return len(b.ids) }

// Bytes serializes and minifies the sprite.
func (b *SpriteBuilder) Bytes() ([]byte, error) {
	raw, err := b.doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize sprite: %w", err)
	}
	out, err := MinifySVG(raw)
	if err != nil {
		return nil, fmt.Errorf("minify sprite: %w", err)
	}
	return out, nil
}
