package transform

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
)

// ///////////////////////////////////////////////
// Sprite
// ///////////////////////////////////////////////

func TestSpriteID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"arrow.svg", "arrow"},
		{"icons/arrow.svg", "icons--arrow"},
		{"a/b/c.svg", "a--b--c"},
	}
	for _, tt := range tests {
		if got := SpriteID(tt.in); got != tt.want {
			t.Errorf("SpriteID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSpriteBuilder(t *testing.T) {
	b := NewSpriteBuilder()

	inputs := []struct {
		id   string
		data string
	}{
		{"arrow", `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><path d="M0 0L24 12L0 24z"/></svg>`},
		{"icons--dot", `<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg" width="16px" height="16px" id="old"><circle cx="8" cy="8" r="4"/></svg>`},
	}
	for _, in := range inputs {
		if err := b.Add(in.id, []byte(in.data)); err != nil {
			t.Fatalf("Add(%q): %v", in.id, err)
		}
	}
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}

	out, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(out); err != nil {
		t.Fatalf("sprite is not well-formed XML: %v\n%s", err, out)
	}
	root := doc.Root()
	if root == nil || root.Tag != "svg" {
		t.Fatalf("root element = %v, want svg", root)
	}

	var ids []string
	viewBoxes := map[string]string{}
	for _, child := range root.ChildElements() {
		if child.Tag != "svg" {
			continue
		}
		id := child.SelectAttrValue("id", "")
		ids = append(ids, id)
		viewBoxes[id] = child.SelectAttrValue("viewBox", "")
	}
	if strings.Join(ids, ",") != "arrow,icons--dot" {
		t.Errorf("symbol ids = %v, want [arrow icons--dot]", ids)
	}
	if viewBoxes["icons--dot"] != "0 0 16 16" {
		t.Errorf("derived viewBox = %q, want %q", viewBoxes["icons--dot"], "0 0 16 16")
	}
	if !strings.Contains(string(out), ":target") {
		t.Errorf("stack style missing: %s", out)
	}
}

func TestSpriteBuilder_Rejects(t *testing.T) {
	b := NewSpriteBuilder()
	if err := b.Add("ok", []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		id   string
		data string
	}{
		{"malformed", "bad", `<svg><path></svg>`},
		{"not svg", "html", `<html></html>`},
		{"empty", "empty", ``},
		{"duplicate", "ok", `<svg xmlns="http://www.w3.org/2000/svg"/>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.Add(tt.id, []byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d after rejected adds, want 1", b.Len())
	}
}

const gradientIcon = `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" viewBox="0 0 10 10">` +
	`<defs><linearGradient id="g"><stop offset="0" stop-color="#123456"/></linearGradient><path id="p" d="M0 0h10v10z"/></defs>` +
	`<rect width="10" height="10" fill="url(#g)"/><use xlink:href="#p"/><use href="#p" style="fill: url('#g')"/>` +
	`<circle r="1" fill="url(#external)"/></svg>`

func TestNamespaceIDs(t *testing.T) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(gradientIcon); err != nil {
		t.Fatal(err)
	}
	root := doc.Root()
	root.CreateAttr("id", "a")
	namespaceIDs(root, "a")

	if got := root.SelectAttrValue("id", ""); got != "a" {
		t.Errorf("icon id = %q, want unchanged", got)
	}
	for _, tt := range []struct{ path, attr, want string }{
		{"//linearGradient", "id", "a-g"},
		{"//defs/path", "id", "a-p"},
		{"//rect", "fill", "url(#a-g)"},
		{"//use[1]", "xlink:href", "#a-p"},
		{"//use[2]", "href", "#a-p"},
		{"//use[2]", "style", "fill: url(#a-g)"},
		{"//circle", "fill", "url(#external)"},
	} {
		el := doc.FindElement(tt.path)
		if el == nil {
			t.Fatalf("%s not found", tt.path)
		}
		if got := el.SelectAttrValue(tt.attr, ""); got != tt.want {
			t.Errorf("%s @%s = %q, want %q", tt.path, tt.attr, got, tt.want)
		}
	}
}

func TestSpriteBuilder_NamespacesInternalIDs(t *testing.T) {
	b := NewSpriteBuilder()
	for _, id := range []string{"a", "b"} {
		if err := b.Add(id, []byte(gradientIcon)); err != nil {
			t.Fatalf("Add(%q): %v", id, err)
		}
	}
	out, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(out); err != nil {
		t.Fatalf("sprite is not well-formed XML: %v\n%s", err, out)
	}
	seen := map[string]bool{}
	for _, el := range doc.FindElements("//*[@id]") {
		id := el.SelectAttrValue("id", "")
		if seen[id] {
			t.Errorf("duplicate id %q in sprite: %s", id, out)
		}
		seen[id] = true
	}
	for _, id := range []string{"a", "b", "a-g", "b-g"} {
		if !seen[id] {
			t.Errorf("missing id %q in sprite: %s", id, out)
		}
	}
	for _, ref := range []string{"url(#a-g)", "url(#b-g)"} {
		if !strings.Contains(string(out), ref) {
			t.Errorf("sprite lacks reference %s: %s", ref, out)
		}
	}
}
