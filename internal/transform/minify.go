// Package transform adapts the third-party libraries that do the actual
// asset work (minifiers, the Sass compiler, the bundler, image encoders and
// the sprite assembler) to a uniform bytes-in, bytes-out shape. Nothing in
// this package touches the output directory; tasks decide what to write.
package transform

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"
	"github.com/tdewolff/parse/v2"
	cssparse "github.com/tdewolff/parse/v2/css"
)

// Media types registered with the shared minifier.
const (
	mediaHTML = "text/html"
	mediaCSS  = "text/css"
	mediaJS   = "application/javascript"
	mediaSVG  = "image/svg+xml"
)

var (
	minifierOnce sync.Once
	minifier     *minify.M
)

// shared returns the process-wide minifier. A configured *minify.M is safe
// for concurrent use.
func shared() *minify.M {
	minifierOnce.Do(func() {
		m := minify.New()
		m.Add(mediaHTML, &html.Minifier{
			KeepDocumentTags:    true,
			KeepEndTags:         true,
			KeepQuotes:          true,
			KeepDefaultAttrVals: true,
		})
		m.AddFunc(mediaCSS, css.Minify)
		m.AddFunc(mediaJS, js.Minify)
		m.AddFunc("text/javascript", js.Minify)
		m.AddFunc(mediaSVG, svg.Minify)
		minifier = m
	})
	return minifier
}

func minifyAs(mediatype string, src []byte) ([]byte, error) {
	out, err := shared().Bytes(mediatype, src)
	if err != nil {
		return nil, fmt.Errorf("minify %s: %w", mediatype, err)
	}
	return out, nil
}

// MinifyHTML removes comments and collapses whitespace. Document and end
// tags and attribute quotes are kept.
func MinifyHTML(src []byte) ([]byte, error) { return minifyAs(mediaHTML, src) }

// MinifyCSS minifies a stylesheet, dropping every comment. Important
// comments (/*! ... */) go too; the minifier alone would keep them.
func MinifyCSS(src []byte) ([]byte, error) {
	stripped, err := stripCSSComments(src)
	if err != nil {
		return nil, err
	}
	return minifyAs(mediaCSS, stripped)
}

// stripCSSComments removes comment tokens. Two name-like tokens that a
// comment kept apart are separated by a space so they do not merge.
func stripCSSComments(src []byte) ([]byte, error) {
	l := cssparse.NewLexer(parse.NewInputBytes(src))
	out := make([]byte, 0, len(src))
	dropped := false
	for {
		tt, data := l.Next()
		switch tt {
		case cssparse.ErrorToken:
			if err := l.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("lex css: %w", err)
			}
			return out, nil
		case cssparse.CommentToken:
			dropped = true
			continue
		}
		if dropped && len(out) > 0 && len(data) > 0 && isNameByte(out[len(out)-1]) && isNameByte(data[0]) {
			out = append(out, ' ')
		}
		dropped = false
		out = append(out, data...)
	}
}

func isNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '-' || c == '_' || c >= 0x80
}

// MinifyJS minifies a script.
func MinifyJS(src []byte) ([]byte, error) { return minifyAs(mediaJS, src) }

// MinifySVG minifies an SVG document.
func MinifySVG(src []byte) ([]byte, error) { return minifyAs(mediaSVG, src) }
