package transform

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// GroupMediaQueries merges top-level @media blocks with identical queries
// and moves them after all other rules, in the order each query was first
// seen. Rules inside a group keep their relative order. Nested at-rules
// and blocks inside @supports or @layer are left where they are.
func GroupMediaQueries(src []byte) ([]byte, error) {
	p := css.NewParser(parse.NewInputBytes(src), false)

	var out bytes.Buffer
	groups := map[string]*bytes.Buffer{}
	var order []string

	var cur *bytes.Buffer // set while inside a top-level @media block
	depth := 0            // open at-rule blocks

	for {
		gt, _, data := p.Next()
		if gt == css.ErrorGrammar {
			if p.HasParseError() {
				return nil, fmt.Errorf("parse css: %w", p.Err())
			}
			if err := p.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("parse css: %w", err)
			}
			break
		}

		dst := &out
		if cur != nil {
			dst = cur
		}

		switch gt {
		case css.BeginAtRuleGrammar:
			if depth == 0 && string(data) == "@media" {
				query := string(bytes.TrimSpace(tokenBytes(p.Values())))
				g, ok := groups[query]
				if !ok {
					g = &bytes.Buffer{}
					groups[query] = g
					order = append(order, query)
				}
				cur = g
				depth++
				continue
			}
			depth++
			dst.Write(data)
			dst.Write(tokenBytes(p.Values()))
			dst.WriteByte('{')
		case css.EndAtRuleGrammar:
			depth--
			if depth == 0 && cur != nil {
				cur = nil
				continue
			}
			dst.WriteByte('}')
		case css.AtRuleGrammar:
			dst.Write(data)
			dst.Write(tokenBytes(p.Values()))
			dst.WriteByte(';')
		case css.BeginRulesetGrammar:
			dst.Write(tokenBytes(p.Values()))
			dst.WriteByte('{')
		case css.EndRulesetGrammar:
			dst.WriteByte('}')
		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			dst.Write(data)
			dst.WriteByte(':')
			dst.Write(tokenBytes(p.Values()))
			dst.WriteByte(';')
		case css.CommentGrammar, css.TokenGrammar:
			dst.Write(data)
		}
	}

	for _, q := range order {
		out.WriteString("@media ")
		out.WriteString(q)
		out.WriteByte('{')
		out.Write(groups[q].Bytes())
		out.WriteByte('}')
	}
	return out.Bytes(), nil
}

func tokenBytes(tokens []css.Token) []byte {
	var b []byte
	for _, t := range tokens {
		b = append(b, t.Data...)
	}
	return b
}
