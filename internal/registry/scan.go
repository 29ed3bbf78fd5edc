package registry

import (
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/starford/webring/internal/models"
)

// An entry is written as an object constructor:
//
//	{ id: "jane-doe", name: "Jane", connections: ["bob", "carol"], }
//
// which is valid HCL expression syntax, so hclsyntax does the lexing and
// parsing. Comments are real comment tokens, which is what keeps commented
// example entries out of the data.

// block is the byte extent of one top-level { ... } in the managed region.
type block struct {
	start int // offset of '{'
	close int // just past the matching '}'
	end   int // just past the trailing comma, or close when there is none
}

// entry is a scanned block and what it decoded to.
type entry struct {
	block
	member models.Member
	ok     bool // decoded with an id
	dup    bool // id already seen in an earlier entry
}

// scanBlocks returns every balanced top-level { ... } in src that is not
// inside a comment or string. An unterminated block is dropped.
func scanBlocks(src []byte) []block {
	tokens, _ := hclsyntax.LexExpression(src, "", hcl.InitialPos)

	var blocks []block
	depth, open := 0, 0
	for i, tok := range tokens {
		switch tok.Type {
		case hclsyntax.TokenOBrace:
			if depth == 0 {
				open = tok.Range.Start.Byte
			}
			depth++
		case hclsyntax.TokenCBrace:
			if depth == 0 {
				continue
			}
			depth--
			if depth > 0 {
				continue
			}
			b := block{start: open, close: tok.Range.End.Byte, end: tok.Range.End.Byte}
			if i+1 < len(tokens) && tokens[i+1].Type == hclsyntax.TokenComma {
				b.end = tokens[i+1].Range.End.Byte
			}
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// scanEntries decodes every block in region, marking later repeats of an id.
func scanEntries(region []byte) []entry {
	blocks := scanBlocks(region)
	entries := make([]entry, len(blocks))
	seen := make(map[string]struct{}, len(blocks))
	for i, b := range blocks {
		e := entry{block: b}
		e.member, e.ok = decodeBlock(region[b.start:b.close])
		if e.ok {
			if _, dup := seen[e.member.ID]; dup {
				e.ok, e.dup = false, true
			} else {
				seen[e.member.ID] = struct{}{}
			}
		}
		entries[i] = e
	}
	return entries
}

// decodeBlock extracts a member from one block. A block that does not parse
// cleanly, is not an object or has no id is rejected, so it is counted as
// incomplete and never rewritten. Fields that parse but fail to evaluate are
// skipped individually. A repeated key keeps its first value.
func decodeBlock(src []byte) (models.Member, bool) {
	expr, diags := hclsyntax.ParseExpression(src, "", hcl.InitialPos)
	if diags.HasErrors() {
		return models.Member{}, false
	}
	obj, ok := expr.(*hclsyntax.ObjectConsExpr)
	if !ok {
		return models.Member{}, false
	}

	var m models.Member
	for _, item := range obj.Items {
		if item.KeyExpr == nil || item.ValueExpr == nil {
			continue
		}
		key := objectKey(item.KeyExpr)
		val, diags := item.ValueExpr.Value(nil)
		if diags.HasErrors() {
			continue
		}
		if key == fieldConnections {
			if m.Connections == nil {
				m.Connections = stringList(val)
			}
			continue
		}
		dst := stringField(&m, key)
		if dst == nil || *dst != "" {
			continue
		}
		if s, ok := stringValue(val); ok {
			*dst = s
		}
	}
	if m.ID == "" {
		return models.Member{}, false
	}
	return m, true
}

// objectKey returns the literal name of an object key: a bare identifier or
// a quoted string without interpolation.
func objectKey(expr hclsyntax.Expression) string {
	if k, ok := expr.(*hclsyntax.ObjectConsKeyExpr); ok {
		expr = k.Wrapped
	}
	switch e := expr.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(e.Traversal) == 1 {
			return e.Traversal.RootName()
		}
	case *hclsyntax.TemplateExpr:
		if len(e.Parts) == 1 {
			if lit, ok := e.Parts[0].(*hclsyntax.LiteralValueExpr); ok && lit.Val.Type().Equals(cty.String) {
				return lit.Val.AsString()
			}
		}
	}
	return ""
}

func stringValue(val cty.Value) (string, bool) {
	if val.IsNull() || !val.IsWhollyKnown() {
		return "", false
	}
	s, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", false
	}
	return s.AsString(), true
}

func stringList(val cty.Value) []string {
	if val.IsNull() || !val.IsWhollyKnown() {
		return nil
	}
	ty := val.Type()
	if !ty.IsTupleType() && !ty.IsListType() && !ty.IsSetType() {
		return nil
	}
	var out []string
	for it := val.ElementIterator(); it.Next(); {
		_, ev := it.Element()
		if s, ok := stringValue(ev); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
