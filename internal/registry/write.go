package registry

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/starford/webring/internal/models"
)

const defaultIndent = "  "

// rewrite produces a region whose entries are members, in order, keeping all
// text between entry blocks.
//
// Existing entries are walked in document order against members:
//   - same id: rewritten in place, or kept byte for byte when the member
//     is unchanged
//   - id no longer wanted and the next member is new: rewritten in place
//     under the new id (a rename keeps its position)
//   - id no longer wanted otherwise, or already written: removed
//   - id wanted later: new members come first, inserted before it
//
// Members left over are appended after the last entry written, or on their
// own lines before the end marker when there is none.
func rewrite(region []byte, entries []entry, members []models.Member) []byte {
	want := make(map[string]struct{}, len(members))
	for _, m := range members {
		want[m.ID] = struct{}{}
	}
	have := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.ok {
			have[e.member.ID] = struct{}{}
		}
	}
	isNew := func(m models.Member) bool {
		_, ok := have[m.ID]
		return !ok
	}

	var (
		out     bytes.Buffer
		cursor  int
		j       int
		written = make(map[string]struct{}, len(members))
		tail    = -1 // output offset just past the last entry written
		tailInd = defaultIndent
	)
	tailOpen := false // the tail entry was kept verbatim without a trailing comma
	put := func(e entry, m models.Member) {
		ind := indentOf(region, e.start)
		out.Write(region[cursor:e.start])
		if e.member.Equal(m) {
			out.Write(region[e.start:e.end])
			tailOpen = e.end == e.close
		} else {
			out.WriteString(formatEntry(m, ind))
			tailOpen = false
		}
		cursor = e.end
		written[m.ID] = struct{}{}
		tail, tailInd = out.Len(), ind
	}
	insertBefore := func(e entry, m models.Member) {
		ind := indentOf(region, e.start)
		out.Write(region[cursor:e.start])
		out.WriteString(formatEntry(m, ind))
		out.WriteString("\n" + ind)
		cursor = e.start
		written[m.ID] = struct{}{}
	}
	cut := func(e entry) {
		s, t := lineExtent(region, e.start, e.end)
		out.Write(region[cursor:s])
		cursor = t
	}

	for _, e := range entries {
		if e.dup {
			cut(e)
			continue
		}
		if !e.ok {
			continue
		}
		id := e.member.ID
		_, wanted := want[id]
		_, done := written[id]
		switch {
		case j < len(members) && members[j].ID == id:
			put(e, members[j])
			j++
		case !wanted || done:
			if !wanted && j < len(members) && isNew(members[j]) {
				put(e, members[j])
				j++
			} else {
				cut(e)
			}
		default:
			for j < len(members) && isNew(members[j]) {
				insertBefore(e, members[j])
				j++
			}
			if j < len(members) {
				put(e, members[j])
				j++
			} else {
				cut(e)
			}
		}
	}
	out.Write(region[cursor:])

	rest := members[j:]
	if len(rest) == 0 {
		return out.Bytes()
	}
	text := out.Bytes()

	var add strings.Builder
	if tail >= 0 {
		if tailOpen {
			text = splice(text, tail, ",")
			tail++
		}
		for _, m := range rest {
			add.WriteString("\n" + tailInd + formatEntry(m, tailInd))
		}
		return splice(text, pastLineComment(text, tail), add.String())
	}

	// No entries: append on lines of their own just before the end marker,
	// indented like the marker.
	at, ind := len(text), defaultIndent
	if nl := bytes.LastIndexByte(text, '\n'); nl >= 0 && isBlank(text[nl+1:]) {
		at, ind = nl+1, string(text[nl+1:])
	} else {
		add.WriteString("\n")
	}
	for _, m := range rest {
		add.WriteString(ind + formatEntry(m, ind) + "\n")
	}
	return splice(text, at, add.String())
}

func splice(text []byte, at int, s string) []byte {
	out := make([]byte, 0, len(text)+len(s))
	out = append(out, text[:at]...)
	out = append(out, s...)
	return append(out, text[at:]...)
}

// pastLineComment returns the end of the line at pos when the rest of it is
// a // comment, so text appended there does not split an entry from it.
func pastLineComment(text []byte, pos int) int {
	i := pos
	for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
		i++
	}
	if !bytes.HasPrefix(text[i:], []byte("//")) {
		return pos
	}
	if nl := bytes.IndexByte(text[i:], '\n'); nl >= 0 {
		return i + nl
	}
	return len(text)
}

// indentOf returns the whitespace between the start of the line and pos, or
// the default indent when pos is not the first thing on its line.
func indentOf(src []byte, pos int) string {
	i := pos
	for i > 0 && (src[i-1] == ' ' || src[i-1] == '\t') {
		i--
	}
	if i == 0 || src[i-1] == '\n' {
		return string(src[i:pos])
	}
	return defaultIndent
}

// lineExtent widens [s, t) to whole lines when nothing else shares them.
func lineExtent(src []byte, s, t int) (int, int) {
	ls := s
	for ls > 0 && (src[ls-1] == ' ' || src[ls-1] == '\t') {
		ls--
	}
	te := t
	for te < len(src) && (src[te] == ' ' || src[te] == '\t' || src[te] == '\r') {
		te++
	}
	if (ls == 0 || src[ls-1] == '\n') && (te == len(src) || src[te] == '\n') {
		if te < len(src) {
			te++
		}
		return ls, te
	}
	return s, t
}

func isBlank(b []byte) bool {
	return len(bytes.TrimLeft(b, " \t")) == 0
}

// formatEntry renders m as an entry block whose closing brace lines up with
// ind. The first line carries no indent.
func formatEntry(m models.Member, ind string) string {
	var b strings.Builder
	b.WriteString("{\n")
	field := func(name, value string, required bool) {
		if value == "" && !required {
			return
		}
		fmt.Fprintf(&b, "%s  %s: %s,\n", ind, name, quote(value))
	}
	field(fieldID, m.ID, true)
	field(fieldName, m.Name, true)
	field(fieldWebsite, m.Website, true)
	field(fieldProgram, m.Program, false)
	field(fieldYear, m.Year, false)
	field(fieldProfilePic, m.ProfilePic, false)
	field(fieldInstagram, m.Instagram, false)
	field(fieldTwitter, m.Twitter, false)
	field(fieldLinkedIn, m.LinkedIn, false)
	if len(m.Connections) > 0 {
		quoted := make([]string, len(m.Connections))
		for i, c := range m.Connections {
			quoted[i] = quote(c)
		}
		fmt.Fprintf(&b, "%s  %s: [%s],\n", ind, fieldConnections, strings.Join(quoted, ", "))
	}
	b.WriteString(ind + "},")
	return b.String()
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func quote(s string) string {
	return `"` + escaper.Replace(s) + `"`
}
