// Package registry reads and rewrites the member registry document and
// exposes the registry store built on it.
//
// The document is source text with a managed region between two sentinel
// comment lines. Bytes outside the region are never touched. Inside it only
// entry blocks are rewritten; comments, blank lines and blocks that do not
// decode are carried over as they are.
package registry

import (
	"bytes"
	"fmt"

	"github.com/starford/webring/internal/apperr"
	"github.com/starford/webring/internal/models"
)

// Default sentinel markers.
const (
	DefaultBeginMarker = "// ADD YOUR ENTRY BELOW THIS LINE"
	DefaultEndMarker   = "// ADD YOUR ENTRY ABOVE THIS LINE"
)

// ErrMissingMarkers is returned by Decode and Encode when the document does
// not contain the begin marker followed by the end marker.
var ErrMissingMarkers = fmt.Errorf("%w: registry sentinel markers not found", apperr.ErrStorage)

// EntryTemplate is a commented example entry in the registry format.
const EntryTemplate = `  // {
  //   id: "john-doe",
  //   name: "John Doe",
  //   website: "https://johndoe.com",
  //   program: "Computer Science",
  //   year: "2026",
  //   profilePic: "/photos/john-doe.jpg",
  //   instagram: "https://instagram.com/johndoe",
  //   twitter: "https://x.com/johndoe",
  //   linkedin: "https://linkedin.com/in/johndoe",
  //   connections: ["jane-smith", "bob-wilson"],
  // },
`

const (
	fieldID          = "id"
	fieldName        = "name"
	fieldWebsite     = "website"
	fieldProgram     = "program"
	fieldYear        = "year"
	fieldProfilePic  = "profilePic"
	fieldInstagram   = "instagram"
	fieldTwitter     = "twitter"
	fieldLinkedIn    = "linkedin"
	fieldConnections = "connections"
)

// Codec converts between a registry document and its members.
// It implements collection.Format[models.Member].
type Codec struct {
	begin string
	end   string
}

// NewCodec creates a codec for the given markers; empty values fall back to
// the defaults.
func NewCodec(begin, end string) *Codec {
	if begin == "" {
		begin = DefaultBeginMarker
	}
	if end == "" {
		end = DefaultEndMarker
	}
	return &Codec{begin: begin, end: end}
}

// NewDocument returns a fresh registry document holding no members and a
// commented example entry.
func (c *Codec) NewDocument() []byte {
	return []byte("export const members = [\n  " + c.begin + "\n\n" +
		"  // Example entry (copy this as a template):\n" + EntryTemplate +
		"\n  " + c.end + "\n];\n\nexport default members;\n")
}

// Report describes one decode pass in detail.
type Report struct {
	Members []models.Member
	// Blocks is the number of uncommented { ... } blocks found.
	Blocks int
	// Incomplete counts blocks dropped because they had no id or were not objects.
	Incomplete int
	// Duplicates lists ids that appeared again after their first entry.
	Duplicates []string
}

// Scan decodes the managed region and reports what was dropped.
func (c *Codec) Scan(doc []byte) (Report, error) {
	lo, hi, err := c.region(doc)
	if err != nil {
		return Report{}, err
	}
	var rep Report
	for _, e := range scanEntries(doc[lo:hi]) {
		rep.Blocks++
		switch {
		case e.dup:
			rep.Duplicates = append(rep.Duplicates, e.member.ID)
		case !e.ok:
			rep.Incomplete++
		default:
			rep.Members = append(rep.Members, e.member)
		}
	}
	return rep, nil
}

// Decode returns the members in document order. Later entries repeating an
// earlier id are dropped.
func (c *Codec) Decode(doc []byte) ([]models.Member, error) {
	rep, err := c.Scan(doc)
	if err != nil {
		return nil, err
	}
	return rep.Members, nil
}

// Encode rewrites the entries in the managed region of doc so that they
// decode to members, in order. Entries whose member is unchanged keep their
// bytes, inline comments included. Changed entries are re-rendered in place
// in the canonical layout, which drops comments inside the braces. New ones
// are inserted where their neighbours are, and removed ones are cut out with
// their line. Later duplicates of an id are dropped. Blocks that fail to
// parse are left untouched.
func (c *Codec) Encode(doc []byte, members []models.Member) ([]byte, error) {
	lo, hi, err := c.region(doc)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m.ID == "" {
			return nil, fmt.Errorf("%w: member without id", apperr.ErrInvalidInput)
		}
		if _, dup := seen[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate member id %q", apperr.ErrConflict, m.ID)
		}
		seen[m.ID] = struct{}{}
	}

	region := doc[lo:hi]
	rewritten := rewrite(region, scanEntries(region), members)

	var b bytes.Buffer
	b.Grow(lo + len(rewritten) + len(doc) - hi)
	b.Write(doc[:lo])
	b.Write(rewritten)
	b.Write(doc[hi:])
	return b.Bytes(), nil
}

// region returns the byte offsets of the managed region: just after the
// begin marker up to the first end marker that follows it.
func (c *Codec) region(doc []byte) (int, int, error) {
	i := bytes.Index(doc, []byte(c.begin))
	if i < 0 {
		return 0, 0, ErrMissingMarkers
	}
	lo := i + len(c.begin)
	j := bytes.Index(doc[lo:], []byte(c.end))
	if j < 0 {
		return 0, 0, ErrMissingMarkers
	}
	return lo, lo + j, nil
}

// stringField maps a key to the member field it sets.
func stringField(m *models.Member, key string) *string {
	switch key {
	case fieldID:
		return &m.ID
	case fieldName:
		return &m.Name
	case fieldWebsite:
		return &m.Website
	case fieldProgram:
		return &m.Program
	case fieldYear:
		return &m.Year
	case fieldProfilePic:
		return &m.ProfilePic
	case fieldInstagram:
		return &m.Instagram
	case fieldTwitter:
		return &m.Twitter
	case fieldLinkedIn:
		return &m.LinkedIn
	}
	return nil
}
