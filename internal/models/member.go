// Package models defines the domain types for the webring directory.
package models

import (
	"errors"
	"regexp"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// SlugPattern matches a member id: lowercase alphanumerics and hyphens with
// at least one alphanumeric. Every non-empty Slugify result with a letter or
// digit matches it.
var SlugPattern = regexp.MustCompile(`^[a-z0-9-]*[a-z0-9][a-z0-9-]*$`)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonSlugRe    = regexp.MustCompile(`[^a-z0-9-]`)
)

// errTemplateSequence is returned for values the registry grammar would read
// as interpolation.
var errTemplateSequence = errors.New("must not contain ${ or %{")

// Member is one promoted directory entry. Empty optional strings are absent.
type Member struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Website     string   `json:"website"`
	Program     string   `json:"program,omitempty"`
	Year        string   `json:"year,omitempty"`
	ProfilePic  string   `json:"profilePic,omitempty"`
	Instagram   string   `json:"instagram,omitempty"`
	Twitter     string   `json:"twitter,omitempty"`
	LinkedIn    string   `json:"linkedin,omitempty"`
	Connections []string `json:"connections,omitempty"`
}

// Normalize trims every field and collapses an empty connection list to nil.
func (m Member) Normalize() Member {
	m.ID = strings.TrimSpace(m.ID)
	m.Name = strings.TrimSpace(m.Name)
	m.Website = strings.TrimSpace(m.Website)
	m.Program = strings.TrimSpace(m.Program)
	m.Year = strings.TrimSpace(m.Year)
	m.ProfilePic = strings.TrimSpace(m.ProfilePic)
	m.Instagram = strings.TrimSpace(m.Instagram)
	m.Twitter = strings.TrimSpace(m.Twitter)
	m.LinkedIn = strings.TrimSpace(m.LinkedIn)
	m.Connections = cleanTokens(m.Connections)
	return m
}

// Equal reports whether m and o hold the same values.
func (m Member) Equal(o Member) bool {
	return m.ID == o.ID && m.Name == o.Name && m.Website == o.Website &&
		m.Program == o.Program && m.Year == o.Year && m.ProfilePic == o.ProfilePic &&
		m.Instagram == o.Instagram && m.Twitter == o.Twitter && m.LinkedIn == o.LinkedIn &&
		slices.Equal(m.Connections, o.Connections)
}

// Validate checks required fields and the id shape.
func (m Member) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required, validation.Match(SlugPattern).Error("must be a lowercase slug of letters, digits and hyphens")),
		validation.Field(&m.Name, validation.Required, validation.By(noTemplate)),
		validation.Field(&m.Website, validation.Required, validation.By(noTemplate)),
		validation.Field(&m.Program, validation.By(noTemplate)),
		validation.Field(&m.Year, validation.By(noTemplate)),
		validation.Field(&m.ProfilePic, validation.By(noTemplate)),
		validation.Field(&m.Instagram, validation.By(noTemplate)),
		validation.Field(&m.Twitter, validation.By(noTemplate)),
		validation.Field(&m.LinkedIn, validation.By(noTemplate)),
		validation.Field(&m.Connections, validation.Each(validation.By(noTemplate))),
	)
}

// Submission is one pending application resident in the ledger.
type Submission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Website     string    `json:"website"`
	Program     string    `json:"program,omitempty"`
	Year        string    `json:"year,omitempty"`
	Instagram   string    `json:"instagram,omitempty"`
	Twitter     string    `json:"twitter,omitempty"`
	LinkedIn    string    `json:"linkedin,omitempty"`
	Connections []string  `json:"connections,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Member converts a submission into the registry entry it promotes to.
func (s Submission) Member() Member {
	return Member{
		ID:          s.ID,
		Name:        s.Name,
		Website:     s.Website,
		Program:     s.Program,
		Year:        s.Year,
		Instagram:   s.Instagram,
		Twitter:     s.Twitter,
		LinkedIn:    s.LinkedIn,
		Connections: s.Connections,
	}
}

// SubmissionInput is the public intake payload. Connections is comma-separated.
type SubmissionInput struct {
	Name        string `json:"name"`
	Website     string `json:"website"`
	Program     string `json:"program,omitempty"`
	Year        string `json:"year,omitempty"`
	Instagram   string `json:"instagram,omitempty"`
	Twitter     string `json:"twitter,omitempty"`
	LinkedIn    string `json:"linkedin,omitempty"`
	Connections string `json:"connections,omitempty"`
}

// Validate checks that name and website are present after trimming.
func (in SubmissionInput) Validate() error {
	name := strings.TrimSpace(in.Name)
	website := strings.TrimSpace(in.Website)
	return validation.Errors{
		"name":    validation.Validate(name, validation.Required.Error("name is required"), validation.By(noTemplate)),
		"website": validation.Validate(website, validation.Required.Error("website is required"), validation.By(noTemplate)),
	}.Filter()
}

// Submission builds the ledger record for this input.
func (in SubmissionInput) Submission(at time.Time) Submission {
	name := strings.TrimSpace(in.Name)
	return Submission{
		ID:          Slugify(name),
		Name:        name,
		Website:     strings.TrimSpace(in.Website),
		Program:     strings.TrimSpace(in.Program),
		Year:        strings.TrimSpace(in.Year),
		Instagram:   strings.TrimSpace(in.Instagram),
		Twitter:     strings.TrimSpace(in.Twitter),
		LinkedIn:    strings.TrimSpace(in.LinkedIn),
		Connections: ParseConnections(in.Connections),
		SubmittedAt: at.UTC(),
	}
}

// Slugify derives a member id from a display name: lowercase, whitespace runs
// become single hyphens, anything outside [a-z0-9-] is dropped.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = whitespaceRe.ReplaceAllString(s, "-")
	return nonSlugRe.ReplaceAllString(s, "")
}

// ParseConnections splits a comma-separated list, trimming and dropping empties.
func ParseConnections(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return cleanTokens(strings.Split(raw, ","))
}

func cleanTokens(in []string) []string {
	var out []string
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func noTemplate(value any) error {
	s, _ := value.(string)
	if strings.Contains(s, "${") || strings.Contains(s, "%{") {
		return errTemplateSequence
	}
	return nil
}
