package mcpserver

import "github.com/starford/webring/internal/registry"

// EntryFormat describes how a member entry is written in the registry
// document, for consumers preparing submissions or edits.
const EntryFormat = `# Webring Entry Format

Members live in the registry document between two marker comments:

` + "```" + `
` + registry.DefaultBeginMarker + `
...entries...
` + registry.DefaultEndMarker + `
` + "```" + `

Each entry is an object with quoted string values. The template below is commented
out the way it appears in a fresh document; drop the "// " prefixes to use it:

` + "```" + `
` + registry.EntryTemplate + `
` + "```" + `

## Fields

| Field | Required | Notes |
|---|---|---|
| id | yes | lowercase letters, digits and hyphens; derived from the name on submission ("Jane Doe" becomes "jane-doe") |
| name | yes | display name |
| website | yes | personal site URL |
| program | no | course or program |
| year | no | graduation year, as a string |
| profilePic | no | usually ` + "`/photos/<id>.<ext>`" + ` from the upload_photo tool |
| instagram, twitter, linkedin | no | handles or profile URLs |
| connections | no | list of member ids this member links to |

## Rules

1. Empty optional fields are omitted, never written as "".
2. Values must not contain ` + "`${`" + ` or ` + "`%{`" + `.
3. ids are unique across the registry.
4. Comments (` + "`//`" + ` and ` + "`/* */`" + `) are ignored, so a commented-out entry is not a member.
5. Submissions are not members until a moderator promotes them with resolve_submission.
`
