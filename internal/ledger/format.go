// Package ledger persists pending submissions as a JSON array in arrival order.
package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/starford/webring/internal/apperr"
	"github.com/starford/webring/internal/models"
)

// emptyDocument is what a missing ledger reads as.
var emptyDocument = []byte("[]")

// Format is the JSON array encoding of the ledger.
// It implements collection.Format[models.Submission].
type Format struct{}

// Decode parses the ledger. Blank documents hold no submissions; anything
// that is not a JSON array of submissions is a storage failure, never an
// empty ledger, so a corrupt file is not silently overwritten.
func (Format) Decode(doc []byte) ([]models.Submission, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, nil
	}
	var subs []models.Submission
	if err := json.Unmarshal(doc, &subs); err != nil {
		return nil, fmt.Errorf("%w: ledger is not a JSON array of submissions: %w", apperr.ErrStorage, err)
	}
	return subs, nil
}

// Encode writes the ledger with two-space indentation.
func (Format) Encode(_ []byte, subs []models.Submission) ([]byte, error) {
	if subs == nil {
		subs = []models.Submission{}
	}
	out, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode ledger: %w", apperr.ErrStorage, err)
	}
	return out, nil
}
