package core

import (
	"strings"
	"time"
)

// Issuance is one checkout of an asset to a recipient. ReturnDate is nil while
// the asset is out.
type Issuance struct {
	ID            int        `json:"id"`
	AssetID       int        `json:"asset_id"`
	Recipient     string     `json:"recipient"`
	IssueDate     time.Time  `json:"issue_date"`
	ReturnDate    *time.Time `json:"return_date,omitempty"`
	IssueComment  string     `json:"issue_comment"`
	ReturnComment string     `json:"return_comment"`
}

// IsActive reports whether the issuance has not been returned.
func (i *Issuance) IsActive() bool {
	return i.ReturnDate == nil
}

// escapeLike quotes LIKE metacharacters so s matches literally inside a
// pattern using the default backslash escape.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
