package classify

import (
	"time"

	"github.com/google/uuid"

	"github.com/grape4ever/thesis-archiver/constants"
)

// DocType is the closed set of document categories the classifier emits.
type DocType string

const (
	DocTypeThesis  DocType = "thesis"
	DocTypeReport  DocType = "report"
	DocTypeKtbg    DocType = "ktbg"
	DocTypeGrade   DocType = "grade"
	DocTypeUnknown DocType = "unknown"
)

// Deferred reports whether documents of this type are batched per student
// instead of renamed individually.
func (t DocType) Deferred() bool {
	_, ok := constants.DeferredTypes[string(t)]
	return ok
}

// Code returns the institutional short code for the type, or "" when the
// type has no filename code (unknown).
func (t DocType) Code() string {
	return constants.TypeCodes[string(t)]
}

// Record is the outcome of classifying one input file. Records are never
// mutated after creation; reclassification produces a new record.
type Record struct {
	ID               uuid.UUID `json:"id"`
	Type             DocType   `json:"type"`
	StudentID        string    `json:"student_id,omitempty"`
	Title            string    `json:"title,omitempty"`
	SignaturePresent *bool     `json:"signature_present,omitempty"`
	SourcePath       string    `json:"source_path"`
	CreatedAt        time.Time `json:"created_at"`
}
