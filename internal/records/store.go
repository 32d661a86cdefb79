package records

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/grape4ever/thesis-archiver/internal/classify"
	"github.com/grape4ever/thesis-archiver/internal/common"
)

// recordSchema guards the on-disk record format. Rename and
// reconciliation read these files back, possibly from a different process
// generation, so a malformed file should fail loudly at load time.
const recordSchema = `{
	"type": "object",
	"properties": {
		"id": {"type": "string", "minLength": 36, "maxLength": 36},
		"type": {"type": "string", "enum": ["thesis", "report", "ktbg", "grade", "unknown"]},
		"student_id": {"type": "string", "pattern": "^[0-9]+$"},
		"title": {"type": "string"},
		"signature_present": {"type": "boolean"},
		"source_path": {"type": "string"},
		"created_at": {"type": "string"}
	},
	"required": ["id", "type", "source_path", "created_at"],
	"additionalProperties": false
}`

var compiledSchema = jsonschema.MustCompileString("record.schema.json", recordSchema)

// Store persists one JSON file per classification event under a
// per-student directory, mirroring the results layout the rest of the
// institution's tooling expects.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// Save validates the record against the schema and writes it to
// root/<studentID>/<type>_<timestamp>.json, returning the path. Records
// without a student id cannot be filed.
func (s *Store) Save(rec classify.Record) (string, error) {
	if rec.StudentID == "" {
		return "", common.NewAppError("RECORD_NO_ID", "cannot save record without a student id", common.ErrInvalidInput)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", fmt.Errorf("reparse record: %w", err)
	}
	if err := compiledSchema.Validate(raw); err != nil {
		return "", fmt.Errorf("record does not match schema: %w", err)
	}

	dir := filepath.Join(s.root, rec.StudentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create record dir: %w", err)
	}

	stamp := rec.CreatedAt
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", rec.Type, stamp.Format("20060102_150405")))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	return path, nil
}

// Load reads a record file back, validating it against the schema first.
func (s *Store) Load(path string) (classify.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return classify.Record{}, fmt.Errorf("read record: %w", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return classify.Record{}, fmt.Errorf("parse record: %w", err)
	}
	if err := compiledSchema.Validate(raw); err != nil {
		return classify.Record{}, fmt.Errorf("record does not match schema: %w", err)
	}

	var rec classify.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return classify.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
