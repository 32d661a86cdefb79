package ledger

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

// OutputKind names a filename column in the ledger.
type OutputKind string

const (
	OutputThesis  OutputKind = "thesis"
	OutputSupport OutputKind = "support"
	OutputReport  OutputKind = "report"
)

// Columns maps logical fields to workbook column letters. Column identity
// is configuration, not structure; the defaults match the registrar's
// current workbook.
type Columns struct {
	StudentID   string
	ThesisTitle string
	ThesisFile  string
	SupportFile string
	ReportFile  string
}

func DefaultColumns() Columns {
	return Columns{
		StudentID:   "I",
		ThesisTitle: "U",
		ThesisFile:  "Y",
		SupportFile: "Z",
		ReportFile:  "AA",
	}
}

// TitleConflictError is the run-fatal outcome of the first title check
// failing: either no ledger row exists for the student, or the extracted
// title disagrees with the reference title. It aborts the whole run
// because a first-document conflict usually means a systemic problem
// (wrong workbook, wrong academic year), not a bad scan.
type TitleConflictError struct {
	StudentID      string
	LedgerTitle    string
	CandidateTitle string
	RowMissing     bool
}

func (e *TitleConflictError) Error() string {
	if e.RowMissing {
		return fmt.Sprintf("strict title check: no ledger row for student %s", e.StudentID)
	}
	return fmt.Sprintf("strict title check: student %s title mismatch: ledger %q vs extracted %q",
		e.StudentID, e.LedgerTitle, e.CandidateTitle)
}

// Ledger wraps the authoritative student workbook for the lifetime of one
// run. It never creates or deletes rows; it only reads the id and title
// columns and writes filename cells. All operations are serialized: every
// save is a full-file rewrite.
//
// The strict title policy is two-phase. While Unverified, a failed check
// is fatal for the run; the first success transitions the ledger to
// Verified, after which failures are soft (logged, document skipped).
// The flag is per run, not per student, which makes the first document a
// canary for the whole batch.
type Ledger struct {
	path   string
	f      *excelize.File
	sheet  string
	cols   Columns
	logger *slog.Logger

	mu       sync.Mutex
	verified bool
}

// Open loads the workbook and pins the first sheet.
func Open(path string, cols Columns, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger workbook: %w", err)
	}
	sheet := f.GetSheetName(0)
	if sheet == "" {
		_ = f.Close()
		return nil, fmt.Errorf("ledger workbook has no sheets")
	}
	logger.Info("ledger.open", "path", path, "sheet", sheet)
	return &Ledger{path: path, f: f, sheet: sheet, cols: cols, logger: logger}, nil
}

func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Verified reports whether the strict first check has already passed.
func (l *Ledger) Verified() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.verified
}

// FindRow scans the data rows for an exact (trimmed) student id match and
// returns the 1-based row index. Header row excluded. A miss is logged,
// not an error.
func (l *Ledger) FindRow(studentID string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.findRow(studentID)
}

func (l *Ledger) findRow(studentID string) (int, bool) {
	studentID = strings.TrimSpace(studentID)

	rows, err := l.f.GetRows(l.sheet)
	if err != nil {
		l.logger.Error("ledger.rows.failed", "error", err)
		return 0, false
	}
	for row := 2; row <= len(rows); row++ {
		if l.cell(l.cols.StudentID, row) == studentID {
			l.logger.Info("ledger.row.found", "student_id", studentID, "row", row)
			return row, true
		}
	}
	l.logger.Warn("ledger.row.missing", "student_id", studentID)
	return 0, false
}

func (l *Ledger) cell(col string, row int) string {
	v, err := l.f.GetCellValue(l.sheet, col+strconv.Itoa(row))
	if err != nil {
		l.logger.Error("ledger.cell.failed", "cell", col+strconv.Itoa(row), "error", err)
		return ""
	}
	return strings.TrimSpace(v)
}

// CompareTitles checks the row's reference title against the candidate,
// ignoring case and all whitespace.
func (l *Ledger) CompareTitles(row int, candidate string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.compareTitles(row, candidate)
}

func (l *Ledger) compareTitles(row int, candidate string) bool {
	reference := normalizeTitle(l.cell(l.cols.ThesisTitle, row))
	candidate = normalizeTitle(candidate)
	if !strings.EqualFold(reference, candidate) {
		l.logger.Warn("ledger.title.mismatch", "row", row, "ledger", reference, "candidate", candidate)
		return false
	}
	return true
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(title), "")
}

// CheckTitle applies the strict-first title policy. On success the ledger
// becomes Verified. While Unverified, a miss or mismatch returns a
// *TitleConflictError; afterwards it returns (false, nil).
func (l *Ledger) CheckTitle(studentID, title string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkTitle(studentID, title)
}

func (l *Ledger) checkTitle(studentID, title string) (bool, error) {
	row, found := l.findRow(studentID)
	if !found {
		if !l.verified {
			return false, &TitleConflictError{StudentID: studentID, CandidateTitle: title, RowMissing: true}
		}
		return false, nil
	}
	if !l.compareTitles(row, title) {
		if !l.verified {
			return false, &TitleConflictError{
				StudentID:      studentID,
				LedgerTitle:    l.cell(l.cols.ThesisTitle, row),
				CandidateTitle: title,
			}
		}
		return false, nil
	}
	l.verified = true
	return true, nil
}

// RecordOutputs writes the given filenames into the student's row and
// saves the workbook immediately. Thesis and support outputs require a
// passing title check first; a failure while Unverified surfaces as a
// fatal error, otherwise the update is skipped with a reason.
func (l *Ledger) RecordOutputs(studentID, title string, files map[OutputKind]string) (bool, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if studentID == "" {
		return false, "cannot save: record has no student id", nil
	}

	if needsTitleCheck(files) {
		ok, err := l.checkTitle(studentID, title)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, fmt.Sprintf("title check failed for student %s", studentID), nil
		}
	}

	row, found := l.findRow(studentID)
	if !found {
		return false, fmt.Sprintf("no ledger row for student %s", studentID), nil
	}

	colByKind := map[OutputKind]string{
		OutputThesis:  l.cols.ThesisFile,
		OutputSupport: l.cols.SupportFile,
		OutputReport:  l.cols.ReportFile,
	}

	var messages []string
	for kind, file := range files {
		col, ok := colByKind[kind]
		if !ok {
			continue
		}
		name := filepath.Base(file)
		if err := l.f.SetCellValue(l.sheet, col+strconv.Itoa(row), name); err != nil {
			return false, "", fmt.Errorf("set %s cell: %w", kind, err)
		}
		messages = append(messages, fmt.Sprintf("%s file updated", kind))
	}

	if err := l.f.Save(); err != nil {
		return false, "", fmt.Errorf("save ledger workbook: %w", err)
	}
	messages = append(messages, "workbook saved")

	l.logger.Info("ledger.outputs.ok", "student_id", studentID, "row", row, "files", len(files))
	return true, strings.Join(messages, "; "), nil
}

func needsTitleCheck(files map[OutputKind]string) bool {
	for kind := range files {
		if kind == OutputThesis || kind == OutputSupport {
			return true
		}
	}
	return false
}
