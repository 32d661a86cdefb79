package naming

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grape4ever/thesis-archiver/internal/classify"
)

var testConfig = Config{
	AcademicYear: "2324",
	ProvinceCode: "44",
	UnitCode:     "14655",
	MajorCode:    "080901",
}

func TestBuildFilename(t *testing.T) {
	tests := []struct {
		name    string
		rec     classify.Record
		suffix  string
		want    string
		wantErr error
	}{
		{
			name:   "thesis",
			rec:    classify.Record{Type: classify.DocTypeThesis, StudentID: "202001020107"},
			suffix: "pdf",
			want:   "2324_44_14655_080901_202001020107_LW.pdf",
		},
		{
			name:   "report",
			rec:    classify.Record{Type: classify.DocTypeReport, StudentID: "202001020107"},
			suffix: ".pdf",
			want:   "2324_44_14655_080901_202001020107_CCBG.pdf",
		},
		{
			name:   "ktbg archive",
			rec:    classify.Record{Type: classify.DocTypeKtbg, StudentID: "202001020107"},
			suffix: "zip",
			want:   "2324_44_14655_080901_202001020107_CL.zip",
		},
		{
			name:   "grade maps to CL",
			rec:    classify.Record{Type: classify.DocTypeGrade, StudentID: "202001020107"},
			suffix: "pdf",
			want:   "2324_44_14655_080901_202001020107_CL.pdf",
		},
		{
			name:    "missing student id",
			rec:     classify.Record{Type: classify.DocTypeThesis},
			suffix:  "pdf",
			wantErr: ErrMissingField,
		},
		{
			name:    "missing type",
			rec:     classify.Record{StudentID: "202001020107"},
			suffix:  "pdf",
			wantErr: ErrMissingField,
		},
		{
			name:    "unknown type has no code",
			rec:     classify.Record{Type: classify.DocTypeUnknown, StudentID: "202001020107"},
			suffix:  "pdf",
			wantErr: ErrUnknownType,
		},
	}
	for _, tt := range tests {
		got, err := BuildFilename(tt.rec, testConfig, tt.suffix)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("%s: err = %v, want %v", tt.name, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: BuildFilename = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestBuildFilenameDeterministic(t *testing.T) {
	rec := classify.Record{Type: classify.DocTypeThesis, StudentID: "202001020107"}
	a, err := BuildFilename(rec, testConfig, "pdf")
	if err != nil {
		t.Fatal(err)
	}
	b, err := BuildFilename(rec, testConfig, "pdf")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("identical inputs produced %q and %q", a, b)
	}
}

func TestBuildFilenameScrubsReservedCharacters(t *testing.T) {
	rec := classify.Record{Type: classify.DocTypeThesis, StudentID: `2020<01|020>107`}
	got, err := BuildFilename(rec, testConfig, "pdf")
	if err != nil {
		t.Fatal(err)
	}
	want := "2324_44_14655_080901_2020_01_020_107_LW.pdf"
	if got != want {
		t.Errorf("BuildFilename = %q, want %q", got, want)
	}
}

func TestRenameFile(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "scan.pdf")
	if err := os.WriteFile(source, []byte("pdf-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Date(2025, 5, 13, 5, 46, 27, 0, time.UTC)
	if err := os.Chtimes(source, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	rec := classify.Record{Type: classify.DocTypeThesis, StudentID: "202001020107"}
	target := filepath.Join(dir, "results", "202001020107")

	newPath, err := RenameFile(source, rec, testConfig, target)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(newPath) != "2324_44_14655_080901_202001020107_LW.pdf" {
		t.Errorf("new path = %q", newPath)
	}

	data, err := os.ReadFile(newPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "pdf-bytes" {
		t.Errorf("copied content = %q", data)
	}

	// Copy, not move: the source stays put.
	if _, err := os.Stat(source); err != nil {
		t.Errorf("source should remain: %v", err)
	}

	info, err := os.Stat(newPath)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), mtime)
	}
}

func TestRenameFileOverwritesExistingTarget(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "scan.pdf")
	if err := os.WriteFile(source, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := classify.Record{Type: classify.DocTypeThesis, StudentID: "202001020107"}
	target := filepath.Join(dir, "out")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(target, "2324_44_14655_080901_202001020107_LW.pdf")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	newPath, err := RenameFile(source, rec, testConfig, target)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(newPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new" {
		t.Errorf("last write should win, got %q", data)
	}
}

func TestRenameFileMissingSource(t *testing.T) {
	rec := classify.Record{Type: classify.DocTypeThesis, StudentID: "202001020107"}
	if _, err := RenameFile(filepath.Join(t.TempDir(), "nope.pdf"), rec, testConfig, t.TempDir()); err == nil {
		t.Fatal("expected error for missing source")
	}
}
