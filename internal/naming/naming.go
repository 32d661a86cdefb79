package naming

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/grape4ever/thesis-archiver/internal/classify"
)

var (
	// ErrMissingField means the record lacks a field the filename needs.
	ErrMissingField = errors.New("missing required field")

	// ErrUnknownType means the record's type has no filename code.
	ErrUnknownType = errors.New("unknown document type")
)

// Config holds the institutional codes every canonical filename starts
// with. It is immutable for the duration of a run and passed explicitly;
// there are no process-wide defaults.
type Config struct {
	AcademicYear string
	ProvinceCode string
	UnitCode     string
	MajorCode    string
}

// reserved characters are scrubbed from the whole assembled name, so an
// id or code containing path syntax can never escape the target
// directory.
const reserved = `\/:*?"<>|`

// BuildFilename derives the canonical filename for a record:
// year_province_unit_major_studentID_CODE.suffix. Deterministic in its
// inputs.
func BuildFilename(rec classify.Record, cfg Config, suffix string) (string, error) {
	if rec.StudentID == "" {
		return "", fmt.Errorf("%w: student id", ErrMissingField)
	}
	if rec.Type == "" {
		return "", fmt.Errorf("%w: document type", ErrMissingField)
	}
	code := rec.Type.Code()
	if code == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, rec.Type)
	}

	name := fmt.Sprintf("%s_%s_%s_%s_%s_%s.%s",
		cfg.AcademicYear, cfg.ProvinceCode, cfg.UnitCode, cfg.MajorCode,
		rec.StudentID, code, strings.TrimPrefix(suffix, "."))

	return scrub(name), nil
}

func scrub(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(reserved, r) {
			return '_'
		}
		return r
	}, name)
}

// RenameFile copies source into targetDir under the record's canonical
// name, preserving the source's modification time. The source is left in
// place; a pre-existing file at the destination is overwritten
// (last write wins). Returns the new path.
func RenameFile(source string, rec classify.Record, cfg Config, targetDir string) (string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return "", fmt.Errorf("source file: %w", err)
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("create target dir: %w", err)
	}

	filename, err := BuildFilename(rec, cfg, filepath.Ext(source))
	if err != nil {
		return "", err
	}
	target := filepath.Join(targetDir, filename)

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove stale target: %w", err)
	}
	if err := copyFile(source, target, info.Mode()); err != nil {
		return "", err
	}
	if err := os.Chtimes(target, info.ModTime(), info.ModTime()); err != nil {
		slog.Warn("preserve mtime failed", "target", target, "error", err)
	}

	slog.Info("naming.rename.ok", "source", source, "target", target)
	return target, nil
}

func copyFile(source, target string, mode os.FileMode) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if err := in.Close(); err != nil {
			slog.Warn("close source failed", "path", source, "error", err)
		}
	}()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy: %w", err)
	}
	return out.Close()
}
