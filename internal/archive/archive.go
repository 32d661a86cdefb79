package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Compress writes the given files into targetDir/<studentID>/<studentID>_CL.zip,
// flattening any directory structure: entries carry base names only. A
// stale archive of the same name is replaced. The caller renames the
// archive into its canonical form afterwards and deletes this temporary
// one.
func Compress(files []string, studentID, targetDir string) (string, error) {
	studentDir := filepath.Join(targetDir, studentID)
	if err := os.MkdirAll(studentDir, 0o755); err != nil {
		return "", fmt.Errorf("create student dir: %w", err)
	}

	zipPath := filepath.Join(studentDir, studentID+"_CL.zip")
	if err := os.Remove(zipPath); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove stale archive: %w", err)
	}

	out, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	zw := zip.NewWriter(out)

	for _, file := range files {
		if err := addFile(zw, file); err != nil {
			_ = zw.Close()
			_ = out.Close()
			_ = os.Remove(zipPath)
			return "", err
		}
		slog.Info("archive.add", "archive", zipPath, "file", filepath.Base(file))
	}

	if err := zw.Close(); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("finish archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}

	slog.Info("archive.ok", "archive", zipPath, "files", len(files))
	return zipPath, nil
}

func addFile(zw *zip.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if err := in.Close(); err != nil {
			slog.Warn("close archived file failed", "path", path, "error", err)
		}
	}()

	w, err := zw.Create(filepath.Base(path))
	if err != nil {
		return fmt.Errorf("archive entry %s: %w", filepath.Base(path), err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("compress %s: %w", path, err)
	}
	return nil
}
