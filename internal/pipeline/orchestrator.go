package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/grape4ever/thesis-archiver/constants"
	"github.com/grape4ever/thesis-archiver/internal/archive"
	"github.com/grape4ever/thesis-archiver/internal/batch"
	"github.com/grape4ever/thesis-archiver/internal/classify"
	"github.com/grape4ever/thesis-archiver/internal/ledger"
	"github.com/grape4ever/thesis-archiver/internal/naming"
	"github.com/grape4ever/thesis-archiver/internal/records"
	"github.com/grape4ever/thesis-archiver/internal/runstore"
)

// FileFailure pairs a failed input with the reason it failed.
type FileFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Summary is the user-visible outcome of one run.
type Summary struct {
	RunID        uuid.UUID     `json:"run_id"`
	Total        int           `json:"total"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	SuccessFiles []string      `json:"success_files,omitempty"`
	FailedFiles  []FileFailure `json:"failed_files,omitempty"`
}

// Orchestrator drives one batch run: classify every input, persist the
// raw record, rename and reconcile non-deferred documents as they come,
// then drain the per-student batches into archives. Per-document errors
// are contained here; a strict title conflict is the one failure that
// escapes and aborts the run.
type Orchestrator struct {
	Classifier *classify.Classifier
	Records    *records.Store
	Naming     naming.Config
	Ledger     *ledger.Ledger
	Batcher    *batch.Batcher
	History    *runstore.Store // optional; nil disables run history

	ResultsRoot string
	Logger      *slog.Logger
}

// Run processes every PDF under inputRoot. With recursive set, nested
// directories are walked too.
func (o *Orchestrator) Run(ctx context.Context, inputRoot string, recursive bool) (Summary, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	summary := Summary{RunID: uuid.New()}
	logger.Info("run.start", "run_id", summary.RunID, "input", inputRoot, "recursive", recursive)

	inputs, err := collectInputs(inputRoot, recursive)
	if err != nil {
		return summary, fmt.Errorf("collect inputs: %w", err)
	}

	for _, path := range inputs {
		summary.Total++
		if err := o.processDocument(ctx, path); err != nil {
			var conflict *ledger.TitleConflictError
			if errors.As(err, &conflict) {
				o.recordOutcome(&summary, path, err.Error())
				o.finish(logger, &summary)
				return summary, conflict
			}
			o.recordOutcome(&summary, path, err.Error())
			logger.Warn("run.document.failed", "path", path, "reason", err.Error())
			continue
		}
		o.recordOutcome(&summary, path, "")
	}

	// Every document that could contribute to a student's batch has been
	// classified; the archives can be cut now.
	if err := o.drainBatches(ctx, &summary); err != nil {
		o.finish(logger, &summary)
		return summary, err
	}

	o.finish(logger, &summary)
	return summary, nil
}

func (o *Orchestrator) finish(logger *slog.Logger, summary *Summary) {
	if o.History != nil {
		if err := o.History.RecordSummary(runstore.SummaryRow{
			RunID:     summary.RunID.String(),
			Total:     summary.Total,
			Succeeded: summary.Succeeded,
			Failed:    summary.Failed,
		}); err != nil {
			logger.Warn("run.history.summary.failed", "error", err)
		}
	}
	logger.Info("run.done",
		"run_id", summary.RunID,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
}

// recordOutcome books a success (reason == "") or failure into the
// summary and the run history.
func (o *Orchestrator) recordOutcome(summary *Summary, path, reason string) {
	status := runstore.StatusSucceeded
	if reason == "" {
		summary.Succeeded++
		summary.SuccessFiles = append(summary.SuccessFiles, path)
	} else {
		summary.Failed++
		summary.FailedFiles = append(summary.FailedFiles, FileFailure{Path: path, Reason: reason})
		status = runstore.StatusFailed
	}
	if o.History != nil {
		if err := o.History.RecordDocument(summary.RunID.String(), path, status, reason); err != nil {
			slog.Warn("run.history.document.failed", "path", path, "error", err)
		}
	}
}

func (o *Orchestrator) processDocument(ctx context.Context, path string) error {
	rec, err := o.Classifier.Classify(ctx, path)
	if err != nil {
		return err
	}

	if rec.StudentID != "" {
		recordPath, err := o.Records.Save(rec)
		if err != nil {
			return fmt.Errorf("persist record: %w", err)
		}
		// Downstream works from the persisted copy; Load re-validates it
		// against the record schema.
		rec, err = o.Records.Load(recordPath)
		if err != nil {
			return fmt.Errorf("reload record: %w", err)
		}
	}

	switch {
	case rec.Type == classify.DocTypeThesis:
		return o.renameAndReconcile(rec, ledger.OutputThesis)
	case rec.Type == classify.DocTypeReport:
		return o.renameAndReconcile(rec, ledger.OutputReport)
	case rec.Type.Deferred():
		if rec.StudentID == "" {
			return errors.New("deferred document has no student id")
		}
		o.Batcher.Add(rec.StudentID, path, rec)
		return nil
	default:
		return errors.New("unrecognized document type")
	}
}

func (o *Orchestrator) renameAndReconcile(rec classify.Record, kind ledger.OutputKind) error {
	if rec.StudentID == "" {
		return fmt.Errorf("%w: student id", naming.ErrMissingField)
	}

	target := filepath.Join(o.ResultsRoot, rec.StudentID)
	newPath, err := naming.RenameFile(rec.SourcePath, rec, o.Naming, target)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	ok, msg, err := o.Ledger.RecordOutputs(rec.StudentID, rec.Title, map[ledger.OutputKind]string{
		kind: newPath,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ledger update skipped: %s", msg)
	}
	return nil
}

// drainBatches compresses each student's deferred documents into one
// archive, renames it into canonical form and reconciles the support
// column. The archive's name comes from the group's first-seen record.
func (o *Orchestrator) drainBatches(ctx context.Context, summary *Summary) error {
	for _, group := range o.Batcher.Drain() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.shipGroup(group); err != nil {
			var conflict *ledger.TitleConflictError
			if errors.As(err, &conflict) {
				return conflict
			}
			summary.Failed++
			summary.FailedFiles = append(summary.FailedFiles, FileFailure{
				Path:   group.StudentID,
				Reason: err.Error(),
			})
			if o.History != nil {
				if err := o.History.RecordDocument(summary.RunID.String(), group.StudentID, runstore.StatusFailed, err.Error()); err != nil {
					slog.Warn("run.history.document.failed", "student_id", group.StudentID, "error", err)
				}
			}
		}
	}
	return nil
}

func (o *Orchestrator) shipGroup(group batch.Group) error {
	files := make([]string, 0, len(group.Entries))
	for _, entry := range group.Entries {
		files = append(files, entry.Path)
	}

	zipPath, err := archive.Compress(files, group.StudentID, o.ResultsRoot)
	if err != nil {
		return fmt.Errorf("compress: %w", err)
	}

	// First-seen record is authoritative for the archive name; force the
	// type so the CL code applies even when the group leads with a grade
	// sheet.
	rec := group.Entries[0].Record
	rec.Type = classify.DocTypeKtbg
	rec.SourcePath = zipPath

	target := filepath.Join(o.ResultsRoot, group.StudentID)
	newPath, err := naming.RenameFile(zipPath, rec, o.Naming, target)
	if err != nil {
		return fmt.Errorf("rename archive: %w", err)
	}
	if err := os.Remove(zipPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("remove temp archive failed", "path", zipPath, "error", err)
	}

	ok, msg, err := o.Ledger.RecordOutputs(group.StudentID, rec.Title, map[ledger.OutputKind]string{
		ledger.OutputSupport: newPath,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ledger update skipped: %s", msg)
	}
	return nil
}

// collectInputs lists the PDFs to process under root.
func collectInputs(root string, recursive bool) ([]string, error) {
	var inputs []string
	if recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !d.IsDir() && isPDF(path) {
				inputs = append(inputs, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return inputs, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() && isPDF(entry.Name()) {
			inputs = append(inputs, filepath.Join(root, entry.Name()))
		}
	}
	return inputs, nil
}

func isPDF(path string) bool {
	return constants.NormalizeExt(filepath.Ext(path)) == "pdf"
}
