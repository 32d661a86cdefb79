package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/grape4ever/thesis-archiver/internal/batch"
	"github.com/grape4ever/thesis-archiver/internal/classify"
	"github.com/grape4ever/thesis-archiver/internal/common"
	"github.com/grape4ever/thesis-archiver/internal/ledger"
	"github.com/grape4ever/thesis-archiver/internal/naming"
	"github.com/grape4ever/thesis-archiver/internal/ocr"
	"github.com/grape4ever/thesis-archiver/internal/pipeline"
	"github.com/grape4ever/thesis-archiver/internal/records"
	"github.com/grape4ever/thesis-archiver/internal/runstore"
	"github.com/grape4ever/thesis-archiver/internal/signature"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir       = flag.String("dir", "", "directory to process scanned PDFs from (required)")
		excel     = flag.String("excel", "", "path to the student-record workbook (required)")
		results   = flag.String("results", "", "results root for renamed deliverables")
		recDir    = flag.String("records", "", "root for raw classification records")
		year      = flag.String("year", "", "academic year code, e.g. 2324")
		province  = flag.String("province", "", "province code")
		unit      = flag.String("unit", "", "unit code")
		major     = flag.String("major", "", "major code")
		template  = flag.String("template", "v2", "document template id")
		recursive = flag.Bool("recursive", false, "walk the input directory recursively")
		runDB     = flag.String("rundb", "", "path to the run-history database (optional)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	cfg := common.LoadConfig()
	applyFlag(&cfg.Paths.ExcelPath, *excel)
	applyFlag(&cfg.Paths.ResultsRoot, *results)
	applyFlag(&cfg.Paths.RecordsRoot, *recDir)
	applyFlag(&cfg.Paths.RunDBPath, *runDB)
	applyFlag(&cfg.Naming.AcademicYear, *year)
	applyFlag(&cfg.Naming.ProvinceCode, *province)
	applyFlag(&cfg.Naming.UnitCode, *unit)
	applyFlag(&cfg.Naming.MajorCode, *major)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	tpl, ok := classify.Templates()[*template]
	if !ok {
		printError("Error: unknown template %q\n", *template)
		os.Exit(1)
	}

	engine := ocr.NewTesseractEngine(ocr.Config{
		Tesseract: cfg.OCR.Tesseract,
		Pdftoppm:  cfg.OCR.Pdftoppm,
		Language:  cfg.OCR.Language,
		DPI:       cfg.OCR.DPI,
		PageCount: cfg.OCR.PageCount,
	}, logger)
	detector := signature.NewPixelDetector(cfg.OCR.Pdftoppm, cfg.OCR.DPI, logger)
	if cfg.Signature.Threshold > 0 {
		tpl.SignatureThreshold = cfg.Signature.Threshold
	}

	book, err := ledger.Open(cfg.Paths.ExcelPath, ledger.DefaultColumns(), logger)
	if err != nil {
		logger.Error("failed to open ledger workbook", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := book.Close(); err != nil {
			logger.Warn("close ledger failed", "error", err)
		}
	}()

	var history *runstore.Store
	if cfg.Paths.RunDBPath != "" {
		history, err = runstore.Open(cfg.Paths.RunDBPath)
		if err != nil {
			logger.Error("failed to open run history", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := history.Close(); err != nil {
				logger.Warn("close run history failed", "error", err)
			}
		}()
	}

	orchestrator := &pipeline.Orchestrator{
		Classifier: classify.NewClassifier(engine, detector, tpl, logger),
		Records:    records.NewStore(cfg.Paths.RecordsRoot),
		Naming: naming.Config{
			AcademicYear: cfg.Naming.AcademicYear,
			ProvinceCode: cfg.Naming.ProvinceCode,
			UnitCode:     cfg.Naming.UnitCode,
			MajorCode:    cfg.Naming.MajorCode,
		},
		Ledger:      book,
		Batcher:     batch.NewBatcher(),
		History:     history,
		ResultsRoot: cfg.Paths.ResultsRoot,
		Logger:      logger,
	}

	summary, err := orchestrator.Run(ctx, *dir, *recursive)
	if err != nil {
		var conflict *ledger.TitleConflictError
		if errors.As(err, &conflict) {
			logger.Error("run aborted by strict title check",
				"student_id", conflict.StudentID,
				"ledger_title", conflict.LedgerTitle,
				"extracted_title", conflict.CandidateTitle,
				"row_missing", conflict.RowMissing,
			)
			printError("Run aborted: %s\n", conflict.Error())
			os.Exit(2)
		}
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Documents: %d\n", summary.Total)
	fmt.Printf("- Succeeded: %d\n", summary.Succeeded)
	fmt.Printf("- Failed: %d\n", summary.Failed)
	for _, failure := range summary.FailedFiles {
		fmt.Printf("  - %s: %s\n", failure.Path, failure.Reason)
	}
}

func applyFlag(target *string, value string) {
	if value != "" {
		*target = value
	}
}
