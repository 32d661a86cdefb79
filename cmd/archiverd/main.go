package main

import (
	"flag"
	"log/slog"
	"net/http"
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
	"github.com/grape4ever/thesis-archiver/internal/server"
	"github.com/grape4ever/thesis-archiver/internal/signature"
)

func main() {
	addr := flag.String("addr", "", "listen address (overrides HTTP_ADDR)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if *addr != "" {
		cfg.Server.HTTPAddr = *addr
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
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
	tpl := classify.DefaultTemplate()
	if cfg.Signature.Threshold > 0 {
		tpl.SignatureThreshold = cfg.Signature.Threshold
	}

	var history *runstore.Store
	if cfg.Paths.RunDBPath != "" {
		var err error
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

	namingCfg := naming.Config{
		AcademicYear: cfg.Naming.AcademicYear,
		ProvinceCode: cfg.Naming.ProvinceCode,
		UnitCode:     cfg.Naming.UnitCode,
		MajorCode:    cfg.Naming.MajorCode,
	}

	// Each run opens its own ledger so the strict title policy starts
	// fresh, mirroring one CLI invocation per run.
	runner := func(r *http.Request) (pipeline.Summary, error) {
		book, err := ledger.Open(cfg.Paths.ExcelPath, ledger.DefaultColumns(), logger)
		if err != nil {
			return pipeline.Summary{}, err
		}
		defer func() {
			if err := book.Close(); err != nil {
				logger.Warn("close ledger failed", "error", err)
			}
		}()

		orchestrator := &pipeline.Orchestrator{
			Classifier:  classify.NewClassifier(engine, detector, tpl, logger),
			Records:     records.NewStore(cfg.Paths.RecordsRoot),
			Naming:      namingCfg,
			Ledger:      book,
			Batcher:     batch.NewBatcher(),
			History:     history,
			ResultsRoot: cfg.Paths.ResultsRoot,
			Logger:      logger,
		}
		return orchestrator.Run(r.Context(), cfg.Paths.UploadsRoot, false)
	}

	srv := server.New(cfg.Paths.UploadsRoot, runner, logger)

	logger.Info("archiverd listening", "addr", cfg.Server.HTTPAddr)
	if err := http.ListenAndServe(cfg.Server.HTTPAddr, srv.Router()); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
