package signature

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/grape4ever/thesis-archiver/internal/geometry"
	"github.com/grape4ever/thesis-archiver/internal/ocr"
)

// Result is the verdict for one region check.
type Result struct {
	HasContent   bool
	ContentRatio float64
}

// Detector decides whether a rectangular page region carries any ink,
// e.g. a handwritten signature.
type Detector interface {
	CheckRegion(ctx context.Context, pdfPath string, pageIndex int, region geometry.Region, threshold float64) (Result, error)
}

// PixelDetector renders the page at double resolution and counts non-white
// pixels inside the region. Region coordinates are in the same pixel space
// the OCR engine reports, so both must use the same base DPI.
type PixelDetector struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	BaseDPI  int    // DPI of the region coordinate space, default 150

	runner ocr.Runner
	logger *slog.Logger
}

const zoom = 2

func NewPixelDetector(pdftoppm string, baseDPI int, logger *slog.Logger) *PixelDetector {
	if pdftoppm == "" {
		pdftoppm = "pdftoppm"
	}
	if baseDPI <= 0 {
		baseDPI = 150
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PixelDetector{Pdftoppm: pdftoppm, BaseDPI: baseDPI, runner: ocr.NewExecRunner(), logger: logger}
}

// NewPixelDetectorWithRunner lets tests swap in a stubbed command runner.
func NewPixelDetectorWithRunner(pdftoppm string, baseDPI int, r ocr.Runner, logger *slog.Logger) *PixelDetector {
	d := NewPixelDetector(pdftoppm, baseDPI, logger)
	d.runner = r
	return d
}

// CheckRegion reports whether the region on the given page (0-based) has
// more non-white content than threshold allows for blank paper.
func (d *PixelDetector) CheckRegion(ctx context.Context, pdfPath string, pageIndex int, region geometry.Region, threshold float64) (Result, error) {
	pages, err := api.PageCountFile(pdfPath)
	if err != nil {
		return Result{}, fmt.Errorf("pdf page count: %w", err)
	}
	if pageIndex < 0 || pageIndex >= pages {
		return Result{}, fmt.Errorf("page %d out of range, document has %d pages", pageIndex, pages)
	}

	tmp, err := os.MkdirTemp("", "archiver-sig-*")
	if err != nil {
		return Result{}, fmt.Errorf("signature tempdir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			d.logger.Warn("signature tempdir cleanup failed", "dir", tmp, "error", err)
		}
	}()

	prefix := filepath.Join(tmp, "sig")
	pageNum := strconv.Itoa(pageIndex + 1)
	_, _, err = d.runner.Run(ctx, d.Pdftoppm,
		"-png",
		"-r", strconv.Itoa(d.BaseDPI*zoom),
		"-f", pageNum,
		"-l", pageNum,
		pdfPath, prefix,
	)
	if err != nil {
		return Result{}, fmt.Errorf("pdftoppm: %w", err)
	}

	rendered, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return Result{}, err
	}
	if len(rendered) == 0 {
		return Result{}, fmt.Errorf("page %d rendered no image", pageIndex)
	}
	sort.Strings(rendered)

	img, err := imaging.Open(rendered[0])
	if err != nil {
		return Result{}, fmt.Errorf("open rendered page: %w", err)
	}
	return measure(img, region, threshold), nil
}

// measure crops the zoom-scaled region out of the rendered page and counts
// pixels darker than blank paper.
func measure(img image.Image, region geometry.Region, threshold float64) Result {
	minX, minY, maxX, maxY := region.Quad.Bounds()
	crop := imaging.Crop(img, image.Rect(
		int(minX*zoom), int(minY*zoom),
		int(maxX*zoom), int(maxY*zoom),
	))
	gray := imaging.Grayscale(crop)

	bounds := gray.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return Result{}
	}

	// Blank scanned paper sits near full white; anything below 250/255
	// counts as content, matching a binarization cutoff of 250.
	const cutoff = 250 << 8
	content := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, _, _, _ := gray.At(x, y).RGBA()
			if r < cutoff {
				content++
			}
		}
	}

	ratio := float64(content) / float64(total)
	return Result{
		HasContent:   ratio > threshold,
		ContentRatio: ratio,
	}
}
