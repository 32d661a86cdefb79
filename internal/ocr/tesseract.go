package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/grape4ever/thesis-archiver/internal/geometry"
)

type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"

	Language  string // default "chi_sim"
	DPI       int    // rasterization DPI for scanned PDFs, default 150
	PageCount int    // pages to recognize per document, default 2

	PSM int // e.g., 6 is good for uniform block of text
}

// TesseractEngine rasterizes PDF pages with pdftoppm and recognizes them
// with tesseract in TSV mode, which carries word bounding boxes and
// confidences. Words are merged back into lines before being returned.
type TesseractEngine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseractEngine(cfg Config, logger *slog.Logger) *TesseractEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Language == "" {
		cfg.Language = "chi_sim"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	if cfg.PageCount <= 0 {
		cfg.PageCount = 2
	}
	if cfg.PSM <= 0 {
		cfg.PSM = 6
	}
	return &TesseractEngine{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Recognize rasterizes up to PageCount pages and runs tesseract on each.
// Pages past the end of the document are simply absent from the result.
func (e *TesseractEngine) Recognize(ctx context.Context, path string) ([]Page, error) {
	tmp, err := os.MkdirTemp("", "archiver-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("ocr tempdir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			e.logger.Warn("ocr tempdir cleanup failed", "dir", tmp, "error", err)
		}
	}()

	prefix := filepath.Join(tmp, "page")
	_, _, err = e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-png",
		"-r", strconv.Itoa(e.cfg.DPI),
		"-f", "1",
		"-l", strconv.Itoa(e.cfg.PageCount),
		path, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w", err)
	}

	images, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, ErrNoPages
	}
	sort.Strings(images) // pdftoppm zero-pads page numbers

	pages := make([]Page, 0, len(images))
	for _, img := range images {
		out, _, err := e.runner.Run(ctx, e.cfg.Tesseract,
			img, "stdout",
			"-l", e.cfg.Language,
			"--psm", strconv.Itoa(e.cfg.PSM),
			"tsv",
		)
		if err != nil {
			return nil, fmt.Errorf("tesseract %s: %w", filepath.Base(img), err)
		}
		pages = append(pages, parseTSV(string(out)))
	}
	return pages, nil
}

// tsvWord is one level-5 row from tesseract's TSV output.
type tsvWord struct {
	block, par, line         int
	left, top, width, height float64
	conf                     float64
	text                     string
}

// parseTSV turns tesseract TSV output into line items, merging word boxes
// per (block, paragraph, line) into one box spanning all its words.
func parseTSV(out string) Page {
	var words []tsvWord
	for i, row := range strings.Split(out, "\n") {
		if i == 0 || strings.TrimSpace(row) == "" {
			continue // header
		}
		cols := strings.Split(row, "\t")
		if len(cols) < 12 {
			continue
		}
		level, err := strconv.Atoi(cols[0])
		if err != nil || level != 5 {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		conf, _ := strconv.ParseFloat(cols[10], 64)
		if conf < 0 {
			continue
		}
		w := tsvWord{text: text, conf: conf}
		w.block, _ = strconv.Atoi(cols[2])
		w.par, _ = strconv.Atoi(cols[3])
		w.line, _ = strconv.Atoi(cols[4])
		w.left, _ = strconv.ParseFloat(cols[6], 64)
		w.top, _ = strconv.ParseFloat(cols[7], 64)
		w.width, _ = strconv.ParseFloat(cols[8], 64)
		w.height, _ = strconv.ParseFloat(cols[9], 64)
		words = append(words, w)
	}

	var page Page
	for i := 0; i < len(words); {
		j := i
		minX, minY := words[i].left, words[i].top
		maxX, maxY := words[i].left+words[i].width, words[i].top+words[i].height
		var texts []string
		var confSum float64
		for ; j < len(words) &&
			words[j].block == words[i].block &&
			words[j].par == words[i].par &&
			words[j].line == words[i].line; j++ {
			w := words[j]
			if w.left < minX {
				minX = w.left
			}
			if w.top < minY {
				minY = w.top
			}
			if w.left+w.width > maxX {
				maxX = w.left + w.width
			}
			if w.top+w.height > maxY {
				maxY = w.top + w.height
			}
			texts = append(texts, w.text)
			confSum += w.conf
		}
		page = append(page, geometry.LineItem{
			Box: geometry.Quad{
				{X: minX, Y: minY},
				{X: maxX, Y: minY},
				{X: maxX, Y: maxY},
				{X: minX, Y: maxY},
			},
			Text:       strings.Join(texts, " "),
			Confidence: confSum / float64(j-i) / 100,
		})
		i = j
	}
	return page
}
