package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grape4ever/thesis-archiver/internal/geometry"
	"github.com/grape4ever/thesis-archiver/internal/ocr"
	"github.com/grape4ever/thesis-archiver/internal/signature"
)

var (
	// ErrRecognition means OCR returned nothing usable. Not retried; the
	// engine is deterministic and a rerun would fail the same way.
	ErrRecognition = errors.New("recognition failed")

	// ErrSkip marks a page that looks thesis-adjacent (task statement,
	// review form...) and must not be processed as any document type.
	ErrSkip = errors.New("document must be skipped")

	// ErrUnsigned is the terminal failure for a thesis whose author
	// signature area is blank.
	ErrUnsigned = errors.New("thesis author unsigned")
)

// titleLabelRE strips a leading "题目：" label and everything before it.
var titleLabelRE = regexp.MustCompile(`.*题目[：: ]?\s*`)

// ktbgTitleRE pulls the title from between the 题目 label and the student
// name label; ktbg layouts vary too much for a pure region cut.
var ktbgTitleRE = regexp.MustCompile(`题\s*目([\s\S]*?)学生姓名`)

// Classifier owns the type-decision tree and the per-type field
// extractors. It is stateless across documents and safe for sequential
// reuse within a run.
type Classifier struct {
	engine ocr.Engine
	sig    signature.Detector
	tpl    Template
	idRE   *regexp.Regexp
	logger *slog.Logger
}

func NewClassifier(engine ocr.Engine, sig signature.Detector, tpl Template, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		engine: engine,
		sig:    sig,
		tpl:    tpl,
		idRE:   regexp.MustCompile(fmt.Sprintf(`\d{%d}`, tpl.IDDigits)),
		logger: logger,
	}
}

// Classify runs the priority-ordered decision tree over the document's
// first page and emits a Record. First match wins:
//
//  1. ktbg filename marker
//  2. grade filename marker
//  3. skip keywords in the thesis title region (hard per-document failure)
//  4. title marker in the thesis title region -> thesis
//  5. report marker in the report title region -> report
//  6. unknown (valid, no fields)
func (c *Classifier) Classify(ctx context.Context, path string) (Record, error) {
	pages, err := c.engine.Recognize(ctx, path)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrRecognition, err)
	}
	if len(pages) == 0 || len(pages[0]) == 0 {
		return Record{}, ErrRecognition
	}
	first := pages[0]

	rec := Record{
		ID:         uuid.New(),
		SourcePath: path,
		CreatedAt:  time.Now().UTC(),
	}

	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(name, c.tpl.KtbgMarker):
		return c.processKtbg(rec, first)
	case strings.Contains(name, c.tpl.GradeMarker):
		return c.processGrade(rec, first)
	}

	titleText := c.thesisTitleText(first)
	if matched := c.matchSkipKeywords(titleText); len(matched) > 0 {
		return Record{}, fmt.Errorf("%w: keywords %s", ErrSkip, strings.Join(matched, ", "))
	}
	if strings.Contains(titleText, c.tpl.TitleMarker) {
		return c.processThesis(ctx, rec, titleText, first)
	}

	reportText := geometry.TextInRegion(first, c.tpl.ReportTitleRegion)
	if strings.Contains(reportText, c.tpl.ReportMarker) {
		return c.processReport(rec, first)
	}

	rec.Type = DocTypeUnknown
	c.logger.Info("classify.unknown", "path", path)
	return rec, nil
}

func (c *Classifier) thesisTitleText(page ocr.Page) string {
	var parts []string
	for _, region := range c.tpl.ThesisTitleRegions {
		if text := geometry.TextInRegion(page, region); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func (c *Classifier) matchSkipKeywords(text string) []string {
	var matched []string
	for _, word := range c.tpl.SkipKeywords {
		if strings.Contains(text, word) {
			matched = append(matched, word)
		}
	}
	return matched
}

func (c *Classifier) processThesis(ctx context.Context, rec Record, titleText string, page ocr.Page) (Record, error) {
	rec.Type = DocTypeThesis
	rec.Title = CleanTitle(titleText)
	rec.StudentID = c.extractStudentID(geometry.TextInRegion(page, c.tpl.ThesisIDRegion))

	res, err := c.sig.CheckRegion(ctx, rec.SourcePath, c.tpl.SignaturePage, c.tpl.SignatureRegion, c.tpl.SignatureThreshold)
	if err != nil {
		return Record{}, fmt.Errorf("signature check: %w", err)
	}
	if !res.HasContent {
		c.logger.Warn("classify.thesis.unsigned",
			"path", rec.SourcePath,
			"student_id", rec.StudentID,
			"content_ratio", res.ContentRatio,
		)
		return Record{}, ErrUnsigned
	}
	signed := true
	rec.SignaturePresent = &signed

	c.logger.Info("classify.thesis.ok", "path", rec.SourcePath, "student_id", rec.StudentID, "title", rec.Title)
	return rec, nil
}

func (c *Classifier) processReport(rec Record, page ocr.Page) (Record, error) {
	rec.Type = DocTypeReport
	rec.StudentID = c.extractStudentID(geometry.TextInRegion(page, c.tpl.ReportIDRegion))
	c.logger.Info("classify.report.ok", "path", rec.SourcePath, "student_id", rec.StudentID)
	return rec, nil
}

func (c *Classifier) processKtbg(rec Record, page ocr.Page) (Record, error) {
	rec.Type = DocTypeKtbg
	rec.StudentID = c.extractStudentID(geometry.TextInRegion(page, c.tpl.KtbgIDRegion))

	// Prefer the label-to-label pattern over the whole page; fall back to
	// the region cut when the page layout defeats it.
	fullText := pageText(page)
	if m := ktbgTitleRE.FindStringSubmatch(fullText); m != nil {
		rec.Title = collapseWhitespace(m[1])
	} else {
		rec.Title = CleanTitle(geometry.TextInRegion(page, c.tpl.KtbgTitleRegion))
	}

	c.logger.Info("classify.ktbg.ok", "path", rec.SourcePath, "student_id", rec.StudentID, "title", rec.Title)
	return rec, nil
}

func (c *Classifier) processGrade(rec Record, page ocr.Page) (Record, error) {
	rec.Type = DocTypeGrade
	rec.StudentID = c.extractStudentID(geometry.TextInRegion(page, c.tpl.GradeIDRegion))
	c.logger.Info("classify.grade.ok", "path", rec.SourcePath, "student_id", rec.StudentID)
	return rec, nil
}

// extractStudentID returns the first run of exactly IDDigits digits, or ""
// when none is present. A missing id is not an error here; downstream
// components decide whether they can proceed without one.
func (c *Classifier) extractStudentID(text string) string {
	return c.idRE.FindString(text)
}

// CleanTitle strips any leading "题目:" label variant and removes all
// whitespace, line breaks included. Titles are compared without internal
// spaces because OCR splits them unpredictably.
func CleanTitle(title string) string {
	title = titleLabelRE.ReplaceAllString(title, "")
	return collapseWhitespace(title)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func pageText(page ocr.Page) string {
	var texts []string
	for _, line := range page {
		if strings.TrimSpace(line.Text) != "" {
			texts = append(texts, line.Text)
		}
	}
	return strings.Join(texts, " ")
}
