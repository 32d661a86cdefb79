package pipeline

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/grape4ever/thesis-archiver/internal/batch"
	"github.com/grape4ever/thesis-archiver/internal/classify"
	"github.com/grape4ever/thesis-archiver/internal/geometry"
	"github.com/grape4ever/thesis-archiver/internal/ledger"
	"github.com/grape4ever/thesis-archiver/internal/naming"
	"github.com/grape4ever/thesis-archiver/internal/ocr"
	"github.com/grape4ever/thesis-archiver/internal/records"
	"github.com/grape4ever/thesis-archiver/internal/runstore"
	"github.com/grape4ever/thesis-archiver/internal/signature"
)

type fakeEngine struct {
	pages map[string][]ocr.Page
}

func (f fakeEngine) Recognize(_ context.Context, path string) ([]ocr.Page, error) {
	if pages, ok := f.pages[filepath.Base(path)]; ok {
		return pages, nil
	}
	return nil, errors.New("no OCR fixture for " + filepath.Base(path))
}

type fakeDetector struct {
	unsigned map[string]bool
}

func (f fakeDetector) CheckRegion(_ context.Context, path string, _ int, _ geometry.Region, _ float64) (signature.Result, error) {
	if f.unsigned[filepath.Base(path)] {
		return signature.Result{HasContent: false}, nil
	}
	return signature.Result{HasContent: true, ContentRatio: 0.05}, nil
}

func line(x, y float64, text string) geometry.LineItem {
	return geometry.LineItem{
		Box:  geometry.Quad{{X: x, Y: y}, {X: x + 200, Y: y}, {X: x + 200, Y: y + 30}, {X: x, Y: y + 30}},
		Text: text,
	}
}

func thesisPages(id string) []ocr.Page {
	return []ocr.Page{
		{
			line(100, 300, "论文题目：基于X的研究"),
			line(600, 1000, "学号 "+id),
		},
		{line(860, 700, "签名")},
	}
}

func reportPages(id string) []ocr.Page {
	return []ocr.Page{{
		line(100, 400, "文本复制检测报告单"),
		line(100, 360, "学号："+id),
	}}
}

func ktbgPages(id, title string) []ocr.Page {
	return []ocr.Page{{
		line(300, 100, id),
		line(100, 200, "题 目 "+title+" 学生姓名 张三"),
	}}
}

func writeWorkbook(t *testing.T, dir string, rows [][2]string) string {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		n := strconv.Itoa(i + 2)
		if err := f.SetCellValue(sheet, "I"+n, row[0]); err != nil {
			t.Fatal(err)
		}
		if err := f.SetCellValue(sheet, "U"+n, row[1]); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(dir, "students.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeInputs(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("pdf "+name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

type testEnv struct {
	orch        *Orchestrator
	inputDir    string
	resultsRoot string
	recordsRoot string
	excelPath   string
}

func newTestEnv(t *testing.T, engine ocr.Engine, det signature.Detector, rows [][2]string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		inputDir:    filepath.Join(dir, "input"),
		resultsRoot: filepath.Join(dir, "results"),
		recordsRoot: filepath.Join(dir, "records"),
	}
	if err := os.MkdirAll(env.inputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	env.excelPath = writeWorkbook(t, dir, rows)

	book, err := ledger.Open(env.excelPath, ledger.DefaultColumns(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = book.Close() })

	env.orch = &Orchestrator{
		Classifier: classify.NewClassifier(engine, det, classify.DefaultTemplate(), nil),
		Records:    records.NewStore(env.recordsRoot),
		Naming: naming.Config{
			AcademicYear: "2324",
			ProvinceCode: "44",
			UnitCode:     "14655",
			MajorCode:    "080901",
		},
		Ledger:      book,
		Batcher:     batch.NewBatcher(),
		ResultsRoot: env.resultsRoot,
	}
	return env
}

func cellValue(t *testing.T, path, cell string) string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	v, err := f.GetCellValue(f.GetSheetName(0), cell)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestRunEndToEnd(t *testing.T) {
	engine := fakeEngine{pages: map[string][]ocr.Page{
		"thesis.pdf":       thesisPages("202001020107"),
		"report.pdf":       reportPages("202001020107"),
		"开题报告_a.pdf":  ktbgPages("202001020108", "基于Y的设计"),
		"成绩考核表_b.pdf": {{line(600, 400, "202001020108")}},
	}}
	env := newTestEnv(t, engine, fakeDetector{}, [][2]string{
		{"202001020107", "基于X的研究"},
		{"202001020108", "基于Y的设计"},
	})
	writeInputs(t, env.inputDir, "thesis.pdf", "report.pdf", "开题报告_a.pdf", "成绩考核表_b.pdf")

	history, err := runstore.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = history.Close() })
	env.orch.History = history

	summary, err := env.orch.Run(context.Background(), env.inputDir, false)
	if err != nil {
		t.Fatalf("run failed: %v (failures: %+v)", err, summary.FailedFiles)
	}
	if summary.Total != 4 || summary.Succeeded != 4 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	// Scenario A: thesis renamed into the student's results dir.
	thesisOut := filepath.Join(env.resultsRoot, "202001020107", "2324_44_14655_080901_202001020107_LW.pdf")
	if _, err := os.Stat(thesisOut); err != nil {
		t.Errorf("thesis deliverable missing: %v", err)
	}
	if got := cellValue(t, env.excelPath, "Y2"); got != "2324_44_14655_080901_202001020107_LW.pdf" {
		t.Errorf("thesis filename cell = %q", got)
	}

	// Scenario C: report renamed with CCBG and reconciled.
	if got := cellValue(t, env.excelPath, "AA2"); got != "2324_44_14655_080901_202001020107_CCBG.pdf" {
		t.Errorf("report filename cell = %q", got)
	}

	// Scenario D: both deferred documents in one canonical archive.
	archiveOut := filepath.Join(env.resultsRoot, "202001020108", "2324_44_14655_080901_202001020108_CL.zip")
	zr, err := zip.OpenReader(archiveOut)
	if err != nil {
		t.Fatalf("support archive missing: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 2 {
		t.Errorf("archive holds %d entries, want 2", len(zr.File))
	}
	if got := cellValue(t, env.excelPath, "Z3"); got != "2324_44_14655_080901_202001020108_CL.zip" {
		t.Errorf("support filename cell = %q", got)
	}

	// The temporary archive is gone once the canonical copy exists.
	if _, err := os.Stat(filepath.Join(env.resultsRoot, "202001020108", "202001020108_CL.zip")); !os.IsNotExist(err) {
		t.Error("temporary archive should be deleted")
	}

	// Raw records persisted per student, one file per classification.
	entries, err := os.ReadDir(filepath.Join(env.recordsRoot, "202001020107"))
	if err != nil || len(entries) != 2 {
		t.Errorf("records for 202001020107 = %d (%v), want 2", len(entries), err)
	}

	// Run history captured every document.
	docs, err := history.DocumentsForRun(summary.RunID.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 4 {
		t.Errorf("history rows = %d, want 4", len(docs))
	}
}

func TestRunUnsignedThesisIsContained(t *testing.T) {
	engine := fakeEngine{pages: map[string][]ocr.Page{
		"thesis.pdf": thesisPages("202001020107"),
	}}
	det := fakeDetector{unsigned: map[string]bool{"thesis.pdf": true}}
	env := newTestEnv(t, engine, det, [][2]string{{"202001020107", "基于X的研究"}})
	writeInputs(t, env.inputDir, "thesis.pdf")

	summary, err := env.orch.Run(context.Background(), env.inputDir, false)
	if err != nil {
		t.Fatalf("unsigned thesis must not abort the run: %v", err)
	}
	if summary.Failed != 1 || summary.Succeeded != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.FailedFiles[0].Reason != classify.ErrUnsigned.Error() {
		t.Errorf("reason = %q", summary.FailedFiles[0].Reason)
	}

	// Scenario B: no rename, no ledger write.
	if _, err := os.Stat(filepath.Join(env.resultsRoot, "202001020107")); !os.IsNotExist(err) {
		t.Error("no deliverable should exist for an unsigned thesis")
	}
	if got := cellValue(t, env.excelPath, "Y2"); got != "" {
		t.Errorf("thesis filename cell = %q, want empty", got)
	}
}

func TestRunFirstTitleConflictAborts(t *testing.T) {
	engine := fakeEngine{pages: map[string][]ocr.Page{
		"thesis.pdf": thesisPages("202001020107"),
	}}
	env := newTestEnv(t, engine, fakeDetector{}, [][2]string{{"202001020107", "登记册里完全不同的题目"}})
	writeInputs(t, env.inputDir, "thesis.pdf")

	_, err := env.orch.Run(context.Background(), env.inputDir, false)
	var conflict *ledger.TitleConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want *TitleConflictError", err)
	}
	if conflict.StudentID != "202001020107" {
		t.Errorf("conflict student = %q", conflict.StudentID)
	}
}

func TestRunLaterTitleMismatchIsSoft(t *testing.T) {
	engine := fakeEngine{pages: map[string][]ocr.Page{
		"a_thesis.pdf": thesisPages("202001020107"),
		"b_thesis.pdf": thesisPages("202001020109"),
	}}
	env := newTestEnv(t, engine, fakeDetector{}, [][2]string{
		{"202001020107", "基于X的研究"},
		{"202001020109", "登记册里不同的题目"},
	})
	writeInputs(t, env.inputDir, "a_thesis.pdf", "b_thesis.pdf")

	summary, err := env.orch.Run(context.Background(), env.inputDir, false)
	if err != nil {
		t.Fatalf("post-verification mismatch must not abort: %v", err)
	}
	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRunUnknownDocumentFails(t *testing.T) {
	engine := fakeEngine{pages: map[string][]ocr.Page{
		"mystery.pdf": {{line(100, 300, "完全无关的内容")}},
	}}
	env := newTestEnv(t, engine, fakeDetector{}, [][2]string{{"202001020107", "基于X的研究"}})
	writeInputs(t, env.inputDir, "mystery.pdf")

	summary, err := env.orch.Run(context.Background(), env.inputDir, false)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.FailedFiles[0].Reason != "unrecognized document type" {
		t.Errorf("reason = %q", summary.FailedFiles[0].Reason)
	}
}
