package classify

import "github.com/grape4ever/thesis-archiver/internal/geometry"

// Template is the versioned layout configuration for one generation of
// institutional paperwork: where each field lives on the page, how long
// student ids are, and which markers identify each document family.
// Region coordinates are in the OCR engine's rendered pixel space.
type Template struct {
	Name string

	// IDDigits is the exact digit count of a valid student id.
	IDDigits int

	// Title sub-regions for the thesis cover page; their text is
	// concatenated before cleaning.
	ThesisTitleRegions []geometry.Region

	ReportTitleRegion geometry.Region
	KtbgTitleRegion   geometry.Region

	ThesisIDRegion geometry.Region
	ReportIDRegion geometry.Region
	KtbgIDRegion   geometry.Region
	GradeIDRegion  geometry.Region

	SignatureRegion    geometry.Region
	SignaturePage      int // 0-based page index of the signature page
	SignatureThreshold float64

	// Filename markers deciding ktbg and grade sheets before any OCR text
	// is consulted.
	KtbgMarker  string
	GradeMarker string

	// TitleMarker identifies the thesis cover page; ReportMarker the
	// plagiarism-check report.
	TitleMarker  string
	ReportMarker string

	// SkipKeywords mark thesis-adjacent paperwork that must not be
	// processed at all (task statements, reviews, defense records...).
	SkipKeywords []string
}

// DefaultTemplate is the current 12-digit-id layout.
func DefaultTemplate() Template {
	return Template{
		Name:     "v2",
		IDDigits: 12,
		ThesisTitleRegions: []geometry.Region{
			geometry.Rect("thesis-title", 0, 200, 1000, 800),
		},
		ReportTitleRegion: geometry.Rect("report-title", 0, 300, 1000, 800),
		KtbgTitleRegion:   geometry.Rect("ktbg-title", 0, 0, 1000, 440),

		ThesisIDRegion: geometry.Rect("thesis-id", 500, 900, 900, 1300),
		ReportIDRegion: geometry.Rect("report-id", 80, 350, 500, 390),
		KtbgIDRegion:   geometry.Rect("ktbg-id", 195, 0, 1000, 440),
		GradeIDRegion:  geometry.Rect("grade-id", 500, 300, 1000, 500),

		SignatureRegion:    geometry.Rect("signature", 852, 691, 1010, 963),
		SignaturePage:      1,
		SignatureThreshold: 0.001,

		KtbgMarker:  "开题报告",
		GradeMarker: "成绩考核表",

		TitleMarker:  "题目",
		ReportMarker: "检测",

		SkipKeywords: []string{"任务书", "中期检查", "评审", "答辩", "进展情况", "过程记录"},
	}
}

// LegacyTemplate is the older 10-digit-id layout, kept so archived batches
// from earlier years remain processable.
func LegacyTemplate() Template {
	tpl := DefaultTemplate()
	tpl.Name = "v1"
	tpl.IDDigits = 10
	tpl.ThesisTitleRegions = []geometry.Region{
		geometry.Rect("thesis-title", 0, 500, 1000, 700),
	}
	tpl.ThesisIDRegion = geometry.Rect("thesis-id", 0, 1100, 1000, 1140)
	tpl.ReportIDRegion = geometry.Rect("report-id", 0, 250, 1000, 290)
	return tpl
}

// Templates maps template names to layouts for lookup from configuration.
func Templates() map[string]Template {
	byName := map[string]Template{}
	for _, tpl := range []Template{DefaultTemplate(), LegacyTemplate()} {
		byName[tpl.Name] = tpl
	}
	return byName
}
