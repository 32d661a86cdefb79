package constants

import "strings"

// TypeCodes maps a document type to its institutional short code used in
// canonical filenames.
var TypeCodes = map[string]string{
	"thesis": "LW",
	"report": "CCBG",
	"ktbg":   "CL",
	"grade":  "CL",
}

// DeferredTypes holds the document types that are not renamed individually
// but collected per student and shipped as a single archive.
var DeferredTypes = map[string]struct{}{
	"ktbg":  {},
	"grade": {},
}

// AllowedExtensions holds the default allowed file extensions for uploads.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"doc":  {},
	"docx": {},
	"zip":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
