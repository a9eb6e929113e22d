package indexbuilder

import "github.com/astrid-voss/musium/internal/scanner"

// BuildFromScan validates every scanned file and folds it into a fresh
// MemoryIndex. This never fails as a whole: unparsable files are dropped
// with an error-severity Issue, everything else is kept.
func BuildFromScan(files []scanner.FileMetadata) *MemoryIndex {
	b := NewBuilder()
	for _, fm := range files {
		r, ok, issues := parseRow(fm)
		b.Issues(issues...)
		if !ok {
			continue
		}
		b.AddRow(r)
	}
	return b.Build()
}
