package pixelpipe

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// diagPrinter formats diagnostic strings surfaced to GUI callers (NaN
// guard findings, cache-eviction notices) with locale-aware number
// grouping, so a caller displaying pipeline diagnostics doesn't have to
// reimplement its own formatting for every locale it supports.
var diagPrinter = message.NewPrinter(language.English)

// SetDiagnosticsLocale changes the locale used to format diagnostic
// strings returned by NaNGuardReport.String() and cache-eviction
// messages. The zero value (English) is used until this is called.
func SetDiagnosticsLocale(tag language.Tag) {
	diagPrinter = message.NewPrinter(tag)
}

// NaNGuardReport summarizes one node's NaN-guard scan.
type NaNGuardReport struct {
	NodeName  string
	Width     int
	Height    int
	BadCount  int64
	FirstBadX int
	FirstBadY int
}

// String formats the report the way a GUI status line would show it.
func (r NaNGuardReport) String() string {
	if r.BadCount == 0 {
		return diagPrinter.Sprintf("%s: no NaN/Inf pixels in %d×%d output", r.NodeName, r.Width, r.Height)
	}
	return diagPrinter.Sprintf("%s: %d NaN/Inf pixel(s) found, first at (%d, %d)",
		r.NodeName, r.BadCount, r.FirstBadX, r.FirstBadY)
}

// cacheEvictionNotice formats a message describing an eviction driven by
// capacity pressure; the driver logs it at debug level whenever a Reserve
// on a full cache misses and so replaces an entry.
func cacheEvictionNotice(fingerprint uint64, bytes int, totalEntries, capacity int) string {
	return diagPrinter.Sprintf("evicted buffer %#x (%d bytes); cache now holds %d of %d entries",
		fingerprint, bytes, totalEntries, capacity)
}
