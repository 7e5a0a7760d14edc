package annotation

// Window is a contiguous, inclusive page range submitted to one detection job.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Pages returns the number of pages covered by the window.
func (w Window) Pages() int {
	if w.End < w.Start {
		return 0
	}
	return w.End - w.Start + 1
}

// NextWindow computes the next page range to submit for a document.
//
// The true page count is unknown until the job's first response, so the first
// window optimistically requests up to limit pages. Once the count is known
// the window is clamped to it.
func NextWindow(annotatedPages int, pageCount *int, limit int) Window {
	if limit <= 0 {
		limit = 1
	}
	start := annotatedPages + 1
	end := annotatedPages + limit
	if pageCount != nil && end > *pageCount {
		end = *pageCount
	}
	return Window{Start: start, End: end}
}

// Complete reports whether every page of the document has been annotated.
// It is false while the page count is still unknown.
func Complete(annotatedPages int, pageCount *int) bool {
	return pageCount != nil && annotatedPages == *pageCount
}

// Advance returns the annotated-page watermark after a window has been
// applied. The detection job reports the authoritative page count, which may
// be smaller than the requested window end.
func Advance(window Window, reportedPageCount int) int {
	if reportedPageCount < window.End {
		return reportedPageCount
	}
	return window.End
}
