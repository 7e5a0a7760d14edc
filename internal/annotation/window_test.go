package annotation

import "testing"

func intPtr(n int) *int { return &n }

func TestNextWindow(t *testing.T) {
	tests := []struct {
		name      string
		annotated int
		pageCount *int
		limit     int
		want      Window
	}{
		{"first window unknown total", 0, nil, 50, Window{1, 50}},
		{"first window short document", 0, intPtr(30), 50, Window{1, 30}},
		{"second window clamps to total", 50, intPtr(80), 50, Window{51, 80}},
		{"middle window full size", 50, intPtr(200), 50, Window{51, 100}},
		{"resumed with unknown total", 30, nil, 50, Window{31, 80}},
		{"zero limit defended", 0, nil, 0, Window{1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextWindow(tt.annotated, tt.pageCount, tt.limit)
			if got != tt.want {
				t.Errorf("NextWindow(%d, %v, %d) = %+v, want %+v",
					tt.annotated, tt.pageCount, tt.limit, got, tt.want)
			}
		})
	}
}

func TestComplete(t *testing.T) {
	if Complete(10, nil) {
		t.Error("document with unknown page count must not be complete")
	}
	if Complete(10, intPtr(20)) {
		t.Error("10 of 20 pages must not be complete")
	}
	if !Complete(20, intPtr(20)) {
		t.Error("20 of 20 pages must be complete")
	}
}

func TestAdvance(t *testing.T) {
	// Requested [1,50] but the job reports only 30 pages exist.
	if got := Advance(Window{1, 50}, 30); got != 30 {
		t.Errorf("Advance = %d, want 30", got)
	}
	// Requested [51,80] of a 80-page document.
	if got := Advance(Window{51, 80}, 80); got != 80 {
		t.Errorf("Advance = %d, want 80", got)
	}
	// Full-size middle window.
	if got := Advance(Window{51, 100}, 200); got != 100 {
		t.Errorf("Advance = %d, want 100", got)
	}
}

func TestWindowPages(t *testing.T) {
	if got := (Window{1, 50}).Pages(); got != 50 {
		t.Errorf("Pages = %d, want 50", got)
	}
	if got := (Window{51, 51}).Pages(); got != 1 {
		t.Errorf("Pages = %d, want 1", got)
	}
	if got := (Window{5, 4}).Pages(); got != 0 {
		t.Errorf("Pages = %d, want 0", got)
	}
}
