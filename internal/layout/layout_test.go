package layout

import "testing"

func TestComputeSingleSheet(t *testing.T) {
	sheets := Compute(3, false)
	if len(sheets) != 1 {
		t.Fatalf("expected 1 sheet, got %d", len(sheets))
	}
	s := sheets[0]
	if s.Start != 0 || s.Cap != TotalPositions || s.ShowPrev || s.ShowNext {
		t.Fatalf("unexpected single sheet: %+v", s)
	}
}

func TestComputeSingleSheetWithBack(t *testing.T) {
	sheets := Compute(3, true)
	if len(sheets) != 1 {
		t.Fatalf("expected 1 sheet, got %d", len(sheets))
	}
	if sheets[0].Cap != TotalPositions-1 {
		t.Fatalf("expected cap %d, got %d", TotalPositions-1, sheets[0].Cap)
	}
}

func TestComputeInvariants(t *testing.T) {
	for total := 0; total <= 256; total++ {
		for _, showBack := range []bool{true, false} {
			sheets := Compute(total, showBack)
			baseSlots := TotalPositions
			if showBack {
				baseSlots--
			}
			if baseSlots < 1 {
				baseSlots = 1
			}

			if sheets[0].Start != 0 {
				t.Fatalf("total=%d showBack=%v: S0.start=%d want 0", total, showBack, sheets[0].Start)
			}
			for i := 0; i < len(sheets)-1; i++ {
				if sheets[i].Start+sheets[i].Cap != sheets[i+1].Start {
					t.Fatalf("total=%d showBack=%v: sheet %d boundary mismatch: %+v -> %+v", total, showBack, i, sheets[i], sheets[i+1])
				}
			}
			last := sheets[len(sheets)-1]
			if last.Start+last.Cap < total {
				t.Fatalf("total=%d showBack=%v: last sheet doesn't cover all items: %+v", total, showBack, last)
			}
			for i, s := range sheets {
				wantPrev := i > 0
				wantNext := i < len(sheets)-1
				if s.ShowPrev != wantPrev {
					t.Fatalf("total=%d showBack=%v: sheet %d ShowPrev=%v want %v", total, showBack, i, s.ShowPrev, wantPrev)
				}
				if s.ShowNext != wantNext {
					t.Fatalf("total=%d showBack=%v: sheet %d ShowNext=%v want %v", total, showBack, i, s.ShowNext, wantNext)
				}
				reserved := 0
				if wantPrev {
					reserved++
				}
				if wantNext {
					reserved++
				}
				wantCap := baseSlots - reserved
				if wantCap < 1 {
					wantCap = 1
				}
				if s.Cap != wantCap {
					t.Fatalf("total=%d showBack=%v: sheet %d cap=%d want %d", total, showBack, i, s.Cap, wantCap)
				}
				if s.Cap < 1 {
					t.Fatalf("total=%d showBack=%v: sheet %d cap < 1", total, showBack, i)
				}
			}
		}
	}
}

func TestSelectExactStart(t *testing.T) {
	sheets := Compute(20, false)
	sel := Select(sheets, 12)
	if sel.Start != 12 {
		t.Fatalf("expected start 12, got %d", sel.Start)
	}
}

func TestSelectWithinRange(t *testing.T) {
	sheets := Compute(20, false)
	sel := Select(sheets, 5)
	if sel.Start != 0 {
		t.Fatalf("expected start 0, got %d", sel.Start)
	}
}

func TestPaginationScenario(t *testing.T) {
	// Scenario 2: 20 items, show_back=false.
	sheets := Compute(20, false)
	first := sheets[0]
	if first.Cap != 12 {
		t.Fatalf("expected first sheet cap 12, got %d", first.Cap)
	}
	if first.NextStart != 12 {
		t.Fatalf("expected next_start 12, got %d", first.NextStart)
	}
	second := Select(sheets, 12)
	if !second.ShowPrev {
		t.Fatalf("second sheet should show prev")
	}
	if second.ShowNext {
		t.Fatalf("second sheet should not show next (only 8 items remain)")
	}
}
