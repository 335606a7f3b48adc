// Package layout computes per-sheet button allocation for a page's items.
//
// A page with more items than fit on the 13 content positions of the deck
// is split into sheets. Each sheet reserves a "previous" button if it is
// not the first sheet and a "next" button if it is not the last.
package layout

// TotalPositions is the number of deck positions (buttons 1-13) that a
// sheet's items and navigation buttons share; button 14 is not part of
// the layout.
const TotalPositions = 13

// Sheet describes one visible page of items.
type Sheet struct {
	Start     int // index of the first item on this sheet
	Cap       int // number of item slots on this sheet
	ShowPrev  bool
	ShowNext  bool
	PrevStart int // start index of the previous sheet (0 if none)
	NextStart int // start index of the next sheet (Start if none)
}

// Compute returns the full list of sheets for totalItems items given
// whether the back button is shown. The caller never needs to handle an
// error: the layout is total over all non-negative totalItems.
func Compute(totalItems int, showBack bool) []Sheet {
	baseSlots := TotalPositions
	if showBack {
		baseSlots--
	}
	if baseSlots < 1 {
		baseSlots = 1
	}

	if totalItems <= baseSlots {
		return []Sheet{{
			Start:     0,
			Cap:       baseSlots,
			ShowPrev:  false,
			ShowNext:  false,
			PrevStart: 0,
			NextStart: 0,
		}}
	}

	var sheets []Sheet
	start := 0
	for start < totalItems {
		showPrev := len(sheets) > 0
		// Tentatively assume this is not the last sheet; we'll correct
		// ShowNext once we know whether the capacity we reserved covers
		// the remaining items.
		reservedPrev := 0
		if showPrev {
			reservedPrev = 1
		}
		capWithNext := baseSlots - reservedPrev - 1
		if capWithNext < 1 {
			capWithNext = 1
		}

		remaining := totalItems - start
		isLast := remaining <= capWithNext
		cap := capWithNext
		if isLast {
			cap = baseSlots - reservedPrev
			if cap < 1 {
				cap = 1
			}
		}

		sheets = append(sheets, Sheet{
			Start:    start,
			Cap:      cap,
			ShowPrev: showPrev,
			ShowNext: !isLast,
		})
		start += cap
	}

	for i := range sheets {
		if i > 0 {
			sheets[i].PrevStart = sheets[i-1].Start
		} else {
			sheets[i].PrevStart = sheets[0].Start
		}
		if i < len(sheets)-1 {
			sheets[i].NextStart = sheets[i+1].Start
		} else {
			sheets[i].NextStart = sheets[i].Start
		}
	}

	return sheets
}

// Select picks the sheet that should be visible for desiredOffset: the
// sheet whose Start exactly equals desiredOffset, or failing that the
// sheet whose range contains desiredOffset, or failing that the last
// sheet.
func Select(sheets []Sheet, desiredOffset int) Sheet {
	for _, s := range sheets {
		if s.Start == desiredOffset {
			return s
		}
	}
	for _, s := range sheets {
		if desiredOffset >= s.Start && desiredOffset < s.Start+s.Cap {
			return s
		}
	}
	return sheets[len(sheets)-1]
}
