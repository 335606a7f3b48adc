package daemon

import (
	"testing"

	"github.com/wozt/goofydeck-sub000/internal/ddconfig"
	"github.com/wozt/goofydeck-sub000/internal/partial"
	"github.com/wozt/goofydeck-sub000/internal/layout"
)

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		current string
		want    string
	}{
		{"empty stays put", "", "lights", "lights"},
		{"plain page name", "kitchen", "lights", "kitchen"},
		{"legacy leading slash stripped", "/kitchen", "lights", "kitchen"},
		{"root via slash", "/" + ddconfig.RootPageName, "lights", ddconfig.RootPageName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveTarget(tt.target, tt.current); got != tt.want {
				t.Errorf("resolveTarget(%q, %q) = %q, want %q", tt.target, tt.current, got, tt.want)
			}
		})
	}
}

func TestRenderSignatureDiffersOnContentChange(t *testing.T) {
	sheet := layout.Sheet{Start: 0, Cap: 3}
	slotsA := []partial.VisibleSlot{
		{Button: 1, Item: ddconfig.Item{Name: "lights-on"}},
		{Button: 2, Item: ddconfig.Item{Name: "lights-off"}},
	}
	slotsB := []partial.VisibleSlot{
		{Button: 1, Item: ddconfig.Item{Name: "lights-on"}},
		{Button: 2, Item: ddconfig.Item{Name: "fan-off"}},
	}

	sigA := renderSignature(slotsA, sheet)
	sigB := renderSignature(slotsB, sheet)
	sigA2 := renderSignature(slotsA, sheet)

	if sigA != sigA2 {
		t.Errorf("renderSignature not stable across identical input: %q != %q", sigA, sigA2)
	}
	if sigA == sigB {
		t.Errorf("renderSignature did not change when item content changed: %q", sigA)
	}
}

func TestClassifySystemButton(t *testing.T) {
	cfg := &ddconfig.Config{PosBack: 13, PosPrev: 1, PosNext: 12}

	tests := []struct {
		name   string
		page   string
		sheet  layout.Sheet
		button int
		want   systemButtonAction
	}{
		{"back on non-root page", "kitchen", layout.Sheet{}, 13, systemButtonBack},
		{"back position on root is a content slot", ddconfig.RootPageName, layout.Sheet{}, 13, systemButtonNone},
		{"prev when sheet shows it", "kitchen", layout.Sheet{ShowPrev: true}, 1, systemButtonPrev},
		{"prev position on first sheet is a content slot", "kitchen", layout.Sheet{ShowPrev: false}, 1, systemButtonNone},
		{"next when sheet shows it", "kitchen", layout.Sheet{ShowNext: true}, 12, systemButtonNext},
		{"next position on last sheet is a content slot", "kitchen", layout.Sheet{ShowNext: false}, 12, systemButtonNone},
		{"unrelated button", "kitchen", layout.Sheet{ShowPrev: true, ShowNext: true}, 5, systemButtonNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifySystemButton(cfg, tt.page, tt.sheet, tt.button); got != tt.want {
				t.Errorf("classifySystemButton(%q, %+v, %d) = %v, want %v", tt.page, tt.sheet, tt.button, got, tt.want)
			}
		})
	}
}

func TestRenderSignatureDiffersOnSheetChange(t *testing.T) {
	slots := []partial.VisibleSlot{
		{Button: 1, Item: ddconfig.Item{Name: "lights-on"}},
	}
	sigPage1 := renderSignature(slots, layout.Sheet{Start: 0, Cap: 3})
	sigPage2 := renderSignature(slots, layout.Sheet{Start: 3, Cap: 3})

	if sigPage1 == sigPage2 {
		t.Errorf("renderSignature did not change across different sheets: %q", sigPage1)
	}
}
