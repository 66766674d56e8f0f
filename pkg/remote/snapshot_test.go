package remote

import (
	"context"
	"testing"
)

const lookupGridHTML = `
<table id="lookupArticle_grid">
  <thead>
    <tr><th>Codice</th><th>Contenuto</th><th>Multiplo</th></tr>
  </thead>
  <tbody>
    <tr class="dxgvDataRow"><td>10839.314.016K1</td><td>1,00</td><td>1</td></tr>
    <tr class="dxgvDataRow"><td>10839.314.016K3</td><td>5,00</td><td>10</td></tr>
  </tbody>
</table>
<div class="dxp-button" title="Next">&gt;</div>
`

func TestParseTableSnapshot(t *testing.T) {
	snap, err := ParseTableSnapshot(lookupGridHTML)
	if err != nil {
		t.Fatalf("ParseTableSnapshot failed: %v", err)
	}

	wantCaptions := []string{"Codice", "Contenuto", "Multiplo"}
	if len(snap.Captions) != len(wantCaptions) {
		t.Fatalf("expected %d captions, got %v", len(wantCaptions), snap.Captions)
	}
	for i, want := range wantCaptions {
		if snap.Captions[i] != want {
			t.Errorf("caption %d: expected %q, got %q", i, want, snap.Captions[i])
		}
	}

	if len(snap.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(snap.Rows))
	}
	if snap.Rows[1][0] != "10839.314.016K3" || snap.Rows[1][1] != "5,00" {
		t.Errorf("unexpected row content: %v", snap.Rows[1])
	}

	if !snap.HasNextPage {
		t.Error("expected next page to be detected")
	}
}

func TestParseTableSnapshotDisabledPager(t *testing.T) {
	html := `
<table><tbody><tr class="dxgvDataRow"><td>only</td></tr></tbody></table>
<div class="dxp-button dxp-disabledButton" title="Next">&gt;</div>
`
	snap, err := ParseTableSnapshot(html)
	if err != nil {
		t.Fatalf("ParseTableSnapshot failed: %v", err)
	}
	if snap.HasNextPage {
		t.Error("disabled pager must not report a next page")
	}
}

func TestParseTableSnapshotNormalizesWhitespace(t *testing.T) {
	html := `<table><tbody><tr class="dxgvDataRow"><td>  10839
	.314  </td></tr></tbody></table>`
	snap, err := ParseTableSnapshot(html)
	if err != nil {
		t.Fatalf("ParseTableSnapshot failed: %v", err)
	}
	if snap.Rows[0][0] != "10839 .314" {
		t.Errorf("whitespace not normalized: %q", snap.Rows[0][0])
	}
}

func TestContainsBusyIndicator(t *testing.T) {
	tests := []struct {
		name string
		html string
		want bool
	}{
		{"visible panel", `<div class="dxlpLoadingPanel"></div>`, true},
		{"hidden panel", `<div class="dxlpLoadingPanel" style="display: none;"></div>`, false},
		{"id match", `<div id="gvOrderLines_LPV"></div>`, true},
		{"clean page", `<html><body><p>done</p></body></html>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContainsBusyIndicator(tt.html); got != tt.want {
				t.Errorf("ContainsBusyIndicator = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractOrderNumber(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			"labelled element",
			`<span id="lblOrderNumber">ORD-2024/123</span>`,
			"ORD-2024/123",
		},
		{
			"italian element id",
			`<span id="lblNumeroOrdine">OC 88/4512</span>`,
			"OC 88/4512",
		},
		{
			"pattern in body text",
			`<p>Ordine salvato: ORD-2024/55 confermato</p>`,
			"ORD-2024/55",
		},
		{
			"nothing extractable",
			`<p>Ordine salvato</p>`,
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractOrderNumber(tt.html); got != tt.want {
				t.Errorf("ExtractOrderNumber = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCallbackProberTreatsMissingControlsAsQuiet(t *testing.T) {
	s := newStubSurface()
	p := CallbackProber{Surface: s, Controls: []string{"gone"}}

	busy, err := p.Busy(context.Background())
	if err != nil {
		t.Fatalf("Busy failed: %v", err)
	}
	if busy {
		t.Error("a control absent from the view must read as quiet")
	}
}
