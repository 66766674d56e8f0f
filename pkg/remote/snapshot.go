package remote

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TableSnapshot is one rendered page of a result table: the header
// captions and the raw cell texts of each row. It carries no vendor
// structure beyond that; the matcher works on texts alone.
type TableSnapshot struct {
	// Captions are the header cell texts, in column order.
	Captions []string

	// Rows are the data rows; Rows[i][j] is the trimmed text of column j.
	Rows [][]string

	// HasNextPage is true when a non-disabled next-page affordance is
	// rendered with the table.
	HasNextPage bool
}

// ParseTableSnapshot extracts a TableSnapshot from a rendered HTML
// fragment. Header captions come from the table head (or the first row of
// header-styled cells), data rows from the body. Pager state is derived
// from the next-page button's disabled class.
func ParseTableSnapshot(html string) (*TableSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	snap := &TableSnapshot{}

	doc.Find("thead th, thead td, tr.dxgvHeader td, td.dxgvHeader").Each(func(_ int, sel *goquery.Selection) {
		snap.Captions = append(snap.Captions, cleanCell(sel.Text()))
	})

	doc.Find("tbody tr, tr.dxgvDataRow").Each(func(_ int, row *goquery.Selection) {
		if row.HasClass("dxgvHeader") {
			return
		}
		var cells []string
		row.Find("td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, cleanCell(cell.Text()))
		})
		if len(cells) > 0 {
			snap.Rows = append(snap.Rows, cells)
		}
	})

	doc.Find("[data-args*=\"PBN\"], .dxp-button").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if sel.HasClass("dxp-disabledButton") {
			return true
		}
		title, _ := sel.Attr("title")
		if strings.Contains(strings.ToLower(title), "next") || strings.Contains(sel.Text(), ">") {
			snap.HasNextPage = true
			return false
		}
		return true
	})

	return snap, nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func cleanCell(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// ContainsBusyIndicator reports whether the fragment renders a visible
// loading panel. Panels hidden with display:none do not count.
func ContainsBusyIndicator(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Unparseable snapshots are treated as busy upstream.
		return true
	}
	busy := false
	doc.Find(".dxlpLoadingPanel, .dxgvLoadingPanel, [id*='LPV'], [id*='LoadingPanel']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		style, _ := sel.Attr("style")
		if strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none") {
			return true
		}
		busy = true
		return false
	})
	return busy
}

var orderNumberPattern = regexp.MustCompile(`\b(?:ORD|OC)[-/]?(\d{2,}[-/]\d+|\d{4,})\b`)

// ExtractOrderNumber pulls the committed order identifier out of the
// post-commit page, or "" when none is rendered.
func ExtractOrderNumber(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var found string
	doc.Find("[id*='OrderNumber'], [id*='NumeroOrdine'], .order-number").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := cleanCell(sel.Text())
		if text != "" {
			found = text
			return false
		}
		return true
	})
	if found != "" {
		return found
	}
	return orderNumberPattern.FindString(doc.Text())
}

// LoadingPanelProber reports busy while the surface renders a visible
// loading panel.
type LoadingPanelProber struct {
	Surface Surface
}

// Name implements BusyProber.
func (LoadingPanelProber) Name() string { return "loading_panel" }

// Busy implements BusyProber.
func (p LoadingPanelProber) Busy(ctx context.Context) (bool, error) {
	html, err := p.Surface.HTML(ctx, "")
	if err != nil {
		return true, err
	}
	return ContainsBusyIndicator(html), nil
}

// CallbackProber reports busy while any tracked remote control, including
// controls nested inside other controls such as a lookup's embedded grid,
// reports being mid-callback through the vendor's client API.
type CallbackProber struct {
	Surface Surface

	// Controls are the control ids to probe. Nested controls must be
	// listed explicitly; the vendor API does not enumerate them.
	Controls []string
}

// Name implements BusyProber.
func (CallbackProber) Name() string { return "in_callback" }

// Busy implements BusyProber.
func (p CallbackProber) Busy(ctx context.Context) (bool, error) {
	for _, id := range p.Controls {
		val, err := p.Surface.ReadValue(ctx, "callback:"+id)
		if err != nil {
			// A control that is not on the current view is simply quiet.
			continue
		}
		if val == "true" || val == "1" {
			return true, nil
		}
	}
	return false, nil
}
