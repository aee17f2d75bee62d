package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// RowKind tags a parsed table row.
type RowKind int

// Row kinds.
const (
	RowHeader RowKind = iota + 1
	RowData
	RowFooter
)

func (k RowKind) String() string {
	switch k {
	case RowHeader:
		return "header"
	case RowData:
		return "data"
	case RowFooter:
		return "footer"
	default:
		return fmt.Sprintf("RowKind(%d)", int(k))
	}
}

// Row is one table row with its cell texts.
type Row struct {
	Kind  RowKind
	Cells []string
}

// Label is the first cell of the row.
func (r Row) Label() string {
	if len(r.Cells) == 0 {
		return ""
	}
	return r.Cells[0]
}

// rawRow is a row before it has been tagged.
type rawRow struct {
	cells  []string
	inHead bool
	onlyTH bool
}

// parseRows reads every row of the first table in markup.
func parseRows(markup string) ([]rawRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse table markup: %w", err)
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("markup has no table")
	}

	var rows []rawRow
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if !tr.Closest("table").IsSelection(table) {
			return
		}
		cells := tr.ChildrenFiltered("th, td")
		row := rawRow{
			inHead: tr.Parent().Is("thead"),
			onlyTH: cells.Length() > 0 && cells.Filter("td").Length() == 0,
		}
		cells.Each(func(_ int, cell *goquery.Selection) {
			row.cells = append(row.cells, cleanText(cell.Text()))
		})
		rows = append(rows, row)
	})
	return rows, nil
}

// parseTable parses markup and tags each row against the expected width.
func parseTable(markup string, width int) ([]Row, error) {
	raws, err := parseRows(markup)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(raws))
	for _, raw := range raws {
		rows = append(rows, Row{Kind: classifyRow(raw, width), Cells: raw.cells})
	}
	return rows, nil
}

// classifyRow decides the kind of a row from its shape and first cell.
func classifyRow(r rawRow, width int) RowKind {
	switch {
	case r.inHead || r.onlyTH:
		return RowHeader
	case len(r.cells) != width:
		return RowFooter
	case isHeaderLabel(r.cells[0]):
		return RowHeader
	default:
		return RowData
	}
}

// isHeaderLabel reports first cells that only appear on heading rows.
func isHeaderLabel(s string) bool {
	switch strings.ToUpper(s) {
	case "", "MÊS", "MES":
		return true
	}
	return false
}

// dataRows keeps only RowData entries.
func dataRows(rows []Row) []Row {
	out := rows[:0:0]
	for _, r := range rows {
		if r.Kind == RowData {
			out = append(out, r)
		}
	}
	return out
}

// cleanText collapses whitespace and normalizes to NFC.
func cleanText(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
