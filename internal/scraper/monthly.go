package scraper

import (
	"context"
	"errors"
	"strings"

	"github.com/JakeFAU/gpsjus-scraper/internal/dataset"
)

// balanceLabel is the full label of the distribution statement's balance row.
const balanceLabel = "Saldo (entradas - saídas)"

var errNoHeader = errors.New("table has no header row")

// MonthlyDistribution reads "Demonstrativo de Distribuições".
func (e *Extractor) MonthlyDistribution(ctx context.Context) map[string]dataset.MonthlySeries {
	return e.monthlyTable(ctx, TableMonthlyDistribution, e.layout.MonthlyDistribution, distributionLabel)
}

// ClosedLast12Months reads "Processos Baixados".
func (e *Extractor) ClosedLast12Months(ctx context.Context) map[string]dataset.MonthlySeries {
	return e.monthlyTable(ctx, TableClosedLast12Months, e.layout.ClosedLast12Months, nil)
}

// JudicialActs reads "Atos Judiciais Proferidos".
func (e *Extractor) JudicialActs(ctx context.Context) map[string]dataset.MonthlySeries {
	return e.monthlyTable(ctx, TableJudicialActs, e.layout.JudicialActs, nil)
}

func (e *Extractor) monthlyTable(
	ctx context.Context,
	table, anchor string,
	label func(string) string,
) map[string]dataset.MonthlySeries {
	markup, err := e.markup(ctx, table, anchor)
	if err != nil {
		e.fail(table, err)
		return map[string]dataset.MonthlySeries{}
	}
	out, err := monthlySeries(markup, label)
	if err != nil {
		e.fail(table, err)
		return map[string]dataset.MonthlySeries{}
	}
	return out
}

// monthlySeries parses a month-by-month table. The header row names the
// months; a trailing "Total" column becomes the series total.
func monthlySeries(markup string, label func(string) string) (map[string]dataset.MonthlySeries, error) {
	raws, err := parseRows(markup)
	if err != nil {
		return nil, err
	}
	headerAt := -1
	for i, raw := range raws {
		if len(raw.cells) > 1 && (raw.inHead || raw.onlyTH || isHeaderLabel(raw.cells[0])) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, errNoHeader
	}
	header := raws[headerAt].cells
	width := len(header)
	months := header[1:]
	hasTotal := strings.EqualFold(header[width-1], "Total")
	if hasTotal {
		months = header[1 : width-1]
	}

	out := map[string]dataset.MonthlySeries{}
	for i, raw := range raws {
		if i == headerAt || classifyRow(raw, width) != RowData {
			continue
		}
		series := dataset.MonthlySeries{Monthly: make(map[string]string, len(months))}
		for j, month := range months {
			series.Monthly[month] = raw.cells[j+1]
		}
		if hasTotal {
			series.Total = raw.cells[width-1]
		}
		name := raw.cells[0]
		if label != nil {
			name = label(name)
		}
		out[name] = series
	}
	return out, nil
}

func distributionLabel(s string) string {
	if strings.HasPrefix(strings.ToUpper(s), "SALDO") {
		return balanceLabel
	}
	return s
}
