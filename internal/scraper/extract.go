package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/gpsjus-scraper/internal/await"
	"github.com/JakeFAU/gpsjus-scraper/internal/browser"
	"github.com/JakeFAU/gpsjus-scraper/internal/dataset"
	"github.com/JakeFAU/gpsjus-scraper/internal/metrics"
)

// maxStaleRetries bounds how many times a read restarts after the element was replaced.
const maxStaleRetries = 1

// Table names, also used as log and metric labels.
const (
	TableTotalBacklog        = "totalBacklog"
	TablePendingCases        = "pendingCasesByCategory"
	TablePendingProceedings  = "pendingProceedingsAndPetitions"
	TableSuspended           = "suspendedOrProvisionallyArchived"
	TableClosedByType        = "closedCasesByType"
	TableCustody             = "custodyControl"
	TableDiligence           = "diligenceControl"
	TableMonthlyDistribution = "monthlyDistributionStatement"
	TableClosedLast12Months  = "casesClosedLast12Months"
	TableJudicialActs        = "judicialActsIssued"
)

// Extractor reads every dashboard table for the unit currently shown.
// Each table is an independent failure domain: a table that cannot be
// found or parsed yields an empty mapping and a warning.
type Extractor struct {
	dom    browser.DOM
	layout Layout
	poller await.Poller
	logger *zap.Logger
}

// NewExtractor builds an Extractor. poller bounds the wait for each table.
func NewExtractor(dom browser.DOM, layout Layout, poller await.Poller, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	poller.Logger = logger
	poller.Ignore = append(poller.Ignore, browser.ErrStaleElement, browser.ErrNotFound)
	return &Extractor{
		dom:    dom,
		layout: layout.Merge(DefaultLayout()),
		poller: poller,
		logger: logger,
	}
}

// Record extracts all tables into a fresh record for the given unit.
func (e *Extractor) Record(ctx context.Context, id int, name string) dataset.UnitRecord {
	return dataset.UnitRecord{
		ID:                               id,
		Name:                             name,
		TotalBacklog:                     e.TotalBacklog(ctx),
		PendingCasesByCategory:           e.PendingCases(ctx),
		PendingProceedingsAndPetitions:   e.PendingProceedings(ctx),
		SuspendedOrProvisionallyArchived: e.Suspended(ctx),
		ClosedCasesByType:                e.ClosedByType(ctx),
		CustodyControl:                   e.Custody(ctx),
		DiligenceControl:                 e.Diligence(ctx),
		MonthlyDistributionStatement:     e.MonthlyDistribution(ctx),
		CasesClosedLast12Months:          e.ClosedLast12Months(ctx),
		JudicialActsIssued:               e.JudicialActs(ctx),
	}
}

// TotalBacklog reads the headline backlog figure, or "N/A".
func (e *Extractor) TotalBacklog(ctx context.Context) string {
	anchor := e.layout.TotalBacklog
	if err := e.waitFor(ctx, TableTotalBacklog, anchor); err != nil {
		e.fail(TableTotalBacklog, err)
		return dataset.BacklogUnavailable
	}
	text, err := readStale(ctx, func(ctx context.Context) (string, error) {
		return e.dom.Text(ctx, anchor)
	})
	if err != nil {
		e.fail(TableTotalBacklog, err)
		return dataset.BacklogUnavailable
	}
	text = cleanText(text)
	if text == "" {
		return dataset.BacklogUnavailable
	}
	return text
}

// PendingCases reads "Processos em tramitação".
func (e *Extractor) PendingCases(ctx context.Context) map[string]dataset.CaseBucket {
	rows, err := e.rows(ctx, TablePendingCases, e.layout.PendingCases, 4)
	if err != nil {
		e.fail(TablePendingCases, err)
		return map[string]dataset.CaseBucket{}
	}
	return pendingCases(rows)
}

// PendingProceedings reads "Procedimentos e petições em tramitação".
func (e *Extractor) PendingProceedings(ctx context.Context) map[string]dataset.CaseBucket {
	return e.bucketTable(ctx, TablePendingProceedings, e.layout.PendingProceedings)
}

// ClosedByType reads "Processos Conclusos por Tipo".
func (e *Extractor) ClosedByType(ctx context.Context) map[string]dataset.CaseBucket {
	return e.bucketTable(ctx, TableClosedByType, e.layout.ClosedByType)
}

// Suspended reads "Suspensos / Arquivo provisório".
func (e *Extractor) Suspended(ctx context.Context) map[string]dataset.CaseBucket4 {
	out := map[string]dataset.CaseBucket4{}
	rows, err := e.rows(ctx, TableSuspended, e.layout.Suspended, 5)
	if err != nil {
		e.fail(TableSuspended, err)
		return out
	}
	for _, r := range dataRows(rows) {
		out[r.Label()] = dataset.CaseBucket4{
			Total:       r.Cells[1],
			Over60Days:  r.Cells[2],
			Over100Days: r.Cells[3],
			Over730Days: r.Cells[4],
		}
	}
	return out
}

// Custody reads "Controle de Prisões".
func (e *Extractor) Custody(ctx context.Context) map[string]string {
	return e.totalsTable(ctx, TableCustody, e.layout.Custody)
}

// Diligence reads "Controle de Diligências (PJe)".
func (e *Extractor) Diligence(ctx context.Context) map[string]string {
	return e.totalsTable(ctx, TableDiligence, e.layout.Diligence)
}

func (e *Extractor) bucketTable(ctx context.Context, table, anchor string) map[string]dataset.CaseBucket {
	out := map[string]dataset.CaseBucket{}
	rows, err := e.rows(ctx, table, anchor, 4)
	if err != nil {
		e.fail(table, err)
		return out
	}
	for _, r := range dataRows(rows) {
		out[r.Label()] = bucket(r)
	}
	return out
}

func (e *Extractor) totalsTable(ctx context.Context, table, anchor string) map[string]string {
	out := map[string]string{}
	rows, err := e.rows(ctx, table, anchor, 2)
	if err != nil {
		e.fail(table, err)
		return out
	}
	for _, r := range dataRows(rows) {
		out[r.Label()] = r.Cells[1]
	}
	return out
}

// rows waits for the anchor, reads its markup and tags the rows.
func (e *Extractor) rows(ctx context.Context, table, anchor string, width int) ([]Row, error) {
	markup, err := e.markup(ctx, table, anchor)
	if err != nil {
		return nil, err
	}
	return parseTable(markup, width)
}

func (e *Extractor) markup(ctx context.Context, table, anchor string) (string, error) {
	if err := e.waitFor(ctx, table, anchor); err != nil {
		return "", err
	}
	return readStale(ctx, func(ctx context.Context) (string, error) {
		return e.dom.OuterHTML(ctx, anchor)
	})
}

func (e *Extractor) waitFor(ctx context.Context, table, anchor string) error {
	return e.poller.Until(ctx, func(ctx context.Context) (bool, error) {
		return e.dom.Exists(ctx, anchor)
	}, fmt.Sprintf("table %s present", table))
}

func (e *Extractor) fail(table string, err error) {
	metrics.ObserveTableFailure(table)
	e.logger.Warn("table extraction failed",
		zap.String("table", table),
		zap.Error(err),
	)
}

// readStale runs read again from scratch when the element was replaced mid-read.
func readStale[T any](ctx context.Context, read func(context.Context) (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	for attempt := 0; attempt <= maxStaleRetries; attempt++ {
		v, err = read(ctx)
		if !errors.Is(err, browser.ErrStaleElement) {
			return v, err
		}
		if attempt < maxStaleRetries {
			metrics.ObserveStaleRetry()
		}
	}
	return v, err
}

func bucket(r Row) dataset.CaseBucket {
	return dataset.CaseBucket{
		Total:       r.Cells[1],
		Over60Days:  r.Cells[2],
		Over100Days: r.Cells[3],
	}
}

// unjudgedLabel marks the sub-row that belongs to the preceding category.
const unjudgedLabel = "NÃO JULGADOS"

// classifyCategory maps a pending-cases row label to its category. The more
// specific execution labels are checked before the generic one.
func classifyCategory(label string) (category string, unjudged bool) {
	up := strings.ToUpper(cleanText(label))
	hasExec := strings.Contains(up, "EXECUÇÃO")
	switch {
	case strings.Contains(up, dataset.CategoryFiscalExecution):
		return dataset.CategoryFiscalExecution, false
	case strings.Contains(up, dataset.CategoryCriminalExecution):
		return dataset.CategoryCriminalExecution, false
	case hasExec && !strings.Contains(up, "FISCAL") && !strings.Contains(up, "CRIMINAL"):
		return dataset.CategoryExecution, false
	case strings.Contains(up, dataset.CategoryKnowledge):
		return dataset.CategoryKnowledge, false
	case strings.Contains(up, dataset.CategoryTotal):
		return dataset.CategoryTotal, false
	case strings.Contains(up, unjudgedLabel):
		return "", true
	default:
		return "", false
	}
}

// takesUnjudged lists the categories that carry a "Não julgados" sub-row.
func takesUnjudged(category string) bool {
	return category == dataset.CategoryKnowledge || category == dataset.CategoryFiscalExecution
}

// pendingCategories is the fixed key set of a parsed "Processos em tramitação" table.
var pendingCategories = []string{
	dataset.CategoryKnowledge,
	dataset.CategoryExecution,
	dataset.CategoryFiscalExecution,
	dataset.CategoryCriminalExecution,
	dataset.CategoryTotal,
}

// pendingCases folds the tagged rows into category buckets. Every category
// key is present, zero-valued when its row is missing. A "Não julgados" row
// attaches to the most recent category row when that is CONHECIMENTO or
// EXECUÇÃO FISCAL. TOTAL and unlabelled rows leave the current category alone.
func pendingCases(rows []Row) map[string]dataset.CaseBucket {
	out := make(map[string]dataset.CaseBucket, len(pendingCategories))
	for _, c := range pendingCategories {
		out[c] = dataset.CaseBucket{}
	}
	current := ""
	for _, r := range dataRows(rows) {
		category, unjudged := classifyCategory(r.Label())
		switch {
		case unjudged:
			if takesUnjudged(current) {
				b := out[current]
				sub := bucket(r)
				b.Unjudged = &sub
				out[current] = b
			}
		case category == dataset.CategoryTotal:
			out[category] = bucket(r)
		case category != "":
			out[category] = bucket(r)
			current = category
		}
	}
	return out
}
