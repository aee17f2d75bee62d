// Package dataset defines the records produced by a scrape run and their JSON form.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Pending-case categories as labelled on the dashboard.
const (
	CategoryKnowledge         = "CONHECIMENTO"
	CategoryExecution         = "EXECUÇÃO"
	CategoryFiscalExecution   = "EXECUÇÃO FISCAL"
	CategoryCriminalExecution = "EXECUÇÃO CRIMINAL"
	CategoryTotal             = "TOTAL"
)

// BacklogUnavailable is recorded when the backlog figure cannot be read.
const BacklogUnavailable = "N/A"

// CaseBucket holds a total plus aged subtotals for one category of cases.
// Unjudged is only ever set for CONHECIMENTO and EXECUÇÃO FISCAL.
type CaseBucket struct {
	Total       string      `json:"total"`
	Over60Days  string      `json:"over60Days"`
	Over100Days string      `json:"over100Days"`
	Unjudged    *CaseBucket `json:"unjudged,omitempty"`
}

// CaseBucket4 is the suspended-cases variant with a 730-day column.
type CaseBucket4 struct {
	Total       string `json:"total"`
	Over60Days  string `json:"over60Days"`
	Over100Days string `json:"over100Days"`
	Over730Days string `json:"over730Days"`
}

// MonthlySeries is one labelled row of a month-by-month table.
type MonthlySeries struct {
	Monthly map[string]string `json:"monthly"`
	Total   string            `json:"total"`
}

// UnitRecord is everything extracted for a single unit in one run.
type UnitRecord struct {
	ID                               int                      `json:"id"`
	Name                             string                   `json:"name"`
	TotalBacklog                     string                   `json:"totalBacklog"`
	PendingCasesByCategory           map[string]CaseBucket    `json:"pendingCasesByCategory"`
	PendingProceedingsAndPetitions   map[string]CaseBucket    `json:"pendingProceedingsAndPetitions"`
	SuspendedOrProvisionallyArchived map[string]CaseBucket4   `json:"suspendedOrProvisionallyArchived"`
	ClosedCasesByType                map[string]CaseBucket    `json:"closedCasesByType"`
	CustodyControl                   map[string]string        `json:"custodyControl"`
	DiligenceControl                 map[string]string        `json:"diligenceControl"`
	MonthlyDistributionStatement     map[string]MonthlySeries `json:"monthlyDistributionStatement"`
	CasesClosedLast12Months          map[string]MonthlySeries `json:"casesClosedLast12Months"`
	JudicialActsIssued               map[string]MonthlySeries `json:"judicialActsIssued"`
}

// Dataset is the ordered list of records for a run.
type Dataset []UnitRecord

// Validate checks that ids are unique and strictly increasing.
func (d Dataset) Validate() error {
	prev := 0
	for i, rec := range d {
		if rec.ID <= 0 {
			return fmt.Errorf("record %d: id must be > 0, got %d", i, rec.ID)
		}
		if i > 0 && rec.ID <= prev {
			return fmt.Errorf("record %d: id %d is not greater than previous id %d", i, rec.ID, prev)
		}
		prev = rec.ID
	}
	return nil
}

// Find returns the record with the given id.
func (d Dataset) Find(id int) (UnitRecord, bool) {
	for _, rec := range d {
		if rec.ID == id {
			return rec, true
		}
	}
	return UnitRecord{}, false
}

// Marshal renders the dataset as indented UTF-8 JSON. Output is stable for equal input.
func Marshal(d Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes the dataset to w in the same form as Marshal.
func Encode(w io.Writer, d Dataset) error {
	out := make(Dataset, len(d))
	for i, rec := range d {
		out[i] = rec.normalized()
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	return nil
}

// Decode parses a dataset document. Empty input decodes to an empty dataset.
func Decode(r io.Reader) (Dataset, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return Dataset{}, nil
	}
	var d Dataset
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if d == nil {
		d = Dataset{}
	}
	return d, nil
}

// normalized replaces nil maps with empty ones so absent tables encode as {}.
func (r UnitRecord) normalized() UnitRecord {
	r.PendingCasesByCategory = orEmpty(r.PendingCasesByCategory)
	r.PendingProceedingsAndPetitions = orEmpty(r.PendingProceedingsAndPetitions)
	r.SuspendedOrProvisionallyArchived = orEmpty(r.SuspendedOrProvisionallyArchived)
	r.ClosedCasesByType = orEmpty(r.ClosedCasesByType)
	r.CustodyControl = orEmpty(r.CustodyControl)
	r.DiligenceControl = orEmpty(r.DiligenceControl)
	r.MonthlyDistributionStatement = normalizeSeries(r.MonthlyDistributionStatement)
	r.CasesClosedLast12Months = normalizeSeries(r.CasesClosedLast12Months)
	r.JudicialActsIssued = normalizeSeries(r.JudicialActsIssued)
	return r
}

func orEmpty[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}

func normalizeSeries(m map[string]MonthlySeries) map[string]MonthlySeries {
	if m == nil {
		return map[string]MonthlySeries{}
	}
	out := make(map[string]MonthlySeries, len(m))
	for k, v := range m {
		v.Monthly = orEmpty(v.Monthly)
		out[k] = v
	}
	return out
}
