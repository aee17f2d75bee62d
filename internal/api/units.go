package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/gpsjus-scraper/internal/dataset"
	"github.com/JakeFAU/gpsjus-scraper/internal/storage"
)

const (
	defaultUnitLimit = 100
	maxUnitLimit     = 1000
	noData           = "no data"
)

// section selects one table of a record and reports how many entries it has.
type section func(dataset.UnitRecord) (any, int)

var sections = map[string]section{
	"pending-cases": func(r dataset.UnitRecord) (any, int) {
		return r.PendingCasesByCategory, len(r.PendingCasesByCategory)
	},
	"proceedings": func(r dataset.UnitRecord) (any, int) {
		return r.PendingProceedingsAndPetitions, len(r.PendingProceedingsAndPetitions)
	},
	"suspended": func(r dataset.UnitRecord) (any, int) {
		return r.SuspendedOrProvisionallyArchived, len(r.SuspendedOrProvisionallyArchived)
	},
	"closed-by-type": func(r dataset.UnitRecord) (any, int) {
		return r.ClosedCasesByType, len(r.ClosedCasesByType)
	},
	"custody": func(r dataset.UnitRecord) (any, int) {
		return r.CustodyControl, len(r.CustodyControl)
	},
	"diligence": func(r dataset.UnitRecord) (any, int) {
		return r.DiligenceControl, len(r.DiligenceControl)
	},
	"distribution": func(r dataset.UnitRecord) (any, int) {
		return r.MonthlyDistributionStatement, len(r.MonthlyDistributionStatement)
	},
	"closed-last-12-months": func(r dataset.UnitRecord) (any, int) {
		return r.CasesClosedLast12Months, len(r.CasesClosedLast12Months)
	},
	"judicial-acts": func(r dataset.UnitRecord) (any, int) {
		return r.JudicialActsIssued, len(r.JudicialActsIssued)
	},
}

type sectionEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Data any    `json:"data"`
}

// listUnits handles GET /api/v1/units?offset=&limit=.
func (s *Server) listUnits(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultUnitLimit, maxUnitLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, ok := s.load(w, r)
	if !ok {
		return
	}
	start := min(offset, len(d))
	end := min(start+limit, len(d))
	writeJSON(w, http.StatusOK, d[start:end])
}

// getUnit handles GET /api/v1/units/{id}.
func (s *Server) getUnit(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.unit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// getUnitSection handles GET /api/v1/units/{id}/{section}.
func (s *Server) getUnitSection(w http.ResponseWriter, r *http.Request) {
	pick, ok := sections[chi.URLParam(r, "section")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown section")
		return
	}
	rec, ok := s.unit(w, r)
	if !ok {
		return
	}
	data, n := pick(rec)
	if n == 0 {
		writeError(w, http.StatusNotFound, noData)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// listSection handles GET /api/v1/sections/{section}.
func (s *Server) listSection(w http.ResponseWriter, r *http.Request) {
	pick, ok := sections[chi.URLParam(r, "section")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown section")
		return
	}
	d, ok := s.load(w, r)
	if !ok {
		return
	}
	out := make([]sectionEntry, 0, len(d))
	for _, rec := range d {
		if data, n := pick(rec); n > 0 {
			out = append(out, sectionEntry{ID: rec.ID, Name: rec.Name, Data: data})
		}
	}
	if len(out) == 0 {
		writeError(w, http.StatusNotFound, noData)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) unit(w http.ResponseWriter, r *http.Request) (dataset.UnitRecord, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return dataset.UnitRecord{}, false
	}
	d, ok := s.load(w, r)
	if !ok {
		return dataset.UnitRecord{}, false
	}
	rec, found := d.Find(id)
	if !found {
		writeError(w, http.StatusNotFound, "unit not found")
		return dataset.UnitRecord{}, false
	}
	return rec, true
}

// load reads the dataset, writing the error response itself when it fails.
func (s *Server) load(w http.ResponseWriter, r *http.Request) (dataset.Dataset, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	d, err := s.store.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNoDataset):
		writeError(w, http.StatusNotFound, noData)
		return nil, false
	case err != nil:
		s.logger.Error("load dataset failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load dataset")
		return nil, false
	case len(d) == 0:
		writeError(w, http.StatusNotFound, noData)
		return nil, false
	}
	return d, true
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
