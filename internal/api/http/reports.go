package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-outcomes/internal/apperr"
	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
	"github.com/mind-engage/mindengage-outcomes/internal/report"
)

// GET /class-overview/{tier}
func ClassOverviewHandler(rep *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tier, err := outcome.ParseTier(chi.URLParam(r, "tier"))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		out, err := rep.ClassOverview(r.Context(), scopeFrom(r), tier)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /class-averages
func ClassAveragesHandler(rep *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := rep.ClassAverages(r.Context(), scopeFrom(r))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /student-report?student_id=
func StudentReportHandler(rep *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseStudentID(r)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		out, err := rep.StudentReport(r.Context(), id, scopeFrom(r))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /learning-outcome-score?student_id=&lo_id=; scope headers are needed
// only without lo_id
func LOScoresHandler(rep *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseStudentID(r)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		var lo int64
		if r.URL.Query().Get("lo_id") != "" {
			if lo, err = queryID(r, "lo_id"); err != nil {
				writeErr(w, r, err)
				return
			}
		}
		out, err := rep.LOScores(r.Context(), id, lo, scopeFrom(r))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /mapping-tree; classname header optional
func MappingTreeHandler(rep *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc := scopeFrom(r)
		out, err := rep.MappingTree(r.Context(), sc.Subject, sc.Year, sc.Class)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /term-report?term=3|6
func TermReportHandler(rep *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		term, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("term")))
		if err != nil {
			writeErr(w, r, apperr.Validation("query parameter term must be 3 or 6"))
			return
		}
		out, err := rep.TermReport(r.Context(), scopeFrom(r), term)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
