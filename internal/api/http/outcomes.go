package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-outcomes/internal/gradebook"
	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
)

type createACBody struct {
	Name     string  `json:"name" validate:"required"`
	MaxMarks float64 `json:"max_marks" validate:"gt=0"`
	LOIDs    []int64 `json:"lo_id" validate:"dive,gt=0"`
}

type updateACBody struct {
	Name     *string  `json:"name" validate:"omitempty,min=1"`
	MaxMarks *float64 `json:"max_marks" validate:"omitempty,gt=0"`
	LOIDs    []int64  `json:"lo_id" validate:"omitempty,dive,gt=0"`
}

type createLOBody struct {
	Name  string  `json:"name" validate:"required"`
	ROIDs []int64 `json:"ro_id" validate:"dive,gt=0"`
}

type updateLOBody struct {
	Name  *string `json:"name" validate:"omitempty,min=1"`
	ROIDs []int64 `json:"ro_id" validate:"omitempty,dive,gt=0"`
}

type roBody struct {
	Name string `json:"name" validate:"required"`
}

type created struct {
	Status  string `json:"status"`
	ID      int64  `json:"id"`
	Summary any    `json:"summary"`
}

// GET /assessment-criteria
func ListACsHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := gb.ListACs(r.Context(), scopeFrom(r))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /assessment-criteria
func CreateACHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createACBody
		if err := decode(r, &body); err != nil {
			writeErr(w, r, err)
			return
		}
		node, sum, err := gb.CreateAC(r.Context(), scopeFrom(r), gradebook.CreateACInput{
			Name: body.Name, MaxMarks: body.MaxMarks, LOIDs: body.LOIDs,
		})
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created{Status: "ok", ID: node.ID, Summary: sum})
	}
}

// PUT /assessment-criteria?id=
func UpdateACHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := queryID(r, "id")
		if err != nil {
			writeErr(w, r, err)
			return
		}
		var body updateACBody
		if err := decode(r, &body); err != nil {
			writeErr(w, r, err)
			return
		}
		sum, err := gb.UpdateAC(r.Context(), id, gradebook.UpdateACInput{
			Name: body.Name, MaxMarks: body.MaxMarks, LOIDs: body.LOIDs,
		})
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// GET /learning-outcome
func ListLOsHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := gb.ListLOs(r.Context(), scopeFrom(r))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /learning-outcome
func CreateLOHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createLOBody
		if err := decode(r, &body); err != nil {
			writeErr(w, r, err)
			return
		}
		node, sum, err := gb.CreateLO(r.Context(), scopeFrom(r), gradebook.CreateLOInput{Name: body.Name, ROIDs: body.ROIDs})
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created{Status: "ok", ID: node.ID, Summary: sum})
	}
}

// PUT /learning-outcome?id=
func UpdateLOHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := queryID(r, "id")
		if err != nil {
			writeErr(w, r, err)
			return
		}
		var body updateLOBody
		if err := decode(r, &body); err != nil {
			writeErr(w, r, err)
			return
		}
		sum, err := gb.UpdateLO(r.Context(), id, gradebook.UpdateLOInput{Name: body.Name, ROIDs: body.ROIDs})
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// GET /report-outcome
func ListROsHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := gb.ListROs(r.Context(), scopeFrom(r))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /report-outcome
func CreateROHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body roBody
		if err := decode(r, &body); err != nil {
			writeErr(w, r, err)
			return
		}
		node, sum, err := gb.CreateRO(r.Context(), scopeFrom(r), body.Name)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created{Status: "ok", ID: node.ID, Summary: sum})
	}
}

// PUT /report-outcome?id=
func RenameROHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := queryID(r, "id")
		if err != nil {
			writeErr(w, r, err)
			return
		}
		var body roBody
		if err := decode(r, &body); err != nil {
			writeErr(w, r, err)
			return
		}
		sum, err := gb.RenameRO(r.Context(), id, body.Name)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// DELETE on any tier's collection, ?id=
func DeleteNodeHandler(gb *gradebook.Service, tier outcome.Tier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := queryID(r, "id")
		if err != nil {
			writeErr(w, r, err)
			return
		}
		sum, err := gb.Delete(r.Context(), tier, id)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}
