package http

import (
	"net/http"
	"strconv"

	"github.com/mind-engage/mindengage-outcomes/internal/gradebook"
	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
	"github.com/mind-engage/mindengage-outcomes/internal/weighting"
)

type markBody struct {
	StudentID     int64   `json:"student_id" validate:"gt=0"`
	ObtainedMarks float64 `json:"obtained_marks" validate:"gte=0"`
}

type scoresBody struct {
	ACID   int64      `json:"ac_id" validate:"gt=0"`
	Scores []markBody `json:"scores" validate:"required,min=1,dive"`
}

type loMappingBody struct {
	Data []struct {
		ACID     int64              `json:"ac_id" validate:"gt=0"`
		Priority weighting.Priority `json:"priority"`
	} `json:"data" validate:"dive"`
}

type roMappingBody struct {
	Data []struct {
		LOID     int64              `json:"lo_id" validate:"gt=0"`
		Priority weighting.Priority `json:"priority"`
	} `json:"data" validate:"dive"`
}

type loPriorityBody struct {
	LOID     int64              `json:"lo_id" validate:"gt=0"`
	ACID     int64              `json:"ac_id" validate:"gt=0"`
	Priority weighting.Priority `json:"priority"`
}

type roPriorityBody struct {
	ROID     int64              `json:"ro_id" validate:"gt=0"`
	LOID     int64              `json:"lo_id" validate:"gt=0"`
	Priority weighting.Priority `json:"priority"`
}

type studentBody struct {
	ID      int64  `json:"id" validate:"gt=0"`
	Name    string `json:"name" validate:"required"`
	RollNo  string `json:"roll_no"`
	Year    string `json:"year" validate:"required"`
	Class   string `json:"classname" validate:"required"`
	Section string `json:"section"`
}

// GET /assessment-criteria-score?ac_id=
func ACScoresHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := queryID(r, "ac_id")
		if err != nil {
			writeErr(w, r, err)
			return
		}
		out, err := gb.ACScores(r.Context(), id)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST|PUT /assessment-criteria-score
func SetACScoresHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body scoresBody
		if err := decode(r, &body); err != nil {
			writeErr(w, r, err)
			return
		}
		marks := make([]gradebook.MarkInput, 0, len(body.Scores))
		for _, m := range body.Scores {
			marks = append(marks, gradebook.MarkInput{StudentID: m.StudentID, ObtainedMarks: m.ObtainedMarks})
		}
		sum, err := gb.SetACScores(r.Context(), body.ACID, marks)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// GET /learning-outcome-mapping?lo_id= and /report-outcome-mapping?ro_id=
func MappingHandler(gb *gradebook.Service, kind outcome.EdgeKind) http.HandlerFunc {
	param := string(kind.Target()) + "_id"
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := queryID(r, param)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		out, err := gb.Mapping(r.Context(), kind, id)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{param: id, "data": out})
	}
}

// PUT /learning-outcome-mapping?lo_id=
func ReplaceLOMappingHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := queryID(r, "lo_id")
		if err != nil {
			writeErr(w, r, err)
			return
		}
		var body loMappingBody
		if err := decode(r, &body); err != nil {
			writeErr(w, r, err)
			return
		}
		in := make([]gradebook.MappingInput, 0, len(body.Data))
		for _, d := range body.Data {
			in = append(in, gradebook.MappingInput{SourceID: d.ACID, Priority: d.Priority})
		}
		sum, err := gb.ReplaceLOMapping(r.Context(), id, in)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// PUT /report-outcome-mapping?ro_id=
func ReplaceROMappingHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := queryID(r, "ro_id")
		if err != nil {
			writeErr(w, r, err)
			return
		}
		var body roMappingBody
		if err := decode(r, &body); err != nil {
			writeErr(w, r, err)
			return
		}
		in := make([]gradebook.MappingInput, 0, len(body.Data))
		for _, d := range body.Data {
			in = append(in, gradebook.MappingInput{SourceID: d.LOID, Priority: d.Priority})
		}
		sum, err := gb.ReplaceROMapping(r.Context(), id, in)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// PATCH /learning-outcome-mapping/priority
func LOPriorityHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body loPriorityBody
		if err := decode(r, &body); err != nil {
			writeErr(w, r, err)
			return
		}
		sum, err := gb.SetEdgePriority(r.Context(), outcome.ACToLO, body.ACID, body.LOID, body.Priority)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// PATCH /report-outcome-mapping/priority
func ROPriorityHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body roPriorityBody
		if err := decode(r, &body); err != nil {
			writeErr(w, r, err)
			return
		}
		sum, err := gb.SetEdgePriority(r.Context(), outcome.LOToRO, body.LOID, body.ROID, body.Priority)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// POST /students
func RegisterStudentHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body studentBody
		if err := decode(r, &body); err != nil {
			writeErr(w, r, err)
			return
		}
		sum, err := gb.RegisterStudent(r.Context(),
			outcome.Student{ID: body.ID, Name: body.Name, RollNo: body.RollNo},
			outcome.Enrollment{Year: body.Year, Class: body.Class, Section: body.Section},
		)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created{Status: "ok", ID: body.ID, Summary: sum})
	}
}

type studentStatusBody struct {
	StudentID int64  `json:"student_id" validate:"gt=0"`
	Status    string `json:"status" validate:"required,oneof=active inactive"`
}

// GET /students?status=; year and classname headers, section optional
func RosterHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status outcome.StudentStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			st, err := outcome.ParseStudentStatus(raw)
			if err != nil {
				writeErr(w, r, err)
				return
			}
			status = st
		}
		sc := scopeFrom(r)
		out, err := gb.Roster(r.Context(), sc.Year, sc.Class, sc.Section, status)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// PUT /students
func StudentStatusHandler(gb *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body studentStatusBody
		if err := decode(r, &body); err != nil {
			writeErr(w, r, err)
			return
		}
		sum, err := gb.SetStudentStatus(r.Context(), body.StudentID, outcome.StudentStatus(body.Status))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

func parseStudentID(r *http.Request) (int64, error) {
	return queryID(r, "student_id")
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }
