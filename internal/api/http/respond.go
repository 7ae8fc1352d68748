package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-outcomes/internal/apperr"
	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their json names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps classified errors to their status; anything unclassified is a 500.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			name := fe.Namespace()
			if i := strings.IndexByte(name, '.'); i >= 0 {
				name = name[i+1:]
			}
			fields[name] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request", Fields: fields})
		return
	}

	kind := apperr.KindOf(err)
	status := kind.Status()
	if status >= http.StatusInternalServerError {
		logFrom(r).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// decode reads a JSON body into dst and runs its validate tags.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("bad json: %v", err)
	}
	return validate.Struct(dst)
}

func queryID(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, apperr.Validation("query parameter %s is required", key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("query parameter %s must be a positive integer", key)
	}
	return id, nil
}

// scopeFrom reads the class context headers.
func scopeFrom(r *http.Request) outcome.Scope {
	h := func(k string) string { return strings.TrimSpace(r.Header.Get(k)) }
	return outcome.Scope{
		Subject: h("subject"),
		Year:    h("year"),
		Quarter: h("quarter"),
		Class:   h("classname"),
		Section: h("section"),
	}
}
