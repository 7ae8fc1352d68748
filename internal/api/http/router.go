package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	auth "github.com/mind-engage/mindengage-outcomes/internal/auth/middleware"
	"github.com/mind-engage/mindengage-outcomes/internal/gradebook"
	"github.com/mind-engage/mindengage-outcomes/internal/logger"
	"github.com/mind-engage/mindengage-outcomes/internal/outcome"
	"github.com/mind-engage/mindengage-outcomes/internal/rbac"
	"github.com/mind-engage/mindengage-outcomes/internal/report"
)

type RouterConfig struct {
	Gradebook *gradebook.Service
	Reports   *report.Service
	Auth      *auth.AuthService
	Log       *logger.Logger

	// Login is mounted at /auth/login when EnableLocalAuth is set.
	EnableLocalAuth bool
	Login           auth.LoginOptions

	CORSOrigins    []string
	RequestTimeout time.Duration
	// Ready backs /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	gb, rep := cfg.Gradebook, cfg.Reports

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, AccessLog(log), Recover(log))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type",
			"subject", "year", "quarter", "classname", "section"},
		ExposedHeaders:   []string{"Content-Length", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(cfg.Auth, cfg.Login))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				logFrom(r).Warn("not ready", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "not ready"})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(cfg.Auth))

		view := pr.With(rbac.Require("outcome:view"))
		edit := pr.With(rbac.Require("outcome:edit"))

		view.Get("/assessment-criteria", ListACsHandler(gb))
		edit.Post("/assessment-criteria", CreateACHandler(gb))
		edit.Put("/assessment-criteria", UpdateACHandler(gb))
		edit.Delete("/assessment-criteria", DeleteNodeHandler(gb, outcome.TierAC))

		view.Get("/learning-outcome", ListLOsHandler(gb))
		edit.Post("/learning-outcome", CreateLOHandler(gb))
		edit.Put("/learning-outcome", UpdateLOHandler(gb))
		edit.Delete("/learning-outcome", DeleteNodeHandler(gb, outcome.TierLO))

		view.Get("/report-outcome", ListROsHandler(gb))
		edit.Post("/report-outcome", CreateROHandler(gb))
		edit.Put("/report-outcome", RenameROHandler(gb))
		edit.Delete("/report-outcome", DeleteNodeHandler(gb, outcome.TierRO))

		// mappings
		mapping := pr.With(rbac.Require("mapping:edit"))
		view.Get("/learning-outcome-mapping", MappingHandler(gb, outcome.ACToLO))
		mapping.Put("/learning-outcome-mapping", ReplaceLOMappingHandler(gb))
		mapping.Patch("/learning-outcome-mapping/priority", LOPriorityHandler(gb))
		view.Get("/report-outcome-mapping", MappingHandler(gb, outcome.LOToRO))
		mapping.Put("/report-outcome-mapping", ReplaceROMappingHandler(gb))
		mapping.Patch("/report-outcome-mapping/priority", ROPriorityHandler(gb))

		// scores and roster
		pr.With(rbac.Require("score:view")).Get("/assessment-criteria-score", ACScoresHandler(gb))
		scores := pr.With(rbac.Require("score:write"))
		scores.Post("/assessment-criteria-score", SetACScoresHandler(gb))
		scores.Put("/assessment-criteria-score", SetACScoresHandler(gb))
		pr.With(rbac.Require("student:view")).Get("/students", RosterHandler(gb))
		students := pr.With(rbac.Require("student:write"))
		students.Post("/students", RegisterStudentHandler(gb))
		students.Put("/students", StudentStatusHandler(gb))
		pr.With(rbac.RequireOwnerOr("score:view", "report:view-own", ownsStudent)).
			Get("/learning-outcome-score", LOScoresHandler(rep))

		// reports
		reports := pr.With(rbac.Require("report:view"))
		reports.Get("/class-overview/{tier}", ClassOverviewHandler(rep))
		reports.Get("/class-averages", ClassAveragesHandler(rep))
		reports.Get("/mapping-tree", MappingTreeHandler(rep))
		reports.Get("/term-report", TermReportHandler(rep))
		pr.With(rbac.RequireOwnerOr("report:view", "report:view-own", ownsStudent)).
			Get("/student-report", StudentReportHandler(rep))
	})

	return r
}

// ownsStudent holds when the token subject is the student_id asked for.
func ownsStudent(r *http.Request) bool {
	id, err := parseStudentID(r)
	return err == nil && auth.SubjectFromContext(r.Context()) == formatID(id)
}
