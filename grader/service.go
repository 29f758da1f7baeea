// Package grader exposes grading sessions over HTTP. Handlers are thin: they
// resolve the session, load state from the store, delegate to the grading
// package and persist the result.
package grader

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
	gateway "github.com/mathfe/grader/apigateway"
	"github.com/mathfe/grader/sessions"
	"github.com/mathfe/grader/store"
	"github.com/sirupsen/logrus"
)

const (
	DefaultUploadLimit = 32 << 20
	DefaultMaxFiles    = 200
)

// Limits bound what a single upload request may carry.
type Limits struct {
	UploadBytes int64
	MaxFiles    int
}

func (l Limits) withDefaults() Limits {
	if l.UploadBytes <= 0 {
		l.UploadBytes = DefaultUploadLimit
	}
	if l.MaxFiles <= 0 {
		l.MaxFiles = DefaultMaxFiles
	}
	return l
}

func (l Limits) String() string {
	return humanize.IBytes(uint64(l.UploadBytes))
}

type Service struct {
	Store    *store.Store
	Sessions *sessions.Registry
	Logger   *logrus.Logger
	Limits   Limits
}

// Touch keeps a session alive in the registry and records the activity on
// the stored session.
func (s *Service) Touch(ctx context.Context, id string) error {
	if err := s.Sessions.Touch(ctx, id); err != nil {
		s.Logger.WithFields(logrus.Fields{
			"request_id": gateway.RequestIDFromContext(ctx),
			"session_id": id,
		}).WithError(err).Debug("session rejected")
		return err
	}
	return s.Store.TouchSession(ctx, id)
}

// Register mounts every grading route on r. All routes but session creation
// sit behind gateway.RequireSession.
func (s *Service) Register(r fiber.Router) {
	s.Limits = s.Limits.withDefaults()
	initMetrics()
	auth := gateway.RequireSession(s)

	r.Post("/sessions", s.CreateSession)
	r.Delete("/sessions", auth, s.DeleteSession)
	r.Post("/uploads", auth, s.Upload)

	files := r.Group("/files", auth)
	files.Get("/", s.ListFiles)
	files.Get("/:file", s.GetFile)
	files.Get("/:file/pdf", s.FilePDF)
	files.Get("/:file/pages/:page", s.FilePage)
	files.Put("/:file/student", s.SetStudentNumber)
	files.Post("/:file/submit", s.Submit)
	files.Get("/:file/report", s.Report)

	rubric := files.Group("/:file/questions/:q/rubric")
	rubric.Get("/", s.ListRubric)
	rubric.Post("/", s.AddRubric)
	rubric.Delete("/:item", s.DeleteRubric)
	rubric.Post("/:item/edit", s.ProposeEdit)
	rubric.Put("/:item", s.ApplyEdit)

	scheme := r.Group("/scheme", auth)
	scheme.Get("/", s.GetScheme)
	scheme.Put("/", s.PutScheme)
	scheme.Put("/questions", s.SetQuestionCount)
	scheme.Put("/total", s.SetTotal)
	scheme.Put("/questions/:q", s.SetQuestionScore)
	scheme.Get("/validate", s.ValidateScheme)

	stats := r.Group("/stats", auth)
	stats.Get("/questions", s.QuestionStats)
	stats.Get("/overall", s.OverallStats)
	stats.Get("/rubric", s.RubricStats)
	stats.Get("/histogram", s.HistogramStats)
}
