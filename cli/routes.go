package main

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	gateway "github.com/mathfe/grader/apigateway"
	"github.com/mathfe/grader/apperr"
	"github.com/mathfe/grader/grader"
	"github.com/mathfe/grader/sessions"
	"github.com/mathfe/grader/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// multipart framing on top of the raw upload limit
const bodyLimitSlack = 1 << 20

const healthTimeout = 2 * time.Second

// server holds everything the routes depend on.
type server struct {
	cfg      Config
	logger   *logrus.Logger
	db       *store.DB
	store    *store.Store
	redis    *redis.Client
	registry *sessions.Registry
	sweeper  *sessions.Sweeper
}

func newServer(cfg Config, logger *logrus.Logger, db *store.DB, rdb *redis.Client) *server {
	st := store.New(db)
	registry := sessions.NewRegistry(rdb, cfg.SessionTTL)
	return &server{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    st,
		redis:    rdb,
		registry: registry,
		sweeper: &sessions.Sweeper{
			Registry: registry,
			Store:    st,
			Interval: cfg.SweepInterval,
			Logger:   logger,
		},
	}
}

// GetMainEngine wires middleware and every route onto a new fiber app.
func (s *server) GetMainEngine() *fiber.App {
	uploadBytes, err := s.cfg.UploadBytes()
	if err != nil {
		uploadBytes = grader.DefaultUploadLimit
	}

	route := fiber.New(fiber.Config{
		AppName:               "grader",
		BodyLimit:             int(uploadBytes) + bodyLimitSlack,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          gateway.ErrorHandler(s.logger),
		DisableStartupMessage: true,
	})
	route.Use(recover.New(recover.Config{EnableStackTrace: s.cfg.Debug}))
	route.Use(gateway.RequestID())
	route.Use(gateway.Tracing())
	route.Use(gateway.RequestLogger(s.logger, logSampling(s.cfg)))
	route.Use(gateway.Instrumentation())
	route.Use(cors.New(cors.Config{
		AllowOrigins:  s.cfg.CorsOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, " + gateway.SessionIDHeader + ", " + gateway.RequestIDHeader,
		ExposeHeaders: "Content-Disposition, " + gateway.RequestIDHeader,
	}))

	route.Get("/health", s.health)
	route.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	admin := route.Group("/admin", gateway.RequireAdmin(gateway.AdminAuthConfig{
		Key:      s.cfg.AdminKey,
		User:     s.cfg.AdminUser,
		Password: s.cfg.AdminPassword,
	}))
	admin.Get("/sessions", s.listSessions)
	admin.Post("/sweep", s.sweep)

	svc := &grader.Service{
		Store:    s.store,
		Sessions: s.registry,
		Logger:   s.logger,
		Limits:   grader.Limits{UploadBytes: uploadBytes, MaxFiles: s.cfg.MaxFiles},
	}
	svc.Register(route)
	return route
}

func (s *server) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return apperr.Wrap(err, apperr.ErrUnavailable, "database unreachable")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return apperr.Wrap(err, apperr.ErrUnavailable, "redis unreachable")
	}
	version, err := store.MigrationVersion(ctx, s.db)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status":            "ok",
		"driver":            s.db.Driver,
		"migration_version": version,
	})
}

type sessionStatus struct {
	ID    string `json:"session_id"`
	Alive bool   `json:"alive"`
}

func (s *server) listSessions(c *fiber.Ctx) error {
	ctx := c.UserContext()
	ids, err := s.store.ListSessionIDs(ctx)
	if err != nil {
		return err
	}
	out := make([]sessionStatus, 0, len(ids))
	for _, id := range ids {
		alive, err := s.registry.Alive(ctx, id)
		if err != nil {
			return apperr.Wrap(err, apperr.ErrUnavailable, "session registry unavailable")
		}
		out = append(out, sessionStatus{ID: id, Alive: alive})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"sessions": out})
}

func (s *server) sweep(c *fiber.Ctx) error {
	n, err := s.sweeper.Sweep(c.UserContext())
	if err != nil {
		return err
	}
	s.logger.WithFields(gateway.LogFields(c)).WithFields(logrus.Fields{
		"admin":   gateway.AdminFromCtx(c),
		"removed": n,
	}).Info("manual session sweep")
	return c.Status(http.StatusOK).JSON(fiber.Map{"removed": n})
}
