package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/username/attendance-bot/internal/calendar"
	"github.com/username/attendance-bot/internal/reconcile"
	"github.com/username/attendance-bot/pkg/dateutil"
	"go.uber.org/zap"
)

// Reconciler runs reconciliations for the HTTP surface
type Reconciler interface {
	Reconcile(ctx context.Context, scope reconcile.Scope, start, end time.Time, override bool) (*reconcile.Result, error)
	DryRun(ctx context.Context, scope reconcile.Scope, start, end time.Time, override bool) (*reconcile.Result, error)
}

// HolidayLister lists classified holidays
type HolidayLister interface {
	Holidays(ctx context.Context, from, to time.Time, teacherID string) ([]calendar.Holiday, error)
}

// ReconcileRequest is the body of POST /api/reconcile.
// Exactly one of TeacherID and All selects the scope.
type ReconcileRequest struct {
	TeacherID string `json:"teacher_id"`
	All       bool   `json:"all"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Override  bool   `json:"override"`
	DryRun    bool   `json:"dry_run"`
}

// maxRange bounds the holidays listing and a single reconcile request
const maxRange = 366 * 24 * time.Hour

type handler struct {
	reconciler Reconciler
	holidays   HolidayLister
	logger     *zap.Logger
}

// New builds the fiber app exposing health, holiday listing and reconciliation
func New(reconciler Reconciler, holidays HolidayLister, logger *zap.Logger) *fiber.App {
	h := &handler{reconciler: reconciler, holidays: holidays, logger: logger}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          h.errorHandler,
	})

	app.Use(recover.New())
	app.Use(h.requestLogger)

	app.Get("/healthz", h.health)

	api := app.Group("/api")
	api.Get("/holidays", h.listHolidays)
	api.Post("/reconcile", h.reconcile)

	return app
}

func (h *handler) requestLogger(c *fiber.Ctx) error {
	id := c.Get(fiber.HeaderXRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(fiber.HeaderXRequestID, id)

	start := time.Now()
	err := c.Next()

	h.logger.Info("HTTP request",
		zap.String("request_id", id),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("duration", time.Since(start)))

	return err
}

func (h *handler) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return errorResponse(c, code, err.Error())
}

func errorResponse(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"code":    code,
		"status":  "error",
		"message": message,
	})
}

func (h *handler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handler) listHolidays(c *fiber.Ctx) error {
	from, err := dateutil.ParseDate(c.Query("from"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "from: "+err.Error())
	}
	to, err := dateutil.ParseDate(c.Query("to"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "to: "+err.Error())
	}
	if from.After(to) {
		return fiber.NewError(fiber.StatusBadRequest, (&reconcile.InvalidRangeError{Start: from, End: to}).Error())
	}
	if to.Sub(from) > maxRange {
		return fiber.NewError(fiber.StatusBadRequest, "range must not exceed one year")
	}

	teacherID := c.Query("teacher")
	holidays, err := h.holidays.Holidays(c.UserContext(), from, to, teacherID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	if holidays == nil {
		holidays = []calendar.Holiday{}
	}

	return c.JSON(fiber.Map{
		"from":     dateutil.Format(from),
		"to":       dateutil.Format(to),
		"teacher":  teacherID,
		"holidays": holidays,
	})
}

func (h *handler) reconcile(c *fiber.Ctx) error {
	var req ReconcileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}

	scope, err := req.scope()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	start, err := dateutil.ParseDate(req.StartDate)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "start_date: "+err.Error())
	}
	end, err := dateutil.ParseDate(req.EndDate)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "end_date: "+err.Error())
	}
	if end.Sub(start) > maxRange {
		return fiber.NewError(fiber.StatusBadRequest, "range must not exceed one year")
	}

	run := h.reconciler.Reconcile
	if req.DryRun {
		run = h.reconciler.DryRun
	}

	res, err := run(c.UserContext(), scope, start, end, req.Override)
	if err != nil {
		// Only the up-front range and scope checks fail the whole call
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(res)
}

func (r *ReconcileRequest) scope() (reconcile.Scope, error) {
	switch {
	case r.All && r.TeacherID != "":
		return reconcile.Scope{}, errors.New("teacher_id and all are mutually exclusive")
	case r.All:
		return reconcile.All(), nil
	case r.TeacherID != "":
		return reconcile.Single(r.TeacherID), nil
	default:
		return reconcile.Scope{}, errors.New("teacher_id or all is required")
	}
}
