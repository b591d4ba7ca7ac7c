// Package httpapi exposes the board engine and the bulk pipeline over a JSON
// API. Input validation beyond shape checks, authentication and sessions are
// the embedding application's concern.
package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/leadboard/leadboard-go/internal/board"
	"github.com/leadboard/leadboard-go/internal/bulk"
	"github.com/leadboard/leadboard-go/internal/conf"
	"github.com/leadboard/leadboard-go/internal/datastore"
	"github.com/leadboard/leadboard-go/internal/errors"
	"github.com/leadboard/leadboard-go/internal/jobqueue"
	"github.com/leadboard/leadboard-go/internal/logging"
	"github.com/leadboard/leadboard-go/internal/observability"
)

// Server encapsulates the echo instance and the services it fronts.
type Server struct {
	Echo         *echo.Echo
	Settings     *conf.Settings
	Board        *board.Service
	Queue        *jobqueue.Queue
	EmailAction  *bulk.EmailAction
	ImportAction *bulk.ImportAction
	Metrics      *observability.Metrics

	logger *slog.Logger
}

// New initializes the HTTP server and mounts all routes.
func New(settings *conf.Settings, boardService *board.Service, queue *jobqueue.Queue,
	emailAction *bulk.EmailAction, importAction *bulk.ImportAction,
	appMetrics *observability.Metrics) *Server {

	s := &Server{
		Echo:         echo.New(),
		Settings:     settings,
		Board:        boardService,
		Queue:        queue,
		EmailAction:  emailAction,
		ImportAction: importAction,
		Metrics:      appMetrics,
		logger:       logging.ForService("httpapi"),
	}

	s.Echo.HideBanner = true
	s.Echo.IPExtractor = echo.ExtractIPFromXFFHeader()
	s.Echo.Use(middleware.Recover())

	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	api := s.Echo.Group("/api/v1")

	api.GET("/health", s.health)

	org := api.Group("/orgs/:org")
	org.POST("/modules/:module/records", s.createRecord)
	org.GET("/modules/:module/records", s.listRecords)
	org.POST("/modules/:module/referrals", s.createReferralBatch)
	org.POST("/modules/:module/columns", s.createColumn)

	org.PATCH("/records/:id/values/:fieldID", s.updateFieldValue)
	org.POST("/records/delete", s.deleteRecords)
	org.POST("/records/:id/history/:historyID/restore", s.restoreHistoryEntry)
	org.GET("/records/:id/history", s.listHistory)
	org.GET("/records/:id/activities", s.listActivities)
	org.POST("/records/:id/seen", s.markSeen)
	org.GET("/records/unseen", s.listUnseen)

	org.GET("/fields/:fieldID/options", s.listFieldOptions)
	org.POST("/fields/:fieldID/options", s.addFieldOption)
	org.DELETE("/fields/:fieldID/options/:optionID", s.removeFieldOption)

	org.POST("/modules/:module/bulk/email", s.enqueueBulkEmail)
	org.POST("/modules/:module/bulk/import", s.enqueueImport)
	api.GET("/jobs/:id", s.getJob)

	if s.Metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}
}

// Start runs the server on the configured port, blocking until shutdown.
func (s *Server) Start() error {
	port := s.Settings.Web.Port
	if port == "" {
		port = "8080"
	}
	s.logger.Info("starting HTTP server", "port", port)
	return s.Echo.Start(":" + port)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleError maps the error taxonomy onto HTTP status codes and returns a
// structured message derived from the underlying failure.
func (s *Server) handleError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.IsValidation(err):
		status = http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryConflict):
		status = http.StatusConflict
	case errors.IsCategory(err, errors.CategoryGeocoding),
		errors.IsCategory(err, errors.CategoryMailDelivery):
		status = http.StatusBadGateway
	}

	s.logger.Error("request failed",
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", status,
		"error", err)
	return c.JSON(status, map[string]string{"error": err.Error()})
}

// parseModule resolves the :module path segment.
func parseModule(c echo.Context) (datastore.ModuleType, error) {
	switch strings.ToUpper(c.Param("module")) {
	case string(datastore.ModuleLead):
		return datastore.ModuleLead, nil
	case string(datastore.ModuleReferral):
		return datastore.ModuleReferral, nil
	default:
		return "", errors.ValidationError("module must be LEAD or REFERRAL")
	}
}
