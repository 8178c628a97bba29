package httpserver

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/chadiek/warm-transfer/internal/directory"
	"github.com/chadiek/warm-transfer/internal/notify"
	"github.com/chadiek/warm-transfer/internal/transcript"
	"github.com/chadiek/warm-transfer/internal/transfer"
)

// Deps are the collaborators the HTTP layer exposes.
type Deps struct {
	Orchestrator *transfer.Orchestrator
	Transcripts  *transcript.Aggregator
	Directory    *directory.Directory
	Hub          *notify.Hub

	// MediaURL is handed to clients so they can join rooms directly.
	MediaURL string

	// STTAPIKey enables the audio-ingest route; empty disables it.
	STTAPIKey string
}

// Server translates HTTP requests into orchestrator operations.
type Server struct {
	deps     Deps
	validate *validator.Validate
}

func New(deps Deps) *Server {
	return &Server{deps: deps, validate: validator.New()}
}

// Router builds the configured Echo instance with all routes mounted.
func (s *Server) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	api := e.Group("/api")
	api.POST("/room/create", s.createRoom)
	api.POST("/transcript/append", s.appendUtterance)
	api.GET("/transcript/:conversationID", s.getTranscript)
	api.POST("/transfer/initiate", s.initiateTransfer)
	api.POST("/transfer/notify-joined", s.notifyJoined)
	api.POST("/transfer/complete", s.completeTransfer)
	api.POST("/transfer/cancel", s.cancelTransfer)
	api.POST("/transfer/reopen", s.reopenConversation)
	api.GET("/transfers/pending", s.pendingTransfer)
	api.GET("/transfers/history", s.transferHistory)
	api.GET("/caller/context", s.callerContext)

	e.GET("/ws/notifications", s.notifications)
	e.GET("/ws/audio", s.audioIngest)

	return e
}

func (s *Server) bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// writeError maps domain sentinels onto HTTP statuses.
func writeError(c echo.Context, err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, transfer.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, transfer.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, transfer.ErrAlreadyTransferring), errors.Is(err, transfer.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, transfer.ErrRoomCreate), errors.Is(err, transfer.ErrTokenMint):
		status = http.StatusBadGateway
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
