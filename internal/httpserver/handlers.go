package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/chadiek/warm-transfer/internal/transcript"
)

type createRoomRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	Identity       string `json:"identity" validate:"required"`
	CallerEmail    string `json:"caller_email"`
	CallerType     string `json:"caller_type"`
}

type createRoomResponse struct {
	RoomName string `json:"room_name"`
	Token    string `json:"token"`
	WSURL    string `json:"ws_url"`
}

func (s *Server) createRoom(c echo.Context) error {
	var req createRoomRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	conv, token, err := s.deps.Orchestrator.OpenConversation(c.Request().Context(), req.ConversationID, req.Identity, req.CallerEmail, req.CallerType)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, createRoomResponse{
		RoomName: conv.OriginRoomName,
		Token:    token,
		WSURL:    s.deps.MediaURL,
	})
}

type appendUtteranceRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	Speaker        string `json:"speaker" validate:"required"`
	Text           string `json:"text" validate:"required"`
}

func (s *Server) appendUtterance(c echo.Context) error {
	var req appendUtteranceRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	if err := s.deps.Orchestrator.AppendUtterance(c.Request().Context(), req.ConversationID, transcript.Role(req.Speaker), req.Text); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"count": s.deps.Transcripts.Count(req.ConversationID)})
}

func (s *Server) getTranscript(c echo.Context) error {
	conversationID := c.Param("conversationID")
	utterances := s.deps.Transcripts.Snapshot(conversationID)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"utterances":      utterances,
		"count":           len(utterances),
	})
}

type initiateRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	AgentAIdentity string `json:"agent_a_identity" validate:"required"`
	TargetCategory string `json:"target_category"`
}

type initiateResponse struct {
	TransferID       string `json:"transfer_id"`
	State            string `json:"state"`
	TransferRoomName string `json:"transfer_room_name"`
	AgentBIdentity   string `json:"agent_b_identity"`
	Summary          string `json:"summary"`
	SummaryDegraded  bool   `json:"summary_degraded"`
	SegmentCount     int    `json:"segment_count"`
	AgentAToken      string `json:"agent_a_token"`
	WSURL            string `json:"ws_url"`
}

func (s *Server) initiateTransfer(c echo.Context) error {
	var req initiateRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	t, err := s.deps.Orchestrator.Initiate(c.Request().Context(), req.ConversationID, req.AgentAIdentity, req.TargetCategory)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, initiateResponse{
		TransferID:       t.ID,
		State:            string(t.State),
		TransferRoomName: t.TransferRoomName,
		AgentBIdentity:   t.AgentBIdentity,
		Summary:          t.Summary,
		SummaryDegraded:  t.SummaryDegraded,
		SegmentCount:     t.SegmentCount,
		AgentAToken:      t.AgentAToken,
		WSURL:            s.deps.MediaURL,
	})
}

type conversationRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
}

func (s *Server) notifyJoined(c echo.Context) error {
	var req conversationRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	t, err := s.deps.Orchestrator.NotifyJoined(c.Request().Context(), req.ConversationID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) completeTransfer(c echo.Context) error {
	var req conversationRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	t, err := s.deps.Orchestrator.Complete(c.Request().Context(), req.ConversationID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

type cancelRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	Reason         string `json:"reason"`
}

func (s *Server) cancelTransfer(c echo.Context) error {
	var req cancelRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	t, err := s.deps.Orchestrator.Cancel(c.Request().Context(), req.ConversationID, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) reopenConversation(c echo.Context) error {
	var req conversationRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	conv, err := s.deps.Orchestrator.Reopen(c.Request().Context(), req.ConversationID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) pendingTransfer(c echo.Context) error {
	agent := c.QueryParam("agent_identity")
	if agent == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_identity required")
	}
	t, err := s.deps.Orchestrator.PendingTransferFor(c.Request().Context(), agent)
	if err != nil {
		return writeError(c, err)
	}
	resp := map[string]interface{}{
		"transfer":           t,
		"transfer_room_name": t.TransferRoomName,
		"agent_b_token":      t.AgentBToken,
		"ws_url":             s.deps.MediaURL,
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) transferHistory(c echo.Context) error {
	agent := c.QueryParam("agent_identity")
	if agent == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_identity required")
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	transfers, err := s.deps.Orchestrator.History(c.Request().Context(), agent, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"agent_identity": agent,
		"transfers":      transfers,
	})
}

func (s *Server) callerContext(c echo.Context) error {
	email := c.QueryParam("email")
	callerType := c.QueryParam("caller_type")
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email required")
	}
	context, found := s.deps.Directory.CallerContext(email, callerType)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"email":   email,
		"context": context,
		"found":   found,
	})
}
