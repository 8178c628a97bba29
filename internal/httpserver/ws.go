package httpserver

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chadiek/warm-transfer/internal/stt"
	"github.com/chadiek/warm-transfer/internal/transcript"
)

const wsPingInterval = 30 * time.Second

// audioIngest accepts a PCM audio websocket for one speaker and pipes it
// through live transcription; finalized text lands in the transcript log.
func (s *Server) audioIngest(c echo.Context) error {
	conversationID := c.QueryParam("conversation_id")
	if conversationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation_id required")
	}
	speaker := transcript.Role(c.QueryParam("speaker"))
	if !transcript.ValidRole(speaker) {
		return echo.NewHTTPError(http.StatusBadRequest, "speaker must be caller, agentA or agentB")
	}
	if s.deps.STTAPIKey == "" {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "transcription is not configured")
	}

	stream := stt.NewStream(s.deps.STTAPIKey, conversationID, speaker, s.deps.Transcripts)
	if err := stream.Connect(); err != nil {
		log.Printf("ws: transcription connect for %s/%s failed: %v", conversationID, speaker, err)
		return echo.NewHTTPError(http.StatusBadGateway, "transcription backend unavailable")
	}
	defer stream.Close()

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := stream.SendAudio(data); err != nil {
			log.Printf("ws: audio forward for %s/%s failed: %v", conversationID, speaker, err)
			return nil
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// notifications streams transfer events to a connected agent. Events queued
// while the agent was offline are delivered first.
func (s *Server) notifications(c echo.Context) error {
	agent := c.QueryParam("agent_identity")
	if agent == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_identity required")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	events, cancel := s.deps.Hub.Subscribe(agent)
	defer cancel()

	for _, ev := range s.deps.Hub.Poll(agent) {
		if err := conn.WriteJSON(ev); err != nil {
			log.Printf("ws: backlog write to %s failed: %v", agent, err)
			return nil
		}
	}

	// Drain reads so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("ws: write to %s failed: %v", agent, err)
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return nil
			}
		}
	}
}
