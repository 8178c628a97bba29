package stt

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/warm-transfer/internal/transcript"
)

// keepAliveInterval keeps the Deepgram socket open across speech gaps.
const keepAliveInterval = 8 * time.Second

// Sink receives finalized transcripts. Interim results never reach the sink.
type Sink interface {
	Append(conversationID string, speaker transcript.Role, text string)
}

// Stream is a live transcription session for one speaker on one conversation.
// Audio goes in as 16 kHz mono PCM; finalized text comes out through the sink.
type Stream struct {
	apiKey         string
	conversationID string
	speaker        transcript.Role
	sink           Sink

	conn      *websocket.Conn
	audioData chan []byte
	stopCh    chan struct{}
	mu        sync.RWMutex
	connected bool
}

// Deepgram live API message shapes.
type resultsMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type metadataMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
}

// NewStream creates a transcription stream feeding finals into sink.
func NewStream(apiKey, conversationID string, speaker transcript.Role, sink Sink) *Stream {
	return &Stream{
		apiKey:         apiKey,
		conversationID: conversationID,
		speaker:        speaker,
		sink:           sink,
		audioData:      make(chan []byte, 1000),
		stopCh:         make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection to Deepgram.
func (s *Stream) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}
	if s.apiKey == "" {
		return fmt.Errorf("Deepgram API key is empty")
	}
	if !transcript.ValidRole(s.speaker) {
		return fmt.Errorf("unknown speaker role %q", s.speaker)
	}

	params := url.Values{}
	params.Set("encoding", "linear16")
	params.Set("sample_rate", "16000")
	params.Set("channels", "1")
	params.Set("punctuate", "true")
	params.Set("interim_results", "true")

	wsURL := fmt.Sprintf("wss://api.deepgram.com/v1/listen?%s", params.Encode())

	headers := map[string][]string{
		"Authorization": {"Token " + s.apiKey},
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("Deepgram connection failed with status: %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	s.conn = conn
	s.connected = true

	go s.handleMessages()
	go s.sendAudioData()
	go s.keepAlive()

	log.Printf("Deepgram stream open for %s/%s", s.conversationID, s.speaker)
	return nil
}

// SendAudio queues PCM audio to be forwarded to Deepgram.
func (s *Stream) SendAudio(pcm []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return fmt.Errorf("not connected to Deepgram")
	}
	select {
	case s.audioData <- pcm:
		return nil
	default:
		log.Println("Audio buffer full, dropping packet")
		return nil
	}
}

// Close terminates the stream and releases the connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	close(s.stopCh)
	if s.conn != nil {
		closeMsg := map[string]string{"type": "CloseStream"}
		_ = s.conn.WriteJSON(closeMsg)
		_ = s.conn.Close()
	}
	s.connected = false
	s.conn = nil
	close(s.audioData)
	log.Printf("Deepgram stream closed for %s/%s", s.conversationID, s.speaker)
	return nil
}

func (s *Stream) handleMessages() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in handleMessages: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		default:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Printf("Error reading message: %v", err)
				return
			}
			s.processMessage(message)
		}
	}
}

func (s *Stream) processMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}
	switch base.Type {
	case "Results":
		var msg resultsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Results message: %v", err)
			return
		}
		// Only finals reach the aggregator; interim fragments are discarded.
		if !msg.IsFinal || len(msg.Channel.Alternatives) == 0 {
			return
		}
		text := msg.Channel.Alternatives[0].Transcript
		if text == "" {
			return
		}
		s.sink.Append(s.conversationID, s.speaker, text)
	case "Metadata":
		var msg metadataMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Metadata message: %v", err)
			return
		}
		log.Printf("Deepgram session metadata: request_id=%s", msg.RequestID)
	case "UtteranceEnd", "SpeechStarted":
		// informational only
	default:
		log.Printf("Unknown message type: %s", base.Type)
	}
}

func (s *Stream) sendAudioData() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in sendAudioData: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		case pcm, ok := <-s.audioData:
			if !ok {
				return
			}
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
					log.Printf("Error sending audio data: %v", err)
					return
				}
			}
		}
	}
}

func (s *Stream) keepAlive() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			if err := conn.WriteJSON(map[string]string{"type": "KeepAlive"}); err != nil {
				log.Printf("Error sending keepalive: %v", err)
				return
			}
		}
	}
}
