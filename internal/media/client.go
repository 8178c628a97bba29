package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrRoomCreate is returned when the transport rejects or fails room creation
// after the internal retry is exhausted.
var ErrRoomCreate = errors.New("media: room create failed")

// ErrRequest covers non-create transport failures (participant removal, data send).
var ErrRequest = errors.New("media: request failed")

// TokenSource mints server-to-server credentials for transport calls.
type TokenSource interface {
	MintServiceToken() (string, error)
}

// Client talks to a LiveKit-compatible room service over its Twirp HTTP API.
type Client struct {
	HTTPClient *http.Client
	baseURL    string
	tokens     TokenSource

	// retryWait is the backoff before the single retry; tests shorten it.
	retryWait time.Duration
}

// NewClient constructs a client. url may be a ws:// or wss:// media URL; it is
// rewritten to the matching HTTP scheme.
func NewClient(url string, tokens TokenSource) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    httpBaseURL(url),
		tokens:     tokens,
		retryWait:  500 * time.Millisecond,
	}
}

func httpBaseURL(url string) string {
	url = strings.TrimSuffix(url, "/")
	switch {
	case strings.HasPrefix(url, "wss://"):
		return "https://" + strings.TrimPrefix(url, "wss://")
	case strings.HasPrefix(url, "ws://"):
		return "http://" + strings.TrimPrefix(url, "ws://")
	default:
		return url
	}
}

// Participant is one connected room member.
type Participant struct {
	Identity string `json:"identity"`
	State    string `json:"state,omitempty"`
}

type createRoomRequest struct {
	Name            string `json:"name"`
	EmptyTimeout    int    `json:"empty_timeout,omitempty"`
	MaxParticipants int    `json:"max_participants,omitempty"`
}

type removeParticipantRequest struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

type listParticipantsRequest struct {
	Room string `json:"room"`
}

type listParticipantsResponse struct {
	Participants []Participant `json:"participants"`
}

type sendDataRequest struct {
	Room  string `json:"room"`
	Data  string `json:"data"`
	Topic string `json:"topic,omitempty"`
}

// CreateRoom provisions a room on the transport. Rooms idle out after five
// minutes with no participants. Retries once on transient failure.
func (c *Client) CreateRoom(ctx context.Context, name string) error {
	req := createRoomRequest{Name: name, EmptyTimeout: 300, MaxParticipants: 10}
	if err := c.postWithRetry(ctx, "/twirp/livekit.RoomService/CreateRoom", req, nil); err != nil {
		return fmt.Errorf("%w: room %s: %v", ErrRoomCreate, name, err)
	}
	return nil
}

// RemoveParticipant disconnects identity from room.
func (c *Client) RemoveParticipant(ctx context.Context, roomName, identity string) error {
	req := removeParticipantRequest{Room: roomName, Identity: identity}
	if err := c.postWithRetry(ctx, "/twirp/livekit.RoomService/RemoveParticipant", req, nil); err != nil {
		return fmt.Errorf("%w: remove %s from %s: %v", ErrRequest, identity, roomName, err)
	}
	return nil
}

// ListParticipants returns current members of room.
func (c *Client) ListParticipants(ctx context.Context, roomName string) ([]Participant, error) {
	var out listParticipantsResponse
	if err := c.postWithRetry(ctx, "/twirp/livekit.RoomService/ListParticipants", listParticipantsRequest{Room: roomName}, &out); err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrRequest, roomName, err)
	}
	return out.Participants, nil
}

// SendData publishes a small payload on a named topic inside room.
func (c *Client) SendData(ctx context.Context, roomName, topic string, payload []byte) error {
	req := sendDataRequest{Room: roomName, Data: base64.StdEncoding.EncodeToString(payload), Topic: topic}
	if err := c.postWithRetry(ctx, "/twirp/livekit.RoomService/SendData", req, nil); err != nil {
		return fmt.Errorf("%w: send data to %s: %v", ErrRequest, roomName, err)
	}
	return nil
}

// postWithRetry performs one request and retries a single time with backoff on
// network errors or 5xx responses. 4xx responses fail immediately.
func (c *Client) postWithRetry(ctx context.Context, path string, in, out interface{}) error {
	err := c.post(ctx, path, in, out)
	if err == nil || !retryable(err) {
		return err
	}
	select {
	case <-time.After(c.retryWait):
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.post(ctx, path, in, out)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string { return fmt.Sprintf("status=%d body=%s", e.code, e.body) }

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	// network-level failures are retryable; context cancellation is not
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	token, err := c.tokens.MintServiceToken()
	if err != nil {
		return err
	}
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{code: resp.StatusCode, body: string(b)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return err
		}
	}
	return nil
}
