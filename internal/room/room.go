package room

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrValidation is returned for empty identities or room names.
var ErrValidation = errors.New("room: invalid input")

// ErrConfiguration is returned when signing material is missing.
var ErrConfiguration = errors.New("room: signing credentials not configured")

// Capabilities enumerates what a minted credential allows inside a room.
type Capabilities struct {
	CanPublish     bool
	CanSubscribe   bool
	CanPublishData bool
}

// AgentCaps are the grants issued to human agents.
func AgentCaps() Capabilities {
	return Capabilities{CanPublish: true, CanSubscribe: true, CanPublishData: true}
}

// OriginRoomName derives the room a caller and their first agent occupy.
// Deterministic: the same conversation always maps to the same origin room.
func OriginRoomName(conversationID string) string {
	return "origin_" + sanitize(conversationID)
}

// TransferRoomName derives a fresh room for one transfer attempt. The attempt
// id keeps repeated transfers on one conversation from colliding with a prior
// transfer room that is still draining.
func TransferRoomName(conversationID, attemptID string) string {
	return fmt.Sprintf("transfer_%s_%s", sanitize(conversationID), sanitize(attemptID))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}

// TokenMinter signs join credentials locally; it never talks to the network.
type TokenMinter struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

// NewTokenMinter constructs a minter. The default credential lifetime is 6 hours.
func NewTokenMinter(apiKey, apiSecret string) *TokenMinter {
	return &TokenMinter{apiKey: apiKey, apiSecret: apiSecret, ttl: 6 * time.Hour}
}

type videoGrant struct {
	RoomJoin       bool   `json:"roomJoin,omitempty"`
	Room           string `json:"room,omitempty"`
	RoomCreate     bool   `json:"roomCreate,omitempty"`
	RoomAdmin      bool   `json:"roomAdmin,omitempty"`
	CanPublish     bool   `json:"canPublish,omitempty"`
	CanSubscribe   bool   `json:"canSubscribe,omitempty"`
	CanPublishData bool   `json:"canPublishData,omitempty"`
}

// MintToken produces a signed JWT granting identity access to roomName with
// the given capabilities.
func (m *TokenMinter) MintToken(roomName, identity string, caps Capabilities) (string, error) {
	if m.apiKey == "" || m.apiSecret == "" {
		return "", ErrConfiguration
	}
	if roomName == "" {
		return "", fmt.Errorf("%w: empty room name", ErrValidation)
	}
	if identity == "" {
		return "", fmt.Errorf("%w: empty identity", ErrValidation)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": m.apiKey,
		"sub": identity,
		"nbf": now.Unix(),
		"exp": now.Add(m.ttl).Unix(),
		"video": videoGrant{
			RoomJoin:       true,
			Room:           roomName,
			CanPublish:     caps.CanPublish,
			CanSubscribe:   caps.CanSubscribe,
			CanPublishData: caps.CanPublishData,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.apiSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// MintServiceToken produces a short-lived admin credential for server-to-server
// calls against the media transport (room create, participant removal).
func (m *TokenMinter) MintServiceToken() (string, error) {
	if m.apiKey == "" || m.apiSecret == "" {
		return "", ErrConfiguration
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   m.apiKey,
		"sub":   m.apiKey,
		"nbf":   now.Unix(),
		"exp":   now.Add(10 * time.Minute).Unix(),
		"video": videoGrant{RoomCreate: true, RoomAdmin: true},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.apiSecret))
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	return signed, nil
}
