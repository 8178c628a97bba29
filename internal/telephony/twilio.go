package telephony

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Config carries Twilio credentials and webhook addressing.
type Config struct {
	AccountSID     string
	AuthToken      string
	FromNumber     string
	WebhookBaseURL string
}

// Service dials target agents into media rooms over the PSTN.
type Service struct {
	config Config
	client *twilio.RestClient
}

func New(config Config) *Service {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: config.AccountSID,
		Password: config.AuthToken,
	})
	return &Service{config: config, client: client}
}

// Enabled reports whether credentials are present.
func (s *Service) Enabled() bool {
	return s.config.AccountSID != "" && s.config.AuthToken != "" && s.config.FromNumber != ""
}

// DialIntoRoom places an outbound call; when answered, Twilio fetches the
// voice webhook which connects the callee into roomName. Returns the call SID.
func (s *Service) DialIntoRoom(_ context.Context, phoneNumber, roomName string) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("missing Twilio credentials: TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_PHONE_NUMBER required")
	}
	webhookURL := fmt.Sprintf("%s/twilio/voice?room_name=%s", s.config.WebhookBaseURL, url.QueryEscape(roomName))

	params := &twilioApi.CreateCallParams{}
	params.SetTo(phoneNumber)
	params.SetFrom(s.config.FromNumber)
	params.SetUrl(webhookURL)
	params.SetMethod("POST")

	call, err := s.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}
	if call.Sid == nil {
		return "", fmt.Errorf("create call: no sid in response")
	}
	log.Printf("dialed %s into room %s: call %s", phoneNumber, roomName, *call.Sid)
	return *call.Sid, nil
}

// GetCallStatus fetches the current status of a placed call.
func (s *Service) GetCallStatus(_ context.Context, callSID string) (string, error) {
	call, err := s.client.Api.FetchCall(callSID, &twilioApi.FetchCallParams{})
	if err != nil {
		return "", fmt.Errorf("fetch call %s: %w", callSID, err)
	}
	if call.Status == nil {
		return "unknown", nil
	}
	return *call.Status, nil
}

// RegisterHandlers mounts Twilio webhook routes.
func (s *Service) RegisterHandlers(e *echo.Echo) {
	e.POST("/twilio/voice", s.handleVoice, s.authMiddleware)
	e.POST("/twilio/call-status", s.handleCallStatus, s.authMiddleware)
}

// handleVoice answers Twilio's webhook with TwiML connecting the callee into
// the media room named in the query.
func (s *Service) handleVoice(c echo.Context) error {
	roomName := c.QueryParam("room_name")
	if roomName == "" {
		return c.String(http.StatusBadRequest, "room_name required")
	}

	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Connect>
    <Room>%s</Room>
  </Connect>
</Response>`, roomName)

	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, twiml)
}

func (s *Service) handleCallStatus(c echo.Context) error {
	params, ok := c.Get("twilioParams").(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}
	log.Printf("call status: SID=%s Status=%s", params["CallSid"], params["CallStatus"])
	return c.String(http.StatusOK, "OK")
}

func (s *Service) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.config.AuthToken == "" {
			return c.String(http.StatusInternalServerError, "Missing TWILIO_AUTH_TOKEN")
		}

		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.String(http.StatusBadRequest, "Failed to read body")
		}
		formData, err := url.ParseQuery(string(body))
		if err != nil {
			return c.String(http.StatusBadRequest, "Failed to parse form")
		}

		params := make(map[string]string)
		for key, values := range formData {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}

		signature := c.Request().Header.Get("X-Twilio-Signature")
		requestURL := buildURL(c.Request(), c.Request().URL.RequestURI())
		if !s.validateSignature(signature, requestURL, params) {
			return c.String(http.StatusUnauthorized, "Invalid signature")
		}

		c.Set("twilioParams", params)
		return next(c)
	}
}

func (s *Service) validateSignature(signature, url string, params map[string]string) bool {
	if signature == "" {
		return false
	}
	data := url
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params[k]
	}

	mac := hmac.New(sha1.New, []byte(s.config.AuthToken))
	mac.Write([]byte(data))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

func buildURL(r *http.Request, pathAndQuery string) string {
	scheme := "https"
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
		if host == "" || hostIsLocal(host) {
			scheme = "http"
		}
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, pathAndQuery)
}

func hostIsLocal(host string) bool {
	return len(host) >= 9 && (host[:9] == "localhost" || host[:9] == "127.0.0.1")
}
