package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func signRequest(authToken, requestURL string, params map[string]string) string {
	data := requestURL
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVoiceWebhookConnectsRoom(t *testing.T) {
	svc := New(Config{AccountSID: "AC123", AuthToken: "secret", FromNumber: "+15550001111"})
	e := echo.New()
	svc.RegisterHandlers(e)

	form := url.Values{"CallSid": {"CA1"}}
	target := "/twilio/voice?room_name=transfer_conv-1_abc"
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Host = "example.com"
	req.Header.Set("X-Twilio-Signature", signRequest("secret", "https://example.com"+target, map[string]string{"CallSid": "CA1"}))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<Connect>") || !strings.Contains(body, "<Room>transfer_conv-1_abc</Room>") {
		t.Errorf("unexpected TwiML: %s", body)
	}
}

func TestVoiceWebhookRejectsBadSignature(t *testing.T) {
	svc := New(Config{AccountSID: "AC123", AuthToken: "secret", FromNumber: "+15550001111"})
	e := echo.New()
	svc.RegisterHandlers(e)

	req := httptest.NewRequest(http.MethodPost, "/twilio/voice?room_name=r1", strings.NewReader(""))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set("X-Twilio-Signature", "bogus")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestVoiceWebhookRequiresRoomName(t *testing.T) {
	svc := New(Config{AccountSID: "AC123", AuthToken: "secret", FromNumber: "+15550001111"})
	e := echo.New()
	svc.RegisterHandlers(e)

	target := "/twilio/voice"
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(""))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Host = "example.com"
	req.Header.Set("X-Twilio-Signature", signRequest("secret", "https://example.com"+target, nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDialIntoRoomRequiresCredentials(t *testing.T) {
	svc := New(Config{})
	if svc.Enabled() {
		t.Fatal("service with no credentials reports enabled")
	}
	if _, err := svc.DialIntoRoom(t.Context(), "+15552223333", "transfer_c_a"); err == nil {
		t.Fatal("expected error without credentials")
	}
}
