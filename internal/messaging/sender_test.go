package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender(t *testing.T, handler http.HandlerFunc) *TwilioSender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s := NewTwilioSender("AC123", "token", "+14155238886", nil)
	s.baseURL = srv.URL
	return s
}

func TestSendMessage(t *testing.T) {
	var gotForm map[string]string
	s := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"To":       r.PostFormValue("To"),
			"From":     r.PostFormValue("From"),
			"Body":     r.PostFormValue("Body"),
			"MediaUrl": r.PostFormValue("MediaUrl"),
		}
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "token", pass)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	})

	err := s.SendMessage(context.Background(), OutboundMessage{
		To:       "+5215512345678",
		Body:     "Aquí está tu archivo",
		MediaURL: "https://example.com/files/abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "whatsapp:+5215512345678", gotForm["To"])
	assert.Equal(t, "whatsapp:+14155238886", gotForm["From"])
	assert.Equal(t, "Aquí está tu archivo", gotForm["Body"])
	assert.Equal(t, "https://example.com/files/abc", gotForm["MediaUrl"])
}

func TestSendMessage_NoRetryOnClientError(t *testing.T) {
	var calls int
	s := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' number","status":400}`))
	})

	err := s.SendMessage(context.Background(), OutboundMessage{To: "+1", Body: "hola"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "21211")
	assert.Equal(t, 1, calls)
}

func TestSendMessage_RetriesServerError(t *testing.T) {
	var calls int
	s := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	err := s.SendMessage(context.Background(), OutboundMessage{To: "+5215512345678", Body: "hola"})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestSendMessage_ValidatesInput(t *testing.T) {
	s := NewTwilioSender("AC123", "token", "+14155238886", nil)

	err := s.SendMessage(context.Background(), OutboundMessage{Body: "hola"})
	assert.Error(t, err)

	err = s.SendMessage(context.Background(), OutboundMessage{To: "+5215512345678"})
	assert.Error(t, err)
}
