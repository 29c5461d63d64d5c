package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// ValidateTwilioSignature validates that a request came from Twilio
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}

	if err := r.ParseForm(); err != nil {
		return false
	}

	payload := buildSignaturePayload(webhookURL, r.PostForm)
	expectedSignature := computeSignature(payload, authToken)

	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}

// buildSignaturePayload creates the payload string for signature verification
func buildSignaturePayload(url string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(url)

	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}

	return payload.String()
}

// computeSignature computes the HMAC-SHA1 signature
func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// TwilioWebhookRequest represents an incoming Twilio WhatsApp webhook.
type TwilioWebhookRequest struct {
	MessageSid       string
	AccountSid       string
	From             string
	To               string
	Body             string
	ProfileName      string
	WaID             string
	Forwarded        bool
	NumMedia         int
	MediaURL         string
	MediaContentType string
}

// ParseTwilioWebhook parses a Twilio webhook request. Only the first media
// attachment is read; WhatsApp delivers one media item per message.
func ParseTwilioWebhook(r *http.Request) (*TwilioWebhookRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	numMedia, _ := strconv.Atoi(r.FormValue("NumMedia"))
	forwarded, _ := strconv.ParseBool(r.FormValue("Forwarded"))

	req := &TwilioWebhookRequest{
		MessageSid:       r.FormValue("MessageSid"),
		AccountSid:       r.FormValue("AccountSid"),
		From:             r.FormValue("From"),
		To:               r.FormValue("To"),
		Body:             r.FormValue("Body"),
		ProfileName:      r.FormValue("ProfileName"),
		WaID:             r.FormValue("WaId"),
		Forwarded:        forwarded,
		NumMedia:         numMedia,
	}
	if numMedia > 0 {
		req.MediaURL = r.FormValue("MediaUrl0")
		req.MediaContentType = r.FormValue("MediaContentType0")
	}

	return req, nil
}

// StripChannelPrefix removes the "whatsapp:" channel marker from a Twilio
// address, leaving the bare E.164 number.
func StripChannelPrefix(addr string) string {
	return strings.TrimPrefix(strings.TrimSpace(addr), "whatsapp:")
}

func sanitizePhone(value string) string {
	if value == "" {
		return ""
	}
	digits := phoneDigitsRe.FindAllString(value, -1)
	return strings.Join(digits, "")
}

// NormalizeE164 trims a phone number down to +digits form.
func NormalizeE164(value string) string {
	value = StripChannelPrefix(value)
	if value == "" {
		return ""
	}
	return "+" + sanitizePhone(value)
}
