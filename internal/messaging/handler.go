package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/altiplano-labs/archivador/internal/observability/metrics"
	"github.com/altiplano-labs/archivador/pkg/logging"
)

var twilioTracer = otel.Tracer("archivador.internal.messaging.twilio")

// processTimeout bounds one inbound message end to end, including LLM calls
// and media download.
const processTimeout = 2 * time.Minute

// InboundMessage is a normalized inbound WhatsApp message handed to the bot.
type InboundMessage struct {
	MessageSID       string
	From             string
	ProfileName      string
	Body             string
	Forwarded        bool
	MediaURL         string
	MediaContentType string
}

// HasMedia reports whether the message carries an attachment.
func (m InboundMessage) HasMedia() bool {
	return m.MediaURL != ""
}

// InboundProcessor consumes a parsed inbound message and sends any replies
// itself.
type InboundProcessor interface {
	Process(ctx context.Context, msg InboundMessage) error
}

// Handler handles messaging webhook requests.
type Handler struct {
	webhookSecret string
	processor     InboundProcessor
	metrics       *metrics.BotMetrics
	logger        *logging.Logger

	twimlAck string
}

// NewHandler creates a new messaging handler.
func NewHandler(webhookSecret string, processor InboundProcessor, botMetrics *metrics.BotMetrics, logger *logging.Logger) *Handler {
	if processor == nil {
		panic("messaging: processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		webhookSecret: webhookSecret,
		processor:     processor,
		metrics:       botMetrics,
		logger:        logger,
		twimlAck:      `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`,
	}
}

// TwilioWebhook handles POST /messaging/twilio/webhook requests. The webhook
// acks immediately; the message is processed in the background and replies go
// out through the sender.
func (h *Handler) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	_, span := twilioTracer.Start(r.Context(), "messaging.twilio.webhook")
	defer span.End()

	webhookURL := buildAbsoluteURL(r)
	if h.webhookSecret != "" {
		if !ValidateTwilioSignature(r, h.webhookSecret, webhookURL) {
			h.logger.Warn("invalid twilio signature")
			h.metrics.ObserveInbound("unknown", "unauthorized")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			span.RecordError(errors.New("invalid twilio signature"))
			return
		}
	}

	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio webhook", "error", err)
		h.metrics.ObserveInbound("unknown", "bad_request")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	from := NormalizeE164(webhook.From)
	kind := "text"
	if webhook.NumMedia > 0 {
		kind = "media"
	}
	span.SetAttributes(
		attribute.String("archivador.twilio.message_sid", webhook.MessageSid),
		attribute.String("archivador.twilio.from", from),
		attribute.String("archivador.twilio.kind", kind),
	)

	if webhook.MessageSid == "" || from == "+" || from == "" {
		err := errors.New("missing required twilio fields")
		h.logger.Error("invalid twilio payload", "error", err)
		h.metrics.ObserveInbound(kind, "bad_request")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	if webhook.Body == "" && webhook.NumMedia == 0 {
		// Reaction / status callbacks carry neither text nor media.
		h.metrics.ObserveInbound(kind, "ignored")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	msg := InboundMessage{
		MessageSID:       webhook.MessageSid,
		From:             from,
		ProfileName:      webhook.ProfileName,
		Body:             webhook.Body,
		Forwarded:        webhook.Forwarded,
		MediaURL:         webhook.MediaURL,
		MediaContentType: webhook.MediaContentType,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if err := h.processor.Process(ctx, msg); err != nil {
			h.logger.Error("inbound processing failed", "error", err, "message_sid", msg.MessageSID, "from", msg.From)
		}
	}()

	h.metrics.ObserveInbound(kind, "accepted")
	h.metrics.ObserveWebhookLatency(kind, time.Since(start).Seconds())
	h.logger.Info("twilio webhook accepted", "message_sid", webhook.MessageSid, "kind", kind)
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.twimlAck))
}

// HealthCheck returns a simple health check response.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
