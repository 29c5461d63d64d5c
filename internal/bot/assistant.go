package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/altiplano-labs/archivador/internal/ai"
	"github.com/altiplano-labs/archivador/internal/ingest"
	"github.com/altiplano-labs/archivador/internal/intent"
	"github.com/altiplano-labs/archivador/internal/linkcache"
	"github.com/altiplano-labs/archivador/internal/media"
	"github.com/altiplano-labs/archivador/internal/messaging"
	"github.com/altiplano-labs/archivador/internal/observability/metrics"
	"github.com/altiplano-labs/archivador/internal/retrieval"
	"github.com/altiplano-labs/archivador/pkg/logging"
)

var tracer = otel.Tracer("archivador.internal.bot.assistant")

const chatSystemPrompt = `Eres un asistente personal por WhatsApp. Guardas archivos que el usuario te manda (fotos, audios, documentos) y se los devuelves cuando los pide. Responde en el idioma del usuario, breve y directo.`

// User-facing replies. The bot speaks Spanish by default; the conversational
// model mirrors the user's language on its own.
const (
	replyClarify        = "No estoy seguro de qué archivo buscas. ¿Me das más detalles? Por ejemplo: \"mándame la última foto\" o \"el pdf de ayer\"."
	replyNoMatches      = "No encontré archivos que coincidan con tu búsqueda."
	replyStorageMiss    = "Encontré el registro de ese archivo, pero ya no está disponible en el almacenamiento."
	replyDownloadFailed = "No pude descargar el archivo adjunto. ¿Me lo reenvías?"
	replySaveFailed     = "No pude guardar el archivo. Inténtalo de nuevo en un momento."
	replyChatFailed     = "Lo siento, tuve un problema para responder. Inténtalo de nuevo en un momento."
	replySavedFmt       = "Listo, guardé %s."
)

// Store is the slice of the repository the assistant needs directly; the
// resolver owns the query surface.
type Store interface {
	GetOrCreateUser(ctx context.Context, phone string) (*media.User, error)
	SaveMessage(ctx context.Context, msg *media.Message) error
	LatestMedia(ctx context.Context, userID uuid.UUID, mediaType string) (*media.File, error)
	CountMedia(ctx context.Context, userID uuid.UUID, mediaType string) (int64, error)
}

// Assistant orchestrates one inbound message end to end: interpret, act,
// reply. It implements messaging.InboundProcessor.
type Assistant struct {
	store         Store
	classifier    *intent.Classifier
	resolver      *retrieval.Resolver
	sessions      *retrieval.SessionManager
	pipeline      *ingest.Pipeline
	blobs         media.BlobStore
	links         linkcache.Cache
	sender        messaging.Sender
	fetcher       messaging.MediaFetcher
	history       HistoryStore
	llm           ai.LLMClient
	chatModel     string
	publicBaseURL string
	metrics       *metrics.BotMetrics
	logger        *logging.Logger
}

// Config wires an Assistant. All fields are required except Metrics and
// Logger.
type Config struct {
	Store         Store
	Classifier    *intent.Classifier
	Resolver      *retrieval.Resolver
	Sessions      *retrieval.SessionManager
	Pipeline      *ingest.Pipeline
	Blobs         media.BlobStore
	Links         linkcache.Cache
	Sender        messaging.Sender
	Fetcher       messaging.MediaFetcher
	History       HistoryStore
	LLM           ai.LLMClient
	ChatModel     string
	PublicBaseURL string
	Metrics       *metrics.BotMetrics
	Logger        *logging.Logger
}

func NewAssistant(cfg Config) *Assistant {
	switch {
	case cfg.Store == nil:
		panic("bot: store cannot be nil")
	case cfg.Classifier == nil:
		panic("bot: classifier cannot be nil")
	case cfg.Resolver == nil:
		panic("bot: resolver cannot be nil")
	case cfg.Sessions == nil:
		panic("bot: sessions cannot be nil")
	case cfg.Pipeline == nil:
		panic("bot: pipeline cannot be nil")
	case cfg.Blobs == nil:
		panic("bot: blobs cannot be nil")
	case cfg.Links == nil:
		panic("bot: links cannot be nil")
	case cfg.Sender == nil:
		panic("bot: sender cannot be nil")
	case cfg.Fetcher == nil:
		panic("bot: fetcher cannot be nil")
	case cfg.History == nil:
		panic("bot: history cannot be nil")
	case cfg.LLM == nil:
		panic("bot: llm cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Assistant{
		store:         cfg.Store,
		classifier:    cfg.Classifier,
		resolver:      cfg.Resolver,
		sessions:      cfg.Sessions,
		pipeline:      cfg.Pipeline,
		blobs:         cfg.Blobs,
		links:         cfg.Links,
		sender:        cfg.Sender,
		fetcher:       cfg.Fetcher,
		history:       cfg.History,
		llm:           cfg.LLM,
		chatModel:     cfg.ChatModel,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		metrics:       cfg.Metrics,
		logger:        logger,
	}
}

var _ messaging.InboundProcessor = (*Assistant)(nil)

// Process handles one inbound message. The conversation is keyed by the
// sender's phone number.
func (a *Assistant) Process(ctx context.Context, msg messaging.InboundMessage) error {
	ctx, span := tracer.Start(ctx, "bot.process")
	defer span.End()
	span.SetAttributes(attribute.String("archivador.from", msg.From))

	user, err := a.store.GetOrCreateUser(ctx, msg.From)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("bot: resolve user: %w", err)
	}

	d := a.interpret(ctx, msg.From, msg)
	span.SetAttributes(attribute.Int("archivador.dispatch_kind", int(d.Kind)))

	if d.Kind != KindMediaIngest {
		a.recordIncomingText(ctx, user.ID, msg)
	}

	switch d.Kind {
	case KindMediaIngest:
		return a.handleMedia(ctx, *user, msg)
	case KindSelectionReply:
		return a.handleSelection(ctx, *user, msg, d.Selection)
	case KindFileQuery:
		return a.handleFileQuery(ctx, *user, msg, d.Intent)
	default:
		return a.handleConversation(ctx, *user, msg)
	}
}

func (a *Assistant) recordIncomingText(ctx context.Context, userID uuid.UUID, msg messaging.InboundMessage) {
	rec := media.Message{
		ID:        uuid.New(),
		UserID:    userID,
		Direction: media.DirectionIncoming,
		Type:      media.TypeText,
		Content:   msg.Body,
		Forwarded: msg.Forwarded,
	}
	if err := a.store.SaveMessage(ctx, &rec); err != nil {
		a.logger.Warn("failed to record incoming message", "error", err)
	}
}

// reply sends a text response and records it as an outgoing message.
func (a *Assistant) reply(ctx context.Context, user media.User, body string) error {
	if err := a.sender.SendMessage(ctx, messaging.OutboundMessage{To: user.Phone, Body: body}); err != nil {
		return fmt.Errorf("bot: send reply: %w", err)
	}
	rec := media.Message{
		ID:        uuid.New(),
		UserID:    user.ID,
		Direction: media.DirectionOutgoing,
		Type:      media.TypeText,
		Content:   body,
	}
	if err := a.store.SaveMessage(ctx, &rec); err != nil {
		a.logger.Warn("failed to record outgoing message", "error", err)
	}
	return nil
}

// handleMedia downloads the attachment and runs it through the ingestion
// pipeline. A failed download or a failed ingest aborts; the message is kept
// as text-only so the caption survives.
func (a *Assistant) handleMedia(ctx context.Context, user media.User, msg messaging.InboundMessage) error {
	data, contentType, err := a.fetcher.Fetch(ctx, msg.MediaURL)
	if err != nil {
		a.logger.Error("media download failed", "error", err, "message_sid", msg.MessageSID)
		a.metrics.ObserveIngest(media.TypeFromMIME(msg.MediaContentType), "download_failed")
		a.recordIncomingText(ctx, user.ID, msg)
		return a.reply(ctx, user, replyDownloadFailed)
	}
	if contentType == "" {
		contentType = msg.MediaContentType
	}

	res, err := a.pipeline.Ingest(ctx, ingest.Input{
		User:      user,
		Data:      data,
		MIME:      contentType,
		Caption:   msg.Body,
		Forwarded: msg.Forwarded,
		OriginURL: msg.MediaURL,
	})
	if err != nil {
		a.logger.Error("media ingestion failed", "error", err, "message_sid", msg.MessageSID)
		a.recordIncomingText(ctx, user.ID, msg)
		if replyErr := a.reply(ctx, user, replySaveFailed); replyErr != nil {
			return replyErr
		}
		return err
	}
	return a.reply(ctx, user, fmt.Sprintf(replySavedFmt, res.File.FileName))
}

func (a *Assistant) handleSelection(ctx context.Context, user media.User, msg messaging.InboundMessage, sel retrieval.Result) error {
	if sel.Outcome == retrieval.OutcomeOutOfRange {
		return a.reply(ctx, user, sel.Prompt)
	}
	return a.sendStored(ctx, user, sel.Candidate.StorageKey, sel.Candidate.FileName, sel.Candidate.MIMEType)
}

func (a *Assistant) handleFileQuery(ctx context.Context, user media.User, msg messaging.InboundMessage, it intent.Intent) error {
	if it.Confidence == intent.ConfidenceLow {
		return a.reply(ctx, user, replyClarify)
	}
	if it.Action == intent.ActionInfo {
		return a.handleInfo(ctx, user, it)
	}

	files, err := a.resolver.Resolve(ctx, user.ID, it)
	if err != nil {
		a.logger.Error("media query failed", "error", err)
		return a.reply(ctx, user, replyChatFailed)
	}
	switch len(files) {
	case 0:
		return a.reply(ctx, user, replyNoMatches)
	case 1:
		return a.sendStored(ctx, user, files[0].StorageKey, files[0].FileName, files[0].MIMEType)
	default:
		menu, err := a.sessions.Begin(ctx, user.Phone, files)
		if err != nil {
			a.logger.Error("failed to open selection", "error", err)
			return a.reply(ctx, user, replyChatFailed)
		}
		return a.reply(ctx, user, menu)
	}
}

func (a *Assistant) handleInfo(ctx context.Context, user media.User, it intent.Intent) error {
	if it.InfoType == intent.InfoCount {
		n, err := a.store.CountMedia(ctx, user.ID, it.FileType)
		if err != nil {
			a.logger.Error("media count failed", "error", err)
			return a.reply(ctx, user, replyChatFailed)
		}
		return a.reply(ctx, user, fmt.Sprintf("Tienes %d archivos guardados.", n))
	}

	latest, err := a.store.LatestMedia(ctx, user.ID, it.FileType)
	if err != nil {
		a.logger.Error("latest media lookup failed", "error", err)
		return a.reply(ctx, user, replyChatFailed)
	}
	if latest == nil {
		return a.reply(ctx, user, replyNoMatches)
	}

	date := latest.CreatedAt.Format("02/01/2006 15:04")
	switch it.InfoType {
	case intent.InfoFilename:
		return a.reply(ctx, user, fmt.Sprintf("Tu archivo más reciente es %s.", latest.FileName))
	case intent.InfoDate:
		return a.reply(ctx, user, fmt.Sprintf("Tu archivo más reciente se guardó el %s.", date))
	default:
		n, err := a.store.CountMedia(ctx, user.ID, it.FileType)
		if err != nil {
			a.logger.Error("media count failed", "error", err)
			return a.reply(ctx, user, replyChatFailed)
		}
		return a.reply(ctx, user, fmt.Sprintf("Tu archivo más reciente es %s, guardado el %s. Tienes %d archivos en total.", latest.FileName, date, n))
	}
}

// sendStored publishes the stored bytes behind a short-lived link and sends
// it as an attachment.
func (a *Assistant) sendStored(ctx context.Context, user media.User, storageKey, fileName, mimeType string) error {
	data, err := a.blobs.Get(ctx, storageKey)
	if err != nil {
		if errors.Is(err, media.ErrBlobNotFound) {
			a.logger.Warn("media record without blob", "storage_key", storageKey)
			return a.reply(ctx, user, replyStorageMiss)
		}
		a.logger.Error("blob read failed", "error", err, "storage_key", storageKey)
		return a.reply(ctx, user, replyChatFailed)
	}

	token, err := a.links.Publish(ctx, data)
	if err != nil {
		a.logger.Error("link publish failed", "error", err)
		return a.reply(ctx, user, replyChatFailed)
	}

	out := messaging.OutboundMessage{
		To:       user.Phone,
		Body:     fileName,
		MediaURL: a.publicBaseURL + "/files/" + token,
	}
	if err := a.sender.SendMessage(ctx, out); err != nil {
		return fmt.Errorf("bot: send media reply: %w", err)
	}

	rec := media.Message{
		ID:        uuid.New(),
		UserID:    user.ID,
		Direction: media.DirectionOutgoing,
		Type:      media.TypeFromMIME(mimeType),
		Content:   fileName,
	}
	if err := a.store.SaveMessage(ctx, &rec); err != nil {
		a.logger.Warn("failed to record outgoing media message", "error", err)
	}
	return nil
}

// handleConversation is the fallback path: a plain chat completion over the
// rolling history. Failure here is a primary-action failure, so the user
// gets a terminal error reply.
func (a *Assistant) handleConversation(ctx context.Context, user media.User, msg messaging.InboundMessage) error {
	history, err := a.history.Load(ctx, user.Phone)
	if err != nil {
		a.logger.Warn("history load failed", "error", err)
		history = nil
	}

	messages := append(history, ai.ChatMessage{Role: ai.ChatRoleUser, Content: msg.Body})
	resp, err := a.llm.Complete(ctx, ai.LLMRequest{
		Model:       a.chatModel,
		System:      []string{chatSystemPrompt},
		Messages:    messages,
		MaxTokens:   500,
		Temperature: 0.7,
	})
	if err != nil {
		a.logger.Error("chat completion failed", "error", err)
		if replyErr := a.reply(ctx, user, replyChatFailed); replyErr != nil {
			a.logger.Error("failed to send error reply", "error", replyErr)
		}
		return fmt.Errorf("bot: chat completion: %w", err)
	}

	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		answer = replyChatFailed
	}
	if err := a.reply(ctx, user, answer); err != nil {
		return err
	}

	messages = append(messages, ai.ChatMessage{Role: ai.ChatRoleAssistant, Content: answer})
	if err := a.history.Save(ctx, user.Phone, messages); err != nil {
		a.logger.Warn("history save failed", "error", err)
	}
	return nil
}
