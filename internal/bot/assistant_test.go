package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altiplano-labs/archivador/internal/ai"
	"github.com/altiplano-labs/archivador/internal/ingest"
	"github.com/altiplano-labs/archivador/internal/intent"
	"github.com/altiplano-labs/archivador/internal/linkcache"
	"github.com/altiplano-labs/archivador/internal/media"
	"github.com/altiplano-labs/archivador/internal/messaging"
	"github.com/altiplano-labs/archivador/internal/observability/metrics"
	"github.com/altiplano-labs/archivador/internal/retrieval"
)

type scriptedLLM struct {
	fn func(req ai.LLMRequest) (ai.LLMResponse, error)
}

func (s *scriptedLLM) Complete(ctx context.Context, req ai.LLMRequest) (ai.LLMResponse, error) {
	return s.fn(req)
}

type fakeStore struct {
	user     media.User
	messages []media.Message
	files    []media.File
	latest   *media.File
	count    int64
}

func (s *fakeStore) GetOrCreateUser(ctx context.Context, phone string) (*media.User, error) {
	u := s.user
	return &u, nil
}

func (s *fakeStore) SaveMessage(ctx context.Context, msg *media.Message) error {
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *fakeStore) SaveMediaFile(ctx context.Context, file *media.File) error {
	s.files = append(s.files, *file)
	return nil
}

func (s *fakeStore) LatestMedia(ctx context.Context, userID uuid.UUID, mediaType string) (*media.File, error) {
	return s.latest, nil
}

func (s *fakeStore) CountMedia(ctx context.Context, userID uuid.UUID, mediaType string) (int64, error) {
	return s.count, nil
}

type fakeQuerier struct {
	files []media.File
}

func (q *fakeQuerier) LatestMedia(ctx context.Context, userID uuid.UUID, mediaType string) (*media.File, error) {
	if len(q.files) == 0 {
		return nil, nil
	}
	f := q.files[0]
	return &f, nil
}

func (q *fakeQuerier) MediaByDateRange(ctx context.Context, userID uuid.UUID, from, to time.Time, mediaType string) ([]media.File, error) {
	return q.files, nil
}

func (q *fakeQuerier) AllMedia(ctx context.Context, userID uuid.UUID, mediaType string, limit int) ([]media.File, error) {
	return q.files, nil
}

func (q *fakeQuerier) SearchMedia(ctx context.Context, userID uuid.UUID, tokens []string) ([]media.File, error) {
	return q.files, nil
}

type fakeBlobs struct {
	data   map[string][]byte
	putErr error
}

func (b *fakeBlobs) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if b.putErr != nil {
		return b.putErr
	}
	if b.data == nil {
		b.data = make(map[string][]byte)
	}
	b.data[key] = data
	return nil
}

func (b *fakeBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := b.data[key]
	if !ok {
		return nil, media.ErrBlobNotFound
	}
	return data, nil
}

func (b *fakeBlobs) Delete(ctx context.Context, key string) error {
	delete(b.data, key)
	return nil
}

type fakeSender struct {
	sent []messaging.OutboundMessage
	err  error
}

func (s *fakeSender) SendMessage(ctx context.Context, msg messaging.OutboundMessage) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type fakeFetcher struct {
	data        []byte
	contentType string
	err         error
}

func (f *fakeFetcher) Fetch(ctx context.Context, mediaURL string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, f.contentType, nil
}

type fakeHistory struct {
	saved map[string][]ai.ChatMessage
}

func (h *fakeHistory) Load(ctx context.Context, id string) ([]ai.ChatMessage, error) {
	return h.saved[id], nil
}

func (h *fakeHistory) Save(ctx context.Context, id string, history []ai.ChatMessage) error {
	if h.saved == nil {
		h.saved = make(map[string][]ai.ChatMessage)
	}
	h.saved[id] = history
	return nil
}

type harness struct {
	assistant *Assistant
	store     *fakeStore
	querier   *fakeQuerier
	blobs     *fakeBlobs
	sender    *fakeSender
	fetcher   *fakeFetcher
	history   *fakeHistory
}

// routeLLM answers classifier, vision, and chat prompts from one stub.
func routeLLM(intentJSON, chatReply string) *scriptedLLM {
	return &scriptedLLM{fn: func(req ai.LLMRequest) (ai.LLMResponse, error) {
		if req.Image != nil {
			return ai.LLMResponse{Text: `{"slug": "imagen generada", "description": "Una imagen."}`}, nil
		}
		for _, m := range req.Messages {
			if strings.Contains(m.Content, "You classify WhatsApp messages") {
				return ai.LLMResponse{Text: intentJSON}, nil
			}
			if strings.Contains(m.Content, "asks to save the image") {
				return ai.LLMResponse{Text: `{"save": false, "name": null}`}, nil
			}
		}
		return ai.LLMResponse{Text: chatReply}, nil
	}}
}

func newHarness(t *testing.T, llm ai.LLMClient) *harness {
	t.Helper()
	h := &harness{
		store:   &fakeStore{user: media.User{ID: uuid.New(), Phone: "+5215512345678"}},
		querier: &fakeQuerier{},
		blobs:   &fakeBlobs{},
		sender:  &fakeSender{},
		fetcher: &fakeFetcher{},
		history: &fakeHistory{},
	}
	botMetrics := metrics.NewBotMetrics(prometheus.NewRegistry())
	pipeline := ingest.NewPipeline(h.store, h.blobs, llm, nil, intent.NewSaveIntentDetector(llm, nil), "gpt-4o", time.UTC, botMetrics, nil)
	h.assistant = NewAssistant(Config{
		Store:         h.store,
		Classifier:    intent.NewClassifier(llm, nil),
		Resolver:      retrieval.NewResolver(h.querier, time.UTC),
		Sessions:      retrieval.NewSessionManager(retrieval.NewMemorySelectionStore(10 * time.Minute)),
		Pipeline:      pipeline,
		Blobs:         h.blobs,
		Links:         linkcache.NewMemoryCache(10 * time.Minute),
		Sender:        h.sender,
		Fetcher:       h.fetcher,
		History:       h.history,
		LLM:           llm,
		ChatModel:     "gpt-4o-mini",
		PublicBaseURL: "https://bot.example.com/",
		Metrics:       botMetrics,
	})
	return h
}

func inboundText(body string) messaging.InboundMessage {
	return messaging.InboundMessage{MessageSID: "SM1", From: "+5215512345678", Body: body}
}

func storedFile(name, mime, key string) media.File {
	return media.File{
		ID:         uuid.New(),
		FileName:   name,
		MIMEType:   mime,
		StorageKey: key,
		CreatedAt:  time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestProcessConversationFallback(t *testing.T) {
	llm := routeLLM("", "¡Hola! ¿En qué te ayudo?")
	h := newHarness(t, llm)

	err := h.assistant.Process(context.Background(), inboundText("hola, buenos días"))
	require.NoError(t, err)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, "¡Hola! ¿En qué te ayudo?", h.sender.sent[0].Body)
	assert.Empty(t, h.sender.sent[0].MediaURL)

	// Both turns land in history.
	saved := h.history.saved["+5215512345678"]
	require.Len(t, saved, 2)
	assert.Equal(t, ai.ChatRoleUser, saved[0].Role)
	assert.Equal(t, ai.ChatRoleAssistant, saved[1].Role)

	// Incoming and outgoing both recorded.
	require.Len(t, h.store.messages, 2)
	assert.Equal(t, media.DirectionIncoming, h.store.messages[0].Direction)
	assert.Equal(t, media.DirectionOutgoing, h.store.messages[1].Direction)
}

func TestProcessRetrieveSingleResult(t *testing.T) {
	llm := routeLLM(`{"action":"retrieve","fileType":"audio","timeframe":"latest","confidence":"high"}`, "")
	h := newHarness(t, llm)
	f := storedFile("nota_2024-03-10_12-00-00.ogg", "audio/ogg", "u/audio/nota.ogg")
	h.querier.files = []media.File{f}
	require.NoError(t, h.blobs.Put(context.Background(), f.StorageKey, []byte("OggS data"), f.MIMEType))

	err := h.assistant.Process(context.Background(), inboundText("dame el audio"))
	require.NoError(t, err)

	require.Len(t, h.sender.sent, 1)
	out := h.sender.sent[0]
	assert.Equal(t, f.FileName, out.Body)
	assert.True(t, strings.HasPrefix(out.MediaURL, "https://bot.example.com/files/"), "MediaURL = %q", out.MediaURL)
}

func TestProcessRetrieveNoMatches(t *testing.T) {
	llm := routeLLM(`{"action":"retrieve","fileType":"image","timeframe":"all","confidence":"high"}`, "")
	h := newHarness(t, llm)

	err := h.assistant.Process(context.Background(), inboundText("manda mis fotos"))
	require.NoError(t, err)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, replyNoMatches, h.sender.sent[0].Body)
}

func TestProcessRetrieveMultipleThenSelect(t *testing.T) {
	llm := routeLLM(`{"action":"retrieve","fileType":"image","searchQuery":"playa","confidence":"high"}`, "")
	h := newHarness(t, llm)
	files := []media.File{
		storedFile("playa-uno_2024-03-08_09-00-00.jpg", "image/jpeg", "u/images/a.jpg"),
		storedFile("playa-dos_2024-03-09_09-00-00.jpg", "image/jpeg", "u/images/b.jpg"),
		storedFile("playa-tres_2024-03-10_09-00-00.jpg", "image/jpeg", "u/images/c.jpg"),
	}
	h.querier.files = files
	for _, f := range files {
		require.NoError(t, h.blobs.Put(context.Background(), f.StorageKey, []byte{0xFF, 0xD8}, f.MIMEType))
	}

	err := h.assistant.Process(context.Background(), inboundText("pasame la foto de la playa"))
	require.NoError(t, err)

	require.Len(t, h.sender.sent, 1)
	menu := h.sender.sent[0].Body
	assert.Contains(t, menu, "Encontré varios archivos")
	assert.Contains(t, menu, "1. playa-uno")
	assert.Contains(t, menu, "3. playa-tres")

	// A pure-digit reply resolves against the pending menu.
	err = h.assistant.Process(context.Background(), inboundText("2"))
	require.NoError(t, err)

	require.Len(t, h.sender.sent, 2)
	assert.Equal(t, "playa-dos_2024-03-09_09-00-00.jpg", h.sender.sent[1].Body)
	assert.NotEmpty(t, h.sender.sent[1].MediaURL)

	// The selection is consumed; another digit falls through to chat.
	llm.fn = func(req ai.LLMRequest) (ai.LLMResponse, error) {
		return ai.LLMResponse{Text: "ok"}, nil
	}
	err = h.assistant.Process(context.Background(), inboundText("2"))
	require.NoError(t, err)
	assert.Equal(t, "ok", h.sender.sent[2].Body)
}

func TestProcessSelectionOutOfRangeKeepsState(t *testing.T) {
	llm := routeLLM(`{"action":"retrieve","fileType":"image","searchQuery":"playa","confidence":"high"}`, "")
	h := newHarness(t, llm)
	files := []media.File{
		storedFile("a_2024-03-08_09-00-00.jpg", "image/jpeg", "u/images/a.jpg"),
		storedFile("b_2024-03-09_09-00-00.jpg", "image/jpeg", "u/images/b.jpg"),
	}
	h.querier.files = files
	require.NoError(t, h.blobs.Put(context.Background(), files[0].StorageKey, []byte{0xFF, 0xD8}, "image/jpeg"))

	require.NoError(t, h.assistant.Process(context.Background(), inboundText("pasame la foto de la playa")))
	require.NoError(t, h.assistant.Process(context.Background(), inboundText("9")))

	require.Len(t, h.sender.sent, 2)
	assert.Contains(t, h.sender.sent[1].Body, "entre 1 y 2")

	require.NoError(t, h.assistant.Process(context.Background(), inboundText("1")))
	assert.Equal(t, "a_2024-03-08_09-00-00.jpg", h.sender.sent[2].Body)
}

func TestProcessLowConfidenceAsksForClarification(t *testing.T) {
	llm := routeLLM(`{"action":"retrieve","confidence":"low"}`, "")
	h := newHarness(t, llm)

	err := h.assistant.Process(context.Background(), inboundText("mandame ese archivo"))
	require.NoError(t, err)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, replyClarify, h.sender.sent[0].Body)
}

func TestProcessStorageMiss(t *testing.T) {
	llm := routeLLM(`{"action":"retrieve","fileType":"audio","timeframe":"latest","confidence":"high"}`, "")
	h := newHarness(t, llm)
	h.querier.files = []media.File{storedFile("nota.ogg", "audio/ogg", "u/audio/gone.ogg")}

	err := h.assistant.Process(context.Background(), inboundText("dame el audio"))
	require.NoError(t, err)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, replyStorageMiss, h.sender.sent[0].Body)
}

func TestProcessInfoCount(t *testing.T) {
	llm := routeLLM(`{"action":"info","fileType":"document","infoType":"count","confidence":"high"}`, "")
	h := newHarness(t, llm)
	h.store.count = 7

	err := h.assistant.Process(context.Background(), inboundText("cuantos documentos tengo"))
	require.NoError(t, err)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, "Tienes 7 archivos guardados.", h.sender.sent[0].Body)
}

func TestProcessInfoFilename(t *testing.T) {
	llm := routeLLM(`{"action":"info","infoType":"filename","confidence":"high"}`, "")
	h := newHarness(t, llm)
	latest := storedFile("contrato_2024-03-10_12-00-00.pdf", "application/pdf", "u/documents/c.pdf")
	h.store.latest = &latest

	err := h.assistant.Process(context.Background(), inboundText("como se llama el ultimo archivo"))
	require.NoError(t, err)

	require.Len(t, h.sender.sent, 1)
	assert.Contains(t, h.sender.sent[0].Body, "contrato_2024-03-10_12-00-00.pdf")
}

func TestProcessMediaIngest(t *testing.T) {
	llm := routeLLM("", "")
	h := newHarness(t, llm)
	h.fetcher.data = []byte("%PDF-1.4")
	h.fetcher.contentType = "application/pdf"

	msg := messaging.InboundMessage{
		MessageSID:       "SM9",
		From:             "+5215512345678",
		MediaURL:         "https://api.twilio.com/media/ME9",
		MediaContentType: "application/pdf",
	}
	err := h.assistant.Process(context.Background(), msg)
	require.NoError(t, err)

	require.Len(t, h.store.files, 1)
	assert.Equal(t, media.TypeDocument, h.store.files[0].MediaType)
	require.Len(t, h.sender.sent, 1)
	assert.Contains(t, h.sender.sent[0].Body, "Listo, guardé document_")
}

func TestProcessMediaDownloadFailureFallsBackToText(t *testing.T) {
	llm := routeLLM("", "")
	h := newHarness(t, llm)
	h.fetcher.err = errors.New("twilio 404")

	msg := messaging.InboundMessage{
		MessageSID:       "SM9",
		From:             "+5215512345678",
		Body:             "guarda esto",
		MediaURL:         "https://api.twilio.com/media/ME9",
		MediaContentType: "image/jpeg",
	}
	err := h.assistant.Process(context.Background(), msg)
	require.NoError(t, err)

	// No file stored, but the caption is kept as a text message.
	assert.Empty(t, h.store.files)
	var sawCaption bool
	for _, m := range h.store.messages {
		if m.Direction == media.DirectionIncoming && m.Content == "guarda esto" && m.Type == media.TypeText {
			sawCaption = true
		}
	}
	assert.True(t, sawCaption)
	require.NotEmpty(t, h.sender.sent)
	assert.Equal(t, replyDownloadFailed, h.sender.sent[0].Body)
}

func TestProcessMediaBlobFailureFallsBackToText(t *testing.T) {
	llm := routeLLM("", "")
	h := newHarness(t, llm)
	h.fetcher.data = []byte("%PDF-1.4")
	h.fetcher.contentType = "application/pdf"
	h.blobs.putErr = errors.New("s3 unavailable")

	msg := messaging.InboundMessage{
		MessageSID:       "SM9",
		From:             "+5215512345678",
		Body:             "el contrato",
		MediaURL:         "https://api.twilio.com/media/ME9",
		MediaContentType: "application/pdf",
	}
	err := h.assistant.Process(context.Background(), msg)
	require.Error(t, err)

	// No media row exists, but the caption is kept as a text message and
	// the user is told.
	assert.Empty(t, h.store.files)
	var sawCaption bool
	for _, m := range h.store.messages {
		if m.Direction == media.DirectionIncoming && m.Content == "el contrato" && m.Type == media.TypeText {
			sawCaption = true
		}
	}
	assert.True(t, sawCaption)
	require.NotEmpty(t, h.sender.sent)
	assert.Equal(t, replySaveFailed, h.sender.sent[0].Body)
}

func TestProcessChatFailureSendsTerminalError(t *testing.T) {
	llm := &scriptedLLM{fn: func(req ai.LLMRequest) (ai.LLMResponse, error) {
		return ai.LLMResponse{}, errors.New("model down")
	}}
	h := newHarness(t, llm)

	err := h.assistant.Process(context.Background(), inboundText("hola"))
	require.Error(t, err)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, replyChatFailed, h.sender.sent[0].Body)
}
