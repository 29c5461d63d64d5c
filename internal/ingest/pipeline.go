package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/altiplano-labs/archivador/internal/ai"
	"github.com/altiplano-labs/archivador/internal/intent"
	"github.com/altiplano-labs/archivador/internal/media"
	"github.com/altiplano-labs/archivador/internal/observability/metrics"
	"github.com/altiplano-labs/archivador/pkg/logging"
)

var tracer = otel.Tracer("archivador.internal.ingest.pipeline")

const (
	maxDescriptionLen = 500
	// The slug derived from an audio transcript keeps only the opening words.
	maxSlugWords = 6
)

const visionNamingPrompt = `Look at this image and produce a short filename slug and a one or two sentence description for later search. The user speaks Spanish. Respond with JSON only:
{"slug": "<3-6 lowercase words joined by spaces>", "description": "<1-2 sentences>"}`

// Recorder persists the conversation and metadata rows produced by ingestion.
type Recorder interface {
	SaveMessage(ctx context.Context, msg *media.Message) error
	SaveMediaFile(ctx context.Context, file *media.File) error
}

// Input is one inbound media attachment plus its caption context.
type Input struct {
	User      media.User
	Data      []byte
	MIME      string
	Caption   string
	Forwarded bool
	OriginURL string
}

// Result reports what ingestion recorded. Message.Content carries the text
// echo (caption, or transcript for audio).
type Result struct {
	Message media.Message
	File    media.File
}

// Pipeline turns inbound media bytes into a stored blob plus message and
// file records. Naming is best effort; only blob persistence and the
// database writes can fail ingestion.
type Pipeline struct {
	recorder     Recorder
	blobs        media.BlobStore
	llm          ai.LLMClient
	transcriber  ai.Transcriber
	saveDetector *intent.SaveIntentDetector
	visionModel  string
	loc          *time.Location
	metrics      *metrics.BotMetrics
	logger       *logging.Logger
	now          func() time.Time
}

func NewPipeline(recorder Recorder, blobs media.BlobStore, llm ai.LLMClient, transcriber ai.Transcriber, saveDetector *intent.SaveIntentDetector, visionModel string, loc *time.Location, botMetrics *metrics.BotMetrics, logger *logging.Logger) *Pipeline {
	if recorder == nil {
		panic("ingest: recorder cannot be nil")
	}
	if blobs == nil {
		panic("ingest: blob store cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{
		recorder:     recorder,
		blobs:        blobs,
		llm:          llm,
		transcriber:  transcriber,
		saveDetector: saveDetector,
		visionModel:  visionModel,
		loc:          loc,
		metrics:      botMetrics,
		logger:       logger,
		now:          time.Now,
	}
}

// Ingest stores one attachment end to end: derive a name and description,
// write the bytes, then record the message and file metadata. The blob write
// happens before the metadata insert so a committed record never points at
// missing bytes.
func (p *Pipeline) Ingest(ctx context.Context, in Input) (*Result, error) {
	ctx, span := tracer.Start(ctx, "ingest.pipeline")
	defer span.End()

	kind := media.TypeFromMIME(in.MIME)
	span.SetAttributes(
		attribute.String("archivador.media_type", kind),
		attribute.Int("archivador.size_bytes", len(in.Data)),
	)

	naming := p.deriveNaming(ctx, kind, in)

	now := p.now().In(p.loc)
	fileName := media.ComposeFileName(media.SanitizeSlug(naming.slug), now, in.MIME)
	storageKey := media.StorageKey(in.User.Phone, kind, fileName)

	if err := p.blobs.Put(ctx, storageKey, in.Data, in.MIME); err != nil {
		p.metrics.ObserveIngest(kind, "blob_failed")
		span.RecordError(err)
		return nil, fmt.Errorf("ingest: store blob: %w", err)
	}

	msg := media.Message{
		ID:        uuid.New(),
		UserID:    in.User.ID,
		Direction: media.DirectionIncoming,
		Type:      kind,
		Content:   naming.contentEcho,
		Forwarded: in.Forwarded,
	}
	if err := p.recorder.SaveMessage(ctx, &msg); err != nil {
		p.metrics.ObserveIngest(kind, "db_failed")
		span.RecordError(err)
		return nil, fmt.Errorf("ingest: save message: %w", err)
	}

	file := media.File{
		ID:          uuid.New(),
		MessageID:   msg.ID,
		UserID:      in.User.ID,
		MediaType:   kind,
		MIMEType:    in.MIME,
		SizeBytes:   int64(len(in.Data)),
		FileName:    fileName,
		Description: naming.description,
		StorageKey:  storageKey,
		OriginURL:   in.OriginURL,
	}
	if err := p.recorder.SaveMediaFile(ctx, &file); err != nil {
		p.metrics.ObserveIngest(kind, "db_failed")
		span.RecordError(err)
		return nil, fmt.Errorf("ingest: save media file: %w", err)
	}

	p.metrics.ObserveIngest(kind, "stored")
	p.logger.Info("media ingested", "media_type", kind, "file_name", fileName, "size_bytes", len(in.Data))
	return &Result{Message: msg, File: file}, nil
}

type naming struct {
	slug        string
	description string
	contentEcho string
}

// deriveNaming picks the slug, description, and content echo for one
// attachment. Every failure path degrades to a generic name.
func (p *Pipeline) deriveNaming(ctx context.Context, kind string, in Input) naming {
	explicit := p.detectExplicitName(ctx, in.Caption)

	switch kind {
	case media.TypeAudio:
		return p.nameAudio(ctx, in, explicit)
	case media.TypeImage:
		return p.nameImage(ctx, in, explicit)
	case media.TypeVideo:
		return p.nameGeneric(kind, in, explicit)
	default:
		return p.nameDocument(in, explicit)
	}
}

func (p *Pipeline) detectExplicitName(ctx context.Context, caption string) string {
	if p.saveDetector == nil || strings.TrimSpace(caption) == "" {
		return ""
	}
	si := p.saveDetector.Detect(ctx, caption)
	if !si.Save {
		return ""
	}
	return strings.TrimSpace(si.Name)
}

func (p *Pipeline) nameAudio(ctx context.Context, in Input, explicit string) naming {
	var transcript string
	if p.transcriber != nil {
		text, err := p.transcriber.Transcribe(ctx, in.Data, in.MIME)
		if err != nil {
			p.logger.Warn("transcription failed", "error", err)
		} else {
			transcript = strings.TrimSpace(text)
		}
	}

	if explicit != "" {
		return naming{slug: explicit, description: explicit, contentEcho: transcript}
	}
	if transcript == "" {
		return naming{slug: media.TypeAudio, description: in.Caption, contentEcho: in.Caption}
	}
	return naming{
		slug:        leadingWords(transcript, maxSlugWords),
		description: truncate(transcript, maxDescriptionLen),
		contentEcho: transcript,
	}
}

func (p *Pipeline) nameImage(ctx context.Context, in Input, explicit string) naming {
	if explicit != "" {
		// The user named the file; skip vision entirely.
		return naming{slug: explicit, description: explicit, contentEcho: in.Caption}
	}

	slug, description, err := p.describeImage(ctx, in)
	if err != nil {
		p.logger.Warn("vision naming failed", "error", err)
		return naming{slug: media.TypeImage, description: in.Caption, contentEcho: in.Caption}
	}
	return naming{slug: slug, description: description, contentEcho: in.Caption}
}

func (p *Pipeline) nameGeneric(kind string, in Input, explicit string) naming {
	if explicit != "" {
		return naming{slug: explicit, description: explicit, contentEcho: in.Caption}
	}
	description := in.Caption
	if description == "" {
		description = kind
	}
	return naming{slug: kind, description: description, contentEcho: in.Caption}
}

func (p *Pipeline) nameDocument(in Input, explicit string) naming {
	if explicit != "" {
		return naming{slug: explicit, description: explicit, contentEcho: in.Caption}
	}
	description := in.Caption
	if description == "" {
		description = "document"
	}
	return naming{slug: "document", description: description, contentEcho: in.Caption}
}

// describeImage makes a single vision call that yields both the slug and the
// searchable description.
func (p *Pipeline) describeImage(ctx context.Context, in Input) (slug, description string, err error) {
	if p.llm == nil {
		return "", "", fmt.Errorf("ingest: no vision client configured")
	}

	resp, err := p.llm.Complete(ctx, ai.LLMRequest{
		Model:  p.visionModel,
		System: []string{visionNamingPrompt},
		Messages: []ai.ChatMessage{
			{Role: ai.ChatRoleUser, Content: "Nombra y describe esta imagen."},
		},
		Image:       &ai.Image{Bytes: in.Data, MIME: in.MIME},
		MaxTokens:   300,
		Temperature: 0.2,
	})
	if err != nil {
		return "", "", err
	}

	raw, ok := intent.ExtractJSONObject(resp.Text)
	if !ok {
		return "", "", fmt.Errorf("ingest: vision response carried no JSON")
	}
	var parsed struct {
		Slug        string `json:"slug"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", "", fmt.Errorf("ingest: decode vision response: %w", err)
	}
	if strings.TrimSpace(parsed.Slug) == "" {
		return "", "", fmt.Errorf("ingest: vision response missing slug")
	}
	return parsed.Slug, truncate(strings.TrimSpace(parsed.Description), maxDescriptionLen), nil
}

func leadingWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
