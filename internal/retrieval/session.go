package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/altiplano-labs/archivador/internal/media"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const maxCandidates = 10

// Candidate is one selectable file in a pending selection.
type Candidate struct {
	FileID      uuid.UUID `json:"file_id"`
	FileName    string    `json:"file_name"`
	MIMEType    string    `json:"mime_type"`
	StorageKey  string    `json:"storage_key"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Selection is the per-conversation pending state awaiting a numeric reply.
type Selection struct {
	Candidates []Candidate `json:"candidates"`
	CreatedAt  time.Time   `json:"created_at"`
}

// SelectionStore holds pending selections keyed by conversation identifier.
// Implementations expire entries after a TTL so a stale numeric message is
// never misread as a selection.
type SelectionStore interface {
	Get(ctx context.Context, conversationID string) (*Selection, error)
	Put(ctx context.Context, conversationID string, sel *Selection) error
	Delete(ctx context.Context, conversationID string) error
}

// Reply outcomes from Resolve.
type Outcome int

const (
	// OutcomeNone: no pending selection, or the text is not a pure number;
	// the message is not consumed by the state machine.
	OutcomeNone Outcome = iota
	// OutcomeResolved: a candidate was chosen and the pending state cleared.
	OutcomeResolved
	// OutcomeOutOfRange: the number was outside [1, len]; the pending state
	// survives so the user can retry.
	OutcomeOutOfRange
)

// Result describes how an inbound text interacted with the state machine.
type Result struct {
	Outcome   Outcome
	Candidate Candidate
	Prompt    string
}

var pureDigits = regexp.MustCompile(`^\d+$`)

// SessionManager owns the pending-selection state machine.
type SessionManager struct {
	store  SelectionStore
	tracer trace.Tracer
}

func NewSessionManager(store SelectionStore) *SessionManager {
	if store == nil {
		panic("retrieval: selection store cannot be nil")
	}
	return &SessionManager{
		store:  store,
		tracer: otel.Tracer("archivador.internal.retrieval.session"),
	}
}

// Begin stores the first ten candidates (most-recent first, as given) and
// returns the numbered menu to send back.
func (m *SessionManager) Begin(ctx context.Context, conversationID string, files []media.File) (string, error) {
	ctx, span := m.tracer.Start(ctx, "retrieval.selection_begin")
	defer span.End()

	if len(files) > maxCandidates {
		files = files[:maxCandidates]
	}
	candidates := make([]Candidate, len(files))
	for i, f := range files {
		candidates[i] = Candidate{
			FileID:      f.ID,
			FileName:    f.FileName,
			MIMEType:    f.MIMEType,
			StorageKey:  f.StorageKey,
			Description: f.Description,
			CreatedAt:   f.CreatedAt,
		}
	}
	sel := &Selection{Candidates: candidates, CreatedAt: time.Now().UTC()}
	if err := m.store.Put(ctx, conversationID, sel); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("retrieval: store pending selection: %w", err)
	}
	return RenderMenu(candidates), nil
}

// Resolve feeds an inbound text into the state machine for a conversation.
func (m *SessionManager) Resolve(ctx context.Context, conversationID, text string) (Result, error) {
	ctx, span := m.tracer.Start(ctx, "retrieval.selection_resolve")
	defer span.End()

	text = strings.TrimSpace(text)
	if !pureDigits.MatchString(text) {
		return Result{Outcome: OutcomeNone}, nil
	}

	sel, err := m.store.Get(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("retrieval: load pending selection: %w", err)
	}
	if sel == nil || len(sel.Candidates) == 0 {
		return Result{Outcome: OutcomeNone}, nil
	}

	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > len(sel.Candidates) {
		return Result{
			Outcome: OutcomeOutOfRange,
			Prompt:  fmt.Sprintf("Elige un número entre 1 y %d.", len(sel.Candidates)),
		}, nil
	}

	chosen := sel.Candidates[n-1]
	if err := m.store.Delete(ctx, conversationID); err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("retrieval: clear pending selection: %w", err)
	}
	return Result{Outcome: OutcomeResolved, Candidate: chosen}, nil
}

// RenderMenu formats the numbered candidate list: 1-based index, filename,
// date, and the description truncated to 60 characters when present.
func RenderMenu(candidates []Candidate) string {
	var b strings.Builder
	b.WriteString("Encontré varios archivos:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, c.FileName, c.CreatedAt.Format("02/01/2006"))
		if desc := truncate(c.Description, 60); desc != "" {
			b.WriteString(" - ")
			b.WriteString(desc)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Responde con el número (1-%d) del archivo que quieres.", len(candidates))
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
