package bot

import (
	"context"

	"github.com/altiplano-labs/archivador/internal/intent"
	"github.com/altiplano-labs/archivador/internal/messaging"
	"github.com/altiplano-labs/archivador/internal/retrieval"
)

// Kind tags one interpretation of an inbound message. Exactly one handler
// runs per message.
type Kind int

const (
	// KindConversation: nothing structured matched; fall through to the
	// conversational model.
	KindConversation Kind = iota
	// KindSelectionReply: a pending numbered menu consumed the message.
	KindSelectionReply
	// KindFileQuery: the classifier produced a retrieve/info/list intent.
	KindFileQuery
	// KindMediaIngest: the message carries an attachment to store.
	KindMediaIngest
)

// Dispatch is the resolved interpretation. Selection is set for
// KindSelectionReply, Intent for KindFileQuery.
type Dispatch struct {
	Kind      Kind
	Selection retrieval.Result
	Intent    intent.Intent
}

// interpret decides which handler owns an inbound message. Precedence:
// attachments always ingest; then an active numbered menu gets first claim
// on pure-digit replies; then the intent classifier; everything else is
// conversation. Classifier and selection-store failures degrade to
// conversation rather than dropping the message.
func (a *Assistant) interpret(ctx context.Context, conversationID string, msg messaging.InboundMessage) Dispatch {
	if msg.HasMedia() {
		return Dispatch{Kind: KindMediaIngest}
	}

	sel, err := a.sessions.Resolve(ctx, conversationID, msg.Body)
	if err != nil {
		a.logger.Warn("pending selection lookup failed", "error", err, "conversation_id", conversationID)
	} else if sel.Outcome != retrieval.OutcomeNone {
		return Dispatch{Kind: KindSelectionReply, Selection: sel}
	}

	if intent.MightBeFileQuery(msg.Body) {
		it, err := a.classifier.Classify(ctx, msg.Body)
		if err != nil {
			a.logger.Warn("intent classification failed", "error", err)
			it = intent.None()
		}
		a.metrics.ObserveIntent(string(it.Action), it.Confidence)
		if it.IsFileQuery() {
			return Dispatch{Kind: KindFileQuery, Intent: it}
		}
	}

	return Dispatch{Kind: KindConversation}
}
