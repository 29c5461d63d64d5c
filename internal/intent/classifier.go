package intent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/altiplano-labs/archivador/internal/ai"
	"github.com/altiplano-labs/archivador/pkg/logging"
)

const classifierPrompt = `You classify WhatsApp messages (Spanish or English) that may ask for stored files. Respond with JSON only.

Fields:
- action: "retrieve" (send a file back), "info" (questions about stored files), "list" (enumerate files), "none" (not about stored files)
- fileType: "image", "audio", "video", "document", or null
- timeframe: "latest", "today", "yesterday", "all", or null
- infoType: "filename", "count", "date", "all", or null (only for action=info)
- searchQuery: free-text description of the wanted file, or null. Only set it when the user describes content ("la foto de la playa", "el pdf del contrato"), never for bare type/time requests.
- confidence: "high", "medium", "low". Use "low" when the request is file-related but too vague to resolve.

Examples:
- "dame el audio" -> {"action":"retrieve","fileType":"audio","timeframe":"latest","infoType":null,"searchQuery":null,"confidence":"high"}
- "manda mis fotos" -> {"action":"retrieve","fileType":"image","timeframe":"all","infoType":null,"searchQuery":null,"confidence":"high"}
- "cuantos documentos tengo" -> {"action":"info","fileType":"document","timeframe":null,"infoType":"count","searchQuery":null,"confidence":"high"}
- "pasame la foto de la playa" -> {"action":"retrieve","fileType":"image","timeframe":null,"infoType":null,"searchQuery":"foto de la playa","confidence":"high"}
- "hola como estas" -> {"action":"none","fileType":null,"timeframe":null,"infoType":null,"searchQuery":null,"confidence":"high"}

Message: %s

Respond with the JSON object only.`

// fileKeywords is the cheap pre-check before invoking the model. It is
// deliberately over-inclusive; the classifier and the confidence gate
// correct for precision downstream.
var fileKeywords = []string{
	"foto", "imagen", "imágenes", "imagenes", "audio", "video", "documento",
	"archivo", "pdf", "nota de voz", "dame", "manda", "mándame", "mandame",
	"envía", "envia", "pásame", "pasame", "muestra", "muéstrame", "muestrame",
	"guardaste", "último", "ultimo", "última", "ultima",
	"photo", "image", "picture", "file", "document", "voice note",
	"send me", "show me", "latest", "yesterday",
}

// Classifier turns free text into a structured file-operation intent using
// an external language model as the oracle.
type Classifier struct {
	llm    ai.LLMClient
	logger *logging.Logger
}

func NewClassifier(llm ai.LLMClient, logger *logging.Logger) *Classifier {
	if llm == nil {
		panic("intent: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{llm: llm, logger: logger}
}

// MightBeFileQuery is the lexical screen applied before Classify. False
// positives are expected and harmless.
func MightBeFileQuery(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range fileKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Classify interprets a user message. A model response that cannot be parsed
// into a valid intent is returned as action=none, never as an error; only
// transport failures propagate.
func (c *Classifier) Classify(ctx context.Context, text string) (Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return None(), nil
	}

	prompt := strings.Replace(classifierPrompt, "%s", text, 1)
	resp, err := c.llm.Complete(ctx, ai.LLMRequest{
		Messages:  []ai.ChatMessage{{Role: ai.ChatRoleUser, Content: prompt}},
		MaxTokens: 150,
	})
	if err != nil {
		return None(), err
	}

	raw, ok := ExtractJSONObject(resp.Text)
	if !ok {
		c.logger.Debug("classifier output had no json object", "output", resp.Text)
		return None(), nil
	}

	var parsed Intent
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		c.logger.Debug("classifier output not parseable", "error", err, "output", raw)
		return None(), nil
	}
	return normalize(parsed), nil
}

// normalize coerces out-of-vocabulary values to their safe defaults rather
// than rejecting the whole intent.
func normalize(in Intent) Intent {
	in.Action = Action(strings.ToLower(string(in.Action)))
	in.FileType = strings.ToLower(in.FileType)
	in.Timeframe = strings.ToLower(in.Timeframe)
	in.InfoType = strings.ToLower(in.InfoType)
	in.Confidence = strings.ToLower(in.Confidence)
	in.SearchQuery = strings.TrimSpace(in.SearchQuery)

	if !validAction(in.Action) {
		return None()
	}
	if !validFileType(in.FileType) {
		in.FileType = ""
	}
	if !validTimeframe(in.Timeframe) {
		in.Timeframe = ""
	}
	if !validInfoType(in.InfoType) {
		in.InfoType = ""
	}
	switch in.Confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		in.Confidence = ConfidenceMedium
	}
	return in
}
