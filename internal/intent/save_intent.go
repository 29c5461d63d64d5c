package intent

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/altiplano-labs/archivador/internal/ai"
	"github.com/altiplano-labs/archivador/pkg/logging"
)

const saveIntentPrompt = `A user sent an image over WhatsApp with this caption. Decide whether the caption asks to save the image under a specific name ("guarda esto como ...", "agrega esta imagen como ...", "save this as ..."). Respond with JSON only:
{"save": true|false, "name": "<the requested name>" or null}

Only set "save" to true when the caption clearly contains save/add/guardar phrasing. The name is whatever follows "como"/"as", without the filler words.

Caption: %s`

var saveVerbPattern = regexp.MustCompile(`(?i)\b(guarda|guardar|guárdame|guardame|agrega|agregar|añade|anade|save|add|store)\b`)

// SaveIntent is the result of the caption pass run before image ingestion.
type SaveIntent struct {
	Save bool   `json:"save"`
	Name string `json:"name"`
}

// SaveIntentDetector decides whether an image caption carries an explicit
// user-supplied name. When it does, ingestion uses that name directly and
// skips vision analysis.
type SaveIntentDetector struct {
	llm    ai.LLMClient
	logger *logging.Logger
}

func NewSaveIntentDetector(llm ai.LLMClient, logger *logging.Logger) *SaveIntentDetector {
	if llm == nil {
		panic("intent: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SaveIntentDetector{llm: llm, logger: logger}
}

// Detect returns the explicit name requested by the caption, if any. Any
// failure in this pass degrades to "no explicit name" and never blocks
// ingestion.
func (d *SaveIntentDetector) Detect(ctx context.Context, caption string) SaveIntent {
	caption = strings.TrimSpace(caption)
	if caption == "" || !saveVerbPattern.MatchString(caption) {
		return SaveIntent{}
	}

	// A lexical parse resolves the common phrasings without a model call.
	if name, ok := extractAsClause(caption); ok {
		return SaveIntent{Save: true, Name: name}
	}

	prompt := strings.Replace(saveIntentPrompt, "%s", caption, 1)
	resp, err := d.llm.Complete(ctx, ai.LLMRequest{
		Messages:  []ai.ChatMessage{{Role: ai.ChatRoleUser, Content: prompt}},
		MaxTokens: 80,
	})
	if err != nil {
		d.logger.Warn("save-intent detection failed, continuing without explicit name", "error", err)
		return SaveIntent{}
	}

	raw, ok := ExtractJSONObject(resp.Text)
	if !ok {
		return SaveIntent{}
	}
	var parsed SaveIntent
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return SaveIntent{}
	}
	parsed.Name = strings.TrimSpace(parsed.Name)
	if parsed.Name == "" {
		parsed.Save = false
	}
	return parsed
}

var asClausePattern = regexp.MustCompile(`(?i)\b(?:como|as)\s+(.+)$`)

func extractAsClause(caption string) (string, bool) {
	m := asClausePattern.FindStringSubmatch(caption)
	if m == nil {
		return "", false
	}
	name := strings.Trim(strings.TrimSpace(m[1]), `"'.,!`)
	if name == "" {
		return "", false
	}
	return name, true
}
