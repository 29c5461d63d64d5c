package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type openAIChatAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// OpenAIClient adapts the OpenAI API to LLMClient and Transcriber.
type OpenAIClient struct {
	api          openAIChatAPI
	model        string
	whisperModel string
}

func NewOpenAIClient(api openAIChatAPI, model, whisperModel string) *OpenAIClient {
	if api == nil {
		panic("ai: openai client cannot be nil")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if whisperModel == "" {
		whisperModel = "whisper-1"
	}
	return &OpenAIClient{api: api, model: model, whisperModel: whisperModel}
}

func (c *OpenAIClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.System)+len(req.Messages))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: block,
		})
	}
	for i, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" && req.Image == nil {
			continue
		}
		role, err := openAIRole(msg.Role)
		if err != nil {
			return LLMResponse{}, err
		}
		// The image rides on the final user message as a multi-part body.
		if req.Image != nil && i == len(req.Messages)-1 && role == openai.ChatMessageRoleUser {
			imageURL, err := openAIImageURL(req.Image)
			if err != nil {
				return LLMResponse{}, err
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role: role,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: content},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: imageURL}},
				},
			})
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: content})
	}
	if len(messages) == 0 {
		return LLMResponse{}, errors.New("ai: request has no messages")
	}

	request := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		request.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature > 0 {
		request.Temperature = req.Temperature
	}
	if req.TopP > 0 {
		request.TopP = req.TopP
	}

	resp, err := c.api.CreateChatCompletion(ctx, request)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("ai: openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return LLMResponse{}, errors.New("ai: openai returned no choices")
	}

	out := LLMResponse{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		StopReason: string(resp.Choices[0].FinishReason),
		Usage: TokenUsage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}
	return out, nil
}

// Transcribe sends audio bytes to the transcription endpoint. The filename
// extension is derived from the MIME hint so the API can detect the format.
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, mimeHint string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("ai: empty audio payload")
	}
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.whisperModel,
		Reader:   bytes.NewReader(audio),
		FilePath: "audio." + audioExtension(mimeHint),
	})
	if err != nil {
		return "", fmt.Errorf("ai: transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func openAIRole(role string) (string, error) {
	switch role {
	case ChatRoleSystem:
		return openai.ChatMessageRoleSystem, nil
	case ChatRoleUser:
		return openai.ChatMessageRoleUser, nil
	case ChatRoleAssistant:
		return openai.ChatMessageRoleAssistant, nil
	default:
		return "", fmt.Errorf("ai: unsupported role %q", role)
	}
}

func openAIImageURL(img *Image) (string, error) {
	if img.URL != "" {
		return img.URL, nil
	}
	if len(img.Bytes) == 0 {
		return "", errors.New("ai: image attachment has no data")
	}
	mime := img.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(img.Bytes)), nil
}

func audioExtension(mimeHint string) string {
	mimeHint = strings.ToLower(mimeHint)
	if idx := strings.Index(mimeHint, ";"); idx >= 0 {
		mimeHint = mimeHint[:idx]
	}
	switch mimeHint {
	case "audio/ogg", "audio/opus":
		return "ogg"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/wav", "audio/x-wav":
		return "wav"
	case "audio/webm":
		return "webm"
	default:
		return "ogg"
	}
}
