package extract

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"

	"github.com/ashureev/legalchat/internal/domain"
	"github.com/gabriel-vasile/mimetype"
	openai "github.com/sashabaranov/go-openai"
)

const visionInstruction = "Transcribe all legible text in this image exactly as written. " +
	"Reply with the transcribed text only. If the image contains no text, reply with an empty message."

// ChatCompleter is the subset of the OpenAI client used for vision OCR.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// VisionExtractor reads the text in an image with a vision-capable chat model.
type VisionExtractor struct {
	client ChatCompleter
	model  string
	logger *slog.Logger
}

// NewVisionExtractor creates an image extractor backed by client.
func NewVisionExtractor(client ChatCompleter, model string, logger *slog.Logger) *VisionExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &VisionExtractor{client: client, model: model, logger: logger}
}

// Extract sends the image as a data URI and returns the transcription.
// Non-image payloads and model failures yield absent text.
func (e *VisionExtractor) Extract(ctx context.Context, upload domain.Upload) (*string, error) {
	mt := mimetype.Detect(upload.Data)
	if !strings.HasPrefix(mt.String(), "image/") {
		e.logger.Warn("Upload is not an image", "filename", upload.Filename, "detected", mt.String())
		return nil, nil
	}

	dataURI := "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(upload.Data)
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: visionInstruction},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURI,
					Detail: openai.ImageURLDetailHigh,
				}},
			},
		}},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("Image text extraction failed", "filename", upload.Filename, "error", err)
		return nil, nil
	}
	if len(resp.Choices) == 0 {
		e.logger.Warn("Image text extraction returned no choices", "filename", upload.Filename)
		return nil, nil
	}
	return normalize(resp.Choices[0].Message.Content), nil
}
