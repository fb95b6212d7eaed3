// Package extract turns uploaded documents and images into plain text.
//
// Extractors return a nil text when a payload cannot be read as text; that is
// a recoverable outcome and the turn continues without the source. A non-nil
// error is reserved for failures that should abort the turn.
package extract

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ashureev/legalchat/internal/domain"
)

// Extractor converts an upload into text.
type Extractor interface {
	Extract(ctx context.Context, upload domain.Upload) (*string, error)
}

// Unavailable is used when no backend is configured for a source kind.
type Unavailable struct {
	Kind   domain.SourceKind
	Logger *slog.Logger
}

// Extract always yields absent text.
func (u Unavailable) Extract(_ context.Context, upload domain.Upload) (*string, error) {
	logger := u.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("No extractor configured, ignoring upload", "kind", u.Kind, "filename", upload.Filename)
	return nil, nil
}

// normalize trims the text and maps empty results to absent.
func normalize(text string) *string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return &text
}
