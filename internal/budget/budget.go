// Package budget enforces the combined word limit across uploaded content.
package budget

import (
	"fmt"
	"strings"

	"github.com/ashureev/legalchat/internal/domain"
)

// WordLimit is the maximum number of words accepted across document text,
// image text and additional context. The user message is not counted.
const WordLimit = 500

// ExceededError reports a request whose content is over the word limit.
type ExceededError struct {
	Total int
	Limit int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("Total content too large (%d words). Maximum allowed: %d words.", e.Total, e.Limit)
}

// CountWords returns the number of whitespace-delimited tokens in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// Total sums the word counts of every present extracted text and the context.
func Total(extracted []domain.ExtractedContent, context *string) int {
	total := 0
	for _, ec := range extracted {
		if ec.Text != nil {
			total += CountWords(*ec.Text)
		}
	}
	if context != nil {
		total += CountWords(*context)
	}
	return total
}

// Check fails with *ExceededError when total is above WordLimit.
func Check(total int) error {
	if total > WordLimit {
		return &ExceededError{Total: total, Limit: WordLimit}
	}
	return nil
}
