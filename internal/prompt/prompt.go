// Package prompt assembles the single prompt sent to the reasoning agent.
package prompt

import "strings"

const (
	documentLabel = "Document content:\n"
	imageLabel    = "Image content:\n"
	contextLabel  = "Additional context:\n"
	questionLabel = "User question: "
)

// Compose joins the present sources in the order document, image, context
// and appends the user question. With no sources the message is returned as is.
func Compose(documentText, imageText, contextText *string, message string) string {
	sections := make([]string, 0, 3)
	if documentText != nil {
		sections = append(sections, documentLabel+*documentText)
	}
	if imageText != nil {
		sections = append(sections, imageLabel+*imageText)
	}
	if contextText != nil {
		sections = append(sections, contextLabel+*contextText)
	}
	if len(sections) == 0 {
		return message
	}
	return strings.Join(sections, "\n\n") + "\n\n" + questionLabel + message
}
