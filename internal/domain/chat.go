package domain

// SourceKind identifies which upload an extracted text came from.
type SourceKind string

const (
	// SourceDocument is a PDF, DOCX or plain-text upload.
	SourceDocument SourceKind = "document"
	// SourceImage is an image upload run through OCR.
	SourceImage SourceKind = "image"
)

// Upload is a binary blob received with a chat turn.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ChatTurnRequest is one inbound chat turn. Document, Image and Context are
// optional; a nil value means the caller did not supply it.
type ChatTurnRequest struct {
	Message  string
	Document *Upload
	Image    *Upload
	Context  *string
}

// ExtractedContent is the outcome of running one upload through its extractor.
// Text is nil when nothing was supplied or extraction failed.
type ExtractedContent struct {
	Source SourceKind
	Text   *string
}

// ChatTurnResponse is the envelope returned for a successful turn.
type ChatTurnResponse struct {
	Response     string        `json:"response"`
	DocumentText *string       `json:"document_text,omitempty"`
	ImageText    *string       `json:"image_text,omitempty"`
	Prompt       string        `json:"prompt"`
	WordCount    *int          `json:"word_count,omitempty"`
	AgentActions []AgentAction `json:"agent_actions"`
}
