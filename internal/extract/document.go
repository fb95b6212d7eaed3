package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/legalchat/internal/domain"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeText = "text/plain"
)

var errUnsupportedDocument = errors.New("unsupported document type")

// DocumentExtractor reads PDF, DOCX and plain-text uploads.
type DocumentExtractor struct {
	logger *slog.Logger
}

// NewDocumentExtractor creates a document extractor.
func NewDocumentExtractor(logger *slog.Logger) *DocumentExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentExtractor{logger: logger}
}

// Extract dispatches on the file extension, falling back to the sniffed MIME type.
func (e *DocumentExtractor) Extract(_ context.Context, upload domain.Upload) (*string, error) {
	kind := documentKind(upload)

	var (
		text string
		err  error
	)
	switch kind {
	case mimePDF:
		text, err = readPDF(upload.Data)
	case mimeDOCX:
		text, err = readDOCX(upload.Data)
	case mimeText:
		text = readText(upload.Data)
	default:
		err = fmt.Errorf("%w: %s", errUnsupportedDocument, kind)
	}
	if err != nil {
		e.logger.Warn("Document extraction failed", "filename", upload.Filename, "kind", kind, "error", err)
		return nil, nil
	}

	out := normalize(text)
	if out == nil {
		e.logger.Warn("Document contained no text", "filename", upload.Filename, "kind", kind)
	}
	return out, nil
}

func documentKind(upload domain.Upload) string {
	switch strings.ToLower(filepath.Ext(upload.Filename)) {
	case ".pdf":
		return mimePDF
	case ".docx":
		return mimeDOCX
	case ".txt", ".md", ".text":
		return mimeText
	}

	detected := mimetype.Detect(upload.Data)
	for m := detected; m != nil; m = m.Parent() {
		switch {
		case m.Is(mimePDF):
			return mimePDF
		case m.Is(mimeDOCX):
			return mimeDOCX
		case m.Is(mimeText):
			return mimeText
		}
	}
	return detected.String()
}

func readPDF(data []byte) (text string, err error) {
	// The PDF reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("copy pdf text: %w", err)
	}
	return buf.String(), nil
}

// readDOCX collects the text runs of word/document.xml, one line per paragraph.
func readDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return "", errors.New("docx: word/document.xml not found")
	}

	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open docx body: %w", err)
	}
	defer func() { _ = rc.Close() }()

	var (
		out     strings.Builder
		inText  bool
		para    strings.Builder
		decoder = xml.NewDecoder(rc)
	)
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if para.Len() > 0 {
					out.WriteString(para.String())
					out.WriteByte('\n')
					para.Reset()
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	if para.Len() > 0 {
		out.WriteString(para.String())
	}
	return out.String(), nil
}

func readText(data []byte) string {
	s := string(data)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.TrimPrefix(s, "\ufeff")
}
