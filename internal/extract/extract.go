// Package extract converts uploaded documents into plain text. Extraction
// failures never abort a batch: an unreadable or unsupported file yields
// placeholder text inside the record instead.
package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"github.com/gradescan/gradescan-api/internal/observability"
)

// Kind classifies an uploaded document.
type Kind string

const (
	KindText    Kind = "text"
	KindDocx    Kind = "docx"
	KindPDF     Kind = "pdf"
	KindImage   Kind = "image"
	KindZip     Kind = "zip"
	KindUnknown Kind = "unknown"
)

const docxMime = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// maxArchiveExpansion bounds the total uncompressed size accepted from a
// single ZIP upload.
const maxArchiveExpansion = 200 << 20

// ArchiveEntry is one file pulled out of a ZIP upload.
type ArchiveEntry struct {
	Name string
	Data []byte
}

// Service extracts text from uploaded documents.
type Service struct {
	logger zerolog.Logger
}

// NewService constructs an extraction service.
func NewService(logger zerolog.Logger) *Service {
	return &Service{logger: logger.With().Str("component", "extract_service").Logger()}
}

// DetectKind classifies a document by content, falling back to the file
// extension for formats mimetype reports generically.
func DetectKind(filename string, data []byte) Kind {
	detected := mimetype.Detect(data)
	switch {
	case detected.Is("application/pdf"):
		return KindPDF
	case detected.Is(docxMime):
		return KindDocx
	case detected.Is("application/zip"), detected.Is("application/x-zip-compressed"):
		// DOCX is itself a zip; content detection usually catches it, but a
		// truncated file can fall through to plain zip.
		if strings.EqualFold(filepath.Ext(filename), ".docx") {
			return KindDocx
		}
		return KindZip
	case strings.HasPrefix(detected.String(), "image/"):
		return KindImage
	case strings.HasPrefix(detected.String(), "text/"):
		return KindText
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".text":
		return KindText
	}

	return KindUnknown
}

// Extract converts one document to plain text. It never fails: unsupported
// or corrupt documents produce a sentinel placeholder so the batch proceeds.
func (s *Service) Extract(filename string, data []byte) (string, Kind) {
	kind := DetectKind(filename, data)
	observability.ExtractionTotal().WithLabelValues(string(kind)).Inc()

	switch kind {
	case KindText:
		return strings.TrimSpace(string(data)), kind
	case KindDocx:
		text, err := extractDocx(data)
		if err != nil {
			s.logger.Warn().Err(err).Str("filename", filename).Msg("docx extraction failed")
			return placeholder(filename, "unreadable DOCX"), kind
		}
		return text, kind
	case KindPDF:
		text, err := extractPDF(data)
		if err != nil {
			s.logger.Warn().Err(err).Str("filename", filename).Msg("pdf extraction failed")
			return placeholder(filename, "unreadable PDF"), kind
		}
		return text, kind
	case KindImage:
		// No OCR engine is linked; the record still exists so the user can
		// paste the transcription by hand.
		return placeholder(filename, "unsupported file type: image"), kind
	default:
		return placeholder(filename, "unsupported file type"), kind
	}
}

// ExpandZip yields the files contained in a ZIP upload, directory entries
// excluded. The uncompressed size guard caps decompression bombs.
func ExpandZip(data []byte) ([]ArchiveEntry, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var totalUncompressed uint64
	var entries []ArchiveEntry
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}

		totalUncompressed += file.UncompressedSize64
		if totalUncompressed > maxArchiveExpansion {
			return nil, fmt.Errorf("zip archive uncompressed size too large")
		}

		handle, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip entry %q: %w", file.Name, err)
		}
		content, err := io.ReadAll(handle)
		handle.Close()
		if err != nil {
			return nil, fmt.Errorf("read zip entry %q: %w", file.Name, err)
		}

		entries = append(entries, ArchiveEntry{Name: filepath.Base(file.Name), Data: content})
	}

	return entries, nil
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("copy pdf text: %w", err)
	}

	return strings.TrimSpace(buf.String()), nil
}

func placeholder(filename, reason string) string {
	return fmt.Sprintf("[%s: %s]", reason, filename)
}
