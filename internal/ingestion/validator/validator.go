// Package validator checks ingest requests and reports per-field errors.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/ingestion"
)

const (
	maxPassages    = 1000
	maxIDLength    = 255
	maxFieldLength = 1024
	maxTextLength  = 1 << 20
	minTextLength  = 1
	fieldPassages  = "passages"
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks batch size, text presence, field lengths and
// ID uniqueness within the batch.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)

	switch {
	case len(req.Passages) == 0:
		errs[fieldPassages] = "at least one passage is required"
	case len(req.Passages) > maxPassages:
		errs[fieldPassages] = fmt.Sprintf("at most %d passages per request", maxPassages)
	}

	seen := make(map[string]int, len(req.Passages))
	for i, p := range req.Passages {
		field := func(name string) string { return fmt.Sprintf("passages[%d].%s", i, name) }

		text := strings.TrimSpace(p.Text)
		if utf8.RuneCountInString(text) < minTextLength {
			errs[field("text")] = "text is required and must not be blank"
		} else if len(p.Text) > maxTextLength {
			errs[field("text")] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
		}
		if len(p.ID) > maxIDLength {
			errs[field("id")] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
		}
		if p.ID != "" {
			if first, dup := seen[p.ID]; dup {
				errs[field("id")] = fmt.Sprintf("duplicates passages[%d].id", first)
			} else {
				seen[p.ID] = i
			}
		}
		if len(p.Document) > maxFieldLength {
			errs[field("document")] = fmt.Sprintf("document must be at most %d characters", maxFieldLength)
		}
		if len(p.Competition) > maxFieldLength {
			errs[field("competition")] = fmt.Sprintf("competition must be at most %d characters", maxFieldLength)
		}
		if p.Page < 0 {
			errs[field("page")] = "page must not be negative"
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
