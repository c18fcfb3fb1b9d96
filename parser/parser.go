// Package parser implements the Parser Registry's concrete extension
// handlers: given a path, produce plain text plus a file-category label,
// or a recoverable error. Parsers read only their target file and must
// not mutate other state.
package parser

import (
	"context"
	"errors"
)

// ErrParseFailure is returned when a registered parser fails to produce
// text for a reason other than the distinguished ErrScannedPDF/
// ErrExternalParserRequired variants.
var ErrParseFailure = errors.New("parser: parse failure")

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Body     string // extracted plain text, possibly empty
	FileType string // lowercased extension without the dot; empty from the metadata fallback
	Method   string // "native" or "metadata"
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
