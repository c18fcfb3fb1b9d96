package parser

import (
	"context"
	"os"
)

// TextParser handles plain text files.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &ParseResult{Body: string(data), FileType: "txt", Method: "native"}, nil
}

// MetadataParser is the universal fallback: it always succeeds and
// returns an empty body, so the file is still indexed by metadata (path,
// size, timestamps) even though it carries no searchable content.
type MetadataParser struct{}

func (p *MetadataParser) SupportedFormats() []string { return nil }

func (p *MetadataParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	return &ParseResult{Method: "metadata"}, nil
}
