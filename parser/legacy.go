package parser

import (
	"context"
	"errors"
)

// ErrExternalParserRequired is returned for legacy binary formats with no
// native parsing library in this module's dependency set.
var ErrExternalParserRequired = errors.New("parser: external parser required for legacy format")

// LegacyParser stubs out legacy binary formats (old Word/PowerPoint
// binary containers) that have no native Go parsing library in this
// module's dependency set, matching the teacher's own treatment of
// formats it defers to an external service for.
type LegacyParser struct{}

func (p *LegacyParser) SupportedFormats() []string { return []string{"doc", "ppt"} }

func (p *LegacyParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	return nil, ErrExternalParserRequired
}
