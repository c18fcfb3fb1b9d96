package parser

// Registry maps a lowercased, dot-free extension to a parsing capability.
// Extension matches first; a fallback "universal metadata" parser, which
// always succeeds with an empty body, is consulted when no other parser
// is registered for the extension.
type Registry struct {
	parsers  map[string]Parser
	fallback Parser
}

// NewRegistry builds a Registry with the module's native parsers
// (txt/pdf/xlsx/xls/docx) and the legacy stub for doc/ppt, plus the
// universal metadata fallback used for every other extension.
func NewRegistry() *Registry {
	r := &Registry{
		parsers:  make(map[string]Parser),
		fallback: &MetadataParser{},
	}
	for _, p := range []Parser{
		&TextParser{},
		&PDFParser{},
		&DOCXParser{},
		&XLSXParser{},
		&LegacyParser{},
	} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

// Get returns the registered parser for format, or the universal
// metadata fallback when none is registered. Get never fails: the
// fallback always succeeds.
func (r *Registry) Get(format string) Parser {
	if p, ok := r.parsers[format]; ok {
		return p
	}
	return r.fallback
}

// HasNativeParser reports whether a non-fallback parser is registered for
// format. Used by the Indexing Pipeline's discover() path, which is
// restricted to extensions with a real parsing capability.
func (r *Registry) HasNativeParser(format string) bool {
	_, ok := r.parsers[format]
	return ok
}

// Register adds or replaces the parser for an extension.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}

// Extensions returns every extension with a registered native parser,
// used to answer the HTTP surface's /supported-formats endpoint.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		exts = append(exts, ext)
	}
	return exts
}
