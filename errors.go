package filesearch

import (
	"errors"

	"github.com/quantatirsk/filesearch/parser"
	"github.com/quantatirsk/filesearch/pipeline"
	"github.com/quantatirsk/filesearch/query"
	"github.com/quantatirsk/filesearch/store"
)

var (
	// ErrDocumentNotFound is returned when a path has no indexed row.
	ErrDocumentNotFound = errors.New("filesearch: document not found")

	// ErrSessionNotFound is returned when polling progress for an unknown
	// indexing session id.
	ErrSessionNotFound = errors.New("filesearch: indexing session not found")

	// ErrResourceUnavailable aliases pipeline.ErrResourceUnavailable: a file
	// vanished, was unreadable, or its directory disappeared mid-walk.
	ErrResourceUnavailable = pipeline.ErrResourceUnavailable

	// ErrParseFailure aliases parser.ErrParseFailure.
	ErrParseFailure = parser.ErrParseFailure

	// ErrScannedPDF aliases parser.ErrScannedPDF: the PDF's text yield is too
	// low relative to its page/image profile to be a native text document.
	ErrScannedPDF = parser.ErrScannedPDF

	// ErrExternalParserRequired aliases parser.ErrExternalParserRequired,
	// returned for legacy binary formats with no native parsing library.
	ErrExternalParserRequired = parser.ErrExternalParserRequired

	// ErrUnsupportedFormat aliases pipeline.ErrUnsupportedFormat: IndexFile
	// was asked to index a non-native extension outside include_all_files
	// mode.
	ErrUnsupportedFormat = pipeline.ErrUnsupportedFormat

	// ErrStoreFailure aliases store.ErrStoreFailure.
	ErrStoreFailure = store.ErrStoreFailure

	// ErrStoreClosed aliases store.ErrStoreClosed.
	ErrStoreClosed = store.ErrStoreClosed

	// ErrQueryFailure aliases store.ErrQueryFailure: an inverted-index
	// expression was malformed and the SearchExact fallback also failed.
	ErrQueryFailure = store.ErrQueryFailure

	// ErrInvariantViolation aliases query.ErrInvariantViolation and is also
	// used directly by the HTTP surface for missing/out-of-range arguments.
	ErrInvariantViolation = query.ErrInvariantViolation
)
