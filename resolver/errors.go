package resolver

import "errors"

// Resolution errors. Each error returned by a TagResolver wraps exactly one
// of them; none of them ever escapes Policy.ResolveString.
var (
	ErrCredentials    = errors.New("resolving credentials")
	ErrSchemaNotFound = errors.New("manifest not found under any schema")
	ErrNetwork        = errors.New("registry request failed")
	ErrManifestParse  = errors.New("unusable manifest")
)

// ErrParseDocument reports an input document that is not valid YAML. It
// aborts the run.
var ErrParseDocument = errors.New("parsing document")

var errNoResolver = errors.New("no live resolver configured")

var errMultipleDocuments = errors.New(
	"expected a single document, found a document header",
)
