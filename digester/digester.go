package digester

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	v1 "github.com/google/go-containerregistry/pkg/v1"
)

// ErrMalformedManifest reports a manifest whose digest cannot be computed.
var ErrMalformedManifest = errors.New("malformed manifest")

// ManifestDigest returns the sha256 digest of a schema v2.2 or OCI manifest.
func ManifestDigest(manifest []byte) (v1.Hash, error) {
	const errCtx = "calculating manifest digest"

	h, _, err := v1.SHA256(bytes.NewReader(manifest))
	if err != nil {
		return v1.Hash{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return h, nil
}

type signedManifest struct {
	Signatures *[]jwsSignature `json:"signatures"`
}

type jwsSignature struct {
	Protected string `json:"protected"`
}

type protectedHeader struct {
	FormatLength int    `json:"formatLength"`
	FormatTail   string `json:"formatTail"`
}

// SignedManifestDigest returns the digest of a schema v2 manifest. When the
// manifest carries signatures they are detached first; an unsigned manifest
// is hashed as is.
func SignedManifestDigest(manifest []byte) (v1.Hash, error) {
	const errCtx = "calculating signed manifest digest"

	payload, err := DetachSignatures(manifest)
	if err != nil {
		return v1.Hash{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return ManifestDigest(payload)
}

// DetachSignatures returns the payload a schema v2 manifest was signed over.
// The first signature's protected header locates the payload: its
// formatLength prefix of the manifest followed by the decoded formatTail.
func DetachSignatures(manifest []byte) ([]byte, error) {
	const errCtx = "detaching signatures"

	var sm signedManifest
	if err := json.Unmarshal(manifest, &sm); err != nil {
		return nil, fmt.Errorf(
			"%s: %w: %w", errCtx, ErrMalformedManifest, err,
		)
	}

	if sm.Signatures == nil {
		return manifest, nil
	}

	sigs := *sm.Signatures
	if len(sigs) == 0 {
		return nil, fmt.Errorf(
			"%s: %w: expected a signed manifest",
			errCtx, ErrMalformedManifest,
		)
	}

	for idx := range sigs {
		if sigs[idx].Protected == "" {
			return nil, fmt.Errorf(
				"%s: %w: signature %d has no protected header",
				errCtx, ErrMalformedManifest, idx,
			)
		}
	}

	raw, err := joseDecode(sigs[0].Protected)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w: protected header: %w",
			errCtx, ErrMalformedManifest, err,
		)
	}

	var ph protectedHeader
	if err := json.Unmarshal(raw, &ph); err != nil {
		return nil, fmt.Errorf(
			"%s: %w: protected header: %w",
			errCtx, ErrMalformedManifest, err,
		)
	}

	if ph.FormatLength < 0 || ph.FormatLength > len(manifest) {
		return nil, fmt.Errorf(
			"%s: %w: formatLength %d out of range",
			errCtx, ErrMalformedManifest, ph.FormatLength,
		)
	}

	tail, err := joseDecode(ph.FormatTail)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w: formatTail: %w",
			errCtx, ErrMalformedManifest, err,
		)
	}

	payload := make([]byte, 0, ph.FormatLength+len(tail))
	payload = append(payload, manifest[:ph.FormatLength]...)
	payload = append(payload, tail...)

	return payload, nil
}

// joseDecode decodes unpadded base64url, tolerating padding if present.
func joseDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(
		strings.TrimRight(s, "="),
	)
}
