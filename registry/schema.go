package registry

import (
	"slices"
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/types"

	"github.com/byte4ever/imagepin/digester"
)

// Schema is a registry manifest schema version.
type Schema int

const (
	// SchemaV22 covers Docker schema 2 manifests and lists, and their OCI
	// equivalents.
	SchemaV22 Schema = iota
	// SchemaV2 covers Docker schema 1 manifests, signed or not.
	SchemaV2
)

// Schemas lists every schema newest first, the order lookups try them in.
var Schemas = []Schema{SchemaV22, SchemaV2}

func (s Schema) String() string {
	switch s {
	case SchemaV22:
		return "v2.2"
	case SchemaV2:
		return "v2"
	default:
		return "unknown"
	}
}

// MediaTypes returns the manifest media types served under s.
func (s Schema) MediaTypes() []types.MediaType {
	switch s {
	case SchemaV22:
		return []types.MediaType{
			types.DockerManifestSchema2,
			types.DockerManifestList,
			types.OCIManifestSchema1,
			types.OCIImageIndex,
		}
	case SchemaV2:
		return []types.MediaType{
			types.DockerManifestSchema1Signed,
			types.DockerManifestSchema1,
		}
	default:
		return nil
	}
}

// Accepts reports whether a Content-Type header belongs to s.
func (s Schema) Accepts(contentType string) bool {
	mt, _, _ := strings.Cut(contentType, ";")

	return slices.Contains(
		s.MediaTypes(),
		types.MediaType(strings.TrimSpace(mt)),
	)
}

// Digest computes the canonical digest of a manifest served under s.
func (s Schema) Digest(manifest []byte) (v1.Hash, error) {
	if s == SchemaV2 {
		return digester.SignedManifestDigest(manifest)
	}

	return digester.ManifestDigest(manifest)
}

func (s Schema) acceptHeader() string {
	mts := s.MediaTypes()
	parts := make([]string, 0, len(mts))

	for _, mt := range mts {
		parts = append(parts, string(mt))
	}

	return strings.Join(parts, ",")
}
