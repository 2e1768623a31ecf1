// Package registrytest runs an in-memory registry for tests and builds the
// manifests they push to it.
package registrytest

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/go-containerregistry/pkg/name"
	ggcrregistry "github.com/google/go-containerregistry/pkg/registry"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/random"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/stretchr/testify/require"
)

// New starts an in-memory registry and returns its host:port. The server is
// closed when the test ends.
func New(tb testing.TB) string {
	tb.Helper()

	srv := httptest.NewServer(ggcrregistry.New(
		ggcrregistry.Logger(log.New(io.Discard, "", 0)),
	))
	tb.Cleanup(srv.Close)

	return strings.TrimPrefix(srv.URL, "http://")
}

// PushRandom pushes a random schema v2.2 image to ref and returns its digest.
func PushRandom(tb testing.TB, ref string) v1.Hash {
	tb.Helper()

	img, err := random.Image(256, 1)
	require.NoError(tb, err)

	tag, err := name.NewTag(ref, name.Insecure)
	require.NoError(tb, err)

	require.NoError(tb, remote.Write(tag, img))

	digest, err := img.Digest()
	require.NoError(tb, err)

	return digest
}

// PutManifest uploads body as the manifest of host/repo:tag with the given
// media type.
func PutManifest(
	tb testing.TB,
	host string,
	repo string,
	tag string,
	mediaType types.MediaType,
	body []byte,
) {
	tb.Helper()

	u := fmt.Sprintf("http://%s/v2/%s/manifests/%s", host, repo, tag)

	req, err := http.NewRequestWithContext(
		context.Background(), http.MethodPut, u, bytes.NewReader(body),
	)
	require.NoError(tb, err)

	req.Header.Set("Content-Type", string(mediaType))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(tb, err)

	defer resp.Body.Close() //nolint:errcheck // test helper

	require.Equal(tb, http.StatusCreated, resp.StatusCode)
}

// SignedSchema1 builds a JWS-signed schema v2 manifest for repo:tag. It
// returns the signed manifest and the payload its signature covers.
func SignedSchema1(
	tb testing.TB,
	repo string,
	tag string,
) (manifest []byte, payload []byte) {
	tb.Helper()

	payload, err := json.MarshalIndent(map[string]any{
		"schemaVersion": 1,
		"name":          repo,
		"tag":           tag,
		"architecture":  "amd64",
		"fsLayers":      []any{},
		"history":       []any{},
	}, "", "   ")
	require.NoError(tb, err)

	formatLength := bytes.LastIndex(payload, []byte("\n}"))
	require.Positive(tb, formatLength)

	tail := payload[formatLength:]

	protected, err := json.Marshal(map[string]any{
		"formatLength": formatLength,
		"formatTail":   base64.RawURLEncoding.EncodeToString(tail),
		"time":         "2017-01-01T00:00:00Z",
	})
	require.NoError(tb, err)

	var buf bytes.Buffer

	buf.Write(payload[:formatLength])
	buf.WriteString(",\n   \"signatures\": [\n      {\n")
	buf.WriteString("         \"header\": {\"alg\": \"ES256\"},\n")
	buf.WriteString("         \"signature\": \"c2lnbmF0dXJl\",\n")
	buf.WriteString("         \"protected\": \"")
	buf.WriteString(base64.RawURLEncoding.EncodeToString(protected))
	buf.WriteString("\"\n      }\n   ]")
	buf.Write(tail)

	return buf.Bytes(), payload
}
