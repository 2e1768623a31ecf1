package resolver_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/imagepin/imageref"
	"github.com/byte4ever/imagepin/resolver"
)

const (
	digestA = "sha256:" +
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" +
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	digestB = "sha256:" +
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb" +
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// fakeResolver resolves a fixed set of tags and fails every other one with
// ErrNetwork. It counts calls per normalized tag.
type fakeResolver struct {
	digests map[string]string
	delay   time.Duration

	mu    sync.Mutex
	calls map[string]int
}

func newFakeResolver(
	tb testing.TB,
	digests map[string]string,
) *fakeResolver {
	tb.Helper()

	norm := make(map[string]string, len(digests))

	for ref, digest := range digests {
		tag, err := imageref.ParseTag(ref)
		require.NoError(tb, err)

		norm[tag.String()] = digest
	}

	return &fakeResolver{
		digests: norm,
		calls:   make(map[string]int),
	}
}

func (f *fakeResolver) Resolve(
	_ context.Context,
	tag imageref.TagReference,
) (imageref.DigestReference, error) {
	f.mu.Lock()
	f.calls[tag.String()]++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	digest, ok := f.digests[tag.String()]
	if !ok {
		return imageref.DigestReference{}, fmt.Errorf(
			"%w: %s unreachable", resolver.ErrNetwork, tag,
		)
	}

	return imageref.NewDigestReference(tag.AsRepository(), digest)
}

func (f *fakeResolver) callsFor(tb testing.TB, ref string) int {
	tb.Helper()

	tag, err := imageref.ParseTag(ref)
	require.NoError(tb, err)

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[tag.String()]
}

func (f *fakeResolver) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := 0
	for _, n := range f.calls {
		total += n
	}

	return total
}

// keychainFunc adapts a function to authn.Keychain.
type keychainFunc func(authn.Resource) (authn.Authenticator, error)

func (f keychainFunc) Resolve(
	res authn.Resource,
) (authn.Authenticator, error) {
	return f(res)
}

var anonymousKeychain = keychainFunc(
	func(authn.Resource) (authn.Authenticator, error) {
		return authn.Anonymous, nil
	},
)
