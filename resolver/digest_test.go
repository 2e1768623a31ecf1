package resolver_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/imagepin/digester"
	"github.com/byte4ever/imagepin/imageref"
	"github.com/byte4ever/imagepin/metrics"
	"github.com/byte4ever/imagepin/registry"
	"github.com/byte4ever/imagepin/registry/registrytest"
	"github.com/byte4ever/imagepin/resolver"
)

// fakeClient serves canned answers per schema and records the calls made.
type fakeClient struct {
	exists    map[registry.Schema]bool
	existsErr error
	fetchErr  error
	digests   map[registry.Schema]string

	calls []string
}

func (f *fakeClient) ManifestExists(
	_ context.Context,
	_ name.Tag,
	schema registry.Schema,
	_ authn.Authenticator,
) (bool, error) {
	f.calls = append(f.calls, "exists "+schema.String())

	if f.existsErr != nil {
		return false, f.existsErr
	}

	return f.exists[schema], nil
}

func (f *fakeClient) FetchManifest(
	_ context.Context,
	_ name.Tag,
	schema registry.Schema,
	_ authn.Authenticator,
) (registry.Manifest, error) {
	f.calls = append(f.calls, "fetch "+schema.String())

	if f.fetchErr != nil {
		return registry.Manifest{}, f.fetchErr
	}

	h, err := v1.NewHash(f.digests[schema])
	if err != nil {
		return registry.Manifest{}, err
	}

	return registry.Manifest{Schema: schema, Digest: h}, nil
}

func mustParseTag(tb testing.TB, ref string, opts ...name.Option) imageref.TagReference {
	tb.Helper()

	tag, err := imageref.ParseTag(ref, opts...)
	require.NoError(tb, err)

	return tag
}

func TestDigestResolver_prefers_v22(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		exists: map[registry.Schema]bool{
			registry.SchemaV22: true,
			registry.SchemaV2:  true,
		},
		digests: map[registry.Schema]string{
			registry.SchemaV22: digestA,
			registry.SchemaV2:  digestB,
		},
	}

	reg := prometheus.NewRegistry()
	counters := metrics.NewCounters(reg)
	res := resolver.NewDigestResolver(anonymousKeychain, client, counters)

	got, err := res.Resolve(
		context.Background(), mustParseTag(t, "gcr.io/team/app:v1"),
	)

	require.NoError(t, err)
	assert.Equal(t, "gcr.io/team/app@"+digestA, got.String())
	assert.Equal(t, []string{"exists v2.2", "fetch v2.2"}, client.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(
		counters.ManifestFetches.WithLabelValues("v2.2"),
	), 0)
}

func TestDigestResolver_falls_back_to_v2(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		exists: map[registry.Schema]bool{
			registry.SchemaV2: true,
		},
		digests: map[registry.Schema]string{
			registry.SchemaV2: digestB,
		},
	}

	res := resolver.NewDigestResolver(anonymousKeychain, client, nil)

	got, err := res.Resolve(
		context.Background(), mustParseTag(t, "gcr.io/team/app:v1"),
	)

	require.NoError(t, err)
	assert.Equal(t, "gcr.io/team/app@"+digestB, got.String())
	assert.Equal(
		t,
		[]string{"exists v2.2", "exists v2", "fetch v2"},
		client.calls,
	)
}

func TestDigestResolver_not_found_under_either_schema(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	res := resolver.NewDigestResolver(anonymousKeychain, client, nil)

	_, err := res.Resolve(
		context.Background(), mustParseTag(t, "gcr.io/team/app:v1"),
	)

	require.ErrorIs(t, err, resolver.ErrSchemaNotFound)
	assert.Equal(t, []string{"exists v2.2", "exists v2"}, client.calls)
}

func TestDigestResolver_error_taxonomy(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		client   *fakeClient
		keychain authn.Keychain
		want     error
	}{
		"credentials": {
			client: &fakeClient{},
			keychain: keychainFunc(
				func(authn.Resource) (authn.Authenticator, error) {
					return nil, errors.New("helper crashed")
				},
			),
			want: resolver.ErrCredentials,
		},
		"network on exists": {
			client: &fakeClient{
				existsErr: errors.New("connection refused"),
			},
			want: resolver.ErrNetwork,
		},
		"network on fetch": {
			client: &fakeClient{
				exists:   map[registry.Schema]bool{registry.SchemaV22: true},
				fetchErr: errors.New("connection reset"),
			},
			want: resolver.ErrNetwork,
		},
		"malformed manifest": {
			client: &fakeClient{
				exists: map[registry.Schema]bool{registry.SchemaV2: true},
				fetchErr: fmt.Errorf(
					"fetching: %w", digester.ErrMalformedManifest,
				),
			},
			want: resolver.ErrManifestParse,
		},
		"digest mismatch": {
			client: &fakeClient{
				exists: map[registry.Schema]bool{registry.SchemaV22: true},
				fetchErr: fmt.Errorf(
					"fetching: %w", registry.ErrDigestMismatch,
				),
			},
			want: resolver.ErrManifestParse,
		},
		"vanished between calls": {
			client: &fakeClient{
				exists: map[registry.Schema]bool{registry.SchemaV22: true},
				fetchErr: fmt.Errorf(
					"fetching: %w", registry.ErrManifestUnknown,
				),
			},
			want: resolver.ErrSchemaNotFound,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			kc := tt.keychain
			if kc == nil {
				kc = anonymousKeychain
			}

			res := resolver.NewDigestResolver(kc, tt.client, nil)

			_, err := res.Resolve(
				context.Background(),
				mustParseTag(t, "gcr.io/team/app:v1"),
			)

			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDigestResolver_live_registry_v22(t *testing.T) {
	t.Parallel()

	host := registrytest.New(t)
	want := registrytest.PushRandom(t, host+"/team/app:v1")

	res := resolver.NewDigestResolver(
		anonymousKeychain, registry.NewClient(nil), nil,
	)

	got, err := res.Resolve(
		context.Background(),
		mustParseTag(t, host+"/team/app:v1", name.Insecure),
	)

	require.NoError(t, err)
	assert.Equal(t, host+"/team/app@"+want.String(), got.String())
}

func TestDigestResolver_live_registry_v2_only(t *testing.T) {
	t.Parallel()

	host := registrytest.New(t)
	manifest, payload := registrytest.SignedSchema1(t, "team/old", "v1")
	registrytest.PutManifest(
		t, host, "team/old", "v1",
		types.DockerManifestSchema1Signed, manifest,
	)

	want, err := digester.ManifestDigest(payload)
	require.NoError(t, err)

	res := resolver.NewDigestResolver(
		anonymousKeychain, registry.NewClient(nil), nil,
	)

	got, err := res.Resolve(
		context.Background(),
		mustParseTag(t, host+"/team/old:v1", name.Insecure),
	)

	require.NoError(t, err)
	assert.Equal(t, host+"/team/old@"+want.String(), got.String())
}
