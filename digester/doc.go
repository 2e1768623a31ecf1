// Package digester computes canonical manifest digests. Schema v2.2 and OCI
// manifests are hashed as served; signed schema v2 manifests are hashed over
// their JWS payload with the signatures detached, which is the digest the
// registry addresses them by.
package digester
