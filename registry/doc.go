// Package registry talks to the registry manifest API. It answers two
// questions for a tag under a given schema version: does the manifest exist,
// and what are its bytes and canonical digest. Authentication and the
// registry ping are delegated to go-containerregistry's transport.
package registry
