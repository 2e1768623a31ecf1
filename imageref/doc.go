// Package imageref classifies strings as container image references. A
// TagReference names a repository and a mutable tag; a DigestReference names a
// repository and an immutable manifest digest. Strings already in digest form
// never classify as tags.
package imageref
