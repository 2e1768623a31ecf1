// Package resolver pins container image references in multi-document YAML.
// Every string in every document is classified; strings that are image tag
// references are replaced by the repository@digest the registry serves for
// that tag. Resolution is best-effort: a string that is not a reference, or
// whose lookup fails, is emitted unchanged. Within a run a tag always
// resolves to one digest.
package resolver
