// Package stamper reads Bazel workspace status files and expands
// single-brace {VAR} placeholders with their values. The resolver uses it to
// stamp --override arguments, so a pinned digest can be supplied through the
// build's status variables.
package stamper
