// Package overrides holds the tag to digest table shared by one resolution
// run. The table is seeded from user supplied "tag=digest" pairs and grows as
// live resolutions complete; entries are never removed, so every later lookup
// of a tag sees the same digest.
package overrides
