package resolver

// SplitDocuments exposes splitDocuments for testing.
var SplitDocuments = splitDocuments

// ParseDocument exposes parseDocument for testing.
var ParseDocument = parseDocument
