package ir

// Version constants for the replicated format and the generator.
const (
	// FormatVersion is the replicated delta/snapshot format version.
	FormatVersion = "1"

	// GeneratorVersion identifies the code generator output dialect.
	GeneratorVersion = "0.1.0"
)
