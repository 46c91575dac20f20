package templating

// TemplateConfig holds all configuration options for the templating engine.
type TemplateConfig struct {
	// MaxOutputBytes caps the number of bytes a single render may produce.
	// Execution is aborted once the limit is hit, so a runaway template
	// cannot exhaust memory or flood a client.
	MaxOutputBytes int64

	// MaxTruncateLen caps the length argument accepted by the truncate
	// function.
	MaxTruncateLen int

	// MaxRepeat caps the count accepted by the repeat and seq functions,
	// which would otherwise allow templates to allocate huge slices.
	MaxRepeat int

	// MaxIndent caps the indentation width accepted by the indent function.
	MaxIndent int

	// DateFormat is the layout used by the date function when the template
	// does not pass an explicit layout.
	DateFormat string
}

// DefaultConfig returns a TemplateConfig with safe default values.
func DefaultConfig() TemplateConfig {
	return TemplateConfig{
		MaxOutputBytes: 4 * 1024 * 1024, // 4MB
		MaxTruncateLen: 65536,
		MaxRepeat:      10_000,
		MaxIndent:      64,
		DateFormat:     "2006-01-02 15:04:05",
	}
}
