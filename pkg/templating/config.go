package templating

import "time"

// TemplateConfig holds all configuration options for the templating engine.
type TemplateConfig struct {
	// Extension is the file suffix of loadable templates.
	Extension string `json:"extension"`

	// FragmentTimeoutMs bounds how long one render may wait on its fragments.
	// Zero or less disables the limit.
	FragmentTimeoutMs int `json:"fragment_timeout_ms"`

	// MaxTemplateSize is the largest template file, in bytes, that Refresh accepts.
	MaxTemplateSize int `json:"max_template_size"`

	// StrictData makes a placeholder whose key is missing from the data an error
	// instead of rendering nothing.
	StrictData bool `json:"strict_data"`
}

// DefaultConfig returns a TemplateConfig with safe default values.
func DefaultConfig() *TemplateConfig {
	return &TemplateConfig{
		Extension:         ".tmpl.html",
		FragmentTimeoutMs: 2000,
		MaxTemplateSize:   1048576, // 1MB
		StrictData:        false,
	}
}

func (c *TemplateConfig) fragmentTimeout() time.Duration {
	if c.FragmentTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.FragmentTimeoutMs) * time.Millisecond
}
