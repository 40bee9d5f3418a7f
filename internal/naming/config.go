// Package naming converts declared model and field names into GraphQL type
// and field names, and derives storage table names for document adapters.
package naming

// Config holds naming customization options.
type Config struct {
	// TablePrefix is prepended to every derived table name.
	TablePrefix string `mapstructure:"table_prefix"`

	// PluralOverrides maps singular -> custom plural
	// Example: {"person": "people", "status": "statuses"}
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`

	// SingularOverrides maps plural -> custom singular
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   make(map[string]string),
		SingularOverrides: make(map[string]string),
	}
}
