package config

// Default user message templates. Field values are interpolated verbatim.
const (
	DefaultFlatTemplate   = "Creditor: {{.Creditor}}\nDefault Amount: {{.DefaultAmount}}\nBreach Details: {{.BreachDetails}}"
	DefaultNestedTemplate = "Name: {{.Name}}\nPost Content: {{.PostContent}}\nBreach Details: {{.BreachDetails}}"
)

// ProcessingConfig defines how the user message is built from a dispute
type ProcessingConfig struct {
	// RequestTemplates maps an input shape to the text/template used for
	// the user message. Entries in the YAML file replace the defaults for
	// the same shape only.
	RequestTemplates map[string]string `yaml:"request_templates"`
}
