package config

// TrackerConfig is the top-level YAML structure handed to the beacon at start-up.
// Boolean options that the host page may only switch off are defaulted to true
// by Default before the file is unmarshalled on top.
type TrackerConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	CompanyID  string `yaml:"company_id"`
	Debug      bool   `yaml:"debug"`

	AutoPageView       bool `yaml:"auto_page_view"`
	AutoFormTracking   bool `yaml:"auto_form_tracking"`
	AutoScrollTracking bool `yaml:"auto_scroll_tracking"`

	CollectFieldValues  bool `yaml:"collect_field_values"`
	MaskSensitiveFields bool `yaml:"mask_sensitive_fields"`
	MaxFieldValueLength int  `yaml:"max_field_value_length"`

	IncludeAllFieldsOnLead       bool `yaml:"include_all_fields_on_lead"`
	IncludeCheckboxRadioOnLead   bool `yaml:"include_checkbox_radio_on_lead"`
	IncludeFileNamesOnLead       bool `yaml:"include_file_names_on_lead"`
	IncludeDisabledOrHidden      bool `yaml:"include_disabled_or_hidden"`
	IncludeUncheckedAsFalse      bool `yaml:"include_unchecked_as_false"`
	IncludeTrackedValuesOnLead   bool `yaml:"include_tracked_values_on_lead"`
	EmitFormSchemaOnStart        bool `yaml:"emit_form_schema_on_start"`
	EmitFormDebugSummary         bool `yaml:"emit_form_debug_summary"`
	ForceFieldValueOnFieldFilled bool `yaml:"force_field_value_on_field_filled"`

	// FieldFilledMaskSensitive falls back to MaskSensitiveFields when unset.
	FieldFilledMaskSensitive   *bool  `yaml:"field_filled_mask_sensitive"`
	FieldFilledMaskReplacement string `yaml:"field_filled_mask_replacement"`

	SensitiveNamePatterns []string `yaml:"sensitive_name_patterns"`
	FieldValueAllowlist   []string `yaml:"field_value_allowlist"`

	Delivery DeliveryConf `yaml:"delivery"`
	Storage  StorageConf  `yaml:"storage"`
}

// DeliveryConf holds tunable settings for the outbound event queue.
type DeliveryConf struct {
	SendWorkers   int `yaml:"send_workers"`
	QueueDepth    int `yaml:"queue_depth"`
	SendTimeoutMs int `yaml:"send_timeout_ms"`
}

// StorageConf selects the persistence tiers available to the identity store.
type StorageConf struct {
	SQLitePath          string `yaml:"sqlite_path"` // empty = in-memory durable tier
	CookiesBlocked      bool   `yaml:"cookies_blocked"`
	LocalStorageBlocked bool   `yaml:"local_storage_blocked"`
}

// DefaultSensitivePatterns are matched case-insensitively against field names and ids.
var DefaultSensitivePatterns = []string{
	"password", "senha", "token", "secret",
	"credit", "card", "cc", "cvv", "cvc",
	"security", "ssn", "cpf", "cnpj", "rg",
}

// Default returns a config with every option at its documented default.
func Default() TrackerConfig {
	return TrackerConfig{
		AutoPageView:                 true,
		AutoFormTracking:             true,
		AutoScrollTracking:           true,
		CollectFieldValues:           true,
		MaskSensitiveFields:          true,
		MaxFieldValueLength:          200,
		IncludeAllFieldsOnLead:       true,
		IncludeCheckboxRadioOnLead:   true,
		IncludeTrackedValuesOnLead:   true,
		EmitFormSchemaOnStart:        true,
		EmitFormDebugSummary:         true,
		ForceFieldValueOnFieldFilled: true,
		FieldFilledMaskReplacement:   "[masked]",
		Delivery: DeliveryConf{
			SendWorkers:   2,
			QueueDepth:    256,
			SendTimeoutMs: 5000,
		},
	}
}

// MaskOnFieldFilled reports whether FieldFilled values of sensitive fields are replaced.
func (c *TrackerConfig) MaskOnFieldFilled() bool {
	if c.FieldFilledMaskSensitive != nil {
		return *c.FieldFilledMaskSensitive
	}
	return c.MaskSensitiveFields
}

// SensitivePatterns returns the configured patterns, or the defaults when none are set.
func (c *TrackerConfig) SensitivePatterns() []string {
	if len(c.SensitiveNamePatterns) > 0 {
		return c.SensitiveNamePatterns
	}
	return DefaultSensitivePatterns
}
