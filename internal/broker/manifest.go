package broker

// Manifest describes a broker plugin's capabilities and auth requirements,
// loaded from a plugin.json file in the plugin's directory. Field shapes
// are ported from brokers/base.py's BrokerMetadata/BrokerCapabilities/
// BrokerAuthConfig dataclasses.
type Manifest struct {
	Name         string            `json:"name"`
	DisplayName  string            `json:"display_name"`
	Version      string            `json:"version"`
	Description  string            `json:"description"`
	Capabilities Capabilities      `json:"capabilities"`
	Auth         AuthConfig        `json:"auth"`
	Exchanges    []string          `json:"exchanges"`
	SymbolFormat string            `json:"symbol_format"`
	LogoURL      string            `json:"logo_url"`
	ConfigSchema map[string]string `json:"config_schema"`
	// BrokerEntryPoint is the compiled-in registration name a plugin's
	// init() is expected to register itself under (Go has no dynamic
	// import; plugins are compiled in and self-register, see registry.go).
	BrokerEntryPoint string `json:"broker_entry_point"`
}

// Capabilities mirrors brokers/base.py's BrokerCapabilities.
type Capabilities struct {
	Trading        bool `json:"trading"`
	MarketData     bool `json:"market_data"`
	HistoricalData bool `json:"historical_data"`
	Streaming      bool `json:"streaming"`
	Options        bool `json:"options"`
	Futures        bool `json:"futures"`
	Equity         bool `json:"equity"`
	Commodities    bool `json:"commodities"`
	Currency       bool `json:"currency"`
}

// AuthConfig mirrors brokers/base.py's BrokerAuthConfig.
type AuthConfig struct {
	AuthType          string `json:"type"`
	RequiresAPIKey    bool   `json:"requires_api_key"`
	RequiresAPISecret bool   `json:"requires_api_secret"`
	RequiresTOTP      bool   `json:"requires_totp"`
	TokenExpiryHours  int    `json:"token_expiry_hours"`
	OAuthAuthURL      string `json:"oauth_auth_url"`
	OAuthTokenURL     string `json:"oauth_token_url"`
}

// DefaultManifest fills in the same defaults registry.py's
// _parse_metadata applies when a manifest omits a field.
func DefaultManifest(name, displayName, version string) Manifest {
	return Manifest{
		Name:        name,
		DisplayName: displayName,
		Version:     version,
		Capabilities: Capabilities{
			Trading:    true,
			MarketData: true,
			Equity:     true,
		},
		Auth: AuthConfig{
			AuthType:          "api_key",
			RequiresAPIKey:    true,
			RequiresAPISecret: true,
			TokenExpiryHours:  24,
		},
		SymbolFormat: "{symbol}",
	}
}
