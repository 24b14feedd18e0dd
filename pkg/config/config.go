// Package config holds the application configuration loaded from
// environment variables.
package config

// Config is populated by koanf from the environment. An optional .env file
// is loaded first in main.
type Config struct {
	// Addr is the webhook listen address. Environment variable: HISABI_ADDR
	Addr string `koanf:"HISABI_ADDR"`

	// VerifyToken answers the webhook verification handshake.
	// Environment variable: HISABI_VERIFY_TOKEN
	VerifyToken string `koanf:"HISABI_VERIFY_TOKEN"`

	WhatsApp  WhatsAppConfig
	Extractor ExtractorConfig
	Postgres  PostgresConfig
	Google    GoogleConfig
}

// WhatsAppConfig configures the Cloud API channel client.
type WhatsAppConfig struct {
	Token         string `koanf:"WHATSAPP_TOKEN"`
	PhoneNumberID string `koanf:"WHATSAPP_PHONE_NUMBER_ID"`
	// BaseURL overrides the Graph API endpoint, mainly for tests.
	BaseURL string `koanf:"WHATSAPP_BASE_URL"`
}

// ExtractorConfig configures the OpenAI-compatible extraction client.
type ExtractorConfig struct {
	APIKey  string `koanf:"EXTRACTOR_API_KEY"`
	BaseURL string `koanf:"EXTRACTOR_BASE_URL"`
	Model   string `koanf:"EXTRACTOR_MODEL"`
}

// PostgresConfig holds PostgreSQL connection configuration. An empty Host
// selects the in-memory store (dev mode).
type PostgresConfig struct {
	Host     string `koanf:"POSTGRES_HOST"`
	Port     int    `koanf:"POSTGRES_PORT"`
	Database string `koanf:"POSTGRES_DB"`
	User     string `koanf:"POSTGRES_USER"`
	Password string `koanf:"POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"POSTGRES_SSLMODE"`
}

// GoogleConfig configures the optional Sheets export and Drive image
// hosting integrations.
type GoogleConfig struct {
	// ClientSecretFile is the OAuth credentials JSON path.
	ClientSecretFile string `koanf:"GOOGLE_CLIENT_SECRET_FILE"`
	// TokenFile is where the OAuth token is persisted.
	TokenFile string `koanf:"GOOGLE_TOKEN_FILE"`

	SheetsID    string `koanf:"GSHEETS_ID"`
	SheetsTitle string `koanf:"GSHEETS_TITLE"`
	SheetsName  string `koanf:"GSHEETS_NAME"`

	DriveFolderID string `koanf:"GDRIVE_FOLDER_ID"`
}
