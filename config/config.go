// Package config carrega a configuração do serviço a partir do ambiente.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config reúne todas as variáveis de ambiente do serviço.
type Config struct {
	HTTPAddr string `env:"CUSTODIA_HTTP_ADDR" envDefault:":8080"`

	DBDriver string `env:"CUSTODIA_DB_DRIVER" envDefault:"postgres"`
	DBDSN    string `env:"CUSTODIA_DB_DSN" envDefault:"host=localhost port=5432 user=custodia dbname=custodia sslmode=disable"`

	SolanaRPCURL       string `env:"CUSTODIA_SOLANA_RPC_URL" envDefault:"https://api.devnet.solana.com"`
	SolanaIssuerKey    string `env:"CUSTODIA_SOLANA_ISSUER_KEY"`
	SolanaMintDecimals uint8  `env:"CUSTODIA_SOLANA_MINT_DECIMALS" envDefault:"0"`

	SolanaConfirmTimeout time.Duration `env:"CUSTODIA_SOLANA_CONFIRM_TIMEOUT" envDefault:"60s"`

	// SolanaCustodyKeys mapeia carteira -> chave privada base58 para as
	// carteiras cuja assinatura o serviço delega à custódia configurada.
	SolanaCustodyKeys map[string]string `env:"CUSTODIA_SOLANA_CUSTODY_KEYS" envSeparator:"," envKeyValSeparator:"="`

	// IdentityRoles mapeia signatário -> papel (WAREHOUSE, CLIENT ou BANK).
	IdentityRoles map[string]string `env:"CUSTODIA_IDENTITY_ROLES" envSeparator:"," envKeyValSeparator:"="`

	RedisAddr      string        `env:"CUSTODIA_REDIS_ADDR"`
	RedisPassword  string        `env:"CUSTODIA_REDIS_PASSWORD"`
	RedisDB        int           `env:"CUSTODIA_REDIS_DB" envDefault:"0"`
	IdempotencyTTL time.Duration `env:"CUSTODIA_IDEMPOTENCY_TTL" envDefault:"720h"`

	LogLevel  string `env:"CUSTODIA_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"CUSTODIA_LOG_FORMAT" envDefault:"json"`
	LogFile   string `env:"CUSTODIA_LOG_FILE"`

	ListenerInterval time.Duration `env:"CUSTODIA_LISTENER_INTERVAL" envDefault:"30s"`
}

// Load lê o ambiente e valida os valores.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate verifica combinações inválidas.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("driver de banco não suportado: %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("CUSTODIA_DB_DSN é obrigatório")
	}
	if c.SolanaConfirmTimeout <= 0 {
		return fmt.Errorf("CUSTODIA_SOLANA_CONFIRM_TIMEOUT deve ser positivo")
	}
	if c.ListenerInterval <= 0 {
		return fmt.Errorf("CUSTODIA_LISTENER_INTERVAL deve ser positivo")
	}
	return nil
}
