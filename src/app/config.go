package app

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/tipvault/relayer/erc4337"
	"github.com/tipvault/relayer/src/service"
)

type AppConfig struct {
	// =========================== REQUIRED ===========================

	// Chain node used for simulation and nonces
	RPCURL string
	// ERC-4337 bundler endpoint
	BundlerURL string
	// Paymaster sponsorship endpoint
	PaymasterURL string
	// Database configuration
	DSN string
	// Redis configuration
	RedisAddr string

	// =========================== OPTIONAL ===========================

	LogLevel    string
	Environment string
	Port        string
	Host        string

	// Empty means CORS is not configured
	AllowOrigins []string
	// Enables the X-API-Secret check when set
	APISecret string

	MigrationPath string
	RedisPrefix   string

	ChainID      int64
	EntryPoint   common.Address
	VaultAddress common.Address
	// Enables signing of operations that arrive without a signature
	PrivateKey string

	PaymasterAPIKey     string
	SponsorshipPolicyID string

	MaxFeePerGasGwei         decimal.Decimal
	MaxPriorityFeePerGasGwei decimal.Decimal
	VerificationGasLimit     uint64
	PreVerificationGas       uint64
	CallGasBufferPercent     uint64
	NonceSource              service.NonceSource

	CallTimeout         time.Duration
	ReceiptPollInterval time.Duration
	ReceiptPollAttempts int
	TransportRetries    int
	ReconcileInterval   time.Duration
}

// NewAppConfig reads the configuration from the environment and exits when it is incomplete.
func NewAppConfig() *AppConfig {
	config, err := LoadAppConfig(os.Getenv)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return config
}

// LoadAppConfig builds the server configuration from getenv.
func LoadAppConfig(getenv func(string) string) (*AppConfig, error) {
	return loadConfig(getenv, true)
}

// LoadPipelineConfig builds a configuration for running relays without the
// HTTP server, database and cache.
func LoadPipelineConfig(getenv func(string) string) (*AppConfig, error) {
	return loadConfig(getenv, false)
}

func loadConfig(getenv func(string) string, server bool) (*AppConfig, error) {
	env := envReader{getenv: getenv}
	config := &AppConfig{}

	loadRequiredConfig(&env, config, server)
	loadOptionalConfig(&env, config)
	if server {
		loadCORSConfig(&env, config)
	}
	loadRelayConfig(&env, config)

	if env.err != nil {
		return nil, env.err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// loadRequiredConfig loads all required configuration values
func loadRequiredConfig(env *envReader, config *AppConfig, server bool) {
	config.RPCURL = env.required("RPC_URL")
	config.BundlerURL = env.required("BUNDLER_URL")
	config.PaymasterURL = env.required("PAYMASTER_URL")
	if server {
		config.DSN = env.required("DB_URL")
		config.RedisAddr = env.required("REDIS_URL")
	}
}

// loadOptionalConfig loads all optional configuration values with sensible defaults
func loadOptionalConfig(env *envReader, config *AppConfig) {
	config.Port = env.get("PORT", "8080")

	// Available levels: "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"
	config.LogLevel = env.get("LOG_LEVEL", "debug")
	config.Environment = env.get("ENVIRONMENT", "dev")
	config.Host = env.get("HOST", "localhost:"+config.Port)
	config.APISecret = env.get("API_SECRET", "")
	config.MigrationPath = env.get("MIGRATION_PATH", "file://migrations")
	config.RedisPrefix = env.get("REDIS_PREFIX", "relayer")
}

// loadCORSConfig handles CORS origins configuration with environment-specific behavior
func loadCORSConfig(env *envReader, config *AppConfig) {
	allowOriginsStr := env.get("ALLOW_ORIGINS", "")
	if allowOriginsStr != "" {
		config.AllowOrigins = lo.Compact(lo.Map(strings.Split(allowOriginsStr, ","), func(origin string, _ int) string {
			return strings.TrimSpace(origin)
		}))
		return
	}

	if config.isDev() {
		config.AllowOrigins = []string{"http://localhost:5173"}
		return
	}
	env.fail(fmt.Errorf("ALLOW_ORIGINS not set in environment (required in %s)", config.Environment))
}

// loadRelayConfig loads the chain, gas and polling settings of the relay pipeline
func loadRelayConfig(env *envReader, config *AppConfig) {
	defaults := service.DefaultGasPolicy()

	config.ChainID = env.getInt("CHAIN_ID", 84532)
	config.EntryPoint = env.getAddress("ENTRY_POINT", erc4337.EntryPointV07)
	config.VaultAddress = env.getAddress("VAULT_ADDRESS", common.Address{})
	config.PrivateKey = strings.TrimPrefix(env.get("PRIVATE_KEY", ""), "0x")
	config.PaymasterAPIKey = env.get("PAYMASTER_API_KEY", "")
	config.SponsorshipPolicyID = env.get("SPONSORSHIP_POLICY_ID", "")

	config.MaxFeePerGasGwei = env.getDecimal("MAX_FEE_PER_GAS_GWEI", decimal.NewFromInt(1))
	config.MaxPriorityFeePerGasGwei = env.getDecimal("MAX_PRIORITY_FEE_PER_GAS_GWEI", decimal.NewFromInt(1))
	config.VerificationGasLimit = env.getUint("VERIFICATION_GAS_LIMIT", defaults.VerificationGasLimit)
	config.PreVerificationGas = env.getUint("PRE_VERIFICATION_GAS", defaults.PreVerificationGas)
	config.CallGasBufferPercent = env.getUint("CALL_GAS_BUFFER_PERCENT", defaults.CallGasBufferPercent)
	config.NonceSource = service.NonceSource(env.get("NONCE_SOURCE", string(service.NonceSourceAccount)))

	config.CallTimeout = env.getDuration("CALL_TIMEOUT", 5*time.Second)
	config.ReceiptPollInterval = env.getDuration("RECEIPT_POLL_INTERVAL", time.Second)
	config.ReceiptPollAttempts = int(env.getInt("RECEIPT_POLL_ATTEMPTS", 30))
	config.TransportRetries = int(env.getInt("TRANSPORT_RETRIES", 1))
	config.ReconcileInterval = env.getDuration("RECONCILE_INTERVAL", time.Minute)
}

func (c *AppConfig) validate() error {
	switch {
	case c.MaxFeePerGasGwei.IsNegative() || c.MaxPriorityFeePerGasGwei.IsNegative():
		return fmt.Errorf("gas fees must not be negative")
	case c.MaxPriorityFeePerGasGwei.GreaterThan(c.MaxFeePerGasGwei):
		return fmt.Errorf("MAX_PRIORITY_FEE_PER_GAS_GWEI %s exceeds MAX_FEE_PER_GAS_GWEI %s", c.MaxPriorityFeePerGasGwei, c.MaxFeePerGasGwei)
	case c.NonceSource != service.NonceSourceAccount && c.NonceSource != service.NonceSourceEntryPoint:
		return fmt.Errorf("NONCE_SOURCE must be %q or %q, got %q", service.NonceSourceAccount, service.NonceSourceEntryPoint, c.NonceSource)
	case c.ReceiptPollAttempts < 1:
		return fmt.Errorf("RECEIPT_POLL_ATTEMPTS must be at least 1")
	case c.TransportRetries < 0:
		return fmt.Errorf("TRANSPORT_RETRIES must not be negative")
	case c.ChainID <= 0:
		return fmt.Errorf("CHAIN_ID must be positive")
	}
	return nil
}

func (c *AppConfig) isDev() bool {
	return c.Environment == "dev" || c.Environment == "development"
}

// GasPolicy returns the gas settings of the operation builder. Limits below the
// bundler floors are raised when operations are built.
func (c *AppConfig) GasPolicy() service.GasPolicy {
	return service.GasPolicy{
		MaxFeePerGas:         service.GweiToWei(c.MaxFeePerGasGwei),
		MaxPriorityFeePerGas: service.GweiToWei(c.MaxPriorityFeePerGasGwei),
		VerificationGasLimit: c.VerificationGasLimit,
		PreVerificationGas:   c.PreVerificationGas,
		CallGasBufferPercent: c.CallGasBufferPercent,
	}
}

// envReader parses environment values and keeps the first error.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *envReader) required(key string) string {
	value := e.getenv(key)
	if value == "" {
		e.fail(fmt.Errorf("%s not set in environment", key))
	}
	return value
}

// get returns environment variable value or default if not set
func (e *envReader) get(key, defaultValue string) string {
	if value := e.getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e *envReader) getInt(key string, defaultValue int64) int64 {
	value := e.getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s value %q: %w", key, value, err))
		return defaultValue
	}
	return parsed
}

func (e *envReader) getUint(key string, defaultValue uint64) uint64 {
	value := e.getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s value %q: %w", key, value, err))
		return defaultValue
	}
	return parsed
}

func (e *envReader) getDuration(key string, defaultValue time.Duration) time.Duration {
	value := e.getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s value %q: %w", key, value, err))
		return defaultValue
	}
	return parsed
}

func (e *envReader) getDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	value := e.getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s value %q: %w", key, value, err))
		return defaultValue
	}
	return parsed
}

func (e *envReader) getAddress(key string, defaultValue common.Address) common.Address {
	value := e.getenv(key)
	if value == "" {
		return defaultValue
	}
	if !common.IsHexAddress(value) {
		e.fail(fmt.Errorf("invalid %s value %q: not an address", key, value))
		return defaultValue
	}
	return common.HexToAddress(value)
}
