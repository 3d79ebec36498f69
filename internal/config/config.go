// Package config loads the watcher configuration from a YAML file, a .env
// file and environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"solana-token-watch/internal/domain"
	"solana-token-watch/internal/eligibility"
	"solana-token-watch/internal/trigger"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Executor kinds.
const (
	ExecutorNone    = "none"
	ExecutorGMGN    = "gmgn"
	ExecutorJupiter = "jupiter"
)

// Duration is a time.Duration written as a Go duration string ("30s", "48h").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete watcher configuration.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Solana   SolanaConfig   `yaml:"solana"`
	Executor ExecutorConfig `yaml:"executor"`
	Telegram TelegramConfig `yaml:"telegram"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Report   ReportConfig   `yaml:"report"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	Feeds    FeedsConfig    `yaml:"feeds"`
}

// StorageConfig selects the durable KV backend and the optional snapshot history.
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	RedisURL      string `yaml:"redis_url"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	SQLitePath    string `yaml:"sqlite_path"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"` // empty disables history
}

// SolanaConfig holds node endpoints and the wallet.
type SolanaConfig struct {
	RPCEndpoint string `yaml:"rpc_endpoint"`
	WSEndpoint  string `yaml:"ws_endpoint"`
	// WalletPrivateKey is read from WALLET_PRIVATE_KEY only.
	WalletPrivateKey string `yaml:"-"`
}

// ExecutorConfig selects the swap router.
type ExecutorConfig struct {
	Kind         string   `yaml:"kind"`
	AntiMEV      bool     `yaml:"anti_mev"`
	SlippagePct  float64  `yaml:"slippage_pct"` // gmgn
	SlippageBps  int      `yaml:"slippage_bps"` // jupiter
	TradeTimeout Duration `yaml:"trade_timeout"`
	PollInterval Duration `yaml:"poll_interval"`
}

// TelegramConfig configures chat notifications. Empty token disables them.
type TelegramConfig struct {
	Token       string `yaml:"-"`
	ChatID      string `yaml:"chat_id"`
	AdminChatID string `yaml:"admin_chat_id"`
}

// SheetsConfig configures the spreadsheet report. Empty id disables it.
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	CredentialsPath string `yaml:"credentials_path"`
}

// ReportConfig toggles the console table.
type ReportConfig struct {
	Console bool `yaml:"console"`
}

// TriggerConfig holds the exit multiplier tiers as decimal strings.
type TriggerConfig struct {
	Boundary       string `yaml:"boundary"`
	HighMultiplier string `yaml:"high_multiplier"`
	LowMultiplier  string `yaml:"low_multiplier"`
}

// FeedsConfig holds per-feed settings.
type FeedsConfig struct {
	DexScreener   FeedConfig `yaml:"dexscreener"`
	GeckoTerminal FeedConfig `yaml:"geckoterminal"`
}

// FeedConfig configures one feed's reconciliation loop.
type FeedConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Interval     Duration `yaml:"interval"`
	BaseURL      string   `yaml:"base_url"`
	Network      string   `yaml:"network"` // chain id for DexScreener, network for GeckoTerminal
	WatchlistKey string   `yaml:"watchlist_key"`
	RegistryKey  string   `yaml:"registry_key"`
	StagingTTL   Duration `yaml:"staging_ttl"`
	BatchSize    int      `yaml:"batch_size"`
	Sheet        string   `yaml:"sheet"`

	// Thresholds left unset take the eligibility defaults; an explicit 0 is kept.
	MaxAge       *Duration `yaml:"max_age"`
	MinLiquidity *float64  `yaml:"min_liquidity"`
	MinBuys      *int64    `yaml:"min_buys"`

	// EntryAmount is the quote amount in base units bought on promotion.
	EntryAmount   string   `yaml:"entry_amount"`
	WatchInterval Duration `yaml:"watch_interval"`
}

// Filter returns the admission thresholds.
func (f FeedConfig) Filter() eligibility.Config {
	c := eligibility.DefaultConfig()
	if f.MaxAge != nil {
		c.MaxAge = f.MaxAge.Std()
	}
	if f.MinLiquidity != nil {
		c.MinLiquidity = *f.MinLiquidity
	}
	if f.MinBuys != nil {
		c.MinBuys = *f.MinBuys
	}
	return c
}

// Feed returns the settings of feed.
func (c *Config) Feed(feed domain.Feed) FeedConfig {
	if feed == domain.FeedGeckoTerminal {
		return c.Feeds.GeckoTerminal
	}
	return c.Feeds.DexScreener
}

// EnabledFeeds lists the feeds to run.
func (c *Config) EnabledFeeds() []domain.Feed {
	var feeds []domain.Feed
	if c.Feeds.DexScreener.Enabled {
		feeds = append(feeds, domain.FeedDexScreener)
	}
	if c.Feeds.GeckoTerminal.Enabled {
		feeds = append(feeds, domain.FeedGeckoTerminal)
	}
	return feeds
}

// SelectFeeds enables exactly the comma-separated feeds in list.
func (c *Config) SelectFeeds(list string) error {
	c.Feeds.DexScreener.Enabled = false
	c.Feeds.GeckoTerminal.Enabled = false
	for _, name := range strings.Split(list, ",") {
		switch domain.Feed(strings.TrimSpace(strings.ToLower(name))) {
		case domain.FeedDexScreener, "ds":
			c.Feeds.DexScreener.Enabled = true
		case domain.FeedGeckoTerminal, "gt":
			c.Feeds.GeckoTerminal.Enabled = true
		case "":
		default:
			return fmt.Errorf("unknown feed %q", name)
		}
	}
	return nil
}

// Evaluator returns the trigger tiers.
func (t TriggerConfig) Evaluator() (trigger.Config, error) {
	boundary, err := decimal.NewFromString(t.Boundary)
	if err != nil {
		return trigger.Config{}, fmt.Errorf("trigger.boundary: %w", err)
	}
	high, err := decimal.NewFromString(t.HighMultiplier)
	if err != nil {
		return trigger.Config{}, fmt.Errorf("trigger.high_multiplier: %w", err)
	}
	low, err := decimal.NewFromString(t.LowMultiplier)
	if err != nil {
		return trigger.Config{}, fmt.Errorf("trigger.low_multiplier: %w", err)
	}
	return trigger.Config{Boundary: boundary, HighMultiplier: high, LowMultiplier: low}, nil
}

// Load reads path (optional when empty), then .env, then the environment,
// and fills defaults. Without a file both feeds are enabled. It does not
// validate.
func Load(path string) (*Config, error) {
	// A missing .env file is fine
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	} else {
		cfg.Feeds.DexScreener.Enabled = true
		cfg.Feeds.GeckoTerminal.Enabled = true
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	set(&cfg.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	set(&cfg.Solana.WalletPrivateKey, "WALLET_PRIVATE_KEY")
	set(&cfg.Solana.RPCEndpoint, "SOLANA_RPC_ENDPOINT")
	set(&cfg.Solana.WSEndpoint, "SOLANA_WS_ENDPOINT")
	set(&cfg.Storage.RedisURL, "REDIS_URL")
	set(&cfg.Storage.PostgresDSN, "POSTGRES_DSN")
	set(&cfg.Storage.ClickhouseDSN, "CLICKHOUSE_DSN")
	set(&cfg.Sheets.SpreadsheetID, "SPREADSHEET_ID")
	set(&cfg.Sheets.CredentialsPath, "GOOGLE_AUTH_CREDENTIALS_PATH")
}

func setDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		switch {
		case cfg.Storage.RedisURL != "":
			cfg.Storage.Backend = BackendRedis
		case cfg.Storage.PostgresDSN != "":
			cfg.Storage.Backend = BackendPostgres
		default:
			cfg.Storage.Backend = BackendMemory
		}
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "watch.db"
	}

	if cfg.Solana.RPCEndpoint == "" {
		cfg.Solana.RPCEndpoint = "https://api.mainnet-beta.solana.com"
	}

	if cfg.Executor.Kind == "" {
		cfg.Executor.Kind = ExecutorNone
		if cfg.Solana.WalletPrivateKey != "" {
			cfg.Executor.Kind = ExecutorGMGN
		}
	}
	if cfg.Executor.SlippagePct <= 0 {
		cfg.Executor.SlippagePct = 10
	}
	if cfg.Executor.SlippageBps <= 0 {
		cfg.Executor.SlippageBps = 50
	}
	if cfg.Executor.TradeTimeout <= 0 {
		cfg.Executor.TradeTimeout = Duration(2 * time.Minute)
	}
	if cfg.Executor.PollInterval <= 0 {
		cfg.Executor.PollInterval = Duration(2 * time.Second)
	}

	def := trigger.DefaultConfig()
	if cfg.Trigger.Boundary == "" {
		cfg.Trigger.Boundary = def.Boundary.String()
	}
	if cfg.Trigger.HighMultiplier == "" {
		cfg.Trigger.HighMultiplier = def.HighMultiplier.String()
	}
	if cfg.Trigger.LowMultiplier == "" {
		cfg.Trigger.LowMultiplier = def.LowMultiplier.String()
	}

	feedDefaults(&cfg.Feeds.DexScreener, domain.FeedDexScreener, 48*time.Hour, "tokenList", "tempTokens", "DATA")
	feedDefaults(&cfg.Feeds.GeckoTerminal, domain.FeedGeckoTerminal, time.Hour, "pools", "tempPoolAddresses", "GT")
}

func feedDefaults(f *FeedConfig, feed domain.Feed, stagingTTL time.Duration, watchlistKey, registryKey, sheet string) {
	prefix := feed.ShortName() + ":"
	if f.Interval <= 0 {
		f.Interval = Duration(30 * time.Second)
	}
	if f.Network == "" {
		f.Network = "solana"
	}
	if f.WatchlistKey == "" {
		f.WatchlistKey = prefix + watchlistKey
	}
	if f.RegistryKey == "" {
		f.RegistryKey = prefix + registryKey
	}
	if f.StagingTTL <= 0 {
		f.StagingTTL = Duration(stagingTTL)
	}
	if f.BatchSize <= 0 {
		f.BatchSize = 30
	}
	if f.Sheet == "" {
		f.Sheet = sheet
	}

	def := eligibility.DefaultConfig()
	if f.MaxAge == nil {
		v := Duration(def.MaxAge)
		f.MaxAge = &v
	}
	if f.MinLiquidity == nil {
		v := def.MinLiquidity
		f.MinLiquidity = &v
	}
	if f.MinBuys == nil {
		v := def.MinBuys
		f.MinBuys = &v
	}
}

// Validate checks that the configuration can run.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("storage.redis_url (REDIS_URL) is required for the redis backend"))
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn (POSTGRES_DSN) is required for the postgres backend"))
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend))
	}

	switch c.Executor.Kind {
	case ExecutorNone:
	case ExecutorGMGN, ExecutorJupiter:
		if c.Solana.WalletPrivateKey == "" {
			errs = append(errs, fmt.Errorf("executor %s needs WALLET_PRIVATE_KEY", c.Executor.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("executor.kind: unknown executor %q", c.Executor.Kind))
	}

	if c.Telegram.Token != "" && c.Telegram.ChatID == "" {
		errs = append(errs, errors.New("telegram.chat_id (TELEGRAM_CHAT_ID) is required with a bot token"))
	}
	if c.Sheets.SpreadsheetID != "" && c.Sheets.CredentialsPath == "" {
		errs = append(errs, errors.New("sheets.credentials_path (GOOGLE_AUTH_CREDENTIALS_PATH) is required with a spreadsheet id"))
	}

	if _, err := c.Trigger.Evaluator(); err != nil {
		errs = append(errs, err)
	}

	feeds := c.EnabledFeeds()
	if len(feeds) == 0 {
		errs = append(errs, errors.New("no feed enabled"))
	}
	for _, feed := range feeds {
		f := c.Feed(feed)
		if f.EntryAmount != "" {
			amount, err := decimal.NewFromString(f.EntryAmount)
			if err != nil || !amount.IsInteger() || !amount.IsPositive() {
				errs = append(errs, fmt.Errorf("feeds.%s.entry_amount: %q is not a positive integer", feed, f.EntryAmount))
			}
			if c.Executor.Kind == ExecutorNone {
				errs = append(errs, fmt.Errorf("feeds.%s.entry_amount needs an executor", feed))
			}
		}
		if f.WatchlistKey == f.RegistryKey {
			errs = append(errs, fmt.Errorf("feeds.%s: watchlist and registry keys must differ", feed))
		}
		limits := f.Filter()
		if limits.MaxAge < 0 || limits.MinLiquidity < 0 || limits.MinBuys < 0 {
			errs = append(errs, fmt.Errorf("feeds.%s: thresholds must not be negative", feed))
		}
	}
	if c.Feeds.DexScreener.Enabled && c.Feeds.GeckoTerminal.Enabled {
		ds, gt := c.Feeds.DexScreener, c.Feeds.GeckoTerminal
		if ds.WatchlistKey == gt.WatchlistKey {
			errs = append(errs, errors.New("feeds must not share a watchlist key"))
		}
		// Each sheet publish clears the tab
		if c.Sheets.SpreadsheetID != "" && ds.Sheet == gt.Sheet {
			errs = append(errs, fmt.Errorf("feeds must not share sheet %q", ds.Sheet))
		}
	}

	return errors.Join(errs...)
}
