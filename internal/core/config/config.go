package config

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"SERVER"`
	Database  DatabaseConfig  `mapstructure:"DATABASE"`
	Ethereum  EthereumConfig  `mapstructure:"ETHEREUM"`
	Ledger    LedgerConfig    `mapstructure:"LEDGER"`
	AWS       AWSConfig       `mapstructure:"AWS"`
	Scheduler SchedulerConfig `mapstructure:"SCHEDULER"`
}

type ServerConfig struct {
	Host     string `mapstructure:"HOST"`
	Port     string `mapstructure:"PORT"`
	Endpoint string `mapstructure:"ENDPOINT"`
}

type DatabaseConfig struct {
	Username     string `mapstructure:"USERNAME"`
	Password     string `mapstructure:"PASSWORD"`
	Host         string `mapstructure:"HOST"`
	Port         string `mapstructure:"PORT"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`
}

type EthereumConfig struct {
	RPC                string `mapstructure:"RPC"`
	ChainID            int64  `mapstructure:"CHAIN_ID"`
	RewardTokenAddress string `mapstructure:"REWARD_TOKEN_ADDRESS"`
}

// LedgerConfig carries the accrual parameters: the global per-tick reward
// budget (base-10 string, token base units) and the tick before which no
// accrual happens.
type LedgerConfig struct {
	RewardPerTick  string `mapstructure:"REWARD_PER_TICK"`
	StartTick      uint64 `mapstructure:"START_TICK"`
	AdminAddresses string `mapstructure:"ADMIN_ADDRESSES"`
}

type AWSConfig struct {
	Region          string `mapstructure:"REGION"`
	BucketName      string `mapstructure:"BUCKET_NAME"`
	AccessKeyID     string `mapstructure:"ACCESS_KEY_ID"`
	SecretAccessKey string `mapstructure:"SECRET_ACCESS_KEY"`
}

type SchedulerConfig struct {
	Interval int `mapstructure:"INTERVAL"`
}

func (dc *DatabaseConfig) GetConnectionURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dc.Username,
		dc.Password,
		dc.Host,
		dc.Port,
		dc.DatabaseName,
	)
}

// RewardPerTickInt parses the configured per-tick budget.
func (lc *LedgerConfig) RewardPerTickInt() (*big.Int, error) {
	value, ok := new(big.Int).SetString(lc.RewardPerTick, 10)
	if !ok {
		return nil, fmt.Errorf("invalid LEDGER_REWARD_PER_TICK value %q", lc.RewardPerTick)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("LEDGER_REWARD_PER_TICK must be non-negative, got %q", lc.RewardPerTick)
	}
	return value, nil
}

// AdminList splits the comma-separated admin allowlist.
func (lc *LedgerConfig) AdminList() []string {
	if lc.AdminAddresses == "" {
		return nil
	}
	parts := strings.Split(lc.AdminAddresses, ",")
	admins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			admins = append(admins, trimmed)
		}
	}
	return admins
}

type ConfigManager struct {
	config     *Config
	configPath string
	mutex      sync.RWMutex
}

var (
	instance *ConfigManager
	once     sync.Once
)

func GetConfigManager() *ConfigManager {
	once.Do(func() {
		instance = &ConfigManager{
			configPath: ".env",
		}
	})
	return instance
}

func (cm *ConfigManager) SetConfigPath(path string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.configPath = path
	cm.config = nil
}

func (cm *ConfigManager) GetConfig() (*Config, error) {
	cm.mutex.RLock()
	if cm.config != nil {
		defer cm.mutex.RUnlock()
		return cm.config, nil
	}
	cm.mutex.RUnlock()

	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.config != nil {
		return cm.config, nil
	}

	var err error
	cm.config, err = loadConfigFile(cm.configPath)
	return cm.config, err
}

func (cm *ConfigManager) ReloadConfig() (*Config, error) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	var err error
	cm.config, err = loadConfigFile(cm.configPath)
	return cm.config, err
}

func loadConfigFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	v.SetDefault("SERVER", map[string]interface{}{
		"HOST":     v.GetString("SERVER_HOST"),
		"PORT":     v.GetString("SERVER_PORT"),
		"ENDPOINT": v.GetString("SERVER_ENDPOINT"),
	})

	v.SetDefault("DATABASE", map[string]interface{}{
		"USERNAME":      v.GetString("DATABASE_USERNAME"),
		"PASSWORD":      v.GetString("DATABASE_PASSWORD"),
		"HOST":          v.GetString("DATABASE_HOST"),
		"PORT":          v.GetString("DATABASE_PORT"),
		"DATABASE_NAME": v.GetString("DATABASE_DATABASE_NAME"),
	})

	v.SetDefault("ETHEREUM", map[string]interface{}{
		"RPC":                  v.GetString("ETHEREUM_RPC"),
		"CHAIN_ID":             v.GetInt64("ETHEREUM_CHAIN_ID"),
		"REWARD_TOKEN_ADDRESS": v.GetString("ETHEREUM_REWARD_TOKEN_ADDRESS"),
	})

	v.SetDefault("LEDGER", map[string]interface{}{
		"REWARD_PER_TICK": v.GetString("LEDGER_REWARD_PER_TICK"),
		"START_TICK":      v.GetUint64("LEDGER_START_TICK"),
		"ADMIN_ADDRESSES": v.GetString("LEDGER_ADMIN_ADDRESSES"),
	})

	v.SetDefault("AWS", map[string]interface{}{
		"REGION":            v.GetString("AWS_REGION"),
		"BUCKET_NAME":       v.GetString("AWS_BUCKET_NAME"),
		"ACCESS_KEY_ID":     v.GetString("AWS_ACCESS_KEY_ID"),
		"SECRET_ACCESS_KEY": v.GetString("AWS_SECRET_ACCESS_KEY"),
	})

	v.SetDefault("SCHEDULER", map[string]interface{}{
		"INTERVAL": v.GetInt("SCHEDULER_INTERVAL"),
	})

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	if config.Ledger.RewardPerTick == "" {
		return nil, fmt.Errorf("missing required LEDGER_REWARD_PER_TICK configuration")
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
	if config.Server.Endpoint == "" {
		config.Server.Endpoint = "/api"
	}

	return &config, nil
}

func (cm *ConfigManager) GetConfigPath() string {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return cm.configPath
}
