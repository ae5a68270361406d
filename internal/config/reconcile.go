package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ReconcileConfig holds the tunables of the batch reconciliation engine.
// It is hot-reloadable so operators can adjust cadence and ceilings without
// restarting the worker.
type ReconcileConfig struct {
	// WorkerInterval is the pause between periodic reconciliation passes.
	WorkerInterval time.Duration `mapstructure:"workerInterval"`
	// JobTimeout bounds a single campaign's reconciliation pass.
	JobTimeout time.Duration `mapstructure:"jobTimeout"`
	// BatchSize caps how many pending submissions one pass picks up.
	BatchSize int `mapstructure:"batchSize"`
	// MaxTierCount is the spillover ceiling: a validated unit that would
	// land beyond this tier is rejected instead.
	MaxTierCount int `mapstructure:"maxTierCount"`
	// DefaultColumnMapping maps logical field names to external column
	// names, used when a staged dataset carries no mapping of its own.
	DefaultColumnMapping map[string]string `mapstructure:"defaultColumnMapping"`
}

func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		WorkerInterval: 5 * time.Minute,
		JobTimeout:     2 * time.Minute,
		BatchSize:      500,
		MaxTierCount:   12,
		DefaultColumnMapping: map[string]string{
			"ORDER_NUMBER": "Order Number",
			"ORG_ID":       "CNPJ",
		},
	}
}

// ReconcileConfigHolder exposes the current ReconcileConfig and swaps it
// atomically on file change.
type ReconcileConfigHolder struct {
	current atomic.Value // holds ReconcileConfig
}

func NewReconcileConfigHolder() (*ReconcileConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("reconcile")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/incentiva/config")
	v.AddConfigPath("/etc/incentiva")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INCENTIVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultReconcileConfig()
		v.SetDefault("reconcile.workerInterval", defaults.WorkerInterval)
		v.SetDefault("reconcile.jobTimeout", defaults.JobTimeout)
		v.SetDefault("reconcile.batchSize", defaults.BatchSize)
		v.SetDefault("reconcile.maxTierCount", defaults.MaxTierCount)
		v.SetDefault("reconcile.defaultColumnMapping", defaults.DefaultColumnMapping)
	}

	var cfg ReconcileConfig
	if err := v.UnmarshalKey("reconcile", &cfg); err != nil {
		return nil, err
	}
	if err := validateReconcileConfig(cfg); err != nil {
		return nil, err
	}

	holder := &ReconcileConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReconcileConfig
		if err := v.UnmarshalKey("reconcile", &updated); err != nil {
			log.Printf("[reconcile-config] reload failed: %v", err)
			return
		}
		if err := validateReconcileConfig(updated); err != nil {
			log.Printf("[reconcile-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[reconcile-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *ReconcileConfigHolder) Get() ReconcileConfig {
	return h.current.Load().(ReconcileConfig)
}

// NewStaticReconcileConfigHolder wraps a fixed config, for tests.
func NewStaticReconcileConfigHolder(cfg ReconcileConfig) *ReconcileConfigHolder {
	holder := &ReconcileConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateReconcileConfig(cfg ReconcileConfig) error {
	if cfg.WorkerInterval <= 0 {
		return errors.New("reconcile.workerInterval must be positive")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("reconcile.batchSize must be positive")
	}
	if cfg.MaxTierCount <= 0 {
		return errors.New("reconcile.maxTierCount must be positive")
	}
	return nil
}
