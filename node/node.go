// Package node wires the ledger consumer service: it opens the database,
// connects to the bus and processes transaction messages until stopped.
package node

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/olegabu/go-utxo-ledger/ledger"
	"github.com/olegabu/go-utxo-ledger/pubsub"
)

type Config struct {
	DbDir   string   `mapstructure:"db_dir"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Group   string   `mapstructure:"group"`
}

func DefaultConfig() Config {
	dir, err := homedir.Dir()
	if err != nil {
		panic("cannot get homedir")
	}

	return Config{
		DbDir:   filepath.Join(dir, ".uxl"),
		Brokers: []string{"127.0.0.1:9092"},
		Topic:   ledger.DefaultTopic,
		Group:   "ledger",
	}
}

// ReadConfig loads configuration from configFile over the defaults. A
// missing file is not an error: the defaults stand.
func ReadConfig(configFile string) (config Config, err error) {
	config = DefaultConfig()

	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return config, nil
		}
		return config, errors.Wrap(err, "viper failed to read config file")
	}
	if err := viper.Unmarshal(&config); err != nil {
		return config, errors.Wrap(err, "viper failed to unmarshal config")
	}

	return config, nil
}

// Start runs the consumer until ctx is cancelled or a signal arrives.
// Delivery is at-least-once; Ledger.Process discards duplicates.
func Start(ctx context.Context, config Config, logger zerolog.Logger) error {
	db, err := ledger.NewLeveldbDatabase(config.DbDir)
	if err != nil {
		return errors.Wrap(err, "cannot create NewLeveldbDatabase")
	}
	defer db.Close()

	bus, err := pubsub.NewKafkaBus(config.Brokers, logger)
	if err != nil {
		return errors.Wrap(err, "cannot create NewKafkaBus")
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Error().Err(err).Msg("cannot close bus")
		}
	}()

	led := ledger.NewLedger(db, bus, config.Topic, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()

	logger.Info().Str("topic", config.Topic).Str("group", config.Group).Msg("listening for transactions")

	err = bus.Listen(ctx, config.Topic, config.Group, func(value []byte) {
		if err := led.Process(value); err != nil {
			logger.Error().Err(err).Msg("cannot process message")
		}
	})
	if err == context.Canceled {
		return nil
	}
	return err
}
