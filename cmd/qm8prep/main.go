// Command qm8prep inspects, converts and plots QM8 molecule tables.
//
// Usage:
//
//	qm8prep stats --source data/preprocessed.json --target E1-CC2
//	qm8prep convert --source data/preprocessed.json --out data/qm8.parquet
//	qm8prep plot --source data --out plots
//
// Every flag can also be set in a YAML config file (--config) or through a
// QM8_ environment variable, e.g. QM8_MAX_ATOMS=26. LOG_LEVEL sets the log
// level.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Noofbiz/qm8/datasets"
	"github.com/Noofbiz/qm8/molecules"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "qm8prep",
	Short: "QM8 dataset preparation",
	Long:  `Inspect, convert and plot molecule tables used to train QM8 property models.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Only the running command's flags are bound, so subcommands may
		// reuse flag names.
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		return initConfig()
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("running the root command, see help or -h for available commands\n")
	},
}

func init() {
	logLevel, ok := os.LookupEnv("LOG_LEVEL")
	if ok {
		level, err := log.ParseLevel(logLevel)
		if err == nil {
			log.SetLevel(level)
		} else {
			log.Warn("Invalid log level. Defaulting to Info level.")
			log.SetLevel(log.InfoLevel)
		}
	} else {
		log.SetLevel(log.InfoLevel)
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().String("source", "", "molecule table (.json, .csv, .parquet) or a directory holding one; searched under data/ when empty")

	initStats()
	initConvert()
	initPlot()
}

func initConfig() error {
	viper.SetEnvPrefix("QM8")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile == "" {
		return nil
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config %s", cfgFile)
	}
	log.WithField("config", viper.ConfigFileUsed()).Debug("loaded config")
	return nil
}

// loadTable resolves the configured source and reads it.
func loadTable() (*molecules.Table, string, error) {
	source := viper.GetString("source")
	var err error
	if source == "" {
		source, err = datasets.AutoFindSource(datasets.DefaultSourcePatterns)
	} else {
		source, err = datasets.ResolveSource(source)
	}
	if err != nil {
		return nil, "", err
	}

	log.WithField("source", source).Info("loading molecules")
	table, err := molecules.Load(source)
	if err != nil {
		return nil, "", err
	}
	return table, source, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
