package main

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Noofbiz/qm8/molecules"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Rewrite a JSON or CSV molecule table as Parquet",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := viper.GetString("out")
		if out == "" {
			return errors.New("--out is required")
		}
		table, source, err := loadTable()
		if err != nil {
			return err
		}
		if err := molecules.WriteParquetFile(out, table); err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"source":     source,
			"out":        out,
			"molecules":  table.Len(),
			"properties": len(table.Properties),
		}).Info("converted")
		return nil
	},
}

func initConvert() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().String("out", "", "destination .parquet file")
}
