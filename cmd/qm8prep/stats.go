package main

import (
	"math"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Noofbiz/qm8/datasets"
	"github.com/Noofbiz/qm8/molecules"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Build the padded dataset and report its shape and target statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, source, err := loadTable()
		if err != nil {
			return err
		}

		target := viper.GetString("target")
		maxAtoms := viper.GetInt("max-atoms")
		if maxAtoms == 0 {
			maxAtoms = table.MaxAtoms()
		}
		opts := []datasets.Option{
			datasets.WithLogger(log.StandardLogger()),
			datasets.WithWorkers(viper.GetInt("workers")),
		}
		if n := viper.GetInt("num-gauss"); n > 0 {
			opts = append(opts, datasets.WithNumGauss(n))
		}
		ds, err := datasets.NewQM8Dataset(table, target, maxAtoms, opts...)
		if err != nil {
			return err
		}

		s, err := summarize(table, target)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"source":      source,
			"molecules":   ds.Len(),
			"max_atoms":   ds.MaxAtoms(),
			"num_centers": ds.NumCenters(),
			"properties":  table.Properties,
		}).Info("dataset")
		for _, c := range s.atomCounts {
			log.WithFields(log.Fields{"atoms": c.atoms, "molecules": c.molecules}).Info("atom count")
		}
		log.WithFields(log.Fields{
			"target":  target,
			"count":   s.count,
			"missing": s.missing,
			"mean":    s.mean,
			"std":     s.std,
			"min":     s.min,
			"max":     s.max,
		}).Info("target")
		return nil
	},
}

func initStats() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().String("target", "E1-CC2", "property used as label")
	statsCmd.Flags().Int("max-atoms", 0, "padded atom count (0 = largest molecule)")
	statsCmd.Flags().Int("num-gauss", 0, "number of basis centers over [-1, 1] (0 = default 0.2 spacing)")
	statsCmd.Flags().Int("workers", 0, "expansion workers (0 = NumCPU)")
}

type atomCount struct {
	atoms     int
	molecules int
}

type summary struct {
	atomCounts []atomCount
	count      int
	missing    int
	mean       float64
	std        float64
	min        float64
	max        float64
}

// summarize computes the atom count distribution and statistics of the
// target over its non-NaN values.
func summarize(table *molecules.Table, target string) (summary, error) {
	values, err := table.Property(target)
	if err != nil {
		return summary{}, err
	}

	var s summary
	for atoms, n := range table.AtomCounts() {
		s.atomCounts = append(s.atomCounts, atomCount{atoms: atoms, molecules: n})
	}
	sort.Slice(s.atomCounts, func(i, j int) bool {
		return s.atomCounts[i].atoms < s.atomCounts[j].atoms
	})

	present := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) {
			s.missing++
			continue
		}
		present = append(present, v)
	}
	s.count = len(present)
	if s.count == 0 {
		return s, nil
	}
	s.mean, s.std = stat.MeanStdDev(present, nil)
	s.min = floats.Min(present)
	s.max = floats.Max(present)
	return s, nil
}
