package main

// Example command that demonstrates loading the QM8 dataset, reading a padded
// example and converting a small batch into gomlx tensors.
//
// Usage:
//   go run ./datasets/example [path] [target]
//
// path defaults to the first table found by datasets.AutoFindSource (e.g.
// data/preprocessed.json) and target to E1-CC2. The padded size is the
// largest molecule in the table.

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/Noofbiz/qm8/datasets"
	"github.com/Noofbiz/qm8/molecules"
)

func main() {
	source := ""
	if len(os.Args) > 1 {
		source = os.Args[1]
	} else {
		found, err := datasets.AutoFindSource(datasets.DefaultSourcePatterns)
		if err != nil {
			log.Fatalf("failed to find a molecule table: %v", err)
		}
		source = found
	}
	target := "E1-CC2"
	if len(os.Args) > 2 {
		target = os.Args[2]
	}

	resolved, err := datasets.ResolveSource(source)
	if err != nil {
		log.Fatalf("failed to resolve %s: %v", source, err)
	}
	table, err := molecules.Load(resolved)
	if err != nil {
		log.Fatalf("failed to load %s: %v", resolved, err)
	}
	fmt.Printf("Using molecule table: %s\n", resolved)
	fmt.Printf("Molecules: %d, properties: %v\n", table.Len(), table.Properties)

	ds, err := datasets.NewQM8Dataset(table, target, table.MaxAtoms(), datasets.WithBatchSize(8))
	if err != nil {
		log.Fatalf("failed to build dataset: %v", err)
	}
	fmt.Printf("Padded to %d atoms with %d basis centers\n", ds.MaxAtoms(), ds.NumCenters())

	if ds.Len() == 0 {
		return
	}

	item, err := ds.Example(0)
	if err != nil {
		log.Fatalf("failed to read example 0: %v", err)
	}
	fmt.Printf("  First example atoms: %d\n", item.Size)
	fmt.Printf("  First example Z: %v\n", item.Z)
	fmt.Printf("  First example target: %v\n", item.Target)

	// One epoch through the gomlx Dataset interface.
	batches := 0
	for {
		_, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("failed to yield batch: %v", err)
		}
		if batches == 0 {
			fmt.Printf("Created tensors: Z=%v D=%v sizes=%v target=%v\n",
				inputs[0].Shape(), inputs[1].Shape(), inputs[2].Shape(), labels[0].Shape())
		}
		batches++
	}
	fmt.Printf("Yielded %d batches of up to %d examples\n", batches, ds.BatchSize)
}
