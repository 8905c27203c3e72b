// Command crashpipe runs the crash pipeline stages: the transformer merges
// raw pages per run, the cleaner cleans the merged CSV and loads it into the
// gold store. trigger and verify are operator tools.
package main

import (
	"fmt"
	"os"

	// register all gold backends with the storage factory; gold_store
	// selects one at runtime.
	_ "crashpipe/internal/storage/all"
)

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "crashpipe: %v\n", err)
		os.Exit(1)
	}
}
