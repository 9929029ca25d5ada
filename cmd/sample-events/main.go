package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/okian/regflow/internal/sampledata"
)

func main() {
	def := sampledata.DefaultConfig()
	var (
		apps         = flag.Int("apps", def.Applications, "number of applications to generate")
		seed         = flag.Int64("seed", def.Seed, "random seed")
		out          = flag.String("out", "workflow.csv", "workflow history output path")
		statusOut    = flag.String("status-out", "", "authoritative status table output path (skipped when empty)")
		lifecycleOut = flag.String("lifecycle-out", "", "lifecycle dates output path (skipped when empty)")
	)
	flag.Parse()

	cfg := def
	cfg.Applications = *apps
	cfg.Seed = *seed
	ds := sampledata.Generate(cfg)

	if err := ds.WriteWorkflowCSV(*out); err != nil {
		fail(err)
	}
	if *statusOut != "" {
		if err := ds.WriteStatusCSV(*statusOut); err != nil {
			fail(err)
		}
	}
	if *lifecycleOut != "" {
		if err := ds.WriteLifecycleCSV(*lifecycleOut); err != nil {
			fail(err)
		}
	}
	fmt.Printf("wrote %d applications, %d events (%d duplicates, %d bad rows) to %s\n",
		len(ds.Applications), ds.Events(), ds.Duplicates(), ds.BadRows(), *out)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "sample-events:", err)
	os.Exit(1)
}
