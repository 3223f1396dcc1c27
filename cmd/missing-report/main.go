package main

import (
	"flag"
	"fmt"
	"os"

	"mediamigrate/internal/report"
)

// missing-report derives the list of item IDs that did not make it across:
// entries with no source URL plus everything in the error report. It runs
// after a migration, against the files the run left behind.
func main() {
	sourcesPath := flag.String("sources", "video_sources.json", "Sources dump (JSON array of {id, url})")
	errorsPath := flag.String("errors", "errors.json", "Error report from a migration run")
	outPath := flag.String("out", "", "Output file (default stdout)")
	flag.Parse()

	sources, err := report.LoadSources(*sourcesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "missing-report: %v\n", err)
		os.Exit(1)
	}

	errRecords, err := report.LoadErrorReport(*errorsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "missing-report: %v\n", err)
		os.Exit(1)
	}

	ids := report.Missing(sources, errRecords)

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "missing-report: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	if err := report.Write(out, ids); err != nil {
		fmt.Fprintf(os.Stderr, "missing-report: %v\n", err)
		os.Exit(1)
	}
}
