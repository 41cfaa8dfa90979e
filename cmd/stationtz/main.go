// Command stationtz lists the distinct timezones in a station catalog file.
//
// Usage:
//
//	go run ./cmd/stationtz -file stations.json
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/station-insight-service/internal/adapter/catalog"
)

func main() {
	file := flag.String("file", "stations.json", "path to the station catalog JSON array")
	flag.Parse()

	if err := run(os.Stdout, *file); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(w io.Writer, path string) error {
	cat, err := catalog.LoadFile(path)
	if err != nil {
		return err
	}
	tz := cat.Timezones()
	fmt.Fprintf(w, "Found %d unique timezones:\n", len(tz))
	for _, name := range tz {
		fmt.Fprintln(w, name)
	}
	return nil
}
