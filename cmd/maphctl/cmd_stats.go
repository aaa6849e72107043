package main

import (
	"fmt"
	"io"

	"github.com/queelius/maph/pkg/maph"
	flag "github.com/spf13/pflag"
)

func cmdStats(out, errOut io.Writer, args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	db := fs.String("db", "", "path to the store file (required)")
	help := fs.BoolP("help", "h", false, "show this help")

	if err := fs.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	if *help {
		fprintln(out, "Usage: maphctl stats --db <path>")
		return 0
	}
	if *db == "" {
		fprintln(errOut, "error: --db is required")
		return 1
	}

	s, err := maph.Open(*db, maph.Options{ReadOnly: true})
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	defer s.Close()

	stats, err := s.Stats()
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	fprintln(out, fmt.Sprintf("mode:            %s", stats.Mode))
	fprintln(out, fmt.Sprintf("algorithm:       %s", stats.Algorithm))
	fprintln(out, fmt.Sprintf("total_slots:     %d", stats.TotalSlots))
	fprintln(out, fmt.Sprintf("used_slots:      %d", stats.UsedSlots))
	fprintln(out, fmt.Sprintf("load_factor:     %.4f", stats.LoadFactor))
	fprintln(out, fmt.Sprintf("generation:      %d", stats.Generation))
	fprintln(out, fmt.Sprintf("perfect_hash_mem: %d bytes", stats.PerfectHashMemory))
	return 0
}
