package main

import (
	"io"

	"github.com/queelius/maph/pkg/maph"
	flag "github.com/spf13/pflag"
)

func cmdCreate(out, errOut io.Writer, args []string) int {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	db := fs.String("db", "", "path to the store file (required)")
	configPath := fs.String("config", "", "optional JSONC config file for defaults")
	slotCount := fs.Uint64("slots", 0, "number of slots (default from config, else 1024)")
	help := fs.BoolP("help", "h", false, "show this help")

	if err := fs.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	if *help {
		fprintln(out, "Usage: maphctl create --db <path> [--slots N] [--config file]")
		return 0
	}
	if *db == "" {
		fprintln(errOut, "error: --db is required")
		return 1
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	n := *slotCount
	if n == 0 {
		n = cfg.SlotCount
	}

	s, err := maph.Create(*db, n, maph.Options{})
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	defer s.Close()

	fprintln(out, "created", *db, "with", n, "slots")
	return 0
}
