package main

import (
	"io"

	"github.com/queelius/maph/pkg/maph"
	flag "github.com/spf13/pflag"
)

func cmdGet(out, errOut io.Writer, args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	db := fs.String("db", "", "path to the store file (required)")
	help := fs.BoolP("help", "h", false, "show this help")

	if err := fs.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	if *help {
		fprintln(out, "Usage: maphctl get --db <path> <key>")
		return 0
	}
	if *db == "" {
		fprintln(errOut, "error: --db is required")
		return 1
	}
	if fs.NArg() != 1 {
		fprintln(errOut, "error: expected exactly one key argument")
		return 1
	}

	s, err := maph.Open(*db, maph.Options{ReadOnly: true})
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	defer s.Close()

	v, ok, err := s.Get([]byte(fs.Arg(0)))
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	if !ok {
		fprintln(errOut, "not found")
		return 1
	}

	fprintln(out, string(v))
	return 0
}
