package main

import (
	"io"

	"github.com/queelius/maph/pkg/maph"
	flag "github.com/spf13/pflag"
)

func cmdSet(out, errOut io.Writer, args []string) int {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	db := fs.String("db", "", "path to the store file (required)")
	help := fs.BoolP("help", "h", false, "show this help")

	if err := fs.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	if *help {
		fprintln(out, "Usage: maphctl set --db <path> <key> <value>")
		return 0
	}
	if *db == "" {
		fprintln(errOut, "error: --db is required")
		return 1
	}
	if fs.NArg() != 2 {
		fprintln(errOut, "error: expected exactly two arguments: <key> <value>")
		return 1
	}

	s, err := maph.Open(*db, maph.Options{})
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	defer s.Close()

	if err := s.Set([]byte(fs.Arg(0)), []byte(fs.Arg(1))); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	fprintln(out, "ok")
	return 0
}
