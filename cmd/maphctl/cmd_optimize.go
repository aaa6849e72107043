package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/queelius/maph/mphf"
	"github.com/queelius/maph/pkg/maph"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

func cmdOptimize(out, errOut io.Writer, args []string) int {
	fs := flag.NewFlagSet("optimize", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	db := fs.String("db", "", "path to the store file (required)")
	algoName := fs.String("algo", "chd", "MPHF algorithm: recsplit|chd|bbhash|pthash|fch")
	seed := fs.Uint64("seed", 0, "build seed (0 = fixed default seed)")
	help := fs.BoolP("help", "h", false, "show this help")

	if err := fs.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	if *help {
		fprintln(out, "Usage: maphctl optimize --db <path> [--algo name] [--seed N]")
		return 0
	}
	if *db == "" {
		fprintln(errOut, "error: --db is required")
		return 1
	}

	algo, err := parseAlgorithm(*algoName)
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	s, err := maph.Open(*db, maph.Options{Logger: logger})
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	defer s.Close()

	if err := s.Optimize(algo, mphf.Params{Seed: *seed}); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	fprintln(out, "optimized with", algo.String())
	return 0
}

func parseAlgorithm(name string) (mphf.Algorithm, error) {
	switch strings.ToLower(name) {
	case "recsplit":
		return mphf.AlgorithmRecSplit, nil
	case "chd":
		return mphf.AlgorithmCHD, nil
	case "bbhash":
		return mphf.AlgorithmBBHash, nil
	case "pthash":
		return mphf.AlgorithmPTHash, nil
	case "fch":
		return mphf.AlgorithmFCH, nil
	default:
		return mphf.AlgorithmNone, fmt.Errorf("unknown algorithm: %s", name)
	}
}
