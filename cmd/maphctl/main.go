// Package main provides maphctl, a thin command-line consumer of the
// maph library: create/open a store and run a single operation against
// it per invocation.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Stdout, os.Stderr, os.Args))
}

type command struct {
	name  string
	short string
	exec  func(out, errOut io.Writer, args []string) int
}

func commands() []command {
	return []command{
		{"create", "create a new store file", cmdCreate},
		{"get", "read one key", cmdGet},
		{"set", "write one key/value pair", cmdSet},
		{"rm", "remove one key", cmdRemove},
		{"optimize", "build and switch to an MPHF", cmdOptimize},
		{"stats", "print store statistics", cmdStats},
		{"serve", "expose stats as Prometheus gauges over HTTP", cmdServe},
	}
}

func run(out, errOut io.Writer, args []string) int {
	if len(args) < 2 {
		printUsage(errOut)
		return 1
	}

	name := args[1]
	if name == "-h" || name == "--help" {
		printUsage(out)
		return 0
	}

	for _, c := range commands() {
		if c.name == name {
			return c.exec(out, errOut, args[2:])
		}
	}

	fprintln(errOut, "error: unknown command:", name)
	printUsage(errOut)
	return 1
}

func printUsage(w io.Writer) {
	fprintln(w, "maphctl - inspect and manage maph stores")
	fprintln(w)
	fprintln(w, "Usage: maphctl <command> [flags]")
	fprintln(w)
	fprintln(w, "Commands:")
	for _, c := range commands() {
		fprintln(w, "  "+c.name+" - "+c.short)
	}
	fprintln(w)
	fprintln(w, "Run 'maphctl <command> --help' for command-specific flags.")
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}
