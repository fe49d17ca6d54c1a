// Command vc is the ahead-of-time C99-subset compiler: the driver parses a
// gcc-shaped flag surface, then runs each input file through
// preprocess -> lex -> parse -> sema -> optimize -> codegen, invoking an
// external assembler (and, with --link, a linker) to produce the requested
// output artifact.
package main

import (
	"fmt"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is main's testable body: it never calls os.Exit itself, so a
// testscript harness driving the built binary and a future in-process test
// calling run directly see the same behavior.
func run(argv []string) int {
	args := append(append([]string{}, splitFlagsEnv(os.Getenv("VCFLAGS"))...), argv...)

	opts, cli, ok := parseArgs(args)
	if !ok {
		return 1
	}
	if cli.showHelp {
		printHelp(os.Stdout)
		return 0
	}
	if cli.showVersion {
		fmt.Fprintln(os.Stdout, "vc version 1.0.0")
		return 0
	}
	if len(cli.inputs) == 0 {
		fmt.Fprintln(os.Stderr, "vc: no input files")
		return 1
	}

	d := &driver{opts: opts, cli: cli}
	return d.compileAll()
}
