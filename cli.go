package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

func showUsage() {
	fmt.Fprintf(os.Stderr, `chocowasm - compiles a typed subset of Python to WebAssembly text

Usage:
    chocowasm <command> [arguments]

Commands:
    run <file>      Compile and execute a .py file
    build <file>    Compile a .py file to a .wat module
    eval <code>     Compile and execute inline code
    check <file>    Parse and type-check a .py file
    help            Show this help message

Examples:
    chocowasm run examples/fib.py
    chocowasm build -o program.wat hello.py
    chocowasm eval 'print(42)'
    chocowasm check myfile.py

Use "chocowasm <command> -h" for more information about a command.
`)
}

// logFlags registers the flags shared by every command that compiles.
func logFlags(fs *flag.FlagSet) (verbose *bool, format *string) {
	verbose = fs.Bool("v", false, "Show verbose compilation details")
	format = fs.String("log-format", "text", "Log format: text or json")
	return verbose, format
}

func newCommandLogger(verbose bool, format string) *slog.Logger {
	cfg := DefaultLogConfig()
	if verbose {
		cfg.Level = slog.LevelDebug
	}
	cfg.Format = format
	return NewLogger(cfg)
}

func parseCommand(fs *flag.FlagSet, args []string, what string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: expected exactly one %s argument\n", what)
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func readSource(filename string) string {
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file %s: %v\n", filename, err)
		os.Exit(1)
	}
	return string(source)
}

func runCommand(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	verbose, format := logFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chocowasm run [-v] [-log-format f] <file>\n")
		fmt.Fprintf(os.Stderr, "Compile and execute a .py file\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	filename := parseCommand(fs, args, "file")
	logger := newCommandLogger(*verbose, *format).With("file", filename)

	wat, err := Compile(readSource(filename), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compilation failed: %v\n", err)
		os.Exit(1)
	}
	if err := execute(wat, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Execution failed: %v\n", err)
		os.Exit(1)
	}
}

func buildCommand(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	output := fs.String("o", "", "Output file path (default: <filename>.wat)")
	verbose, format := logFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chocowasm build [-o output] [-v] [-log-format f] <file>\n")
		fmt.Fprintf(os.Stderr, "Compile a .py file to a .wat module\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	filename := parseCommand(fs, args, "file")

	outputFile := *output
	if outputFile == "" {
		outputFile = strings.TrimSuffix(filename, ".py") + ".wat"
	}
	logger := newCommandLogger(*verbose, *format).With("file", filename)

	wat, err := Compile(readSource(filename), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compilation failed: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outputFile, []byte(wat), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing WAT file %s: %v\n", outputFile, err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s (%d bytes)\n", outputFile, len(wat))
}

func evalCommand(args []string) {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	verbose, format := logFlags(fs)
	showWAT := fs.Bool("wat", false, "Print the generated module instead of executing it")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chocowasm eval [-v] [-wat] <code>\n")
		fmt.Fprintf(os.Stderr, "Compile and execute inline code\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	code := parseCommand(fs, args, "code")
	logger := newCommandLogger(*verbose, *format)

	wat, err := Compile(code, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compilation failed: %v\n", err)
		os.Exit(1)
	}
	if *showWAT {
		fmt.Print(wat)
		return
	}
	if err := execute(wat, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Execution failed: %v\n", err)
		os.Exit(1)
	}
}

func checkCommand(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	verbose := fs.Bool("v", false, "Print the type-annotated AST")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chocowasm check [-v] <file>\n")
		fmt.Fprintf(os.Stderr, "Parse and type-check a .py file\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	filename := parseCommand(fs, args, "file")

	typed, err := CheckSource(readSource(filename))
	if err != nil {
		fmt.Printf("%s: %v\n", filename, err)
		os.Exit(1)
	}

	fmt.Printf("%s: no errors found\n", filename)
	if *verbose {
		fmt.Printf("AST: %s\n", ToSExpr(typed))
	}
}

func execute(wat string, logger *slog.Logger) error {
	m, err := LoadModule(wat)
	if err != nil {
		return err
	}
	logger.Debug("Executing module", "functions", len(m.funcs), "globals", len(m.globals))
	return m.Run(os.Stdout)
}

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "run":
		runCommand(args)
	case "build":
		buildCommand(args)
	case "eval":
		evalCommand(args)
	case "check":
		checkCommand(args)
	case "help", "-h", "--help":
		showUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		showUsage()
		os.Exit(1)
	}
}
