package main

import "log/slog"

// Compile compiles Python source to a WAT module. It returns the first
// *ParseError, *TypeError or *CompileError encountered. A nil logger
// discards diagnostics.
func Compile(source string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = discardLogger()
	}

	tree, err := ParseSyntax(source)
	if err != nil {
		return "", err
	}
	logger.Debug("Parsing complete", "phase", "syntax", "nodes", len(tree.Children))

	prog, err := Build(tree, source)
	if err != nil {
		return "", err
	}
	logger.Debug("AST built",
		"phase", "build",
		"functions", len(prog.Funcs),
		"globals", len(prog.Vars),
		"statements", len(prog.Body))

	typed, err := Check(prog)
	if err != nil {
		return "", err
	}
	logger.Debug("Type check complete", "phase", "check")

	wat, err := Generate(typed)
	if err != nil {
		return "", err
	}
	logger.Debug("Code generation complete", "phase", "codegen", "bytes", len(wat))
	return wat, nil
}

// CheckSource parses and type checks source without generating code.
func CheckSource(source string) (*Program[Type], error) {
	tree, err := ParseSyntax(source)
	if err != nil {
		return nil, err
	}
	prog, err := Build(tree, source)
	if err != nil {
		return nil, err
	}
	return Check(prog)
}
