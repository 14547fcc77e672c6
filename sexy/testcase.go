package sexy

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// InputFence is the language of the code fence holding a test's program.
const InputFence = "python"

// AssertionType represents the type of assertion code fence in a test case
type AssertionType string

const (
	AssertionTypeAST          AssertionType = "ast"           // unchecked AST pattern
	AssertionTypeTypes        AssertionType = "types"         // checked AST pattern
	AssertionTypeWAT          AssertionType = "wat"           // generated module pattern
	AssertionTypeCompileError AssertionType = "compile-error" // error message substring
	AssertionTypeExecute      AssertionType = "execute"       // expected program output
)

// Assertion represents a single assertion in a test case
type Assertion struct {
	Type       AssertionType
	Content    string // raw fence content
	ParsedSexy *Node  // nil for compile-error and execute
	Line       int
}

// TestCase is one "Test: name" section of a markdown document.
type TestCase struct {
	Name       string
	Input      string
	Line       int
	Assertions []Assertion
}

// ExtractTestCases parses a Markdown document and extracts its test cases.
// A test starts at a heading "Test: <name>" and holds one python fence plus
// at least one assertion fence.
func ExtractTestCases(markdownContent string) ([]TestCase, error) {
	source := []byte(markdownContent)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var testCases []TestCase
	var current *TestCase
	finish := func() error {
		if current == nil {
			return nil
		}
		if err := validateTestCase(current); err != nil {
			return err
		}
		testCases = append(testCases, *current)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.Heading:
			heading := extractTextFromNode(n, source)
			if !strings.HasPrefix(heading, "Test: ") {
				return ast.WalkContinue, nil
			}
			if err := finish(); err != nil {
				return ast.WalkStop, err
			}
			current = &TestCase{
				Name: strings.TrimPrefix(heading, "Test: "),
				Line: getLineNumber(n, source),
			}

		case *ast.FencedCodeBlock:
			language := string(n.Language(source))
			content := strings.TrimRight(extractCodeBlockContent(n, source), "\n")
			line := getLineNumber(n, source)

			if language == "" {
				return ast.WalkContinue, nil
			}
			known := language == InputFence || isAssertionFence(language)
			if current == nil {
				if known {
					return ast.WalkStop, fmt.Errorf("line %d: %s fence found outside of test case", line, language)
				}
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language '%s' found outside of test case", line, language)
			}
			if !known {
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language '%s' in test '%s'", line, language, current.Name)
			}

			if language == InputFence {
				if current.Input != "" {
					return ast.WalkStop, fmt.Errorf("line %d: multiple input fences found in test '%s'", line, current.Name)
				}
				current.Input = content
				return ast.WalkContinue, nil
			}

			assertion := Assertion{Type: AssertionType(language), Content: content, Line: line}
			switch assertion.Type {
			case AssertionTypeAST, AssertionTypeTypes, AssertionTypeWAT:
				parsed, err := Parse(content)
				if err != nil {
					return ast.WalkStop, fmt.Errorf("line %d: failed to parse assertion in test '%s': %w", line, current.Name, err)
				}
				assertion.ParsedSexy = parsed
			}
			current.Assertions = append(current.Assertions, assertion)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking markdown AST: %w", err)
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return testCases, nil
}

// extractTextFromNode extracts plain text content from a markdown node
func extractTextFromNode(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := n.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func extractCodeBlockContent(codeBlock *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < codeBlock.Lines().Len(); i++ {
		line := codeBlock.Lines().At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

func isAssertionFence(language string) bool {
	switch AssertionType(language) {
	case AssertionTypeAST, AssertionTypeTypes, AssertionTypeWAT, AssertionTypeCompileError, AssertionTypeExecute:
		return true
	}
	return false
}

// validateTestCase ensures a test case has both input and at least one assertion
func validateTestCase(tc *TestCase) error {
	if tc.Input == "" {
		return fmt.Errorf("test '%s' has no input fence", tc.Name)
	}
	if len(tc.Assertions) == 0 {
		return fmt.Errorf("test '%s' has no assertion fences", tc.Name)
	}
	return nil
}

// getLineNumber returns the 1-based line a node starts on. Headings carry
// no lines of their own, so their first text child is used.
func getLineNumber(node ast.Node, source []byte) int {
	start := -1
	if node.Lines().Len() > 0 {
		start = node.Lines().At(0).Start
	} else if t, ok := node.FirstChild().(*ast.Text); ok {
		start = t.Segment.Start
	}
	if start < 0 {
		return 1
	}
	return bytes.Count(source[:min(start, len(source))], []byte("\n")) + 1
}
