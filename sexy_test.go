package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/strager/chocowasm/sexy"
)

func TestSexyAllTests(t *testing.T) {
	testFiles, err := filepath.Glob("test/*_test.md")
	be.Err(t, err, nil)
	be.True(t, len(testFiles) > 0)

	for _, testFile := range testFiles {
		fileName := filepath.Base(testFile)
		testName := strings.TrimSuffix(fileName, ".md")

		t.Run(testName, func(t *testing.T) {
			content, err := os.ReadFile(testFile)
			be.Err(t, err, nil)

			testCases, err := sexy.ExtractTestCases(string(content))
			be.Err(t, err, nil)

			for _, tc := range testCases {
				t.Run(tc.Name, func(t *testing.T) {
					source := tc.Input + "\n"
					for _, assertion := range tc.Assertions {
						t.Run(string(assertion.Type), func(t *testing.T) {
							runAssertion(t, source, assertion)
						})
					}
				})
			}
		})
	}
}

func runAssertion(t *testing.T, source string, assertion sexy.Assertion) {
	t.Helper()
	switch assertion.Type {
	case sexy.AssertionTypeCompileError:
		_, err := Compile(source, nil)
		be.Err(t, err, assertion.Content)

	case sexy.AssertionTypeAST:
		prog, err := buildSource(source)
		be.Err(t, err, nil)
		assertSexyMatch(t, assertion, ToSExpr(prog))

	case sexy.AssertionTypeTypes:
		typed, err := CheckSource(source)
		be.Err(t, err, nil)
		assertSexyMatch(t, assertion, ToSExpr(typed))

	case sexy.AssertionTypeWAT:
		wat, err := Compile(source, nil)
		be.Err(t, err, nil)
		assertSexyMatch(t, assertion, wat)

	case sexy.AssertionTypeExecute:
		wat, err := Compile(source, nil)
		be.Err(t, err, nil)
		m, err := LoadModule(wat)
		be.Err(t, err, nil)
		m.MaxSteps = 1_000_000

		var out bytes.Buffer
		be.Err(t, m.Run(&out), nil)
		be.Equal(t, strings.TrimRight(out.String(), "\n"), assertion.Content)

	default:
		t.Fatalf("line %d: unknown assertion type %s", assertion.Line, assertion.Type)
	}
}

func assertSexyMatch(t *testing.T, assertion sexy.Assertion, actualText string) {
	t.Helper()
	actual, err := sexy.Parse(actualText)
	be.Err(t, err, nil)
	if err := sexy.Match(assertion.ParsedSexy, actual); err != nil {
		t.Errorf("line %d: %v\nactual: %s", assertion.Line, err, actual)
	}
}
