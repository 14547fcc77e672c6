package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/nalgeon/be"
)

const sampleProgram = `x: int = 5
def twice(n: int) -> int:
    return n * 2
while x > 0:
    print(twice(x))
    x = x - 1
`

func TestCompileNilLogger(t *testing.T) {
	wat, err := Compile(sampleProgram, nil)
	be.Err(t, err, nil)
	be.True(t, strings.HasPrefix(wat, "(module\n"))
}

func TestCompileErrorKinds(t *testing.T) {
	_, err := Compile("x = $", nil)
	var perr *ParseError
	be.True(t, errors.As(err, &perr))

	_, err = Compile("print(1)\nx: int = 1\n", nil)
	be.True(t, errors.As(err, &perr))

	_, err = Compile("print(y)\n", nil)
	var terr *TypeError
	be.True(t, errors.As(err, &terr))
	be.Equal(t, terr.Pos, Pos{Line: 1, Col: 7})
}

func TestCompileLogsPhases(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: slog.LevelDebug, Format: "json", Output: &buf})

	_, err := Compile(sampleProgram, logger)
	be.Err(t, err, nil)

	var phases []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		be.Err(t, json.Unmarshal([]byte(line), &entry), nil)
		be.Equal(t, entry["level"], "DEBUG")
		phases = append(phases, entry["phase"].(string))
	}
	be.Equal(t, phases, []string{"syntax", "build", "check", "codegen"})
}

func TestCompileLogsNothingAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	_, err := Compile(sampleProgram, NewLogger(LogConfig{Level: slog.LevelInfo, Output: &buf}))
	be.Err(t, err, nil)
	be.Equal(t, buf.String(), "")
}

func TestCompileConcurrently(t *testing.T) {
	want, err := Compile(sampleProgram, nil)
	be.Err(t, err, nil)

	const workers = 8
	results := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = Compile(sampleProgram, nil)
		}()
	}
	wg.Wait()

	for i := range workers {
		be.Err(t, errs[i], nil)
		be.Equal(t, results[i], want)
	}
}

func TestCompileAndRun(t *testing.T) {
	wat, err := Compile(sampleProgram, nil)
	be.Err(t, err, nil)
	m, err := LoadModule(wat)
	be.Err(t, err, nil)

	var out bytes.Buffer
	be.Err(t, m.Run(&out), nil)
	be.Equal(t, out.String(), "10\n8\n6\n4\n2\n")

	x, ok := m.Global("$x")
	be.True(t, ok)
	be.Equal(t, x, int32(0))
}

func TestCheckSource(t *testing.T) {
	typed, err := CheckSource("x: bool = True\nprint(not x)\n")
	be.Err(t, err, nil)
	be.Equal(t, len(typed.Body), 1)

	_, err = CheckSource("x: bool = 1\n")
	be.Err(t, err, "cannot assign int to bool x")

	_, err = CheckSource("def\n")
	be.Err(t, err, "expected function name")
}

func TestNewLoggerFormats(t *testing.T) {
	var text, js bytes.Buffer
	NewLogger(LogConfig{Level: slog.LevelInfo, Format: "text", Output: &text}).Info("hello", "k", 1)
	NewLogger(LogConfig{Level: slog.LevelInfo, Format: "json", Output: &js}).Info("hello", "k", 1)

	be.True(t, strings.Contains(text.String(), "msg=hello k=1"))
	var entry map[string]any
	be.Err(t, json.Unmarshal(js.Bytes(), &entry), nil)
	be.Equal(t, entry["msg"], "hello")
	be.Equal(t, entry["k"], 1.0)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	be.Equal(t, cfg.Level, slog.LevelWarn)
	be.Equal(t, cfg.Format, "text")
	be.True(t, cfg.Output != nil)
}
