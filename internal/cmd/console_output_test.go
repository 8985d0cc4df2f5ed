package cmd

import (
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

func TestConsoleWriterEchoesCommands(t *testing.T) {
	out := strings.Builder{}
	logger := zerolog.New(&ConsoleWriter{out: &out})

	logger.Info().Str("task", "build").Bool("command", true).Msg("gumo pack --compression gz")

	got := out.String()
	if !strings.Contains(got, "build") {
		t.Errorf("task prefix is missing: %q", got)
	}
	if !strings.Contains(got, "$ gumo pack --compression gz") {
		t.Errorf("command wasn't echoed shell-style: %q", got)
	}
}

func TestConsoleWriterErrorDetails(t *testing.T) {
	out := strings.Builder{}
	logger := zerolog.New(&ConsoleWriter{out: &out})

	logger.Error().Err(eris.New("connection refused")).Msg("upload failed")

	got := out.String()
	if !strings.Contains(got, "Error: upload failed") {
		t.Errorf("error line is missing: %q", got)
	}
	if !strings.Contains(got, "connection refused") {
		t.Errorf("error details are missing: %q", got)
	}
}

func TestConsoleWriterPlainMessage(t *testing.T) {
	out := strings.Builder{}
	logger := zerolog.New(&ConsoleWriter{out: &out})

	logger.Info().Msg("nothing to do")

	if !strings.Contains(out.String(), "nothing to do") {
		t.Errorf("message was lost: %q", out.String())
	}
}
