package cli

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupLoggingDefaultsToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	setupLogging("")
	if got := zerolog.GlobalLevel(); got != zerolog.InfoLevel {
		t.Fatalf("expected info, got %s", got)
	}

	setupLogging("debug")
	if got := zerolog.GlobalLevel(); got != zerolog.DebugLevel {
		t.Fatalf("expected debug, got %s", got)
	}

	setupLogging("loud")
	if got := zerolog.GlobalLevel(); got != zerolog.InfoLevel {
		t.Fatalf("unknown level should keep info, got %s", got)
	}
}
