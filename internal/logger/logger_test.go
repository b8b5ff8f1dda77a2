package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeRedactsSecrets(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.Info("login", "username", "ada", "password", "hunter2", "access_token", "abc")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["username"] != "ada" {
		t.Fatalf("username altered: %v", fields["username"])
	}
	for _, k := range []string{"password", "access_token"} {
		if fields[k] != "[REDACTED]" {
			t.Fatalf("%s not redacted: %v", k, fields[k])
		}
	}
}

func TestSanitizeOddKVs(t *testing.T) {
	got := sanitizeKVs([]interface{}{"a", 1, "dangling"})
	if len(got) != 3 || got[2] != "dangling" {
		t.Fatalf("unexpected kvs: %v", got)
	}
}

func TestWithKeepsContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := (&Logger{SugaredLogger: zap.New(core).Sugar()}).With("component", "engine")
	l.Warn("graph inconsistency", "scenario_id", "s1")

	fields := logs.All()[0].ContextMap()
	if fields["component"] != "engine" || fields["scenario_id"] != "s1" {
		t.Fatalf("fields: %v", fields)
	}
}
