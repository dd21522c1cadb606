package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"

	"github.com/NicolasHaas/mandichat/pkg/lexicon"
	"github.com/NicolasHaas/mandichat/pkg/logging"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := LoadConfig(logging.Discard(), "", nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("LoadConfig defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	t.Setenv("PORT", "")
	path := writeFile(t, "relay.yaml", `
listenAddr: ":4000"
defaultLanguage: ta
allowedOrigins:
  - https://a.example
websocket:
  sendBuffer: 32
typingTimeout: 2s
logLevel: debug
`)
	t.Setenv("MANDI_DEFAULTLANGUAGE", "hi")
	t.Setenv("MANDI_WEBSOCKET_PONGWAIT", "30s")
	t.Setenv("FRONTEND_URL", "https://front.example")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("listen", DefaultConfig().ListenAddr, "")
	flags.String("log-level", DefaultConfig().LogLevel, "")
	if err := flags.Parse([]string{"--listen", ":5000"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := LoadConfig(logging.Discard(), path, flags)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ListenAddr != ":5000" {
		t.Fatalf("ListenAddr = %q, want flag value :5000", cfg.ListenAddr)
	}
	if cfg.DefaultLanguage != "hi" {
		t.Fatalf("DefaultLanguage = %q, want env value hi", cfg.DefaultLanguage)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want file value debug (flag unchanged)", cfg.LogLevel)
	}
	if cfg.TypingTimeout != 2*time.Second {
		t.Fatalf("TypingTimeout = %v, want 2s", cfg.TypingTimeout)
	}
	if cfg.WebSocket.SendBuffer != 32 || cfg.WebSocket.PongWait != 30*time.Second {
		t.Fatalf("WebSocket = %+v", cfg.WebSocket)
	}
	if cfg.WebSocket.WriteWait != DefaultConfig().WebSocket.WriteWait {
		t.Fatalf("WebSocket.WriteWait = %v, want default", cfg.WebSocket.WriteWait)
	}
	if diff := cmp.Diff([]string{"https://a.example"}, cfg.AllowedOrigins); diff != "" {
		t.Fatalf("AllowedOrigins mismatch (-want +got):\n%s", diff)
	}
	if cfg.FrontendURL != "https://front.example" {
		t.Fatalf("FrontendURL = %q", cfg.FrontendURL)
	}
}

func TestLoadConfigPort(t *testing.T) {
	t.Setenv("PORT", "8080")
	cfg, err := LoadConfig(logging.Discard(), "", nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{"missing explicit file", nil, filepath.Join(t.TempDir(), "absent.yaml")},
		{"bad log level", map[string]string{"MANDI_LOGLEVEL": "loud"}, ""},
		{"bad log format", map[string]string{"MANDI_LOGFORMAT": "xml"}, ""},
		{"unsupported language", map[string]string{"MANDI_DEFAULTLANGUAGE": "fr"}, ""},
		{"negative timeout", map[string]string{"MANDI_TYPINGTIMEOUT": "-1s"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PORT", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(logging.Discard(), tt.file, nil); err == nil {
				t.Fatalf("LoadConfig succeeded, want error")
			}
		})
	}
}

func TestWebSocketConfigDefaults(t *testing.T) {
	got := WebSocketConfig{PongWait: 10 * time.Second, PingPeriod: 20 * time.Second}.withDefaults()
	if got.PingPeriod != 9*time.Second {
		t.Fatalf("PingPeriod = %v, want 9s", got.PingPeriod)
	}
	if got.SendBuffer != DefaultConfig().WebSocket.SendBuffer || got.ReadLimit != DefaultConfig().WebSocket.ReadLimit {
		t.Fatalf("withDefaults = %+v", got)
	}
}

func TestOpenLexicon(t *testing.T) {
	ctx := context.Background()
	extra := writeFile(t, "extra.yaml", `
pairs:
  - from: en
    to: hi
    phrases:
      onion price: प्याज का भाव
`)
	cfg := DefaultConfig()
	cfg.LexiconDB = filepath.Join(t.TempDir(), "lexicon.db")
	cfg.LexiconFile = extra

	st, err := OpenLexicon(ctx, cfg, logging.Discard())
	if err != nil {
		t.Fatalf("OpenLexicon: %v", err)
	}
	defer st.Close()

	n, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if want := len(lexicon.DefaultEntries()) + 1; n != want {
		t.Fatalf("Count = %d, want %d", n, want)
	}
	got, ok, err := st.Lookup(ctx, lexicon.KindPhrase, "en", "hi", "onion price")
	if err != nil || !ok || got != "प्याज का भाव" {
		t.Fatalf("Lookup = %q, %v, %v", got, ok, err)
	}
}

func TestOpenLexiconBadFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LexiconFile = writeFile(t, "bad.yaml", "pairs: [{from: en, to: hi, phrases: {hello: ''}}]\n")
	if _, err := OpenLexicon(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatalf("OpenLexicon with invalid entry succeeded")
	}
}
