// Package server implements the mandi chat relay server: the websocket
// transport, the HTTP API and the metrics endpoint.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/NicolasHaas/mandichat/pkg/lexicon"
	"github.com/NicolasHaas/mandichat/pkg/model"
	"github.com/NicolasHaas/mandichat/pkg/protocol"
	"github.com/NicolasHaas/mandichat/pkg/relay"
	"github.com/NicolasHaas/mandichat/pkg/translate"
)

// Config holds server configuration.
type Config struct {
	ListenAddr     string   `mapstructure:"listenAddr"`     // HTTP/websocket bind address (e.g. ":3001")
	MetricsAddr    string   `mapstructure:"metricsAddr"`    // HTTP bind address for /metrics (empty = disabled)
	AllowedOrigins []string `mapstructure:"allowedOrigins"` // CORS and websocket origin allow-list
	FrontendURL    string   `mapstructure:"frontendURL"`    // extra allowed origin

	LexiconDB   string `mapstructure:"lexiconDB"`   // SQLite lexicon path (empty = in-memory)
	LexiconFile string `mapstructure:"lexiconFile"` // YAML lexicon imported on startup

	DefaultLanguage  string        `mapstructure:"defaultLanguage"`
	TypingTimeout    time.Duration `mapstructure:"typingTimeout"`
	TranslateTimeout time.Duration `mapstructure:"translateTimeout"` // 0 = unbounded

	WebSocket WebSocketConfig `mapstructure:"websocket"`

	MetricsLogInterval time.Duration `mapstructure:"metricsLogInterval"` // 0 = disabled
	LogLevel           string        `mapstructure:"logLevel"`
	LogFormat          string        `mapstructure:"logFormat"`
}

// WebSocketConfig tunes the per-connection pumps.
type WebSocketConfig struct {
	SendBuffer int           `mapstructure:"sendBuffer"` // queued outbound frames before a client is dropped
	ReadLimit  int64         `mapstructure:"readLimit"`  // max inbound frame size in bytes
	PongWait   time.Duration `mapstructure:"pongWait"`
	PingPeriod time.Duration `mapstructure:"pingPeriod"` // must be less than PongWait
	WriteWait  time.Duration `mapstructure:"writeWait"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:  ":3001",
		MetricsAddr: ":3002",
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://localhost:5174",
			"http://localhost:3000",
		},
		DefaultLanguage:  model.DefaultLanguage,
		TypingTimeout:    relay.DefaultTypingTimeout,
		TranslateTimeout: relay.DefaultTranslateTimeout,
		WebSocket: WebSocketConfig{
			SendBuffer: 256,
			ReadLimit:  protocol.MaxFrameSize,
			PongWait:   60 * time.Second,
			PingPeriod: 54 * time.Second,
			WriteWait:  10 * time.Second,
		},
		MetricsLogInterval: 60 * time.Second,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

func (c WebSocketConfig) withDefaults() WebSocketConfig {
	d := DefaultConfig().WebSocket
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = d.ReadLimit
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	return c
}

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Lexicon and will Close() it on shutdown.
type Dependencies struct {
	Lexicon    lexicon.Store
	Translator translate.Translator // defaults to a LexiconTranslator over Lexicon
	Logger     *slog.Logger
}

// Server wires the relay engine to the websocket hub and the HTTP API.
type Server struct {
	cfg        Config
	hub        *Hub
	engine     *relay.Engine
	metrics    *relay.Metrics
	lexicon    lexicon.Store
	translator translate.Translator
	origins    map[string]bool
	log        *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc

	shutdownOnce sync.Once
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lex := deps.Lexicon
	if lex == nil {
		lex = lexicon.NewMemory()
	}
	tr := deps.Translator
	if tr == nil {
		tr = translate.NewLexicon(lex)
	}

	cfg.WebSocket = cfg.WebSocket.withDefaults()

	metrics := relay.NewMetrics()
	hub := NewHub(cfg.WebSocket.SendBuffer, metrics, logger.With("component", "hub"))
	engine := relay.New(hub, tr, relay.Options{
		DefaultLanguage:  cfg.DefaultLanguage,
		TypingTimeout:    cfg.TypingTimeout,
		TranslateTimeout: cfg.TranslateTimeout,
		Logger:           logger.With("component", "relay"),
		Metrics:          metrics,
	})

	origins := make(map[string]bool, len(cfg.AllowedOrigins)+1)
	for _, o := range cfg.AllowedOrigins {
		origins[o] = true
	}
	if cfg.FrontendURL != "" {
		origins[cfg.FrontendURL] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		hub:        hub,
		engine:     engine,
		metrics:    metrics,
		lexicon:    lex,
		translator: tr,
		origins:    origins,
		log:        logger.With("component", "server"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Engine returns the relay engine.
func (s *Server) Engine() *relay.Engine {
	return s.engine
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Metrics returns the relay metrics.
func (s *Server) Metrics() *relay.Metrics {
	return s.metrics
}

// Handler returns the main HTTP handler: websocket, health and API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/translate", s.handleTranslate)
	mux.HandleFunc("GET /api/languages/supported", s.handleLanguages)
	mux.HandleFunc("/", s.handleNotFound)
	return s.withCORS(s.withRequestLog(mux))
}
