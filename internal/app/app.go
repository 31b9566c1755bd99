package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/echo-stt/echo/cache"
	"github.com/echo-stt/echo/config"
	"github.com/echo-stt/echo/engine"
	"github.com/echo-stt/echo/eventbus"
	"github.com/echo-stt/echo/history"
	"github.com/echo-stt/echo/hotkeys"
	"github.com/echo-stt/echo/internal/types"
	"github.com/echo-stt/echo/listening"
	"github.com/echo-stt/echo/model"
	"github.com/echo-stt/echo/summarize"
)

// Service wires the engine, hotkey, history and summarization components
// together and exposes them to the frontend. It focuses on orchestration;
// the behavior lives in the sub-packages.
type Service struct {
	cfg *config.Config
	bus *eventbus.Bus

	eng        *engine.Client
	models     *model.Controller
	registrar  *hotkeys.Registrar
	capture    *hotkeys.Session
	listening  *listening.Session
	store      *history.SQLStore
	historySvc *history.Service
	summaries  *cache.Cache
	summarizer *summarize.Service

	// UI references, set via Init.
	app    *application.App
	window application.Window

	cancels []func()
	version string
}

// New creates the service. Call Init after the Wails application exists.
func New(version string) *Service {
	return &Service{version: version}
}

// GetVersion returns the application version.
func (s *Service) GetVersion() string {
	return s.version
}

// Init initializes the service with app and window references.
// Must be called after the Wails application is created.
func (s *Service) Init(app *application.App, window application.Window) {
	s.app = app
	s.window = window

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		cfg = &config.Config{Hotkey: config.DefaultHotkey, Language: "auto"}
	}
	s.cfg = cfg

	s.bus = eventbus.New()
	s.eng = engine.New(s.bus, engineCommand())
	s.models = model.New(s.bus, s.eng, s.cfg, func(c *config.Config) error { return c.Save() })

	s.setupStore()
	s.setupSummaries()
	s.summarizer = summarize.New(s.eng, s.recents(), s.summaryCache())

	s.listening = listening.New(s.bus, s.eng, s.onHistoryStale)
	s.setupHotkey()
	s.forwardEvents()

	// Bring the engine up without blocking window creation.
	go func() {
		if err := s.models.EnsureReady(context.Background()); err != nil {
			slog.Error("engine startup", "error", err)
			s.emit(EventEngineError, err.Error())
			return
		}
		if res, err := s.eng.Warmup(context.Background()); err != nil {
			slog.Warn("model warmup", "error", err)
		} else if res.WarmupTimeMs != nil {
			slog.Info("model warmed up", "ms", *res.WarmupTimeMs)
		}
		s.emit(EventEngineReady, nil)
	}()
}

// Shutdown cleans up resources.
func (s *Service) Shutdown() {
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	if s.capture != nil {
		s.capture.Cancel()
	}
	if s.registrar != nil {
		s.registrar.Unregister()
	}
	if s.listening != nil {
		if _, err := s.listening.Stop(context.Background()); err != nil {
			slog.Warn("stop listening on shutdown", "error", err)
		}
		s.listening.Close()
	}
	if s.models != nil {
		s.models.Close()
	}
	if s.eng != nil {
		if err := s.eng.Stop(); err != nil {
			slog.Error("stop engine", "error", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Error("close history store", "error", err)
		}
	}
	if s.summaries != nil {
		if err := s.summaries.Close(); err != nil {
			slog.Error("close summary cache", "error", err)
		}
	}
}

func (s *Service) setupStore() {
	dir, err := os.UserConfigDir()
	if err != nil {
		slog.Error("get config dir for history", "error", err)
		return
	}
	path := filepath.Join(dir, "echo")
	if err := os.MkdirAll(path, 0755); err != nil {
		slog.Error("create data dir", "error", err)
		return
	}

	store, err := history.Open(filepath.Join(path, "history.db"))
	if err != nil {
		slog.Error("open history store", "error", err)
		return
	}
	s.store = store
	s.historySvc = history.NewService(store, func(v history.View) {
		s.emit(EventHistoryChanged, v)
	})
	slog.Info("history store opened", "path", path)
}

func (s *Service) setupSummaries() {
	dir, err := os.UserConfigDir()
	if err != nil {
		return
	}
	c, err := cache.Open(filepath.Join(dir, "echo", "summaries"))
	if err != nil {
		slog.Error("open summary cache", "error", err)
		return
	}
	s.summaries = c
}

// recents adapts the optional store; with no store the window is always
// empty and summarization short-circuits.
func (s *Service) recents() summarize.Recents {
	if s.store == nil {
		return emptyRecents{}
	}
	return s.store
}

func (s *Service) summaryCache() summarize.Cache {
	if s.summaries == nil {
		return nil
	}
	return s.summaries
}

type emptyRecents struct{}

func (emptyRecents) Recent(context.Context, int) ([]types.HistoryEntry, error) {
	return nil, nil
}

// forwardEvents republishes engine events to the frontend and persists
// recognized segments.
func (s *Service) forwardEvents() {
	s.cancels = append(s.cancels,
		s.bus.Subscribe(eventbus.ModelLoadComplete, func(payload any) {
			s.emit(EventModelLoadComplete, payload)
		}),
		s.bus.Subscribe(eventbus.ModelLoadError, func(payload any) {
			s.emit(EventModelLoadError, payload)
		}),
		s.bus.Subscribe(eventbus.SpeechActivity, func(payload any) {
			s.emit(EventSpeechActivity, payload)
		}),
		s.bus.Subscribe(eventbus.RawKey, func(payload any) {
			s.emit(EventRawKey, payload)
		}),
		s.bus.Subscribe(eventbus.SegmentRecognized, func(payload any) {
			s.emit(EventSegment, payload)
			seg, ok := payload.(types.Segment)
			if !ok || s.store == nil {
				return
			}
			_, err := s.store.Insert(context.Background(), types.HistoryEntry{
				Text:      seg.Text,
				Language:  s.cfg.Language,
				ModelName: s.models.ActiveModel(),
			})
			if err != nil {
				slog.Error("persist segment", "error", err)
			}
		}),
	)
}

// emit is a safe wrapper around app.Event.Emit.
func (s *Service) emit(name string, data any) {
	if s.app != nil {
		s.app.Event.Emit(name, data)
	}
}

// ShowWindow brings the main window to the front.
func (s *Service) ShowWindow() {
	if s.window != nil {
		s.window.Show()
		s.window.Focus()
	}
}

// engineCommand locates the recognition engine binary: an explicit override
// wins, otherwise the sidecar next to the executable.
func engineCommand() string {
	if p := os.Getenv("ECHO_ENGINE_PATH"); p != "" {
		return p
	}
	exe, err := os.Executable()
	if err != nil {
		return "echo-engine"
	}
	return filepath.Join(filepath.Dir(exe), "echo-engine")
}
