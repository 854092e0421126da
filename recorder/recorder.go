// CLAUDE:SUMMARY Browser interaction recorder: rod + stealth tab, capture script reporting click/input/change/submit over a CDP binding, main-frame navigations.
// Package recorder captures a user's interactions with a web page as raw
// events. A capture script installed on every document reports DOM events
// through a CDP binding; main-frame navigations are recorded from the Page
// domain. Recording lasts until the context is done.
//
// The events keep their timestamps and raw values. They are meant for
// sanitize.Sanitize, never for storage as-is.
package recorder

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/flowkeeper/sanitize"
)

//go:embed capture.js
var captureJS string

const bindingName = "__flowkeeper_record"

// Config configures a Recorder.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome.
	// Empty: launch a local Chrome.
	RemoteURL string `json:"remote_url" yaml:"remote_url"`
	// Headless runs the launched Chrome without a window. Interactive
	// recording needs a window, so the default is false.
	Headless bool `json:"headless" yaml:"headless"`
	// Stealth opens the tab with go-rod/stealth evasions.
	Stealth bool `json:"stealth" yaml:"stealth"`
	// NavigateTimeout bounds the initial navigation. Default: 30s.
	NavigateTimeout time.Duration `json:"navigate_timeout" yaml:"navigate_timeout"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Recorder records browser sessions. Each Record call uses its own browser.
type Recorder struct {
	cfg Config
}

// New returns a Recorder.
func New(cfg Config) *Recorder {
	cfg.defaults()
	return &Recorder{cfg: cfg}
}

// Record opens startURL and collects events until ctx is done. The events
// gathered so far are returned even when the session ends with an error.
func (r *Recorder) Record(ctx context.Context, startURL string) ([]sanitize.RawEvent, error) {
	log := r.cfg.Logger

	browser, cleanup, err := r.launch()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var page *rod.Page
	if r.cfg.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("recorder: open tab: %w", err)
	}
	defer page.Close()

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		return nil, fmt.Errorf("recorder: add binding: %w", err)
	}
	if _, err := page.EvalOnNewDocument(captureJS); err != nil {
		return nil, fmt.Errorf("recorder: install capture script: %w", err)
	}

	events := &eventLog{}
	listenCtx, stop := context.WithCancel(ctx)
	defer stop()
	wait := page.Context(listenCtx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name != bindingName {
				return
			}
			ev, err := decodeBinding(e.Payload)
			if err != nil {
				log.Warn("recorder: bad binding payload", "error", err)
				return
			}
			events.add(ev)
		},
		func(e *proto.PageFrameNavigated) {
			if e.Frame == nil || e.Frame.ParentID != "" {
				return
			}
			events.add(navigationEvent(e.Frame.URL, time.Now()))
		},
	)
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavigateTimeout)
	err = page.Context(navCtx).Navigate(startURL)
	if err == nil {
		err = page.Context(navCtx).WaitLoad()
	}
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		stop()
		<-done
		return events.snapshot(), fmt.Errorf("recorder: navigate %s: %w", startURL, err)
	}

	log.Info("recorder: recording", "url", startURL)
	<-ctx.Done()
	stop()
	<-done

	out := events.snapshot()
	log.Info("recorder: stopped", "url", startURL, "events", len(out))
	return out, nil
}

func (r *Recorder) launch() (*rod.Browser, func(), error) {
	wsURL := r.cfg.RemoteURL
	var l *launcher.Launcher
	if wsURL == "" {
		l = launcher.New().
			Headless(r.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("recorder: launch chrome: %w", err)
		}
		wsURL = u
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Cleanup()
		}
		return nil, nil, fmt.Errorf("recorder: connect: %w", err)
	}
	return b, func() {
		b.Close()
		if l != nil {
			l.Cleanup()
		}
	}, nil
}

// eventLog is appended to from the CDP event goroutine.
type eventLog struct {
	mu     sync.Mutex
	events []sanitize.RawEvent
}

func (l *eventLog) add(ev sanitize.RawEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []sanitize.RawEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]sanitize.RawEvent(nil), l.events...)
}

// decodeBinding parses one capture-script payload. Null fields are
// dropped.
func decodeBinding(payload string) (sanitize.RawEvent, error) {
	var ev sanitize.RawEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, errors.New("recorder: empty payload")
	}
	for k, v := range ev {
		if v == nil {
			delete(ev, k)
		}
	}
	return ev, nil
}

func navigationEvent(url string, at time.Time) sanitize.RawEvent {
	return sanitize.RawEvent{
		"type":      "navigation",
		"url":       url,
		"timestamp": at.UTC().Format(time.RFC3339Nano),
	}
}
