// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/pdiddy/research-hub/pkg/types"
)

// browserSession renders pages inside one browser instance.
type browserSession interface {
	render(ctx context.Context, pageURL string) (string, error)
	close() error
}

// sessionOpener starts a browser session. Replaced in tests.
type sessionOpener func(ctx context.Context) (browserSession, error)

// BrowserFetcher renders pages in a headless browser so script-built
// content is visible. Targets are URLs. A batch shares one browser session.
type BrowserFetcher struct {
	name   string
	open   sessionOpener
	logger *zap.Logger
}

// NewBrowserFetcher creates a browser-backed fetcher. With an empty
// ControlURL a local browser is launched per session.
func NewBrowserFetcher(name string, cfg types.BrowserConfig, logger *zap.Logger) *BrowserFetcher {
	if name == "" {
		name = "browser"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserFetcher{name: name, open: rodOpener(cfg, logger), logger: logger}
}

// Name returns the source identifier.
func (f *BrowserFetcher) Name() string { return f.name }

// Fetch renders one page.
func (f *BrowserFetcher) Fetch(ctx context.Context, target string) ([]Document, error) {
	return f.FetchBatch(ctx, []string{target})
}

// FetchBatch renders every target in one session. It succeeds when at
// least one page renders; otherwise the per-page errors are joined.
func (f *BrowserFetcher) FetchBatch(ctx context.Context, targets []string) ([]Document, error) {
	if len(targets) == 0 {
		return nil, malformed("no targets")
	}

	sess, err := f.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: starting browser: %v", ErrTransient, err)
	}
	defer func() {
		if cerr := sess.close(); cerr != nil {
			f.logger.Warn("closing browser session", zap.String("source", f.name), zap.Error(cerr))
		}
	}()

	var (
		docs []Document
		errs []error
	)
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := sess.render(ctx, target)
		if err != nil {
			errs = append(errs, fmt.Errorf("rendering %s: %w", target, err))
			continue
		}
		d, err := parsePage(raw, target)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, d)
	}
	if len(docs) == 0 {
		return nil, errors.Join(errs...)
	}
	return docs, nil
}

func rodOpener(cfg types.BrowserConfig, logger *zap.Logger) sessionOpener {
	nav := cfg.NavigationTimeout
	if nav <= 0 {
		nav = 20 * time.Second
	}
	return func(ctx context.Context) (browserSession, error) {
		s := &rodSession{nav: nav, logger: logger}
		controlURL := cfg.ControlURL
		if controlURL == "" {
			s.launcher = launcher.New().Headless(cfg.Headless).Context(ctx)
			u, err := s.launcher.Launch()
			if err != nil {
				s.launcher.Cleanup()
				return nil, fmt.Errorf("launching browser: %w", err)
			}
			controlURL = u
		}

		s.controlURL = controlURL
		s.browser = rod.New().ControlURL(controlURL).Context(ctx)
		if err := s.browser.Connect(); err != nil {
			s.kill()
			return nil, fmt.Errorf("connecting to browser: %w", err)
		}
		return s, nil
	}
}

// rodSession owns a connected browser and, when it launched one, the
// launcher that can force it down.
type rodSession struct {
	browser    *rod.Browser
	launcher   *launcher.Launcher
	controlURL string
	nav        time.Duration
	logger     *zap.Logger
}

func (s *rodSession) render(ctx context.Context, pageURL string) (string, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("opening page: %w", err)
	}
	defer func() { _ = page.Close() }()

	p := page.Context(ctx).Timeout(s.nav)
	if err := p.Navigate(pageURL); err != nil {
		return "", classifyRod(err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", classifyRod(err)
	}
	raw, err := p.HTML()
	if err != nil {
		return "", classifyRod(err)
	}
	return raw, nil
}

// close shuts the browser down gracefully. If that fails, a launched
// browser is killed; a remote one has its pages closed and is closed again
// over a fresh connection.
func (s *rodSession) close() error {
	var fallbacks []func() error
	if s.launcher != nil {
		fallbacks = append(fallbacks, func() error { s.kill(); return nil })
	} else {
		fallbacks = append(fallbacks, s.closePages, s.reconnectAndClose)
	}
	err := release(s.browser.Close, s.logger, fallbacks...)
	if err == nil && s.launcher != nil {
		s.launcher.Cleanup()
	}
	return err
}

func (s *rodSession) closePages() error {
	pages, err := s.browser.Pages()
	if err != nil {
		return fmt.Errorf("listing pages: %w", err)
	}
	var errs []error
	for _, p := range pages {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *rodSession) reconnectAndClose() error {
	fresh := rod.New().ControlURL(s.controlURL)
	if err := fresh.Connect(); err != nil {
		return fmt.Errorf("reconnecting: %w", err)
	}
	return fresh.Close()
}

func (s *rodSession) kill() {
	if s.launcher == nil {
		return
	}
	s.launcher.Kill()
	s.launcher.Cleanup()
}

// release runs primary and, when it fails, each fallback in order until one
// succeeds. The error is nil if any step succeeded, otherwise all failures
// joined.
func release(primary func() error, logger *zap.Logger, fallbacks ...func() error) error {
	err := primary()
	if err == nil {
		return nil
	}
	errs := []error{err}
	for i, fb := range fallbacks {
		logger.Debug("browser release failed, trying fallback", zap.Int("fallback", i+1), zap.Error(errs[len(errs)-1]))
		ferr := fb()
		if ferr == nil {
			return nil
		}
		errs = append(errs, ferr)
	}
	return errors.Join(errs...)
}

// classifyRod marks navigation deadline and network errors as transient.
func classifyRod(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	var navErr *rod.NavigationError
	if errors.As(err, &navErr) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}
