package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/analysis"
)

// -- In-memory browser used by the orchestrator tests --

// sitePage describes how the fake browser renders one URL.
type sitePage struct {
	links    []string
	body     string
	banner   schemas.BannerInfo
	requests []string
	// sets is merged into the session jar when the page loads.
	sets []schemas.RawCookie

	navErr     error
	extractErr error
	// block makes Navigate wait for the context to end.
	block bool
}

func (p sitePage) html() string {
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString(p.body)
	for _, l := range p.links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

type fakeBackend struct {
	mu        sync.Mutex
	site      map[string]sitePage
	launchErr error
	launches  int
	sessions  []*fakeSession
}

func newFakeBackend(site map[string]sitePage) *fakeBackend {
	return &fakeBackend{site: site}
}

func (b *fakeBackend) LaunchSession(ctx context.Context) (schemas.BrowserSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.launches++
	if b.launchErr != nil {
		return nil, b.launchErr
	}
	s := &fakeSession{id: fmt.Sprintf("session-%d", b.launches), backend: b, jar: map[string]schemas.RawCookie{}}
	b.sessions = append(b.sessions, s)
	return s, nil
}

func (b *fakeBackend) Close(context.Context) error { return nil }

func (b *fakeBackend) launchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.launches
}

func (b *fakeBackend) lastSession() *fakeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sessions) == 0 {
		return nil
	}
	return b.sessions[len(b.sessions)-1]
}

type fakeSession struct {
	id      string
	backend *fakeBackend

	mu         sync.Mutex
	jar        map[string]schemas.RawCookie
	jarOrder   []string
	navigated  []string
	timeouts   []time.Duration
	closed     int
	openPages  int
	cookiesErr error
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Navigate(ctx context.Context, url string, timeout time.Duration) (schemas.BrowserPage, error) {
	s.mu.Lock()
	if s.closed > 0 {
		s.mu.Unlock()
		return nil, schemas.ErrSessionClosed
	}
	s.navigated = append(s.navigated, url)
	s.timeouts = append(s.timeouts, timeout)
	s.mu.Unlock()

	page, ok := s.backend.site[url]
	if !ok {
		return nil, &schemas.NavigationError{URL: url, Err: fmt.Errorf("net::ERR_NAME_NOT_RESOLVED")}
	}
	if page.block {
		<-ctx.Done()
		return nil, &schemas.NavigationError{URL: url, Err: ctx.Err()}
	}
	if page.navErr != nil {
		return nil, page.navErr
	}

	s.mu.Lock()
	for _, c := range page.sets {
		if _, exists := s.jar[c.Key()]; !exists {
			s.jarOrder = append(s.jarOrder, c.Key())
		}
		s.jar[c.Key()] = c
	}
	s.openPages++
	s.mu.Unlock()

	return &fakePage{session: s, url: url, page: page}, nil
}

func (s *fakeSession) EnumerateCookies(ctx context.Context) ([]schemas.RawCookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cookiesErr != nil {
		return nil, s.cookiesErr
	}
	out := make([]schemas.RawCookie, 0, len(s.jarOrder))
	for _, k := range s.jarOrder {
		out = append(out, s.jar[k])
	}
	return out, nil
}

func (s *fakeSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigated...)
}

func (s *fakeSession) pagesOpen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openPages
}

type fakePage struct {
	session *fakeSession
	url     string
	page    sitePage
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) EvaluateScript(ctx context.Context, script string, out any) error {
	if p.page.extractErr != nil {
		return p.page.extractErr
	}
	var v any
	if script == analysis.SnapshotScript() {
		v = analysis.Snapshot{URL: p.url, Base: p.url, HTML: p.page.html()}
	} else {
		v = p.page.banner
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (p *fakePage) ObserveRequests() []schemas.ObservedRequest {
	reqs := []schemas.ObservedRequest{{URL: p.url}}
	for _, r := range p.page.requests {
		reqs = append(reqs, schemas.ObservedRequest{URL: r})
	}
	return reqs
}

func (p *fakePage) Close(context.Context) error {
	p.session.mu.Lock()
	defer p.session.mu.Unlock()
	p.session.openPages--
	return nil
}
