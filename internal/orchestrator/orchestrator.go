// File: internal/orchestrator/orchestrator.go
// Description: Runs a single privacy scan: a bounded, same-origin BFS crawl over
// one browser session, folding per-page signals into a frozen, scored result.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/analysis"
	"github.com/xkilldash9x/consentscan/internal/compliance"
	"github.com/xkilldash9x/consentscan/internal/cookies"
	"github.com/xkilldash9x/consentscan/internal/discovery"
	"github.com/xkilldash9x/consentscan/internal/events"
)

const (
	cancelledMessage    = "scan cancelled"
	robotsSkipMessage   = "Skipped: disallowed by robots.txt"
	navigationFailedFmt = "Navigation failed: %s"

	defaultCloseTimeout = 10 * time.Second
)

// Orchestrator runs scans against a browser backend. It holds no per-scan
// state, so one instance can serve concurrent, independent scans.
type Orchestrator struct {
	backend    schemas.BrowserBackend
	logger     *zap.Logger
	extractor  *analysis.Extractor
	classifier *cookies.Classifier
	scorer     *compliance.Scorer
	robots     discovery.RobotsPolicy
	limiter    *discovery.HostLimiter

	now          func() time.Time
	newID        func() string
	closeTimeout time.Duration
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

func WithExtractor(e *analysis.Extractor) Option {
	return func(o *Orchestrator) { o.extractor = e }
}

func WithClassifier(c *cookies.Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

func WithScorer(s *compliance.Scorer) Option {
	return func(o *Orchestrator) { o.scorer = s }
}

// WithRobotsPolicy gates every navigation on policy.
func WithRobotsPolicy(policy discovery.RobotsPolicy) Option {
	return func(o *Orchestrator) { o.robots = policy }
}

// WithHostLimiter paces navigations per host.
func WithHostLimiter(l *discovery.HostLimiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// WithClock overrides the clock used for the scan start time.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides scan ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) { o.newID = gen }
}

// New creates an Orchestrator. Unset collaborators fall back to the built-in
// rule tables.
func New(backend schemas.BrowserBackend, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if backend == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	o := &Orchestrator{
		backend:      backend,
		logger:       logger.Named("orchestrator"),
		robots:       discovery.AllowAll{},
		now:          time.Now,
		newID:        uuid.NewString,
		closeTimeout: defaultCloseTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.extractor == nil {
		o.extractor = analysis.NewDefaultExtractor()
	}
	if o.classifier == nil {
		o.classifier = cookies.NewClassifier(cookies.DefaultRules())
	}
	if o.scorer == nil {
		o.scorer = compliance.NewScorer(nil)
	}
	return o, nil
}

// NewScanID returns a fresh scan identifier.
func (o *Orchestrator) NewScanID() string { return o.newID() }

// Run executes req under a fresh scan ID. See RunWithID.
func (o *Orchestrator) Run(ctx context.Context, req schemas.ScanRequest, emitter events.Emitter) (*schemas.ScanResult, error) {
	return o.RunWithID(ctx, o.newID(), req, emitter)
}

// RunWithID executes req and streams its events to emitter. It returns the
// scored result on completion, *schemas.InvalidInputError for a bad target,
// *schemas.BackendFatalError when the session is lost, and the context error
// on cancellation. scan_done is always the last event.
func (o *Orchestrator) RunWithID(ctx context.Context, scanID string, req schemas.ScanRequest, emitter events.Emitter) (res *schemas.ScanResult, err error) {
	logger := o.logger.With(zap.String("scanID", scanID))
	reporter := events.NewReporter(scanID, events.Fanout(emitter, events.NewLogEmitter(logger)))
	defer reporter.Done()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic during scan", zap.Any("panic", r), zap.Stack("stack"))
			reporter.Error(fmt.Sprintf("internal error: %v", r))
			res, err = nil, &schemas.BackendFatalError{Op: "scan", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	origin, err := discovery.ValidateTarget(req.URL)
	if err != nil {
		reporter.Error(schemas.InvalidTargetMessage)
		return nil, err
	}

	opts := req.Options.WithDefaults()
	scan := newScanState(req.URL, origin, o.now())
	logger.Info("Starting scan",
		zap.String("target", origin.String()),
		zap.Int("maxPages", opts.MaxPages),
		zap.Duration("navigationTimeout", opts.NavigationTimeout()))

	reporter.Started(req.URL)

	session, err := o.backend.LaunchSession(ctx)
	if err != nil {
		return nil, o.abort(ctx, reporter, logger, "launch", err)
	}
	defer o.closeSession(ctx, session, logger)

	if err := o.crawl(ctx, session, scan, opts, reporter, logger); err != nil {
		return nil, err
	}

	result := scan.freeze(o.classifier)
	o.scorer.Apply(&result)

	logger.Info("Scan complete",
		zap.Int("pages", len(result.ScannedPages)),
		zap.Int("cookies", len(result.Cookies)),
		zap.Int("thirdParties", len(result.ThirdPartyHosts)),
		zap.Int("score", result.Score))

	reporter.Result(result)
	return &result, nil
}

func (o *Orchestrator) crawl(ctx context.Context, session schemas.BrowserSession, scan *scanState, opts schemas.ScanOptions, reporter *events.Reporter, logger *zap.Logger) error {
	frontier := discovery.NewFrontier(discovery.Normalize(scan.origin))
	pageCount := 0

	for pageCount < opts.MaxPages {
		if ctx.Err() != nil {
			return o.abort(ctx, reporter, logger, "crawl", ctx.Err())
		}

		pageURL, ok := frontier.Pop()
		if !ok {
			break
		}
		if frontier.Visited(pageURL) {
			continue
		}
		frontier.MarkVisited(pageURL)

		target, err := url.Parse(pageURL)
		if err != nil {
			continue
		}
		if !o.robots.Allowed(ctx, target) {
			logger.Info("Skipping page disallowed by robots.txt", zap.String("page", pageURL))
			reporter.Warning(pageURL, robotsSkipMessage)
			continue
		}

		pageCount++
		pct := events.Percent(pageCount, opts.MaxPages)
		reporter.Progress(events.StepNavigating, pageURL, pct)

		if err := o.limiter.Wait(ctx, target.Host); err != nil {
			return o.abort(ctx, reporter, logger, "crawl", err)
		}

		outcome, links, err := o.visit(ctx, session, pageURL, scan.originHost, opts.NavigationTimeout(), reporter)
		if err != nil {
			if ctx.Err() != nil {
				return o.abort(ctx, reporter, logger, "navigate", ctx.Err())
			}
			if schemas.IsFatal(err) {
				return o.abort(ctx, reporter, logger, "navigate", err)
			}
			logger.Warn("Page visit failed", zap.String("page", pageURL), zap.Error(err))
			reporter.Warning(pageURL, outcome.FailureReason)
			continue
		}

		scan.fold(outcome)
		reporter.PageDone(pageURL, len(outcome.CookiesObserved), len(outcome.ThirdPartyHosts))

		if pageCount < opts.MaxPages {
			for _, link := range links {
				if frontier.Len() >= opts.MaxPages {
					break
				}
				frontier.Push(link)
			}
		}

		reporter.Progress(events.StepScanned, pageURL, pct)
	}
	return nil
}

// visit loads one page and runs every extractor against it. A non-nil error
// comes with an outcome whose FailureReason is set.
func (o *Orchestrator) visit(
	ctx context.Context,
	session schemas.BrowserSession,
	pageURL, originHost string,
	timeout time.Duration,
	reporter *events.Reporter,
) (schemas.PageVisitOutcome, []string, error) {
	outcome := schemas.PageVisitOutcome{URL: pageURL}
	fail := func(err error) (schemas.PageVisitOutcome, []string, error) {
		outcome.Success = false
		outcome.FailureReason = fmt.Sprintf(navigationFailedFmt, err.Error())
		return outcome, nil, err
	}

	page, err := session.Navigate(ctx, pageURL, timeout)
	if err != nil {
		return fail(err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.closeTimeout)
		defer cancel()
		if cerr := page.Close(closeCtx); cerr != nil {
			o.logger.Debug("Failed to close page", zap.String("page", pageURL), zap.Error(cerr))
		}
	}()

	extractCtx, cancelExtract := context.WithTimeout(ctx, timeout)
	findings, err := o.extractor.Extract(extractCtx, page, originHost)
	cancelExtract()
	if err != nil {
		return fail(asNavigationError(pageURL, err))
	}

	if findings.Banner.Present {
		reporter.BannerDetected(pageURL, findings.Banner.Visible)
	}

	outcome.ThirdPartyHosts = thirdPartyHosts(page.ObserveRequests(), originHost)

	cookieCtx, cancelCookies := context.WithTimeout(ctx, timeout)
	jar, err := session.EnumerateCookies(cookieCtx)
	cancelCookies()
	if err != nil {
		return fail(asNavigationError(pageURL, err))
	}

	outcome.Success = true
	outcome.Banner = findings.Banner
	outcome.PrivacyPolicyLinkFound = findings.PrivacyPolicyLinkFound
	outcome.CookiesObserved = jar
	return outcome, findings.Links, nil
}

// abort reports a scan-ending failure and returns the error to hand back to
// the caller.
func (o *Orchestrator) abort(ctx context.Context, reporter *events.Reporter, logger *zap.Logger, op string, err error) error {
	if ctx.Err() != nil {
		logger.Info("Scan cancelled", zap.String("op", op))
		reporter.Error(cancelledMessage)
		return fmt.Errorf("scan cancelled: %w", ctx.Err())
	}

	var fatal *schemas.BackendFatalError
	if !errors.As(err, &fatal) {
		fatal = &schemas.BackendFatalError{Op: op, Err: err}
	}
	logger.Error("Scan aborted by backend failure", zap.String("op", op), zap.Error(err))
	reporter.Error(fatal.Error())
	return fatal
}

func (o *Orchestrator) closeSession(ctx context.Context, session schemas.BrowserSession, logger *zap.Logger) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.closeTimeout)
	defer cancel()
	if err := session.Close(closeCtx); err != nil {
		logger.Warn("Failed to close browser session", zap.String("session", session.ID()), zap.Error(err))
	}
}

// asNavigationError keeps fatal errors fatal and wraps everything else as a
// page-scoped failure.
func asNavigationError(pageURL string, err error) error {
	if schemas.IsFatal(err) {
		return err
	}
	var navErr *schemas.NavigationError
	if errors.As(err, &navErr) {
		return err
	}
	return &schemas.NavigationError{URL: pageURL, Err: err}
}

// thirdPartyHosts returns the distinct request hosts that differ from
// originHost, in first-seen order.
func thirdPartyHosts(requests []schemas.ObservedRequest, originHost string) []string {
	seen := make(map[string]struct{})
	hosts := []string{}
	for _, r := range requests {
		host := discovery.HostOf(r.URL)
		if host == "" || host == originHost {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		hosts = append(hosts, host)
	}
	return hosts
}
