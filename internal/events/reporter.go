package events

import (
	"math"
	"sync"
	"time"

	"github.com/xkilldash9x/consentscan/api/schemas"
)

// Emitter receives events. Implementations must not block the caller for
// long; transports buffer or drop on their own terms.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})

// Reporter stamps and emits the events of a single scan. It keeps progress
// values non-decreasing and makes scan_done idempotent.
type Reporter struct {
	scanID  string
	emitter Emitter
	now     func() time.Time

	mu           sync.Mutex
	seq          uint64
	lastProgress int
	done         bool
}

// NewReporter binds a reporter to one scan. A nil emitter discards events.
func NewReporter(scanID string, emitter Emitter) *Reporter {
	if emitter == nil {
		emitter = Discard
	}
	return &Reporter{scanID: scanID, emitter: emitter, now: time.Now}
}

// ScanID returns the scan the reporter is bound to.
func (r *Reporter) ScanID() string { return r.scanID }

func (r *Reporter) emit(p Payload) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.seq++
	ev := Event{ScanID: r.scanID, Seq: r.seq, Time: r.now(), Payload: p}
	if _, ok := p.(ScanDone); ok {
		r.done = true
	}
	r.mu.Unlock()

	r.emitter.Emit(ev)
}

func (r *Reporter) Started(url string) {
	r.emit(ScanStarted{URL: url})
}

// Progress emits a progress event. Values below the last reported value are
// raised to it; values are clamped to [0, 100].
func (r *Reporter) Progress(step Step, page string, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	r.mu.Lock()
	if pct < r.lastProgress {
		pct = r.lastProgress
	}
	r.lastProgress = pct
	r.mu.Unlock()

	r.emit(Progress{Step: step, Page: page, Progress: pct})
}

func (r *Reporter) BannerDetected(page string, visible bool) {
	r.emit(BannerDetected{Page: page, Visible: visible})
}

func (r *Reporter) PageDone(page string, cookiesFound, thirdPartiesFound int) {
	r.emit(PageDone{Page: page, CookiesFound: cookiesFound, ThirdPartiesFound: thirdPartiesFound})
}

func (r *Reporter) Warning(page, message string) {
	r.emit(Warning{Page: page, Message: message})
}

func (r *Reporter) Error(message string) {
	r.emit(ScanError{Message: message})
}

// Result emits scan_result followed by scan_complete, each carrying its own
// copy of the frozen result.
func (r *Reporter) Result(result schemas.ScanResult) {
	r.emit(ScanResult{ScanResult: result.Clone()})
	r.emit(ScanComplete{ScanResult: result.Clone()})
}

// Done emits scan_done once; later events are dropped.
func (r *Reporter) Done() {
	r.emit(ScanDone{})
}

// Percent is round(n / max(d, 1) * 100).
func Percent(n, d int) int {
	if d < 1 {
		d = 1
	}
	return int(math.Round(float64(n) / float64(d) * 100))
}
