package events

import (
	"sync"

	"go.uber.org/zap"
)

// Fanout delivers every event to each emitter in order.
func Fanout(emitters ...Emitter) Emitter {
	list := make([]Emitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			list = append(list, e)
		}
	}
	return EmitterFunc(func(ev Event) {
		for _, e := range list {
			e.Emit(ev)
		}
	})
}

// NewLogEmitter mirrors events into the structured log.
func NewLogEmitter(logger *zap.Logger) Emitter {
	log := logger.Named("events")
	return EmitterFunc(func(ev Event) {
		fields := []zap.Field{
			zap.String("scan_id", ev.ScanID),
			zap.Uint64("seq", ev.Seq),
			zap.String("kind", string(ev.Kind())),
		}
		switch p := ev.Payload.(type) {
		case Progress:
			fields = append(fields, zap.String("step", string(p.Step)), zap.String("page", p.Page), zap.Int("progress", p.Progress))
		case BannerDetected:
			fields = append(fields, zap.String("page", p.Page), zap.Bool("visible", p.Visible))
		case PageDone:
			fields = append(fields, zap.String("page", p.Page), zap.Int("cookies", p.CookiesFound), zap.Int("third_parties", p.ThirdPartiesFound))
		case Warning:
			log.Warn("Page visit failed", append(fields, zap.String("page", p.Page), zap.String("message", p.Message))...)
			return
		case ScanError:
			log.Error("Scan aborted", append(fields, zap.String("message", p.Message))...)
			return
		case ScanResult:
			fields = append(fields, zap.Int("score", p.Score), zap.Int("pages", len(p.ScannedPages)))
		}
		log.Debug("Scan event", fields...)
	})
}

// Recorder keeps every event it receives. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind()
	}
	return kinds
}

// OfKind returns the payloads of every recorded event of kind k.
func (r *Recorder) OfKind(k Kind) []Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payload
	for _, ev := range r.events {
		if ev.Kind() == k {
			out = append(out, ev.Payload)
		}
	}
	return out
}
