// Package events defines the scan event vocabulary streamed to observers.
//
// The set of payloads is closed: every payload type lives in this package and
// implements Payload, so observers can switch over them exhaustively.
package events

import (
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/consentscan/api/schemas"
)

// Kind is the wire name of an event.
type Kind string

const (
	KindScanStarted    Kind = "scan_started"
	KindProgress       Kind = "progress"
	KindBannerDetected Kind = "banner_detected"
	KindPageDone       Kind = "page_done"
	KindWarning        Kind = "warning"
	KindScanError      Kind = "scan_error"
	KindScanResult     Kind = "scan_result"
	KindScanComplete   Kind = "scan_complete"
	KindScanDone       Kind = "scan_done"
)

// Kinds lists every event kind in the order a successful scan first emits them.
var Kinds = []Kind{
	KindScanStarted,
	KindProgress,
	KindBannerDetected,
	KindPageDone,
	KindWarning,
	KindScanError,
	KindScanResult,
	KindScanComplete,
	KindScanDone,
}

// Step is the phase reported by a progress event.
type Step string

const (
	StepNavigating Step = "navigating"
	StepScanned    Step = "scanned"
)

// Payload is implemented only by the payload types below.
type Payload interface {
	Kind() Kind
	sealed()
}

type ScanStarted struct {
	URL string `json:"url"`
}

type Progress struct {
	Step     Step   `json:"step"`
	Page     string `json:"page"`
	Progress int    `json:"progress"`
}

type BannerDetected struct {
	Page    string `json:"page"`
	Visible bool   `json:"visible"`
}

type PageDone struct {
	Page              string `json:"page"`
	CookiesFound      int    `json:"cookiesFound"`
	ThirdPartiesFound int    `json:"thirdPartiesFound"`
}

type Warning struct {
	Page    string `json:"page"`
	Message string `json:"message"`
}

type ScanError struct {
	Message string `json:"message"`
}

// ScanResult carries the frozen result; its fields serialize flat.
type ScanResult struct {
	schemas.ScanResult
}

// ScanComplete carries the same frozen result as ScanResult.
type ScanComplete struct {
	schemas.ScanResult
}

type ScanDone struct{}

func (ScanStarted) Kind() Kind    { return KindScanStarted }
func (Progress) Kind() Kind       { return KindProgress }
func (BannerDetected) Kind() Kind { return KindBannerDetected }
func (PageDone) Kind() Kind       { return KindPageDone }
func (Warning) Kind() Kind        { return KindWarning }
func (ScanError) Kind() Kind      { return KindScanError }
func (ScanResult) Kind() Kind     { return KindScanResult }
func (ScanComplete) Kind() Kind   { return KindScanComplete }
func (ScanDone) Kind() Kind       { return KindScanDone }

func (ScanStarted) sealed()    {}
func (Progress) sealed()       {}
func (BannerDetected) sealed() {}
func (PageDone) sealed()       {}
func (Warning) sealed()        {}
func (ScanError) sealed()      {}
func (ScanResult) sealed()     {}
func (ScanComplete) sealed()   {}
func (ScanDone) sealed()       {}

// Event is one entry of a scan's event stream.
type Event struct {
	ScanID  string
	Seq     uint64
	Time    time.Time
	Payload Payload
}

// Kind is shorthand for e.Payload.Kind().
func (e Event) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// Frame is the serialized shape of an event.
type Frame struct {
	Type      Kind    `json:"type"`
	ScanID    string  `json:"scan_id,omitempty"`
	Seq       uint64  `json:"seq"`
	Timestamp string  `json:"timestamp"`
	Data      Payload `json:"data"`
}

// ToFrame converts e into its serialized shape.
func (e Event) ToFrame() Frame {
	return Frame{
		Type:      e.Kind(),
		ScanID:    e.ScanID,
		Seq:       e.Seq,
		Timestamp: e.Time.UTC().Format(time.RFC3339Nano),
		Data:      e.Payload,
	}
}

// MarshalJSON encodes the event as a Frame.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToFrame())
}
