// internal/reporting/json.go
package reporting

import (
	"fmt"
	"io"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/store"
)

// Document is the JSON report layout.
type Document struct {
	Tool              string             `json:"tool"`
	Version           string             `json:"version"`
	ScanID            string             `json:"scanId"`
	StartedAt         time.Time          `json:"startedAt"`
	FinishedAt        time.Time          `json:"finishedAt"`
	DurationMs        int64              `json:"durationMs"`
	Result            schemas.ScanResult `json:"result"`
	ThirdPartyDomains []HostGroup        `json:"thirdPartyDomains"`
}

// JSONReporter writes one indented JSON document per scan.
type JSONReporter struct {
	writer  io.WriteCloser
	version string
}

func NewJSONReporter(writer io.WriteCloser, toolVersion string) *JSONReporter {
	return &JSONReporter{writer: writer, version: toolVersion}
}

func (r *JSONReporter) Write(scan store.StoredScan) error {
	doc := Document{
		Tool:              "consentscan",
		Version:           r.version,
		ScanID:            scan.ID,
		StartedAt:         scan.StartedAt,
		FinishedAt:        scan.FinishedAt,
		DurationMs:        scan.FinishedAt.Sub(scan.StartedAt).Milliseconds(),
		Result:            scan.Result,
		ThirdPartyDomains: GroupHosts(scan.Result.ThirdPartyHosts),
	}
	data, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')
	if _, err := r.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	return r.writer.Close()
}
