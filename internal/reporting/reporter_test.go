// internal/reporting/reporter_test.go
package reporting_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/reporting"
	"github.com/xkilldash9x/consentscan/internal/store"
)

const testToolVersion = "v1.0.0-test"

type closeBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closeBuffer) Close() error {
	b.closed = true
	return nil
}

func intPtr(v int) *int { return &v }

func sampleScan() store.StoredScan {
	started := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	res := schemas.NewScanResult("https://shop.example.com")
	res.ScannedPages = []string{"https://shop.example.com/", "https://shop.example.com/cart"}
	res.ThirdPartyHosts = []string{"www.google-analytics.com", "connect.facebook.net", "ssl.google-analytics.com"}
	res.CookieReport = []schemas.CookieReportRow{
		{Name: "_ga", Domain: ".shop.example.com", Path: "/", FirstParty: true, Purpose: "Analytics", LifetimeDays: intPtr(400), Secure: true, SameSite: "Lax"},
		{Name: "_fbp", Domain: ".shop.example.com", Path: "/", FirstParty: true, Purpose: "Marketing / Advertising", LifetimeDays: intPtr(90), SameSite: "unspecified"},
		{Name: "sessionid", Domain: "shop.example.com", Path: "/", FirstParty: true, Purpose: "Necessary", HTTPOnly: true, SameSite: "Strict"},
	}
	res.Violations = []string{
		"No cookie consent banner detected while analytics cookies are present.",
		"No privacy policy link found.",
	}
	res.Tips = []string{"Show a consent banner before setting analytics cookies."}
	res.Score = 40
	return store.StoredScan{ID: "scan-42", StartedAt: started, FinishedAt: started.Add(12500 * time.Millisecond), Result: res}
}

func TestNew_Stdout(t *testing.T) {
	for _, format := range []string{"json", "markdown"} {
		r, err := reporting.New(format, "stdout", testToolVersion)
		require.NoError(t, err)
		assert.NotNil(t, r)
		assert.NoError(t, r.Close(), "closing stdout is a no-op")

		r, err = reporting.New(format, "", testToolVersion)
		require.NoError(t, err)
		assert.NoError(t, r.Close())
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")

	r, err := reporting.New("markdown", path, testToolVersion)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleScan()))
	require.NoError(t, r.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "# Privacy Compliance Report")
}

func TestNew_UnsupportedFormat(t *testing.T) {
	r, err := reporting.New("sarif", "stdout", testToolVersion)
	assert.Nil(t, r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format: sarif")

	// No file is created for a rejected format.
	path := filepath.Join(t.TempDir(), "never.txt")
	_, err = reporting.New("pdf", path, testToolVersion)
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	buf := &closeBuffer{}
	_, err = reporting.NewWithWriter("pdf", buf, testToolVersion)
	require.Error(t, err)
	assert.True(t, buf.closed, "the writer is closed on rejection")
}

func TestNew_BadPath(t *testing.T) {
	_, err := reporting.New("json", filepath.Join(t.TempDir(), "missing", "dir", "r.json"), testToolVersion)
	assert.ErrorContains(t, err, "failed to create output file")
}

func TestMarkdownReporter(t *testing.T) {
	buf := &closeBuffer{}
	r := reporting.NewMarkdownReporter(buf, testToolVersion)
	require.NoError(t, r.Write(sampleScan()))
	require.NoError(t, r.Close())
	assert.True(t, buf.closed)

	out := buf.String()
	assert.Contains(t, out, "# Privacy Compliance Report")
	assert.Contains(t, out, "https://shop.example.com")
	assert.Contains(t, out, "**40 / 100**")
	assert.Contains(t, out, "12.5s")
	for _, v := range sampleScan().Result.Violations {
		assert.Contains(t, out, v)
	}
	assert.Contains(t, out, "## Recommendations")

	for _, name := range []string{"`_ga`", "`_fbp`", "`sessionid`"} {
		assert.Equal(t, 1, strings.Count(out, name), "one table row per cookie: %s", name)
	}
	assert.Contains(t, out, "400 days")
	assert.Contains(t, out, "HttpOnly SameSite=Strict")

	assert.Contains(t, out, "```mermaid")
	assert.Contains(t, out, "Cookies by Purpose")

	assert.Contains(t, out, "google-analytics.com")
	assert.Contains(t, out, "facebook.net")
	assert.Contains(t, out, "https://shop.example.com/cart")
	assert.Contains(t, out, "consentscan "+testToolVersion)
}

func TestMarkdownReporter_CleanSite(t *testing.T) {
	scan := sampleScan()
	scan.Result = schemas.NewScanResult("https://clean.example")

	buf := &closeBuffer{}
	require.NoError(t, reporting.NewMarkdownReporter(buf, testToolVersion).Write(scan))

	out := buf.String()
	assert.Contains(t, out, "No compliance violations detected.")
	assert.Contains(t, out, "No cookies were set.")
	assert.Contains(t, out, "No third-party requests were observed.")
	assert.Contains(t, out, "No pages could be scanned.")
	assert.NotContains(t, out, "mermaid")
}

func TestJSONReporter(t *testing.T) {
	buf := &closeBuffer{}
	r := reporting.NewJSONReporter(buf, testToolVersion)
	scan := sampleScan()
	require.NoError(t, r.Write(scan))

	var doc reporting.Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "consentscan", doc.Tool)
	assert.Equal(t, testToolVersion, doc.Version)
	assert.Equal(t, "scan-42", doc.ScanID)
	assert.Equal(t, int64(12500), doc.DurationMs)
	assert.Equal(t, scan.Result, doc.Result)
	assert.Equal(t, []reporting.HostGroup{
		{Domain: "google-analytics.com", Hosts: []string{"www.google-analytics.com", "ssl.google-analytics.com"}},
		{Domain: "facebook.net", Hosts: []string{"connect.facebook.net"}},
	}, doc.ThirdPartyDomains)
	assert.True(t, strings.HasSuffix(buf.String(), "}\n"))
}

func TestGroupHosts(t *testing.T) {
	got := reporting.GroupHosts([]string{
		"www.google-analytics.com",
		"stats.g.doubleclick.net",
		"cdn.example.co.uk:8443",
		"SSL.Google-Analytics.com",
		"127.0.0.1:9000",
		"localhost",
	})

	assert.Equal(t, []reporting.HostGroup{
		{Domain: "google-analytics.com", Hosts: []string{"www.google-analytics.com", "SSL.Google-Analytics.com"}},
		{Domain: "doubleclick.net", Hosts: []string{"stats.g.doubleclick.net"}},
		{Domain: "example.co.uk", Hosts: []string{"cdn.example.co.uk:8443"}},
		{Domain: "127.0.0.1", Hosts: []string{"127.0.0.1:9000"}},
		{Domain: "localhost", Hosts: []string{"localhost"}},
	}, got)

	assert.NotNil(t, reporting.GroupHosts(nil))
}
