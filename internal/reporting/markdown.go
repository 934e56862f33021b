// internal/reporting/markdown.go
package reporting

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/store"
)

// MarkdownReporter writes a human-readable compliance report.
type MarkdownReporter struct {
	writer  io.WriteCloser
	version string
}

func NewMarkdownReporter(writer io.WriteCloser, toolVersion string) *MarkdownReporter {
	return &MarkdownReporter{writer: writer, version: toolVersion}
}

func (r *MarkdownReporter) Write(scan store.StoredScan) error {
	md := markdown.NewMarkdown(r.writer)

	r.writeHeader(md, scan)
	r.writeVerdict(md, scan.Result)
	r.writeCookies(md, scan.Result.CookieReport)
	r.writeThirdParties(md, scan.Result.ThirdPartyHosts)
	r.writePages(md, scan.Result.ScannedPages)
	r.writeFooter(md)

	if err := md.Build(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (r *MarkdownReporter) Close() error {
	return r.writer.Close()
}

func yesNo(b bool) string {
	if b {
		return "✅ Yes"
	}
	return "❌ No"
}

func (r *MarkdownReporter) writeHeader(md *markdown.Markdown, scan store.StoredScan) {
	md.H1("Privacy Compliance Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Site", "`" + scan.Result.Site + "`"},
			{"Scan ID", "`" + scan.ID + "`"},
			{"Scan Date", scan.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", scan.FinishedAt.Sub(scan.StartedAt).Round(100 * time.Millisecond).String()},
			{"Pages Scanned", strconv.Itoa(len(scan.Result.ScannedPages))},
			{"Consent Banner", yesNo(scan.Result.ConsentBannerDetected)},
			{"Privacy Policy", yesNo(scan.Result.PrivacyPolicyFound)},
			{"Score", fmt.Sprintf("**%d / 100**", scan.Result.Score)},
		},
	})
	md.PlainText("")
}

func (r *MarkdownReporter) writeVerdict(md *markdown.Markdown, res schemas.ScanResult) {
	md.H2("Violations")
	md.PlainText("")
	switch {
	case len(res.Violations) == 0:
		md.Tip("No compliance violations detected.")
	case res.Score < 50:
		md.Cautionf("%d violation(s) found. This site is likely non-compliant.", len(res.Violations))
	default:
		md.Warningf("%d violation(s) found.", len(res.Violations))
	}
	md.PlainText("")
	if len(res.Violations) > 0 {
		md.BulletList(res.Violations...)
		md.PlainText("")
	}

	if len(res.Tips) > 0 {
		md.H2("Recommendations")
		md.PlainText("")
		md.BulletList(res.Tips...)
		md.PlainText("")
	}
}

func lifetime(days *int) string {
	if days == nil {
		return "session"
	}
	return strconv.Itoa(*days) + " days"
}

func party(first bool) string {
	if first {
		return "first"
	}
	return "third"
}

func flags(c schemas.CookieReportRow) string {
	s := ""
	if c.Secure {
		s += "Secure "
	}
	if c.HTTPOnly {
		s += "HttpOnly "
	}
	return s + "SameSite=" + c.SameSite
}

func (r *MarkdownReporter) writeCookies(md *markdown.Markdown, cookies []schemas.CookieReportRow) {
	md.H2("Cookies")
	md.PlainText("")
	if len(cookies) == 0 {
		md.PlainText("No cookies were set.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(cookies))
	for i, c := range cookies {
		rows[i] = []string{
			"`" + c.Name + "`",
			c.Domain,
			c.Purpose,
			party(c.FirstParty),
			lifetime(c.LifetimeDays),
			flags(c),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Name", "Domain", "Purpose", "Party", "Lifetime", "Attributes"},
		Rows:   rows,
	})
	md.PlainText("")
	r.writePurposeChart(md, cookies)
}

type purposeCount struct {
	purpose string
	count   int
}

func countPurposes(cookies []schemas.CookieReportRow) []purposeCount {
	byPurpose := make(map[string]int)
	for _, c := range cookies {
		byPurpose[c.Purpose]++
	}
	counts := make([]purposeCount, 0, len(byPurpose))
	for p, n := range byPurpose {
		counts = append(counts, purposeCount{purpose: p, count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].purpose < counts[j].purpose
	})
	return counts
}

func (r *MarkdownReporter) writePurposeChart(md *markdown.Markdown, cookies []schemas.CookieReportRow) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Cookies by Purpose"),
		piechart.WithShowData(true),
	)
	for _, pc := range countPurposes(cookies) {
		chart.LabelAndIntValue(pc.purpose, uint64(pc.count))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (r *MarkdownReporter) writeThirdParties(md *markdown.Markdown, hosts []string) {
	md.H2("Third-Party Hosts")
	md.PlainText("")
	if len(hosts) == 0 {
		md.PlainText("No third-party requests were observed.")
		md.PlainText("")
		return
	}

	groups := GroupHosts(hosts)
	rows := make([][]string, len(groups))
	for i, g := range groups {
		rows[i] = []string{g.Domain, strconv.Itoa(len(g.Hosts)), truncateString(strings.Join(g.Hosts, ", "), 80)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Domain", "Hosts", "Seen As"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (r *MarkdownReporter) writePages(md *markdown.Markdown, pages []string) {
	md.H2("Scanned Pages")
	md.PlainText("")
	if len(pages) == 0 {
		md.PlainText("No pages could be scanned.")
		md.PlainText("")
		return
	}
	md.OrderedList(pages...)
	md.PlainText("")
}

func (r *MarkdownReporter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by consentscan %s*", r.version)
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
