package cookies

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/consentscan/api/schemas"
)

func ptrFloat(f float64) *float64 { return &f }

func TestPurpose(t *testing.T) {
	t.Parallel()
	c := NewClassifier(DefaultRules())

	testCases := []struct {
		name, domain, expected string
	}{
		{"_ga", "example.com", "Analytics (Google Analytics)"},
		{"_ga_ABC123", "example.com", "Analytics (Google Analytics)"},
		{"_gid", "example.com", "Analytics (Google Analytics)"},
		{"_gat", "example.com", "Analytics (Google Analytics)"},
		{"_gcl_au", "example.com", "Ads/Attribution (Google Ads)"},
		{"_fbp", "example.com", "Ads/Retargeting (Facebook)"},
		{"fr", ".facebook.com", "Ads/Retargeting (Facebook)"},
		{"ajs_anonymous_id", "example.com", "Analytics (Segment)"},
		{"amplitude_id_x", "example.com", "Analytics (Amplitude)"},
		{"mp_abc_mixpanel", "example.com", "Analytics (Mixpanel)"},
		{"mixpanel", "example.com", "Analytics (Mixpanel)"},
		{"_hjSessionUser_1", "example.com", "Analytics (Hotjar)"},
		{"_clck", "example.com", "Analytics (Microsoft Clarity)"},
		{"_clsk", "example.com", "Analytics (Microsoft Clarity)"},
		{"cid", "example.com", "Analytics/Attribution"},
		{"scid", "example.com", "Analytics/Attribution"},
		{"sessionid", "example.com", "Session / Auth"},
		{"connect.sid", "example.com", "Session / Auth"},
		{"__stripe_mid", "example.com", "Payments (Stripe)"},
		{"guest_id", "x.com", "Platform (Twitter/X)"},
		{"IDE", ".doubleclick.net", "Ads (DoubleClick)"},
		{"NID", ".google.com", "Google Services"},
		{"datr", ".facebook.com", "Facebook Services"},
		{"personalization_id", ".twitter.com", "Twitter Services"},
		{"muc", "t.co", "Twitter Services"},
		{"prefs", "example.com", Unclassified},
		// Name rules win over domain rules.
		{"_ga", ".doubleclick.net", "Analytics (Google Analytics)"},
		// Anchored patterns do not match partial names.
		{"my_ga", "example.com", Unclassified},
		{"session_extra", "example.com", Unclassified},
		// Names match case-insensitively.
		{"_GA", "example.com", "Analytics (Google Analytics)"},
		{"_Gid", "example.com", "Analytics (Google Analytics)"},
		{"SESSIONID", "example.com", "Session / Auth"},
		{"Connect.SID", "example.com", "Session / Auth"},
		{"FR", ".facebook.com", "Ads/Retargeting (Facebook)"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, c.Purpose(tc.name, tc.domain), "%s @ %s", tc.name, tc.domain)
	}
}

func TestIsFirstParty(t *testing.T) {
	t.Parallel()
	assert.True(t, IsFirstParty("", "example.com"))
	assert.True(t, IsFirstParty("example.com", "example.com"))
	assert.True(t, IsFirstParty(".example.com", "example.com"))
	assert.True(t, IsFirstParty("Example.COM", "example.com:8080"))
	assert.False(t, IsFirstParty(".example.com", "www.example.com"), "parent domain is not first party")
	assert.False(t, IsFirstParty("sub.example.com", "example.com"), "subdomain is not first party")
	assert.False(t, IsFirstParty(".google.com", "example.com"))
}

func TestLifetimeDays(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	day := int64(24 * time.Hour / time.Millisecond)

	assert.Equal(t, 400, LifetimeDays(start.UnixMilli()+400*day, start))
	assert.Equal(t, 1, LifetimeDays(start.UnixMilli()+day/2, start), "half a day rounds up")
	assert.Equal(t, 0, LifetimeDays(start.UnixMilli()+day/2-1, start))
	assert.Equal(t, 0, LifetimeDays(start.UnixMilli()-10*day, start), "expired cookies clamp at zero")
}

func TestClassify(t *testing.T) {
	t.Parallel()
	c := NewClassifier(DefaultRules())
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("persistent cookie", func(t *testing.T) {
		expires := float64(start.Add(400*24*time.Hour).Unix()) + 0.25
		row := c.Classify(schemas.RawCookie{
			Name:      "_ga",
			Domain:    ".example.com",
			Path:      "/",
			Secure:    true,
			SameSite:  "Lax",
			ExpiresAt: &expires,
		}, "example.com", start)

		assert.Equal(t, "Analytics (Google Analytics)", row.Purpose)
		assert.True(t, row.FirstParty)
		require.NotNil(t, row.LifetimeDays)
		assert.Equal(t, 400, *row.LifetimeDays)
		require.NotNil(t, row.ExpiresAtMillis)
		assert.Equal(t, start.Add(400*24*time.Hour).UnixMilli()+250, *row.ExpiresAtMillis)
		assert.Equal(t, "Lax", row.SameSite)
		assert.True(t, row.Secure)
	})

	t.Run("session cookie has no lifetime", func(t *testing.T) {
		row := c.Classify(schemas.RawCookie{Name: "sid"}, "example.com:8080", start)
		assert.Nil(t, row.LifetimeDays)
		assert.Nil(t, row.ExpiresAtMillis)
		assert.Equal(t, "example.com", row.Domain, "missing domain defaults to the origin host")
		assert.Equal(t, "/", row.Path)
		assert.Equal(t, "unspecified", row.SameSite)
		assert.True(t, row.FirstParty)
		assert.Equal(t, "Session / Auth", row.Purpose)
	})

	t.Run("non-positive expiry is treated as session", func(t *testing.T) {
		row := c.Classify(schemas.RawCookie{Name: "x", Domain: "a.com", ExpiresAt: ptrFloat(-1)}, "example.com", start)
		assert.Nil(t, row.LifetimeDays)
		assert.False(t, row.FirstParty)
	})

	t.Run("host-only cookie is not classified by the origin host", func(t *testing.T) {
		row := c.Classify(schemas.RawCookie{Name: "prefs"}, "www.google.com", start)
		assert.Equal(t, "www.google.com", row.Domain)
		assert.True(t, row.FirstParty)
		assert.Equal(t, Unclassified, row.Purpose)

		row = c.Classify(schemas.RawCookie{Name: "prefs", Domain: ".google.com"}, "www.google.com", start)
		assert.Equal(t, "Google Services", row.Purpose)
	})

	t.Run("upper-case analytics name", func(t *testing.T) {
		row := c.Classify(schemas.RawCookie{Name: "_GA", Domain: ".example.com"}, "example.com", start)
		assert.Equal(t, "Analytics (Google Analytics)", row.Purpose)
		assert.Equal(t, "_GA", row.Name)
	})

	t.Run("classify all preserves order", func(t *testing.T) {
		rows := c.ClassifyAll([]schemas.RawCookie{{Name: "b"}, {Name: "a"}}, "example.com", start)
		require.Len(t, rows, 2)
		assert.Equal(t, "b", rows[0].Name)
		assert.Equal(t, "a", rows[1].Name)
	})
}

func TestLoadRules(t *testing.T) {
	t.Run("extend appends after the defaults", func(t *testing.T) {
		doc := `
extend: true
name_rules:
  - pattern: "^_pk_"
    label: "Analytics (Matomo)"
  - pattern: "^_ga$"
    label: "Never reached"
domain_rules:
  - pattern: "hotjar\\.com"
    label: "Analytics (Hotjar)"
`
		set, err := LoadRules(strings.NewReader(doc))
		require.NoError(t, err)
		c := NewClassifier(set)

		assert.Equal(t, "Analytics (Matomo)", c.Purpose("_pk_id", "example.com"))
		assert.Equal(t, "Analytics (Google Analytics)", c.Purpose("_ga", "example.com"))
		assert.Equal(t, "Analytics (Hotjar)", c.Purpose("x", "vars.hotjar.com"))
		assert.Equal(t, Unclassified, c.Purpose("x", "example.com"))
	})

	t.Run("replace with custom fallback", func(t *testing.T) {
		doc := `
fallback: "Other"
name_rules:
  - pattern: "^only$"
    label: "Only"
`
		set, err := LoadRules(strings.NewReader(doc))
		require.NoError(t, err)
		c := NewClassifier(set)
		assert.Equal(t, "Only", c.Purpose("only", ""))
		assert.Equal(t, "Other", c.Purpose("_ga", ""))
	})

	t.Run("empty document yields an empty table", func(t *testing.T) {
		set, err := LoadRules(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, set.Name)
		assert.Equal(t, Unclassified, set.Fallback)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := LoadRules(strings.NewReader("name_rules:\n  - pattern: \"([\"\n    label: x\n"))
		assert.ErrorContains(t, err, "name_rules")
	})

	t.Run("missing label", func(t *testing.T) {
		_, err := LoadRules(strings.NewReader("domain_rules:\n  - pattern: \"x\"\n"))
		assert.ErrorContains(t, err, "no label")
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte("extend: true\n"), 0o600))
		set, err := LoadRulesFile(path)
		require.NoError(t, err)
		assert.Len(t, set.Name, len(DefaultRules().Name))

		_, err = LoadRulesFile(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func FuzzClassify(f *testing.F) {
	f.Add([]byte("_ga.example.com/"))
	f.Add([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})

	c := NewClassifier(DefaultRules())
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	f.Fuzz(func(t *testing.T, data []byte) {
		var raw schemas.RawCookie
		if err := fuzz.NewConsumer(data).GenerateStruct(&raw); err != nil {
			t.Skip()
		}
		row := c.Classify(raw, "example.com", start)

		if row.Purpose == "" {
			t.Fatal("purpose must never be empty")
		}
		if row.Path == "" || row.SameSite == "" || row.Domain == "" {
			t.Fatalf("defaults not applied: %+v", row)
		}
		if row.LifetimeDays != nil && *row.LifetimeDays < 0 {
			t.Fatalf("negative lifetime: %d", *row.LifetimeDays)
		}
		if (row.LifetimeDays == nil) != (row.ExpiresAtMillis == nil) {
			t.Fatal("lifetime and expiry must be set together")
		}
	})
}
