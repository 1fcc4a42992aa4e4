package storage

import (
	"testing"
	"time"

	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestKey_SanitizesIdentity(t *testing.T) {
	key := Key(domain.Identity{Organization: "Acme, Inc.", Process: "Billing/Run"}, 3)
	assert.Equal(t, "Acme Inc/Acme Inc_BillingRun_v3.md", key)
}

func TestParseVersion_PrefixIsExact(t *testing.T) {
	prefix := versionPrefix(domain.Identity{Organization: "Acme", Process: "Billing"})

	tests := []struct {
		name     string
		filename string
		version  int
		ok       bool
	}{
		{"Match", "Acme_Billing_v2.md", 2, true},
		{"LongerProcess", "Acme_Billing_Extra_v7.md", 0, false},
		{"NotMarkdown", "Acme_Billing_v2.txt", 0, false},
		{"NoDigits", "Acme_Billing_vX.md", 0, false},
		{"Empty", "Acme_Billing_v.md", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := parseVersion(tt.filename, prefix)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.version, v)
		})
	}
}

func TestMaxVersion_IgnoresUnparsable(t *testing.T) {
	names := []string{"Acme_Billing_v1.md", "Acme_Billing_v10.md", "Acme_Billing_v2.md", "Acme_Billing_vbad.md", "notes.txt"}
	assert.Equal(t, 10, maxVersion(names, "Acme_Billing_v"))
	assert.Equal(t, 0, maxVersion(nil, "Acme_Billing_v"))
}

func TestDescribe(t *testing.T) {
	doc, ok := describe("kb/Acme/Acme_Month End_v4.md", "Acme", "Acme_Month End_v4.md")

	assert.True(t, ok)
	assert.Equal(t, "Month End", doc.ProcessName)
	assert.Equal(t, 4, doc.Version)
	assert.Equal(t, "Acme", doc.Organization)

	_, ok = describe("kb/Acme/readme.md", "Acme", "readme.md")
	assert.False(t, ok)
}

func TestIdentifier_SkipsForeignPrefix(t *testing.T) {
	id, ok := identifier("Acme", "Acme_Billing_v1.md")
	assert.True(t, ok)
	assert.Equal(t, "Acme/Billing", id)

	_, ok = identifier("Acme", "Other_Billing_v1.md")
	assert.False(t, ok)
}

func TestProcessingTimeMarker(t *testing.T) {
	withMarker := string(encode("# SOP", 42.5))
	assert.Equal(t, "<!-- metadata:processing_time=42.5 -->\n# SOP", withMarker)
	assert.Equal(t, 42.5, ProcessingTime(withMarker))
	assert.Equal(t, "# SOP", StripMetadata(withMarker))

	withoutMarker := string(encode("# SOP", 0))
	assert.Equal(t, "# SOP", withoutMarker)
	assert.Equal(t, 0.0, ProcessingTime(withoutMarker))
	assert.Equal(t, "# SOP", StripMetadata(withoutMarker))
}

func TestSortNewestFirst(t *testing.T) {
	now := time.Now()
	docs := []domain.DocumentInfo{
		{ID: "b", CreatedAt: now.Add(-time.Hour)},
		{ID: "a", CreatedAt: now},
		{ID: "c", CreatedAt: now},
	}

	sortNewestFirst(docs)

	assert.Equal(t, []string{"a", "c", "b"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})
}

func TestSplitKey(t *testing.T) {
	tests := []struct {
		key string
		ok  bool
	}{
		{"Acme/Acme_Billing_v1.md", true},
		{"Acme", false},
		{"Acme/sub/file.md", false},
		{"../etc/passwd", false},
		{"/Acme/file.md", false},
		{"Acme/..", false},
	}

	for _, tt := range tests {
		_, _, ok := splitKey(tt.key)
		assert.Equal(t, tt.ok, ok, tt.key)
	}
}
