package casekey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint_server/core/domain"
	"complaint_server/core/service/pattern"
)

func TestGenerate(t *testing.T) {
	g := New(pattern.Default())

	tests := []struct {
		name   string
		domain string
		part   string
		text   string
		want   domain.CaseKey
	}{
		{"part and external id", "acme.com", "HX-2210", "NCMR 2024-00123 opened", "acme-com-hx-2210-ncmr-2024-00123"},
		{"part only", "acme.com", "HX-2210", "housing cracked", "acme-com-hx-2210"},
		{"external id without part", "acme.com", domain.MissingPartNumber, "SCAR 2024-118", "acme-com-scar-2024-118"},
		{"subject slug fallback", "acme.com", domain.MissingPartNumber, "Defect on lot 7\nbody text", "acme-com-defect-on-lot-7"},
		{"nothing at all", "", "", "", "unknown-no-subject"},
		{"first pattern kind wins", "acme.com", "", "PO 451200 and SCAR 2024-118", "acme-com-scar-2024-118"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Generate(tt.domain, tt.part, tt.text))
		})
	}
}

func TestGenerateIsIdempotentAcrossVariants(t *testing.T) {
	g := New(pattern.Default())

	want := g.Generate("acme.com", "HX-2210", "NCMR 2024-00123")
	variants := []struct{ domain, part, text string }{
		{"acme.com", "HX-2210", "NCMR 2024-00123"},
		{"ACME.COM", "hx-2210", "ncmr#2024/00123"},
		{" acme.com ", "HX_2210", "re: NCMR: 2024-00123!!"},
		{"acme.com.", "hx 2210", "Ncmr-2024-00123"},
	}
	for _, v := range variants {
		assert.Equal(t, want, g.Generate(v.domain, v.part, v.text), "%+v", v)
	}
}

func TestGenerateAcceptsSpacedAndSlashedIdentifiers(t *testing.T) {
	g := New(pattern.Default())

	want := domain.CaseKey("acme-com-hx-2210-ncmr-2024-00123")
	for _, text := range []string{
		"NCMR 2024 00123",
		"ncmr: 2024 00123",
		"NCMR 2024/00123",
		"NCMR 2024.00123",
		"NCMR 2024 - 00123",
	} {
		assert.Equal(t, want, g.Generate("acme.com", "HX-2210", text), text)
	}

	id, ok := g.ExternalID("SCAR 2024 118 raised")
	require.True(t, ok)
	assert.Equal(t, "scar-2024-118", id.String())
}

func TestGenerateTruncatesRightmostFirst(t *testing.T) {
	g := New(pattern.Default()).WithMaxLength(30)

	key := string(g.Generate("acme.com", "HX-2210", "PO 123456789012345678"))
	assert.LessOrEqual(t, len(key), 30)
	assert.True(t, strings.HasPrefix(key, "acme-com-hx-2210-"), key)
	assert.Equal(t, key, string(g.Generate("acme.com", "HX-2210", "PO 123456789012345678")))
}

func TestGenerateTruncationAvoidsCollisions(t *testing.T) {
	g := New(pattern.Default()).WithMaxLength(30)

	a := g.Generate("acme.com", "ABCDEFGHIJKLMNOPQRSTUVWXY1", "")
	b := g.Generate("acme.com", "ABCDEFGHIJKLMNOPQRSTUVWXY2", "")
	assert.LessOrEqual(t, len(a), 30)
	assert.LessOrEqual(t, len(b), 30)
	assert.NotEqual(t, a, b)
}

func TestExternalID(t *testing.T) {
	g := New(pattern.Default())

	id, ok := g.ExternalID("Ref: DMR-2023/0042")
	require.True(t, ok)
	assert.Equal(t, ExternalID{Kind: "dmr", Value: "2023-0042"}, id)
	assert.Equal(t, "dmr-2023-0042", id.String())

	_, ok = g.ExternalID("no identifiers in here")
	assert.False(t, ok)
}

func TestNormalizeComponent(t *testing.T) {
	assert.Equal(t, "a-b-c", normalizeComponent("--A__b..C--"))
	assert.Equal(t, "", normalizeComponent("!!!"))
}

func TestResolvePartNumber(t *testing.T) {
	lib, err := pattern.New(pattern.Overrides{MasterParts: []string{"AB-55501"}})
	require.NoError(t, err)
	r := NewPartResolver(lib)

	tests := []struct {
		name       string
		subject    string
		reply      string
		tail       string
		suggested  string
		want       string
		wantSource PartSource
	}{
		{"labelled in subject", "P/N HX-2210 defect", "", "", "", "HX-2210", PartFromText},
		{"master beats plain", "Part: XY-12345", "also PN AB-55501", "", "", "AB-55501", PartFromMaster},
		{"reply beats tail", "defect", "see P/N HX-2210", "P/N ZZ-99999", "", "HX-2210", PartFromText},
		{"tail fallback", "defect", "see below", "P/N ZZ-99999.", "", "ZZ-99999", PartFromText},
		{"classifier suggestion present in text", "defect", "the hx2210 housing cracked", "", "HX-2210", "HX-2210", PartFromClassifier},
		{"classifier suggestion in master", "defect", "housing cracked", "", "ab-55501", "ab-55501", PartFromClassifier},
		{"invented suggestion ignored", "defect", "housing cracked", "", "QQ-11111", domain.MissingPartNumber, PartMissing},
		{"nothing", "defect", "", "", "", domain.MissingPartNumber, PartMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.subject, tt.reply, tt.tail, tt.suggested)
			assert.Equal(t, tt.want, got.Display)
			assert.Equal(t, tt.wantSource, got.Source)
			if tt.wantSource == PartMissing {
				assert.Empty(t, got.Normalized)
			} else {
				assert.Equal(t, pattern.NormalizePartNumber(tt.want), got.Normalized)
			}
		})
	}
}
