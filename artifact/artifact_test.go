package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/flowkeeper/idgen"
	"github.com/hazyhaar/flowkeeper/sanitize"
)

func loginEvents() []sanitize.RawEvent {
	return []sanitize.RawEvent{
		{"type": "navigation", "url": "https://app.example.com/login", "timestamp": 1700000000},
		{"type": "input", "selector": " #username ", "value": "alice", "timestamp": 1700000001},
		{"type": "input", "selector": "#password", "value": "hunter2", "timestamp": 1700000002},
		{"type": "click", "selector": "button[type=submit]", "text": "Sign in", "timestamp": 1700000003},
	}
}

func fixedAssembler() Assembler {
	return Assembler{
		Clock:  func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) },
		Suffix: idgen.Fixed("deadbeef"),
	}
}

func TestPrepare_LoginFlow(t *testing.T) {
	p, err := fixedAssembler().Prepare(loginEvents(), Options{FlowName: "login", User: "qa"})
	require.NoError(t, err)

	require.Len(t, p.Artifact.Steps, 4)
	assert.Equal(t, sanitize.RedactionMarker, p.Artifact.Steps[1].Value)
	assert.Equal(t, "#username", p.Artifact.Steps[1].Selector)
	assert.Nil(t, p.Artifact.URL)

	assert.Len(t, p.Hash, 64)
	assert.Equal(t, "flow::login::"+p.Hash[:8], p.DocID)
	assert.Equal(t, p.DocID, p.Metadata.ID)
	require.NotNil(t, p.Metadata.Hash)
	assert.Equal(t, p.Hash, *p.Metadata.Hash)
	assert.Equal(t, []string{"#password"}, p.MaskedSelectors())
	assert.True(t, p.Metadata.Redaction)
	assert.Equal(t, DefaultSourceType, p.Metadata.SourceType)
	assert.Equal(t, DefaultOrigin, p.Metadata.Origin)
	assert.Equal(t, "2025-01-02T03:04:05Z", p.Metadata.Timestamp)

	assert.NotContains(t, p.Canonical, "timestamp")
	assert.NotContains(t, p.Canonical, "hunter2")
	assert.Contains(t, p.Canonical, `"recorded_by":"qa"`)
	assert.NotContains(t, p.Canonical, `"url":null`)
}

func TestPrepare_IDStability(t *testing.T) {
	a, err := Prepare(loginEvents(), Options{FlowName: "login"})
	require.NoError(t, err)
	b, err := Prepare(loginEvents(), Options{FlowName: "login"})
	require.NoError(t, err)
	assert.Equal(t, a.DocID, b.DocID)
	assert.Equal(t, a.Canonical, b.Canonical)

	renamed, err := Prepare(loginEvents(), Options{FlowName: "signin"})
	require.NoError(t, err)
	assert.NotEqual(t, a.DocID, renamed.DocID)

	changedSelector := loginEvents()
	changedSelector[3]["selector"] = "button#login"
	c, err := Prepare(changedSelector, Options{FlowName: "login"})
	require.NoError(t, err)
	assert.NotEqual(t, a.DocID, c.DocID)

	// Values are redacted before hashing: a different secret alone does
	// not change identity, but a value appearing where there was none does.
	newValue := loginEvents()
	newValue[3]["value"] = "x"
	d, err := Prepare(newValue, Options{FlowName: "login"})
	require.NoError(t, err)
	assert.NotEqual(t, a.DocID, d.DocID)
}

func TestPrepare_ValueChangesIDUnderSensitiveMode(t *testing.T) {
	base := []sanitize.RawEvent{{"type": "input", "selector": "#city", "value": "Paris"}}
	other := []sanitize.RawEvent{{"type": "input", "selector": "#city", "value": "Lyon"}}

	a, err := Prepare(base, Options{FlowName: "f", Mode: sanitize.RedactSensitive})
	require.NoError(t, err)
	b, err := Prepare(other, Options{FlowName: "f", Mode: sanitize.RedactSensitive})
	require.NoError(t, err)
	assert.NotEqual(t, a.DocID, b.DocID)
}

func TestPrepare_UnnamedFlowUsesSuffix(t *testing.T) {
	p, err := fixedAssembler().Prepare(loginEvents(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "flow::unnamed::deadbeef", p.DocID)
	assert.Nil(t, p.Artifact.FlowName)

	random, err := Prepare(loginEvents(), Options{})
	require.NoError(t, err)
	suffix := strings.TrimPrefix(random.DocID, "flow::unnamed::")
	assert.Len(t, suffix, 8)
}

func TestPrepare_CustomSensitive(t *testing.T) {
	events := []sanitize.RawEvent{{"selector": "#iban", "value": "FR76"}}
	p, err := Prepare(events, Options{FlowName: "pay", CustomSensitive: []string{"IBAN"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"#iban"}, p.MaskedSelectors())
}

func TestStableDocID_ShortHash(t *testing.T) {
	assert.Equal(t, "flow::x::abc", StableDocID("x", "abc", idgen.Fixed("z")))
}

func TestSafeFileName(t *testing.T) {
	cases := map[string]string{
		"login":           "login",
		"checkout flow/2": "checkout_flow_2-5ffdd9d8",
		"a_b":             "a_b",
		"a/b":             "a_b-c14cddc0",
		"":                "unnamed",
		"..":              "unnamed",
		"a::chunk_1":      "a__chunk_1-503419a1",
	}
	for in, want := range cases {
		assert.Equal(t, want, SafeFileName(in), in)
	}
}

func TestWriteFlowFile_DistinctNamesDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	p1, err := WriteFlowFile(dir, FlowFile{FlowName: "a/b", Source: "workflow_recorder"})
	require.NoError(t, err)
	p2, err := WriteFlowFile(dir, FlowFile{FlowName: "a_b", Source: "workflow_recorder"})
	require.NoError(t, err)
	require.NotEqual(t, p1, p2)

	f, err := ReadFlowFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "a/b", f.FlowName)
}

func TestWriteFlowFile_Overwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "flows")
	p, err := Prepare(loginEvents(), Options{FlowName: "login"})
	require.NoError(t, err)

	path, err := WriteFlowFile(dir, FlowFile{FlowName: "login", Source: "recorder", Steps: p.Artifact.Steps})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "login.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"<REDACTED>"`)
	assert.NotContains(t, string(raw), "hunter2")

	_, err = WriteFlowFile(dir, FlowFile{FlowName: "login", Source: "recorder", Steps: p.Artifact.Steps[:1]})
	require.NoError(t, err)
	f, err := ReadFlowFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Steps, 1)
	assert.Equal(t, "recorder", f.Source)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
