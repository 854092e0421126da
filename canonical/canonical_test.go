package canonical

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/flowkeeper/faults"
)

func TestCanonicalize_PrunesNullAndEmpty(t *testing.T) {
	got, err := Canonicalize(map[string]any{"a": nil, "b": "", "c": "x"})
	require.NoError(t, err)
	assert.Equal(t, `{"c":"x"}`, got)
}

func TestCanonicalize_PreservesListOrder(t *testing.T) {
	got, err := Canonicalize(map[string]any{
		"steps": []any{map[string]any{"x": 2, "b": "y"}, map[string]any{"x": 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"steps":[{"b":"y","x":2},{"x":1}]}`, got)
}

func TestCanonicalize_NestedPruning(t *testing.T) {
	got, err := Canonicalize(map[string]any{
		"meta": map[string]any{"recorded_by": nil, "note": ""},
		"list": []any{"", nil, "z"},
	})
	require.NoError(t, err)
	// Lists keep their elements verbatim; only map entries are pruned.
	assert.Equal(t, `{"list":["",null,"z"],"meta":{}}`, got)
}

func TestCanonicalize_ConstructionOrderIndependent(t *testing.T) {
	a := map[string]any{"z": 1, "a": map[string]any{"q": true, "b": "v"}}
	b := map[string]any{"a": map[string]any{"b": "v", "q": true}, "z": 1}
	ca, err := Canonicalize(a)
	require.NoError(t, err)
	cb, err := Canonicalize(b)
	require.NoError(t, err)
	assert.Equal(t, ca, cb)
}

func TestCanonicalize_NoHTMLEscaping(t *testing.T) {
	got, err := Canonicalize(map[string]any{"value": "<REDACTED>"})
	require.NoError(t, err)
	assert.Equal(t, `{"value":"<REDACTED>"}`, got)
}

func TestCanonicalize_NFC(t *testing.T) {
	decomposed, err := Canonicalize(map[string]any{"name": "cafe\u0301"})
	require.NoError(t, err)
	composed, err := Canonicalize(map[string]any{"name": "caf\u00e9"})
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestCanonicalize_NFCKeyCollision(t *testing.T) {
	in := map[string]any{
		"meta": map[string]any{"caf\u00e9": "composed", "cafe\u0301": "decomposed"},
	}
	for range 50 {
		_, err := Canonicalize(in)
		require.Error(t, err)
		assert.ErrorIs(t, err, faults.ErrMalformedInput)
	}

	// An empty duplicate is pruned before it can collide.
	got, err := Canonicalize(map[string]any{"caf\u00e9": "x", "cafe\u0301": ""})
	require.NoError(t, err)
	assert.Equal(t, "{\"caf\u00e9\":\"x\"}", got)
}

func TestCanonicalize_StructsAndMapsAgree(t *testing.T) {
	type step struct {
		Type     string `json:"type,omitempty"`
		Selector string `json:"selector,omitempty"`
	}
	fromStruct, err := Canonicalize(struct {
		FlowName string `json:"flow_name"`
		Steps    []step `json:"steps"`
		URL      any    `json:"url"`
	}{FlowName: "login", Steps: []step{{Type: "click", Selector: "#go"}}})
	require.NoError(t, err)

	fromMap, err := Canonicalize(map[string]any{
		"steps":     []any{map[string]any{"selector": "#go", "type": "click"}},
		"flow_name": "login",
	})
	require.NoError(t, err)
	assert.Equal(t, fromMap, fromStruct)
}

func TestCanonicalize_Malformed(t *testing.T) {
	_, err := Canonicalize(map[string]any{"f": func() {}})
	require.Error(t, err)
	assert.True(t, faults.IsMalformed(err))

	_, err = Canonicalize(map[string]any{"n": math.NaN()})
	assert.True(t, faults.IsMalformed(err))
}

func TestFromJSON(t *testing.T) {
	got, err := FromJSON([]byte(`{ "b": 2, "a": 1, "c": null }`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, got)

	_, err = FromJSON([]byte(`{`))
	assert.True(t, faults.IsMalformed(err))
}

func TestComputeHash(t *testing.T) {
	// sha256("") is a fixed, well-known vector.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ComputeHash(""))
	h := ComputeHash(`{"c":"x"}`)
	assert.Len(t, h, 64)
	assert.Equal(t, strings.ToLower(h), h)
}

func TestCanonicalize_Golden(t *testing.T) {
	cases := map[string]any{
		"artifact_login": map[string]any{
			"flow_name": "login",
			"url":       nil,
			"meta":      map[string]any{"recorded_by": "alice"},
			"steps": []any{
				map[string]any{"type": "fill", "selector": "#password", "value": "<REDACTED>"},
				map[string]any{"type": "click", "selector": "button.submit", "text": "Log in", "url": ""},
			},
		},
		"nested_numbers": map[string]any{
			"c": true,
			"b": map[string]any{"z": 1, "a": []any{3, 1, 2}, "e": ""},
			"a": 1.5,
		},
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Bytes(in)
			require.NoError(t, err)
			g.Assert(t, name, got)
		})
	}
}

func TestHash_Properties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("hash is deterministic", prop.ForAll(
		func(keys []string, vals []string) bool {
			m := make(map[string]any, len(keys))
			for i, k := range keys {
				if i < len(vals) {
					m[k] = vals[i]
				}
			}
			h1, err1 := Hash(m)
			h2, err2 := Hash(m)
			return err1 == nil && err2 == nil && h1 == h2
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("list order is preserved", prop.ForAll(
		func(xs []int) bool {
			steps := make([]any, len(xs))
			for i, x := range xs {
				steps[i] = map[string]any{"x": x}
			}
			got, err := Canonicalize(map[string]any{"steps": steps})
			if err != nil {
				return false
			}
			var want strings.Builder
			want.WriteString(`{"steps":[`)
			for i, x := range xs {
				if i > 0 {
					want.WriteByte(',')
				}
				want.WriteString(`{"x":`)
				want.WriteString(strconv.Itoa(x))
				want.WriteByte('}')
			}
			want.WriteString(`]}`)
			return got == want.String()
		},
		gen.SliceOf(gen.IntRange(-1000, 1000)),
	))

	properties.TestingRun(t)
}
