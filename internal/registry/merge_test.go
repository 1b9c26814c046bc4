package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeExtra(t *testing.T, d Descriptor) map[string]any {
	t.Helper()
	var extra map[string]any
	require.NoError(t, json.Unmarshal(d[FieldExtra], &extra))
	return extra
}

func TestMarkStatic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		descriptor   Descriptor
		wantExtra    map[string]any
		wantReplaced bool
	}{
		{
			name:       "no extra creates marker object",
			descriptor: NewTestDescriptor("static/pkg", "1.0.0"),
			wantExtra:  map[string]any{"_source": "static"},
		},
		{
			name:       "null extra creates marker object",
			descriptor: NewTestDescriptor("static/pkg", "1.0.0", WithRawField("extra", "null")),
			wantExtra:  map[string]any{"_source": "static"},
		},
		{
			name:       "existing extra keeps its keys",
			descriptor: NewTestDescriptor("static/pkg", "1.0.0", WithExtra(map[string]any{"branch-alias": "1.x"})),
			wantExtra:  map[string]any{"branch-alias": "1.x", "_source": "static"},
		},
		{
			name:       "colliding marker key is prefixed",
			descriptor: NewTestDescriptor("static/pkg", "1.0.0", WithExtra(map[string]any{"_source": "mine"})),
			wantExtra:  map[string]any{"_source": "mine", "__source": "static"},
		},
		{
			name: "prefixing repeats until the key is unused",
			descriptor: NewTestDescriptor("static/pkg", "1.0.0", WithExtra(map[string]any{
				"_source":  "a",
				"__source": "b",
			})),
			wantExtra: map[string]any{"_source": "a", "__source": "b", "___source": "static"},
		},
		{
			name:         "non-object extra is replaced",
			descriptor:   NewTestDescriptor("static/pkg", "1.0.0", WithRawField("extra", `"text"`)),
			wantExtra:    map[string]any{"_source": "static"},
			wantReplaced: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			before := tt.descriptor.Clone()
			marked, replaced, err := MarkStatic(tt.descriptor)
			require.NoError(t, err)

			assert.Equal(t, tt.wantReplaced, replaced)
			assert.Equal(t, tt.wantExtra, decodeExtra(t, marked))
			assert.Equal(t, before, tt.descriptor, "input must not be modified")
		})
	}
}

func TestMergeStaticReplacesWholesale(t *testing.T) {
	t.Parallel()

	dynamic := NewTestPackages(
		WithPackage("acme/lib",
			NewTestDescriptor("acme/lib", "dev-main"),
			NewTestDescriptor("acme/lib", "1.0.0"),
		),
		WithPackage("acme/other", NewTestDescriptor("acme/other", "dev-main")),
	)
	static := NewTestPackages(
		WithPackage("acme/lib", NewTestDescriptor("acme/lib", "9.9.9", WithField("description", "curated"))),
		WithPackage("vendor/ext", NewTestDescriptor("vendor/ext", "2.0.0")),
	)

	result, err := MergeStatic(dynamic, static)
	require.NoError(t, err)

	assert.Equal(t, []string{"acme/lib"}, result.Overridden)
	assert.Empty(t, result.ReplacedExtra)

	require.Contains(t, dynamic, "acme/lib")
	assert.Equal(t, []string{"9.9.9"}, dynamic["acme/lib"].Versions(), "dynamic versions must be superseded")
	assert.Equal(t, map[string]any{"_source": "static"}, decodeExtra(t, dynamic["acme/lib"]["9.9.9"]))

	assert.Contains(t, dynamic, "acme/other")
	assert.Equal(t, map[string]any{"_source": "static"}, decodeExtra(t, dynamic["vendor/ext"]["2.0.0"]))

	_, hasExtra := static["acme/lib"]["9.9.9"][FieldExtra]
	assert.False(t, hasExtra, "static input must not be modified")
}

func TestMergeStaticReportsReplacedExtra(t *testing.T) {
	t.Parallel()

	dst := Packages{}
	static := NewTestPackages(
		WithPackage("vendor/ext", NewTestDescriptor("vendor/ext", "1.0", WithRawField("extra", `[1,2]`))),
	)

	result, err := MergeStatic(dst, static)
	require.NoError(t, err)
	assert.Equal(t, []string{"vendor/ext@1.0"}, result.ReplacedExtra)
}

func TestFilterEmpty(t *testing.T) {
	t.Parallel()

	pkgs := NewTestPackages(
		WithPackage("acme/lib", NewTestDescriptor("acme/lib", "dev-main")),
		WithEmptyPackage("acme/empty"),
	)
	pkgs["acme/nil"] = nil

	filtered := FilterEmpty(pkgs)

	assert.Equal(t, []string{"acme/lib"}, filtered.Names())
	assert.Len(t, pkgs, 3, "input must not be modified")
}
