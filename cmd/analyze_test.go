// File: cmd/analyze_test.go
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/config"
)

func TestIsJavaScriptFile(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"app.js", true},
		{"worker.mjs", true},
		{"legacy.cjs", true},
		{"view.jsx", true},
		{"bundle.min.js", false},
		{"styles.css", false},
		{"package.json", false},
		{"README.md", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isJavaScriptFile(tc.name), tc.name)
	}
}

func TestCollectSources(t *testing.T) {
	root := t.TempDir()
	write := func(rel string) string {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("// stub\n"), 0o600))
		return path
	}

	app := write("app.js")
	write("lib/util.mjs")
	write("package.json")
	write("node_modules/express/index.js")
	write("dist/bundle.js")
	write("vendor/lodash.js")
	write("assets/bundle.min.js")
	write("README.md")

	// Passing an overlapping explicit file must not double-count it.
	sources, manifests, err := collectSources([]string{root, app})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{app, filepath.Join(root, "lib/util.mjs")}, sources)
	assert.Equal(t, []string{filepath.Join(root, "package.json")}, manifests)
}

func TestCollectSourcesMissingTarget(t *testing.T) {
	_, _, err := collectSources([]string{filepath.Join(t.TempDir(), "absent")})
	assert.Error(t, err)
}

func TestBuildRuleSet(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("Builtin Catalog", func(t *testing.T) {
		set, err := buildRuleSet(logger, config.RulesConfig{}, nil, false)
		require.NoError(t, err)
		assert.Greater(t, set.Sources.Len(), 0)
		assert.Greater(t, set.Sinks.Len(), 0)
		assert.Greater(t, set.Sanitizers.Len(), 0)
	})

	t.Run("No Builtin", func(t *testing.T) {
		set, err := buildRuleSet(logger, config.RulesConfig{}, nil, true)
		require.NoError(t, err)
		assert.Zero(t, set.Sources.Len())
	})

	t.Run("Extra File Layered", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "extra.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - id: src.custom.feed
    pattern:
      kind: qualified_name
      qualified_name: feed.data
    label: user_input
`), 0o600))

		set, err := buildRuleSet(logger, config.RulesConfig{}, []string{path}, false)
		require.NoError(t, err)

		found := false
		for _, r := range set.Sources.All() {
			if r.ID == "src.custom.feed" {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("Missing File", func(t *testing.T) {
		_, err := buildRuleSet(logger, config.RulesConfig{}, []string{"/no/such/rules.yaml"}, false)
		assert.Error(t, err)
	})
}

func TestScopeOf(t *testing.T) {
	assert.Equal(t, "[generic]", scopeOf("", ""))
	assert.Equal(t, "[javascript]", scopeOf("javascript", ""))
	assert.Equal(t, "[javascript/express]", scopeOf("javascript", "express"))
}

func TestDetectFrameworksOverride(t *testing.T) {
	logger := zaptest.NewLogger(t)
	detected := detectFrameworks(logger, []string{"koa"}, nil, nil)
	assert.Equal(t, []string{"koa"}, detected)
}

func TestAnalyzeCmdEndToEnd(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "handler.js")
	require.NoError(t, os.WriteFile(src, []byte(`
function handler(req, res) {
  const name = req.query.name;
  db.query(name);
}
`), 0o600))
	outFile := filepath.Join(dir, "report.json")

	rootCmd := NewRootCommand()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"analyze", dir, "--format", "json", "--output", outFile})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	raw, err := os.ReadFile(outFile)
	require.NoError(t, err)

	var report struct {
		Tool  string              `json:"tool"`
		Flows []schemas.TaintFlow `json:"flows"`
	}
	require.NoError(t, json.Unmarshal(raw, &report))
	require.Len(t, report.Flows, 1)
	assert.Equal(t, "req.query", report.Flows[0].Source.Expression)
	assert.Equal(t, schemas.RiskCritical, report.Flows[0].Risk)
}

func TestAnalyzeCmdNoSources(t *testing.T) {
	rootCmd := NewRootCommand()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"analyze", t.TempDir()})

	err := rootCmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no JavaScript sources")
}
