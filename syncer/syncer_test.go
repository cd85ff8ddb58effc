package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/lingosync/config"
	"github.com/minios-linux/lingosync/langdata"
	"github.com/minios-linux/lingosync/lingo"
	"github.com/minios-linux/lingosync/lockfile"
	"github.com/minios-linux/lingosync/marker"
	"github.com/minios-linux/lingosync/render"
)

const (
	respMain = `{"code": 200, "data": [
	  {"key": "hello", "longest_language": "de", "languages": [{"code": "en", "value": "Hello"}, {"code": "de", "value": "Hallo"}]},
	  {"key": "bye", "longest_language": "en", "languages": [{"code": "en", "value": "Bye"}]}
	]}`
	respExtra = `{"code": 200, "result": {"items": [
	  {"key": "bye", "longest_language": "en", "languages": [{"code": "en", "value": "Goodbye"}]}
	]}}`
	fileBody = "export default {\n  // lingo-start\n  stale: 'x',\n  // lingo-end\n};\n"
)

// fakeFetcher answers by API path and records the call order.
type fakeFetcher struct {
	bodies map[string]string
	errs   map[string]error
	calls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, apiPath string) ([]byte, error) {
	f.calls = append(f.calls, apiPath)
	if err := f.errs[apiPath]; err != nil {
		return nil, err
	}
	body, ok := f.bodies[apiPath]
	if !ok {
		return nil, fmt.Errorf("unexpected path %s", apiPath)
	}
	return []byte(body), nil
}

func newConfig(files ...config.LanguageFile) *config.LingoConfig {
	return &config.LingoConfig{
		Hostname: "lingo.test",
		Port:     80,
		FileConfig: config.FileConfig{
			Template: "  {{key}}: '{{value}}',",
			StartTag: "// lingo-start",
			EndTag:   "// lingo-end",
		},
		LanguageFiles: files,
		Resources: []config.Resource{
			{Path: "/main"},
			{Path: "/extra", DataPath: "result.items"},
		},
	}
}

func newFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: map[string]string{"/main": respMain, "/extra": respExtra}}
}

func writeTarget(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRunPatchesEveryTarget(t *testing.T) {
	root := t.TempDir()
	en := writeTarget(t, root, "src/en.js", fileBody)
	enAdmin := writeTarget(t, root, "admin/en.js", fileBody)
	de := writeTarget(t, root, "src/de.js", fileBody)

	f := newFetcher()
	report, err := Run(context.Background(), Options{
		Config: newConfig(
			config.LanguageFile{Code: "en", Path: "src/en.js", Paths: []string{"admin/en.js"}},
			config.LanguageFile{Code: "de", Path: "src/de.js"},
		),
		Root:    root,
		Fetcher: f,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"/main", "/extra"}, f.calls, "resources are fetched in order")
	assert.Equal(t, 2, report.Resources)
	assert.Equal(t, 2, report.Keys)
	assert.Equal(t, []string{"en", "de"}, report.Languages)
	require.Len(t, report.Files, 3)
	assert.Equal(t, "src/en.js", report.Files[0].Target.Path)
	assert.Equal(t, "admin/en.js", report.Files[1].Target.Path)
	assert.Equal(t, 0, report.Failed())

	wantEN := "export default {\n  // lingo-start\n  hello: 'Hello',\n  bye: 'Goodbye',\n  // lingo-end\n};\n"
	assert.Equal(t, wantEN, read(t, en))
	assert.Equal(t, wantEN, read(t, enAdmin))
	assert.Equal(t, "export default {\n  // lingo-start\n  hello: 'Hallo',\n  // lingo-end\n};\n", read(t, de))

	for _, fr := range report.Files {
		assert.Equal(t, marker.Modified, fr.Outcome)
		assert.Equal(t, 1, fr.Regions)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	root := t.TempDir()
	en := writeTarget(t, root, "en.js", fileBody)
	opts := Options{
		Config:  newConfig(config.LanguageFile{Code: "en", Path: "en.js"}),
		Root:    root,
		Fetcher: newFetcher(),
	}

	_, err := Run(context.Background(), opts)
	require.NoError(t, err)
	first := read(t, en)

	_, err = Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, first, read(t, en))
}

func TestRunMissingLanguage(t *testing.T) {
	root := t.TempDir()
	fr := writeTarget(t, root, "fr.js", fileBody)

	var warnings []string
	report, err := Run(context.Background(), Options{
		Config:    newConfig(config.LanguageFile{Code: "fr", Path: "fr.js"}),
		Root:      root,
		Fetcher:   newFetcher(),
		OnWarning: func(format string, args ...any) { warnings = append(warnings, fmt.Sprintf(format, args...)) },
	})
	require.NoError(t, err)

	require.Len(t, report.Files, 1)
	assert.Equal(t, marker.Unmodified, report.Files[0].Outcome)
	assert.Equal(t, 0, report.Files[0].Lines)
	assert.Equal(t, "export default {\n  // lingo-start\n  // lingo-end\n};\n", read(t, fr))
	assert.NotEmpty(t, warnings)
}

func TestRunFetchFailureTouchesNothing(t *testing.T) {
	root := t.TempDir()
	en := writeTarget(t, root, "en.js", fileBody)

	f := newFetcher()
	f.errs = map[string]error{"/extra": errors.New("connection refused")}

	_, err := Run(context.Background(), Options{
		Config:  newConfig(config.LanguageFile{Code: "en", Path: "en.js"}),
		Root:    root,
		Fetcher: f,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource #2")
	assert.Equal(t, fileBody, read(t, en))
}

func TestRunAggregationFailureTouchesNothing(t *testing.T) {
	root := t.TempDir()
	en := writeTarget(t, root, "en.js", fileBody)

	f := newFetcher()
	f.bodies["/extra"] = `{"code": 200, "result": {}}`

	_, err := Run(context.Background(), Options{
		Config:  newConfig(config.LanguageFile{Code: "en", Path: "en.js"}),
		Root:    root,
		Fetcher: f,
	})
	var pe *langdata.PathError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, fileBody, read(t, en))
}

func TestRunIsolatesFileFailures(t *testing.T) {
	root := t.TempDir()
	de := writeTarget(t, root, "de.js", fileBody)

	var errs []string
	report, err := Run(context.Background(), Options{
		Config: newConfig(
			config.LanguageFile{Code: "en", Path: "missing/en.js"},
			config.LanguageFile{Code: "de", Path: "de.js"},
		),
		Root:    root,
		Fetcher: newFetcher(),
		OnError: func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) },
	})
	require.NoError(t, err)

	require.Len(t, report.Files, 2)
	assert.Equal(t, marker.NotFound, report.Files[0].Outcome)
	assert.Equal(t, marker.Modified, report.Files[1].Outcome)
	assert.Equal(t, 1, report.Failed())
	assert.Len(t, errs, 1)
	assert.Contains(t, read(t, de), "hello: 'Hallo',")
}

func TestRunStrictUnterminated(t *testing.T) {
	root := t.TempDir()
	broken := "a\n// lingo-start\nold\n"
	en := writeTarget(t, root, "en.js", broken)

	report, err := Run(context.Background(), Options{
		Config:  newConfig(config.LanguageFile{Code: "en", Path: "en.js"}),
		Root:    root,
		Fetcher: newFetcher(),
		Strict:  true,
	})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.ErrorIs(t, report.Files[0].Err, marker.ErrUnterminatedMarker)
	assert.True(t, report.Files[0].Unterminated)
	assert.Equal(t, broken, read(t, en))
}

func TestRunUnterminatedWarns(t *testing.T) {
	root := t.TempDir()
	en := writeTarget(t, root, "en.js", "a\n// lingo-start\nold\n")

	var warnings []string
	report, err := Run(context.Background(), Options{
		Config:    newConfig(config.LanguageFile{Code: "en", Path: "en.js"}),
		Root:      root,
		Fetcher:   newFetcher(),
		OnWarning: func(format string, args ...any) { warnings = append(warnings, fmt.Sprintf(format, args...)) },
	})
	require.NoError(t, err)
	assert.True(t, report.Files[0].Unterminated)
	assert.Equal(t, "a\n// lingo-start\n", read(t, en))
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "no matching")
}

func TestRunDryRun(t *testing.T) {
	root := t.TempDir()
	en := writeTarget(t, root, "en.js", fileBody)

	report, err := Run(context.Background(), Options{
		Config:  newConfig(config.LanguageFile{Code: "en", Path: "en.js"}),
		Root:    root,
		Fetcher: newFetcher(),
		DryRun:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, marker.Modified, report.Files[0].Outcome)
	assert.Equal(t, 2, report.Files[0].Lines)
	assert.Equal(t, fileBody, read(t, en))
}

func TestRunWithLock(t *testing.T) {
	root := t.TempDir()
	writeTarget(t, root, "en.js", fileBody)

	lock, err := lockfile.Load(root)
	require.NoError(t, err)
	lock.Replace("en.js", map[string]string{"hello": "Hello", "bye": "Bye", "old": "Old"})

	report, err := Run(context.Background(), Options{
		Config:  newConfig(config.LanguageFile{Code: "en", Path: "en.js"}),
		Root:    root,
		Fetcher: newFetcher(),
		Lock:    lock,
	})
	require.NoError(t, err)

	fr := report.Files[0]
	assert.Equal(t, []string{"bye"}, fr.Changed)
	assert.Equal(t, []string{"old"}, fr.Removed)
	assert.Equal(t, 2, lock.Keys("en.js"))
	assert.Empty(t, lock.FilterChanged("en.js", map[string]string{"hello": "Hello", "bye": "Goodbye"}))
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	en := writeTarget(t, root, "en.js", fileBody)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, Options{
		Config:  newConfig(config.LanguageFile{Code: "en", Path: "en.js"}),
		Root:    root,
		Fetcher: newFetcher(),
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, fileBody, read(t, en))
}

func TestRunAgainstHTTPServer(t *testing.T) {
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/lingo":
			w.Write([]byte(respMain))
		default:
			w.Write([]byte(`{"code": 403, "message": "forbidden project"}`))
		}
	}))
	defer srv.Close()

	root := t.TempDir()
	en := writeTarget(t, root, "en.js", fileBody)
	cfg := newConfig(config.LanguageFile{Code: "en", Path: "en.js"})
	cfg.Resources = []config.Resource{{}}
	cfg.ValueReplaces = []render.Replace{{From: "'", To: `\'`}}

	_, err := Run(context.Background(), Options{
		Config:  cfg,
		APIPath: "/api/lingo",
		Root:    root,
		Fetcher: lingo.NewClient(srv.URL, 0, "tok", 0),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok"}, auth)
	assert.Contains(t, read(t, en), "hello: 'Hello',")

	cfg.Resources = []config.Resource{{Path: "/other"}}
	_, err = Run(context.Background(), Options{
		Config:  cfg,
		APIPath: "/api/lingo",
		Root:    root,
		Fetcher: lingo.NewClient(srv.URL, 0, "tok", 0),
	})
	var re *langdata.ResponseError
	require.True(t, errors.As(err, &re), "got %v", err)
	assert.Equal(t, "forbidden project", re.Message)
}

func TestRunRequiresConfigAndFetcher(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	assert.Error(t, err)
	_, err = Run(context.Background(), Options{Config: newConfig()})
	assert.Error(t, err)
}

func TestRunDryRunReportsMissingFiles(t *testing.T) {
	root := t.TempDir()
	de := writeTarget(t, root, "de.js", fileBody)

	var errs []string
	report, err := Run(context.Background(), Options{
		Config: newConfig(
			config.LanguageFile{Code: "en", Path: "missing/en.js"},
			config.LanguageFile{Code: "de", Path: "de.js"},
		),
		Root:    root,
		Fetcher: newFetcher(),
		DryRun:  true,
		OnError: func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) },
	})
	require.NoError(t, err)

	require.Len(t, report.Files, 2)
	assert.Equal(t, marker.NotFound, report.Files[0].Outcome)
	assert.Equal(t, marker.Modified, report.Files[1].Outcome)
	assert.Equal(t, 1, report.Files[1].Regions)
	assert.Equal(t, 1, report.Failed())
	assert.Len(t, errs, 1)
	assert.Equal(t, fileBody, read(t, de))
	assert.NoFileExists(t, filepath.Join(root, "missing", "en.js"))
}

func TestRunDryRunStrictUnterminated(t *testing.T) {
	root := t.TempDir()
	writeTarget(t, root, "en.js", "a\n// lingo-start\nold\n")

	report, err := Run(context.Background(), Options{
		Config:  newConfig(config.LanguageFile{Code: "en", Path: "en.js"}),
		Root:    root,
		Fetcher: newFetcher(),
		DryRun:  true,
		Strict:  true,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, report.Files[0].Err, marker.ErrUnterminatedMarker)
}

func TestRunPrunesLockTargets(t *testing.T) {
	root := t.TempDir()
	writeTarget(t, root, "en.js", fileBody)

	lock, err := lockfile.Load(root)
	require.NoError(t, err)
	lock.Replace("old/de.js", map[string]string{"hello": "Hallo"})

	report, err := Run(context.Background(), Options{
		Config:  newConfig(config.LanguageFile{Code: "en", Path: "en.js"}),
		Root:    root,
		Fetcher: newFetcher(),
		Lock:    lock,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"old/de.js"}, report.Pruned)
	assert.Equal(t, []string{"en.js"}, lock.Targets())
}

func TestRunDryRunKeepsLock(t *testing.T) {
	root := t.TempDir()
	writeTarget(t, root, "en.js", fileBody)

	lock, err := lockfile.Load(root)
	require.NoError(t, err)
	lock.Replace("old/de.js", map[string]string{"hello": "Hallo"})

	report, err := Run(context.Background(), Options{
		Config:  newConfig(config.LanguageFile{Code: "en", Path: "en.js"}),
		Root:    root,
		Fetcher: newFetcher(),
		Lock:    lock,
		DryRun:  true,
	})
	require.NoError(t, err)
	assert.Empty(t, report.Pruned)
	assert.Equal(t, []string{"bye", "hello"}, sorted(report.Files[0].Changed))
	assert.Equal(t, []string{"old/de.js"}, lock.Targets())
}

func sorted(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

func TestRunInitCreatesMissingFiles(t *testing.T) {
	root := t.TempDir()
	de := writeTarget(t, root, "de.js", fileBody)

	report, err := Run(context.Background(), Options{
		Config: newConfig(
			config.LanguageFile{Code: "en", Path: "locales/en.js"},
			config.LanguageFile{Code: "de", Path: "de.js"},
		),
		Root:    root,
		Fetcher: newFetcher(),
		Init:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"locales/en.js"}, report.Created)
	assert.Equal(t, 0, report.Failed())
	want := "let json = {\n// lingo-start\n  hello: 'Hello',\n  bye: 'Goodbye',\n// lingo-end\n}\nexport default json\n"
	assert.Equal(t, want, read(t, filepath.Join(root, "locales", "en.js")))
	assert.Contains(t, read(t, de), "hello: 'Hallo',")
}

func TestRunInitSkippedAfterFetchFailure(t *testing.T) {
	root := t.TempDir()
	f := newFetcher()
	f.errs = map[string]error{"/main": errors.New("timeout")}

	_, err := Run(context.Background(), Options{
		Config:  newConfig(config.LanguageFile{Code: "en", Path: "en.js"}),
		Root:    root,
		Fetcher: f,
		Init:    true,
	})
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(root, "en.js"))
}

func TestCreateMissingKeepsExistingFiles(t *testing.T) {
	root := t.TempDir()
	en := writeTarget(t, root, "en.js", "custom\n")
	cfg := newConfig(config.LanguageFile{Code: "en", Path: "en.js", Paths: []string{"a/b/en.js"}})

	created, err := CreateMissing(cfg.Targets(root), "skeleton\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b/en.js"}, created)
	assert.Equal(t, "custom\n", read(t, en))
	assert.Equal(t, "skeleton\n", read(t, filepath.Join(root, "a", "b", "en.js")))

	created, err = CreateMissing(cfg.Targets(root), "skeleton\n")
	require.NoError(t, err)
	assert.Empty(t, created)
}

const respPrefixed = `{"code": 200, "data": [
  {"key": "app.title", "languages": [{"code": "en", "value": "<b>Home</b>"}, {"code": "zh_CN", "value": "主页"}, {"code": "de", "value": "Start"}]},
  {"key": "app.count", "languages": [{"code": "en", "value": "{n} items"}]},
  {"key": "web.only", "languages": [{"code": "en", "value": "Web"}]}
]}`

func arbConfig() *config.LingoConfig {
	cfg := newConfig(
		config.LanguageFile{Code: "en", Path: "en.js"},
		config.LanguageFile{Code: "zh_CN", Path: "zh.js"},
		config.LanguageFile{Code: "de", Path: "de.js"},
	)
	cfg.Resources = []config.Resource{{Path: "/main"}}
	cfg.ARB = &config.ARBConfig{}
	return cfg
}

func TestRunExportsARB(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"en.js", "zh.js", "de.js"} {
		writeTarget(t, root, name, fileBody)
	}
	writeTarget(t, root, "assets/translations/intl_en.arb",
		"{\n  \"@@locale\": \"en\",\n  \"count\": \"old\",\n  \"@count\": {\"placeholders\": {\"n\": {}}},\n  \"@gone\": {}\n}\n")

	report, err := Run(context.Background(), Options{
		Config:     arbConfig(),
		Root:       root,
		Fetcher:    &fakeFetcher{bodies: map[string]string{"/main": respPrefixed}},
		ARBPrefix:  "app.",
		ARBLocales: []string{"en", "zh_Hans_CN"},
	})
	require.NoError(t, err)
	require.Len(t, report.Exports, 3)
	assert.Equal(t, 0, report.Failed())

	en := report.Exports[0]
	assert.Equal(t, "en", en.Locale)
	assert.Equal(t, 2, en.Keys)
	assert.Equal(t, 1, en.Meta)
	want := "{\n  \"@@locale\": \"en\",\n  \"title\": \"<b>Home</b>\",\n  \"count\": \"{n} items\",\n" +
		"  \"@count\": {\n    \"placeholders\": {\n      \"n\": {}\n    }\n  }\n}\n"
	assert.Equal(t, want, read(t, en.Path))

	zh := report.Exports[1]
	assert.Equal(t, "zh_Hans_CN", zh.Locale)
	assert.Equal(t, filepath.Join(root, "assets", "translations", "intl_zh_Hans_CN.arb"), zh.Path)
	assert.Equal(t, "{\n  \"@@locale\": \"zh_Hans_CN\",\n  \"title\": \"主页\"\n}\n", read(t, zh.Path))

	de := report.Exports[2]
	assert.True(t, de.Skipped)
	assert.NoFileExists(t, de.Path)
}

func TestRunExportDryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"en.js", "zh.js", "de.js"} {
		writeTarget(t, root, name, fileBody)
	}

	report, err := Run(context.Background(), Options{
		Config:  arbConfig(),
		Root:    root,
		Fetcher: &fakeFetcher{bodies: map[string]string{"/main": respPrefixed}},
		DryRun:  true,
	})
	require.NoError(t, err)
	require.Len(t, report.Exports, 3)
	assert.Equal(t, 3, report.Exports[0].Keys)
	assert.NoDirExists(t, filepath.Join(root, "assets"))
}
