// Package syncer runs one synchronisation: fetch every resource, aggregate
// the records, then patch every configured language file.
//
// Fetching and aggregation are all-or-nothing: any failure aborts the run
// before a single file is opened. Once aggregation has succeeded, files are
// patched one after another and a failure on one file is reported without
// stopping the others.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/minios-linux/lingosync/arbfile"
	"github.com/minios-linux/lingosync/config"
	"github.com/minios-linux/lingosync/langdata"
	"github.com/minios-linux/lingosync/lockfile"
	"github.com/minios-linux/lingosync/marker"
	"github.com/minios-linux/lingosync/render"
)

// Fetcher returns the raw body of an API path. *lingo.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, apiPath string) ([]byte, error)
}

// Options configures a run.
type Options struct {
	Config *config.LingoConfig
	// APIPath is used for every resource without its own path.
	APIPath string
	// Root is the project root the language file paths are relative to.
	Root    string
	Fetcher Fetcher

	// Lock, if set, is compared against and updated with what was written.
	// The caller saves it.
	Lock *lockfile.LockFile
	// DryRun renders and rewrites every file into io.Discard, so missing
	// files and marker problems are still reported, but writes nothing.
	DryRun bool
	// Strict refuses to commit a file whose marker region is unterminated.
	Strict bool
	// ChunkSize is the read size used when streaming files (0 = default).
	ChunkSize int
	// Init creates missing language files from the configured skeleton
	// before patching. It is ignored in a dry run.
	Init bool

	// ARBPrefix selects the keys exported to ARB files and is stripped
	// from them. Only used when Config.ARB is set.
	ARBPrefix string
	// ARBLocales, if not empty, limits the ARB export to these locales.
	ARBLocales []string

	// OnLog emits progress messages.
	OnLog func(format string, args ...any)
	// OnWarning emits non-fatal diagnostics.
	OnWarning func(format string, args ...any)
	// OnError emits per-file failures.
	OnError func(format string, args ...any)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) warn(format string, args ...any) {
	if o.OnWarning != nil {
		o.OnWarning(format, args...)
	} else {
		o.log(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else {
		o.log(format, args...)
	}
}

// FileReport is the result of patching one target file.
type FileReport struct {
	Target  config.Target
	Outcome marker.Outcome
	// Lines is the number of translation lines rendered for the file.
	Lines int
	// Regions is the number of marker regions rewritten.
	Regions      int
	Unterminated bool
	// Changed and Removed are keys differing from the lock file; they are
	// only filled when Options.Lock is set.
	Changed []string
	Removed []string
	Err     error
}

// ExportReport is the result of writing one ARB file.
type ExportReport struct {
	Code   string
	Locale string
	Path   string
	// Keys is the number of messages written, Meta the number of "@key"
	// entries carried over from the previous file.
	Keys int
	Meta int
	// Skipped is set for locales outside Options.ARBLocales.
	Skipped bool
	Err     error
}

// Report summarises a run.
type Report struct {
	Resources int
	Keys      int
	Languages []string
	// Created lists the language files created from the skeleton.
	Created []string
	Files   []FileReport
	// Pruned lists lock targets dropped because no language file uses
	// them any more.
	Pruned  []string
	Exports []ExportReport
}

// Failed returns the number of files that could not be patched or exported.
func (r *Report) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Err != nil || f.Outcome == marker.NotFound {
			n++
		}
	}
	for _, e := range r.Exports {
		if e.Err != nil {
			n++
		}
	}
	return n
}

// Fetch issues one request per resource, strictly in configured order, and
// returns the bodies in the same order.
func Fetch(ctx context.Context, f Fetcher, resources []config.Resource, apiPath string) ([][]byte, error) {
	bodies := make([][]byte, 0, len(resources))
	for i, res := range resources {
		path := apiPath
		if res.Path != "" {
			path = res.Path
		}
		body, err := f.Fetch(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("resource #%d: %w", i+1, err)
		}
		bodies = append(bodies, body)
	}
	return bodies, nil
}

// Run performs a full sync. The returned error is non-nil only for fatal
// failures (config, fetch, aggregation); per-file failures are recorded in
// the report.
func Run(ctx context.Context, opts Options) (*Report, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("no configuration")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("no fetcher")
	}

	opts.log("Fetching %d resource(s) from %s", len(cfg.Resources), cfg.Hostname)
	bodies, err := Fetch(ctx, opts.Fetcher, cfg.Resources, opts.APIPath)
	if err != nil {
		return nil, err
	}

	data, err := langdata.Aggregate(bodies, cfg.DataPaths())
	if err != nil {
		return nil, err
	}

	report := &Report{
		Resources: len(bodies),
		Keys:      data.Keys(),
		Languages: data.Languages(),
	}
	opts.log("Aggregated %d keys in %d language(s)", report.Keys, len(report.Languages))

	targets := cfg.Targets(opts.Root)
	if opts.Init && !opts.DryRun {
		created, err := CreateMissing(targets, cfg.FileConfig.SkeletonContent())
		report.Created = created
		for _, p := range created {
			opts.log("Created %s", p)
		}
		if err != nil {
			return report, err
		}
	}

	rules := cfg.Rules()
	tags := cfg.Tags()
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Files = append(report.Files, patchTarget(target, data, cfg.FileConfig.Template, rules, tags, &opts))
	}

	if opts.Lock != nil && !opts.DryRun {
		report.Pruned = pruneLock(opts.Lock, targets)
		for _, t := range report.Pruned {
			opts.log("Dropped %s from the lock file", t)
		}
	}

	if cfg.ARB != nil {
		for _, code := range cfg.Codes() {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.Exports = append(report.Exports, exportARB(code, data, cfg.ARB, &opts))
		}
	}
	return report, nil
}

// pruneLock removes lock targets that are not among targets and returns
// them.
func pruneLock(lock *lockfile.LockFile, targets []config.Target) []string {
	keep := make(map[string]bool, len(targets))
	for _, t := range targets {
		keep[lockfile.TargetKey(t.Path)] = true
	}
	var pruned []string
	for _, key := range lock.Targets() {
		if !keep[key] {
			lock.RemoveTarget(key)
			pruned = append(pruned, key)
		}
	}
	return pruned
}

// CreateMissing writes skeleton to every target that does not exist yet,
// creating parent directories. Existing files are never touched. It returns
// the configured paths of the files it created.
func CreateMissing(targets []config.Target, skeleton string) ([]string, error) {
	var created []string
	for _, t := range targets {
		if _, err := os.Stat(t.AbsPath); err == nil || !errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(t.AbsPath), 0755); err != nil {
			return created, fmt.Errorf("mkdir %s: %w", filepath.Dir(t.AbsPath), err)
		}
		f, err := os.OpenFile(t.AbsPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return created, fmt.Errorf("creating %s: %w", t.AbsPath, err)
		}
		_, werr := f.WriteString(skeleton)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return created, fmt.Errorf("writing %s: %w", t.AbsPath, werr)
		}
		created = append(created, t.Path)
	}
	return created, nil
}

// exportARB writes one language's translations to its ARB file, keeping the
// "@key" metadata of the file it replaces.
func exportARB(code string, data *langdata.LanguageData, arb *config.ARBConfig, opts *Options) ExportReport {
	locale := arb.Locale(code)
	er := ExportReport{Code: code, Locale: locale, Path: arb.Path(opts.Root, locale)}
	if len(opts.ARBLocales) > 0 && !slices.Contains(opts.ARBLocales, locale) {
		er.Skipped = true
		return er
	}

	translations, _ := data.Translations(code)
	f := arbfile.FromTranslations(translations, locale, opts.ARBPrefix)
	er.Keys = f.Len()

	if prev, err := arbfile.ParseFile(er.Path); err == nil {
		er.Meta = f.KeepMeta(prev)
	} else if !errors.Is(err, os.ErrNotExist) {
		opts.warn("%v; metadata not kept", err)
	}

	if opts.DryRun {
		return er
	}
	if err := f.WriteFile(er.Path); err != nil {
		er.Err = err
		opts.logError("%v", err)
	}
	return er
}

func patchTarget(target config.Target, data *langdata.LanguageData, template string, rules render.Rules, tags marker.Tags, opts *Options) FileReport {
	fr := FileReport{Target: target}

	translations, ok := data.Translations(target.Code)
	if !ok {
		opts.warn("No translations for language %q (%s)", target.Code, target.Path)
	}
	content := render.Render(translations, template, rules)
	fr.Lines = translations.Len()

	lockKey := lockfile.TargetKey(target.Path)
	if opts.Lock != nil {
		fr.Changed = opts.Lock.FilterChanged(lockKey, translations.Map())
		fr.Removed = opts.Lock.Stale(lockKey, translations.Keys())
	}

	apply := marker.Patch
	if opts.DryRun {
		apply = marker.Preview
	}
	res, err := apply(target.AbsPath, content, tags,
		marker.WithChunkSize(opts.ChunkSize),
		marker.WithStrict(opts.Strict),
	)
	fr.Outcome = res.Outcome
	fr.Regions = res.Regions
	fr.Unterminated = res.Unterminated

	switch {
	case err != nil:
		fr.Err = err
		opts.logError("%v", err)
		return fr
	case res.Outcome == marker.NotFound:
		opts.logError("File not found: %s", target.AbsPath)
		return fr
	}

	if res.Unterminated {
		opts.warn("%s: %q has no matching %q; content after it was dropped", target.Path, tags.Start, tags.End)
	} else if res.Regions == 0 {
		opts.warn("%s: no %q ... %q region found", target.Path, tags.Start, tags.End)
	}

	if opts.Lock != nil && !opts.DryRun {
		opts.Lock.Replace(lockKey, translations.Map())
	}
	return fr
}
