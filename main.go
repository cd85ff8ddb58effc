// lingosync — pulls translations from a Lingo server into marked regions of
// per-language source files.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/minios-linux/lingosync/config"
	"github.com/minios-linux/lingosync/i18n"
	"github.com/minios-linux/lingosync/langdata"
	"github.com/minios-linux/lingosync/langmeta"
	"github.com/minios-linux/lingosync/lingo"
	"github.com/minios-linux/lingosync/lockfile"
	"github.com/minios-linux/lingosync/marker"
	"github.com/minios-linux/lingosync/syncer"
	"github.com/spf13/cobra"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
	colorGray   = "\033[0;90m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

func logDebug(format string, args ...any) {
	if !verbose {
		return
	}
	fmt.Fprintf(os.Stderr, colorGray+"[DEBUG]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir    string
	configPath string
	uiLang     string
	verbose    bool
)

// lingoConfigPath returns --config, or lingoconfig.json in the project root.
func lingoConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(rootDir, config.LingoConfigFileName)
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	var a syncArgs

	root := &cobra.Command{
		Use:   "lingosync",
		Short: "Sync Lingo translations into marked regions of source files",
		Long: `lingosync — pulls translation strings from a Lingo server and writes them
between a start tag and an end tag of every configured language file.

Without a subcommand, lingosync runs a sync.

Configuration:
  lingoconfig.json   project root: host, resources, language files, template
  as_i18n.yaml       project root or any parent: lingo.api-path, lingo.token
  LINGO_API_PATH     overrides api-path (also read from .env)
  LINGO_TOKEN        overrides token (also read from .env)
  LINGO_PREFIX       overrides lingo.prefix, the key prefix of the ARB export

Commands:
  sync      Fetch translations and patch language files
  init      Create missing language files from the skeleton
  status    Show configuration, target files and lock state
  version   Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !i18n.Init(uiLang) && uiLang != "" {
				logWarning("No translation for %q (available: %s)", uiLang, strings.Join(i18n.Available(), ", "))
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), a)
		},
	}

	// Global persistent flags — inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to lingoconfig.json (default: <root>/lingoconfig.json)")
	root.PersistentFlags().StringVar(&uiLang, "ui-lang", "", "Language of lingosync's own messages (default: from LANGUAGE/LC_ALL/LANG)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print requests and per-file details")

	addSyncFlags(root, &a)

	root.AddCommand(
		newSyncCmd(),
		newInitCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lingosync version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// sync (fetch + patch)
// ---------------------------------------------------------------------------

type syncArgs struct {
	dryRun    bool
	strict    bool
	lock      bool
	timeout   time.Duration
	chunkSize int
	init      bool
}

func addSyncFlags(cmd *cobra.Command, a *syncArgs) {
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "Fetch and render, but do not write any file")
	cmd.Flags().BoolVar(&a.strict, "strict", false, "Leave a file untouched when a start tag has no matching end tag")
	cmd.Flags().BoolVar(&a.lock, "lock", false, "Track written keys in "+lockfile.LockFileName+" and report changes")
	cmd.Flags().DurationVar(&a.timeout, "timeout", 0, "Per-request timeout (0 = none)")
	cmd.Flags().BoolVar(&a.init, "init", false, "Create missing language files from the skeleton before patching")
	cmd.Flags().IntVar(&a.chunkSize, "chunk-size", marker.DefaultChunkSize, "Read size in bytes when streaming files")
	cmd.Flags().MarkHidden("chunk-size")
}

func newSyncCmd() *cobra.Command {
	var a syncArgs

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch translations and patch language files",
		Long: `Fetch every resource listed in lingoconfig.json, merge the records per
language and rewrite the region between startTag and endTag of every
language file.

Any fetch or response error aborts the run before a file is touched.
After that, a failure on one file is reported and the next file is
still processed.

When lingoconfig.json has an "arb" section, every language is also
written to <dir>/<filePrefix><locale>.arb, limited to the keys starting
with lingo.prefix and to the locales listed in as_i18n.yaml.`,
		Example: `  lingosync sync
  lingosync sync --root ./web --dry-run
  lingosync sync --init
  LINGO_TOKEN=... lingosync sync --lock`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), a)
		},
	}

	addSyncFlags(cmd, &a)
	return cmd
}

// ---------------------------------------------------------------------------
// init
// ---------------------------------------------------------------------------

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create missing language files from the skeleton",
		Long: `Create every language file listed in lingoconfig.json that does not
exist yet, with the content of fileConfig.skeleton (default: an ES module
exporting an object that holds an empty start/end region).

Existing files are never modified.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func runInit() error {
	cfg, err := config.LoadLingoConfig(lingoConfigPath())
	if err != nil {
		return err
	}
	created, err := syncer.CreateMissing(cfg.Targets(rootDir), cfg.FileConfig.SkeletonContent())
	for _, p := range created {
		logSuccess(i18n.T("Created %s"), p)
	}
	if err != nil {
		return err
	}
	if len(created) == 0 {
		logInfo(i18n.T("All language files exist"))
	}
	return nil
}

func newClient(cfg *config.LingoConfig, creds *config.Credentials, timeout time.Duration) *lingo.Client {
	client := lingo.NewClient(cfg.Hostname, int(cfg.Port), creds.Token, timeout)
	client.OnRequest = func(method, url, requestID string) {
		logDebug("%s %s (request %s)", method, url, requestID)
	}
	return client
}

func runSync(ctx context.Context, a syncArgs) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadLingoConfig(lingoConfigPath())
	if err != nil {
		return err
	}
	creds, err := config.LoadCredentials(rootDir)
	if err != nil {
		return err
	}
	if creds.Source != "" {
		logDebug(i18n.T("Credentials: %s"), creds.Source)
	}
	warnUnknownCodes(cfg)

	var lock *lockfile.LockFile
	if a.lock {
		lock, err = lockfile.Load(rootDir)
		if err != nil {
			return err
		}
	}

	if a.dryRun {
		logInfo(i18n.T("Dry run: no file will be written"))
	}

	report, err := syncer.Run(ctx, syncer.Options{
		Config:     cfg,
		APIPath:    creds.APIPath,
		Root:       rootDir,
		Fetcher:    newClient(cfg, creds, a.timeout),
		Lock:       lock,
		DryRun:     a.dryRun,
		Strict:     a.strict,
		ChunkSize:  a.chunkSize,
		Init:       a.init,
		ARBPrefix:  creds.Prefix,
		ARBLocales: creds.Locales,
		OnLog:      logInfo,
		OnWarning:  logWarning,
		OnError:    logError,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New(i18n.T("interrupted"))
		}
		return err
	}

	printReport(report, a)

	if lock != nil && !a.dryRun {
		if err := lock.Save(); err != nil {
			return err
		}
		logDebug(i18n.T("Lock file saved: %s"), lock.Path())
	}
	return nil
}

// warnUnknownCodes flags language codes that are not valid BCP 47 tags.
// They are still synced: the code only has to match the API's codes.
func warnUnknownCodes(cfg *config.LingoConfig) {
	for _, code := range cfg.Codes() {
		if !langmeta.Valid(code) {
			logWarning(i18n.T("Language code %q is not a known language tag"), code)
		}
	}
}

func printReport(report *syncer.Report, a syncArgs) {
	width := langColumnWidth(report.Languages)
	for _, fr := range report.Files {
		if fr.Err != nil || fr.Outcome == marker.NotFound {
			continue
		}
		cell := langCell(fr.Target.Code, width)
		switch {
		case a.dryRun:
			logInfo("%s %s: "+i18n.N("%d line would be written", "%d lines would be written", fr.Lines), cell, fr.Target.Path, fr.Lines)
		case fr.Outcome == marker.Modified:
			logSuccess("%s %s: "+i18n.N("%d line", "%d lines", fr.Lines), cell, fr.Target.Path, fr.Lines)
		default:
			logSuccess("%s %s: %s", cell, fr.Target.Path, i18n.T("cleared"))
		}
		if a.lock && (len(fr.Changed) > 0 || len(fr.Removed) > 0) {
			logInfo("    "+i18n.T("%d changed, %d removed"), len(fr.Changed), len(fr.Removed))
			for _, k := range fr.Changed {
				logDebug("    + %s", k)
			}
			for _, k := range fr.Removed {
				logDebug("    - %s", k)
			}
		}
	}

	total := len(report.Files)
	for _, er := range report.Exports {
		switch {
		case er.Skipped:
			logDebug(i18n.T("%s: locale %s is not listed, skipped"), er.Code, er.Locale)
			continue
		case er.Err != nil:
		case a.dryRun:
			logInfo("%s %s: "+i18n.N("%d key would be exported", "%d keys would be exported", er.Keys), langCell(er.Code, width), er.Path, er.Keys)
		default:
			logSuccess("%s %s: "+i18n.N("%d key", "%d keys", er.Keys), langCell(er.Code, width), er.Path, er.Keys)
		}
		total++
	}

	failed := report.Failed()
	if failed > 0 {
		logWarning(i18n.T("Synced %d of %d file(s), %d failed"), total-failed, total, failed)
		return
	}
	logSuccess(i18n.T("Synced %d file(s)"), total)
}

// ---------------------------------------------------------------------------
// status (read-only: config + targets + lock)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	var remote bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration, target files and lock state",
		Long: `Show the parsed lingoconfig.json, where the credentials come from, every
target file with the number of marker regions it contains, and the lock
file summary. Does not modify any files.

With --remote, also fetches the resources and shows per-language coverage.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), remote, timeout)
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Fetch resources and show per-language coverage")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-request timeout with --remote (0 = none)")
	return cmd
}

func runStatus(ctx context.Context, remote bool, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadLingoConfig(lingoConfigPath())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n%s%s%s\n", colorBlue, i18n.T("Project"), colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	absRoot, _ := filepath.Abs(rootDir)
	fmt.Fprintf(os.Stderr, "  Root:       %s\n", absRoot)
	fmt.Fprintf(os.Stderr, "  Config:     %s\n", lingoConfigPath())
	fmt.Fprintf(os.Stderr, "  Server:     %s\n", lingo.BaseURL(cfg.Hostname, int(cfg.Port)))
	fmt.Fprintf(os.Stderr, "  Resources:  %d\n", len(cfg.Resources))
	fmt.Fprintf(os.Stderr, "  Markers:    %s … %s\n", cfg.FileConfig.StartTag, cfg.FileConfig.EndTag)
	fmt.Fprintf(os.Stderr, "  UI language: %s\n", uiLanguage())

	creds, credErr := config.LoadCredentials(rootDir)
	switch {
	case credErr != nil:
		fmt.Fprintf(os.Stderr, "  Credentials: %s%v%s\n", colorRed, credErr, colorReset)
	case creds.Source != "":
		fmt.Fprintf(os.Stderr, "  Credentials: %s\n", creds.Source)
	default:
		fmt.Fprintf(os.Stderr, "  Credentials: %s\n", i18n.T("environment"))
	}
	if credErr == nil {
		fmt.Fprintf(os.Stderr, "  API path:   %s\n", creds.APIPath)
		fmt.Fprintf(os.Stderr, "  Token:      %s\n", creds.MaskedToken())
	}
	if cfg.ARB != nil {
		fmt.Fprintf(os.Stderr, "  ARB:        %s\n", filepath.Dir(cfg.ARB.Path(rootDir, "x")))
		if credErr == nil {
			fmt.Fprintf(os.Stderr, "  ARB keys:   %s\n", arbScope(creds))
		}
	}

	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorBlue, i18n.T("Language files"), colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	tags := cfg.Tags()
	width := langColumnWidth(cfg.Codes())
	for _, t := range cfg.Targets(rootDir) {
		fmt.Fprintf(os.Stderr, "  %s  %-40s %s\n", langCell(t.Code, width), t.Path, targetState(t.AbsPath, tags))
	}

	if lf, err := lockfile.Load(rootDir); err != nil {
		logWarning("%v", err)
	} else if targets, _ := lf.Stats(); targets > 0 {
		fmt.Fprintln(os.Stderr)
		fmt.Fprintf(os.Stderr, "  Lock:       %s\n", lf.Summary())
	}

	if remote {
		if credErr != nil {
			return credErr
		}
		if err := showCoverage(ctx, cfg, creds, timeout); err != nil {
			return err
		}
	}

	fmt.Fprintln(os.Stderr)
	return nil
}

// uiLanguage names the language lingosync's own messages are shown in.
func uiLanguage() string {
	lang := i18n.Language()
	name := langmeta.Resolve(lang).Name
	if name == lang {
		return lang
	}
	return fmt.Sprintf("%s (%s)", lang, name)
}

// arbScope describes which keys and locales the ARB export covers.
func arbScope(creds *config.Credentials) string {
	prefix := creds.Prefix
	if prefix == "" {
		prefix = "*"
	} else {
		prefix += "*"
	}
	if len(creds.Locales) == 0 {
		return prefix
	}
	return fmt.Sprintf("%s, %s", prefix, strings.Join(creds.Locales, ", "))
}

// targetState describes a target file for the status listing.
func targetState(path string, tags marker.Tags) string {
	if !fileExists(path) {
		return colorRed + i18n.T("missing") + colorReset
	}
	f, err := os.Open(path)
	if err != nil {
		return colorRed + err.Error() + colorReset
	}
	defer f.Close()

	stats, err := marker.Rewrite(io.Discard, f, "", tags, 0)
	switch {
	case err != nil:
		return colorRed + err.Error() + colorReset
	case stats.Unterminated:
		return colorYellow + i18n.T("unterminated region") + colorReset
	case stats.Regions == 0:
		return colorYellow + i18n.T("no region") + colorReset
	}
	return colorGreen + fmt.Sprintf(i18n.N("%d region", "%d regions", stats.Regions), stats.Regions) + colorReset
}

func showCoverage(ctx context.Context, cfg *config.LingoConfig, creds *config.Credentials, timeout time.Duration) error {
	bodies, err := syncer.Fetch(ctx, newClient(cfg, creds, timeout), cfg.Resources, creds.APIPath)
	if err != nil {
		return err
	}
	data, err := langdata.Aggregate(bodies, cfg.DataPaths())
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "%s%s%s (%d keys)\n", colorBlue, i18n.T("Remote coverage"), colorReset, data.Keys())
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	codes := mergeCodes(cfg.Codes(), data.Languages())
	width := langColumnWidth(codes)
	for _, code := range codes {
		t, _ := data.Translations(code)
		pct := 0
		if data.Keys() > 0 {
			pct = t.Len() * 100 / data.Keys()
		}
		fmt.Fprintf(os.Stderr, "  %s  %s  %s\n", langCell(code, width), progressBar(pct, 20), langmeta.Resolve(code).Name)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// progressBar renders a colored bar of width cells followed by the percentage.
func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100

	color := colorRed
	switch {
	case percent >= 100:
		color = colorGreen
	case percent >= 50:
		color = colorYellow
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s%s%s %3d%%", color, bar, colorReset, percent)
}

func langColumnWidth(langs []string) int {
	width := 0
	for _, l := range langs {
		if len(l) > width {
			width = len(l)
		}
	}
	return width
}

// langCell renders a flag and a language code padded to width.
func langCell(code string, width int) string {
	flag := langmeta.Resolve(code).Flag
	if flag == "" {
		flag = "  "
	}
	return fmt.Sprintf("%s %-*s", flag, width, code)
}

// mergeCodes returns configured codes followed by remote-only codes.
func mergeCodes(configured, remote []string) []string {
	seen := make(map[string]bool, len(configured))
	out := make([]string, 0, len(configured)+len(remote))
	for _, c := range configured {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range remote {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
