// Package config loads the two configuration inputs of a sync run:
//
//   - lingoconfig.json in the project root describes what to fetch
//     (host, resources) and where to write it (language files, template,
//     marker tags, substitutions);
//   - as_i18n.yaml, found by walking up from the project root, holds the
//     Lingo API path and token shared by every project in a workspace.
//
// The API path and token can also come from LINGO_API_PATH and LINGO_TOKEN,
// either in the environment or in a .env file in the project root.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/minios-linux/lingosync/marker"
	"github.com/minios-linux/lingosync/render"
)

var (
	// ErrNotFound is returned when a required config file does not exist.
	ErrNotFound = errors.New("config file not found")
	// ErrInvalid is returned for unparseable or incomplete config files.
	ErrInvalid = errors.New("invalid config")
)

// ---------------------------------------------------------------------------
// JSON schema
// ---------------------------------------------------------------------------

// LingoConfigFileName is the default project config file name.
const LingoConfigFileName = "lingoconfig.json"

// DefaultPort is used when lingoconfig.json has no port.
const DefaultPort = 80

// LingoConfig is the top-level lingoconfig.json structure.
type LingoConfig struct {
	// Hostname of the Lingo API server.
	Hostname string `json:"hostname"`
	// Port of the Lingo API server; 443 selects https.
	Port Port `json:"port,omitempty"`
	// FileConfig is shared by every language file.
	FileConfig FileConfig `json:"fileConfig"`
	// LanguageFiles lists the files to patch, per language code.
	LanguageFiles []LanguageFile `json:"languageFiles"`
	// Resources are fetched in order; later ones win on key collisions.
	Resources []Resource `json:"resources"`

	KeyReplaces    []render.Replace `json:"keyReplaces,omitempty"`
	ValueReplaces  []render.Replace `json:"valueReplaces,omitempty"`
	ValueToUnicode bool             `json:"valueToUnicode,omitempty"`

	// ARB, if set, also exports every language to a Flutter ARB file.
	ARB *ARBConfig `json:"arb,omitempty"`
}

// FileConfig describes the marker region and the line template.
type FileConfig struct {
	// Template contains the literal placeholders {{key}} and {{value}}.
	Template string `json:"template"`
	StartTag string `json:"startTag"`
	EndTag   string `json:"endTag"`
	// Skeleton is the content of a language file created by init, with
	// the placeholders {{startTag}} and {{endTag}}. Empty means
	// DefaultSkeleton.
	Skeleton string `json:"skeleton,omitempty"`
}

// DefaultSkeleton is an ES module exporting an object with an empty region.
const DefaultSkeleton = "let json = {\n{{startTag}}\n{{endTag}}\n}\nexport default json\n"

// SkeletonContent returns the initial content of a new language file.
func (fc FileConfig) SkeletonContent() string {
	skeleton := fc.Skeleton
	if skeleton == "" {
		skeleton = DefaultSkeleton
	}
	r := strings.NewReplacer("{{startTag}}", fc.StartTag, "{{endTag}}", fc.EndTag)
	return r.Replace(skeleton)
}

// ARBConfig describes the Flutter ARB export.
type ARBConfig struct {
	// Dir receives the ARB files, relative to the project root.
	// Default "assets/translations".
	Dir string `json:"dir,omitempty"`
	// FilePrefix is prepended to "<locale>.arb". Default "intl_".
	FilePrefix string `json:"filePrefix,omitempty"`
	// LocaleAliases renames Lingo codes to ARB locales. Nil means
	// DefaultLocaleAliases; an empty object disables renaming.
	LocaleAliases map[string]string `json:"localeAliases,omitempty"`
}

// ARB export defaults.
const (
	DefaultARBDir        = "assets/translations"
	DefaultARBFilePrefix = "intl_"
)

// DefaultLocaleAliases map Lingo's region codes for Chinese to the
// script-qualified locales Flutter resolves.
var DefaultLocaleAliases = map[string]string{
	"zh_CN": "zh_Hans_CN",
	"zh_HK": "zh_Hant_HK",
}

// Locale returns the ARB locale for a Lingo language code.
func (a *ARBConfig) Locale(code string) string {
	aliases := a.LocaleAliases
	if aliases == nil {
		aliases = DefaultLocaleAliases
	}
	if l, ok := aliases[code]; ok {
		return l
	}
	return code
}

// Path returns the ARB file path for locale under root.
func (a *ARBConfig) Path(root, locale string) string {
	dir := a.Dir
	if dir == "" {
		dir = DefaultARBDir
	}
	prefix := a.FilePrefix
	if prefix == "" {
		prefix = DefaultARBFilePrefix
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return filepath.Join(dir, prefix+locale+".arb")
}

// LanguageFile binds a language code to one or more files.
type LanguageFile struct {
	Code  string   `json:"code"`
	Path  string   `json:"path,omitempty"`
	Paths []string `json:"paths,omitempty"`
}

// Resource is one API request contributing translation records.
type Resource struct {
	// DataPath is the dotted path to the record array; empty means "data".
	DataPath string `json:"dataPath,omitempty"`
	// Path overrides the API path from the credentials for this resource.
	Path string `json:"path,omitempty"`
}

// Port accepts both a JSON number and a numeric string.
type Port int

// UnmarshalJSON implements json.Unmarshaler.
func (p *Port) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("port %s: not a number", string(data))
	}
	*p = Port(n)
	return nil
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// LoadLingoConfig reads, defaults and validates a lingoconfig.json file.
func LoadLingoConfig(path string) (*LingoConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var c LingoConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalid, path, err)
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// Validate checks the fields a sync run cannot do without.
func (c *LingoConfig) Validate() error {
	if c.Hostname == "" {
		return fmt.Errorf("%w: hostname is required", ErrInvalid)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	fc := c.FileConfig
	if fc.Template == "" {
		return fmt.Errorf("%w: fileConfig.template is required", ErrInvalid)
	}
	if fc.StartTag == "" || fc.EndTag == "" {
		return fmt.Errorf("%w: fileConfig.startTag and fileConfig.endTag are required", ErrInvalid)
	}
	if len(c.Resources) == 0 {
		return fmt.Errorf("%w: at least one resource is required", ErrInvalid)
	}
	for i, lf := range c.LanguageFiles {
		if lf.Code == "" {
			return fmt.Errorf("%w: languageFiles #%d has no code", ErrInvalid, i+1)
		}
		if lf.Path == "" && len(lf.Paths) == 0 {
			return fmt.Errorf("%w: languageFiles %q has neither path nor paths", ErrInvalid, lf.Code)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Rules returns the substitution rules for the renderer.
func (c *LingoConfig) Rules() render.Rules {
	return render.Rules{
		KeyReplaces:    c.KeyReplaces,
		ValueReplaces:  c.ValueReplaces,
		ValueToUnicode: c.ValueToUnicode,
	}
}

// Tags returns the marker tags for the patcher.
func (c *LingoConfig) Tags() marker.Tags {
	return marker.Tags{Start: c.FileConfig.StartTag, End: c.FileConfig.EndTag}
}

// DataPaths returns the dataPath of every resource, in order.
func (c *LingoConfig) DataPaths() []string {
	paths := make([]string, len(c.Resources))
	for i, r := range c.Resources {
		paths[i] = r.DataPath
	}
	return paths
}

// Target is one file to patch.
type Target struct {
	Code string
	// Path as written in lingoconfig.json.
	Path string
	// AbsPath is Path resolved against the project root.
	AbsPath string
}

// Targets flattens LanguageFiles into the ordered list of files to patch:
// for every entry, its path first, then each of its paths.
func (c *LingoConfig) Targets(root string) []Target {
	var targets []Target
	add := func(code, p string) {
		abs := p
		if !filepath.IsAbs(p) {
			abs = filepath.Join(root, p)
		}
		targets = append(targets, Target{Code: code, Path: p, AbsPath: abs})
	}
	for _, lf := range c.LanguageFiles {
		if lf.Path != "" {
			add(lf.Code, lf.Path)
		}
		for _, p := range lf.Paths {
			if p != "" {
				add(lf.Code, p)
			}
		}
	}
	return targets
}

// Codes returns the distinct language codes in configuration order.
func (c *LingoConfig) Codes() []string {
	seen := make(map[string]bool)
	var codes []string
	for _, lf := range c.LanguageFiles {
		if !seen[lf.Code] {
			seen[lf.Code] = true
			codes = append(codes, lf.Code)
		}
	}
	return codes
}
