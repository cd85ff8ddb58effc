package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// CredentialsFileName is searched for from the project root upwards.
const CredentialsFileName = "as_i18n.yaml"

// ErrMissingCredentials is returned when the API path or token is unset.
var ErrMissingCredentials = errors.New("api-path or token not found")

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// Credentials are the Lingo API settings from the "lingo" section of
// as_i18n.yaml. Environment variables take precedence over the file.
type Credentials struct {
	APIPath string `yaml:"api-path" env:"LINGO_API_PATH"`
	Token   string `yaml:"token" env:"LINGO_TOKEN"`
	// Prefix selects the keys exported to ARB files and is stripped from
	// them. Empty exports every key.
	Prefix string `yaml:"prefix" env:"LINGO_PREFIX"`

	// Locales are the ARB locales the app ships, from the top-level
	// "locales" list. Empty means no restriction.
	Locales []string `yaml:"-"`
	// Source is the file the credentials were read from, if any.
	Source string `yaml:"-"`
}

type credentialsFile struct {
	Lingo   Credentials `yaml:"lingo"`
	Locales []string    `yaml:"locales"`
}

// ---------------------------------------------------------------------------
// Discovery
// ---------------------------------------------------------------------------

// FindCredentialsFile looks for as_i18n.yaml in startDir and each of its
// parents, up to and including the filesystem root. It returns "" when no
// file is found.
func FindCredentialsFile(startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		dir = startDir
	}
	for {
		candidate := filepath.Join(dir, CredentialsFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadCredentials resolves the API path and token for a project root.
//
// The lookup order is: process environment, then a .env file in rootDir,
// then as_i18n.yaml found by FindCredentialsFile. A missing as_i18n.yaml is
// only an error if the environment does not supply both values.
func LoadCredentials(rootDir string) (*Credentials, error) {
	if err := godotenv.Load(filepath.Join(rootDir, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: loading .env: %v", ErrInvalid, err)
	}

	var creds Credentials
	if path := FindCredentialsFile(rootDir); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var cf credentialsFile
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalid, path, err)
		}
		creds = cf.Lingo
		creds.Locales = cf.Locales
		creds.Source = path
	}

	if err := env.Parse(&creds); err != nil {
		return nil, fmt.Errorf("%w: environment: %v", ErrInvalid, err)
	}

	if creds.APIPath == "" || creds.Token == "" {
		if creds.Source == "" {
			return nil, fmt.Errorf("%w: %s (searched %s and its parent directories)", ErrNotFound, CredentialsFileName, rootDir)
		}
		return nil, fmt.Errorf("%s: %w", creds.Source, ErrMissingCredentials)
	}
	return &creds, nil
}

// ---------------------------------------------------------------------------
// Display helpers
// ---------------------------------------------------------------------------

// MaskedToken returns the token with all but its first and last four
// characters hidden, for status output.
func (c *Credentials) MaskedToken() string {
	if len(c.Token) <= 8 {
		return "****"
	}
	return c.Token[:4] + "..." + c.Token[len(c.Token)-4:]
}
