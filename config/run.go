package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/nestware/homesift/models"
)

// Config describes one catalog to scrape and where its records go. It is
// immutable for the duration of a run.
type Config struct {
	// ConfigName is a human-readable label, cosmetic only.
	ConfigName string

	// SearchURL is the paginated catalog page to scrape. Required.
	SearchURL string

	// FormURL enables the form sink when set.
	FormURL string

	// SheetURL and SheetName enable the sheet sink when SheetURL is set.
	SheetURL  string
	SheetName string

	// CredentialsPath points at the sheet sink's credential file.
	// Required when the sheet sink is enabled.
	CredentialsPath string
}

// Sinks returns the sinks this config enables, in a fixed order.
func (c *Config) Sinks() []models.SinkKind {
	var kinds []models.SinkKind
	if c.FormURL != "" {
		kinds = append(kinds, models.SinkForm)
	}
	if c.SheetURL != "" {
		kinds = append(kinds, models.SinkSheet)
	}
	return kinds
}

// Validate fails fast before any navigation is attempted: the search URL is
// required, at least one sink must be enabled, and an enabled sheet sink
// needs a credential reference.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SearchURL) == "" {
		return models.NewRunError(models.ErrCodeConfig,
			fmt.Sprintf("config %q has no search URL", c.ConfigName), nil)
	}
	if c.FormURL == "" && c.SheetURL == "" {
		return models.NewRunError(models.ErrCodeConfig,
			fmt.Sprintf("config %q enables no submission sink", c.ConfigName), nil)
	}
	if c.SheetURL != "" {
		if c.CredentialsPath == "" {
			return models.NewRunError(models.ErrCodeCredentials,
				fmt.Sprintf("config %q enables the sheet sink without credentials", c.ConfigName), nil)
		}
		if _, err := os.Stat(c.CredentialsPath); err != nil {
			return models.NewRunError(models.ErrCodeCredentials,
				fmt.Sprintf("config %q: credentials file %q not readable", c.ConfigName, c.CredentialsPath), err)
		}
	}
	return nil
}

// LoadDir reads every file in dir as a dotenv config, one run config per
// file. Files that fail to parse are skipped with a warning; an empty result
// is an error.
func LoadDir(dir string) ([]Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeConfig,
			fmt.Sprintf("config directory %q not readable", dir), err)
	}

	var configs []Config
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		values, err := godotenv.Read(path)
		if err != nil {
			slog.Warn("skipping unreadable config file", "path", path, "error", err)
			continue
		}

		name := values["CONFIG_NAME"]
		if name == "" {
			name = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		}
		sheetName := values["SHEET_NAME"]
		if sheetName == "" {
			sheetName = "Sheet1"
		}

		cfg := Config{
			ConfigName:      name,
			SearchURL:       values["SEARCH_URL"],
			FormURL:         values["FORM_URL"],
			SheetURL:        values["SHEET_URL"],
			SheetName:       sheetName,
			CredentialsPath: values["CREDENTIALS_PATH"],
		}
		configs = append(configs, cfg)
		slog.Debug("loaded config", "name", name, "path", path)
	}

	if len(configs) == 0 {
		return nil, models.NewRunError(models.ErrCodeConfig,
			fmt.Sprintf("no configs found in %q", dir), nil)
	}
	return configs, nil
}
