package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// StoreOptions selects the record store holding the lines of a file.
type StoreOptions struct {
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
}

// LogOptions controls the change log behind undo and redo.
type LogOptions struct {
	Enabled bool   `toml:"enabled"`
	Restart bool   `toml:"restart"`
	Backend string `toml:"backend"`
}

type EditorOptions struct {
	TabWidth    int    `toml:"tab-width"`
	LineNumbers string `toml:"line-numbers"`
	UndoToggle  bool   `toml:"undo-toggle"`
	Autosave    int    `toml:"session-autosave"`
}

type Theme struct {
	Theme                      string `toml:"theme"`
	Foreground                 string `toml:"foreground"`
	Background                 string `toml:"background"`
	StatuslineForeground       string `toml:"statusline-foreground"`
	StatuslineBackground       string `toml:"statusline-background"`
	CommandlineForeground      string `toml:"commandline-foreground"`
	CommandlineBackground      string `toml:"commandline-background"`
	LineNumberForeground       string `toml:"line-number-foreground"`
	LineNumberActiveForeground string `toml:"line-number-active-foreground"`
	ErrorForeground            string `toml:"error-foreground"`
}

type Config struct {
	Store  StoreOptions      `toml:"store"`
	Log    LogOptions        `toml:"log"`
	Editor EditorOptions     `toml:"editor"`
	Theme  Theme             `toml:"theme"`
	Keys   map[string]string `toml:"keys"`
}

func Default() Config {
	return Config{
		Store: StoreOptions{
			Backend: "memory",
		},
		Log: LogOptions{
			Enabled: true,
			Restart: true,
			Backend: "memory",
		},
		Editor: EditorOptions{
			TabWidth:    8,
			LineNumbers: "absolute",
			UndoToggle:  true,
			Autosave:    15,
		},
		Theme: Theme{
			Theme:                      "",
			Foreground:                 "#B3B1AD",
			Background:                 "#0A0E14",
			StatuslineForeground:       "#B3B1AD",
			StatuslineBackground:       "#0F1419",
			CommandlineForeground:      "#B3B1AD",
			CommandlineBackground:      "#0F1419",
			LineNumberForeground:       "#3E4B59",
			LineNumberActiveForeground: "#B3B1AD",
			ErrorForeground:            "#FF3333",
		},
		Keys: map[string]string{
			"pgup":   "page_up",
			"pgdn":   "page_down",
			"up":     "line_up",
			"down":   "line_down",
			"ctrl+l": "redraw",
			"ctrl+c": "cancel",
			"esc":    "cancel",
			"ctrl+u": "clear",
			"ctrl+z": "suspend",
		},
	}
}

func Load() (Config, error) {
	cfg := Default()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	var userCfg Config
	md, err := toml.Decode(string(data), &userCfg)
	if err != nil {
		return cfg, err
	}

	if userCfg.Store.Backend != "" {
		cfg.Store.Backend = userCfg.Store.Backend
	}
	if userCfg.Store.Dir != "" {
		cfg.Store.Dir = userCfg.Store.Dir
	}
	if md.IsDefined("log", "enabled") {
		cfg.Log.Enabled = userCfg.Log.Enabled
	}
	if md.IsDefined("log", "restart") {
		cfg.Log.Restart = userCfg.Log.Restart
	}
	if userCfg.Log.Backend != "" {
		cfg.Log.Backend = userCfg.Log.Backend
	}
	if userCfg.Editor.TabWidth > 0 {
		cfg.Editor.TabWidth = userCfg.Editor.TabWidth
	}
	if userCfg.Editor.LineNumbers != "" {
		cfg.Editor.LineNumbers = userCfg.Editor.LineNumbers
	}
	if md.IsDefined("editor", "undo-toggle") {
		cfg.Editor.UndoToggle = userCfg.Editor.UndoToggle
	}
	if md.IsDefined("editor", "session-autosave") {
		cfg.Editor.Autosave = userCfg.Editor.Autosave
	}
	if userCfg.Theme.Theme != "" {
		cfg.Theme.Theme = userCfg.Theme.Theme
	}
	if cfg.Theme.Theme != "" {
		theme, err := LoadTheme(cfg.Theme.Theme)
		if err != nil {
			return cfg, err
		}
		mergeTheme(&cfg.Theme, theme)
	}
	mergeTheme(&cfg.Theme, userCfg.Theme)
	for k, v := range userCfg.Keys {
		cfg.Keys[k] = v
	}

	return cfg, nil
}

func mergeTheme(dst *Theme, src Theme) {
	if src.Foreground != "" {
		dst.Foreground = src.Foreground
	}
	if src.Background != "" {
		dst.Background = src.Background
	}
	if src.StatuslineForeground != "" {
		dst.StatuslineForeground = src.StatuslineForeground
	}
	if src.StatuslineBackground != "" {
		dst.StatuslineBackground = src.StatuslineBackground
	}
	if src.CommandlineForeground != "" {
		dst.CommandlineForeground = src.CommandlineForeground
	}
	if src.CommandlineBackground != "" {
		dst.CommandlineBackground = src.CommandlineBackground
	}
	if src.LineNumberForeground != "" {
		dst.LineNumberForeground = src.LineNumberForeground
	}
	if src.LineNumberActiveForeground != "" {
		dst.LineNumberActiveForeground = src.LineNumberActiveForeground
	}
	if src.ErrorForeground != "" {
		dst.ErrorForeground = src.ErrorForeground
	}
}

func ThemePath(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "theme", name+".toml"), nil
}

func LoadTheme(name string) (Theme, error) {
	path, err := ThemePath(name)
	if err != nil {
		return Theme{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Theme{}, err
	}
	var t Theme
	if _, err := toml.Decode(string(data), &t); err == nil {
		return t, nil
	}
	var wrap struct {
		Theme Theme `toml:"theme"`
	}
	if _, err := toml.Decode(string(data), &wrap); err != nil {
		return Theme{}, err
	}
	return wrap.Theme, nil
}

func ConfigDir() (string, error) {
	if v := os.Getenv("QEX_CONFIG_HOME"); v != "" {
		return filepath.Join(v), nil
	}
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "qex"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "qex"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}
