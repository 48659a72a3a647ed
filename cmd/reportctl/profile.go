package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fdg312/informes-hub/internal/config"
	"github.com/fdg312/informes-hub/internal/reportapi"
)

const defaultRequestTimeout = 120 * time.Second

// Profile is the optional YAML file holding per-user defaults.
type Profile struct {
	APIBaseURL     string `yaml:"api_base_url"`
	HealthPath     string `yaml:"health_path"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Supervisor     string `yaml:"supervisor"`
	Project        string `yaml:"project"`
	Title          string `yaml:"title"`
}

// options is the resolved run configuration: flags, then profile, then
// environment, then defaults.
type options struct {
	APIBaseURL string
	HealthPath string
	Timeout    time.Duration
	Supervisor string
	Project    string
	Title      string
}

func defaultProfilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "reportctl", "profile.yaml")
}

// LoadProfile reads path. A missing file is only an error when required.
func LoadProfile(path string, required bool) (Profile, error) {
	var p Profile
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return p, nil
}

func resolveOptions() (options, error) {
	path, required := profilePath, true
	if path == "" {
		path, required = defaultProfilePath(), false
	}
	p, err := LoadProfile(path, required)
	if err != nil {
		return options{}, err
	}
	return mergeOptions(flagValues(), p, os.Getenv), nil
}

func flagValues() options {
	return options{
		APIBaseURL: apiBase,
		Timeout:    timeout,
		Supervisor: supervisor,
		Project:    project,
		Title:      title,
	}
}

func mergeOptions(flags options, p Profile, getenv func(string) string) options {
	o := options{
		APIBaseURL: firstNonEmpty(flags.APIBaseURL, p.APIBaseURL, getenv("REPORT_API_BASE_URL"), config.DefaultReportAPIBaseURL),
		HealthPath: firstNonEmpty(p.HealthPath, getenv("REPORT_API_HEALTH_PATH"), reportapi.HealthPath),
		Supervisor: firstNonEmpty(flags.Supervisor, p.Supervisor),
		Project:    firstNonEmpty(flags.Project, p.Project),
		Title:      firstNonEmpty(flags.Title, p.Title),
		Timeout:    flags.Timeout,
	}
	if o.Timeout <= 0 && p.TimeoutSeconds > 0 {
		o.Timeout = time.Duration(p.TimeoutSeconds) * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultRequestTimeout
	}
	o.APIBaseURL = strings.TrimRight(o.APIBaseURL, "/")
	return o
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
