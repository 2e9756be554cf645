package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/livebridge/internal/config"
)

// loadConfig resolves --config (or discovery) and loads it.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.Discover()
	}
	return config.Load(path)
}

type configReport struct {
	Valid       bool   `json:"valid"`
	Source      string `json:"source"`
	Endpoint    string `json:"endpoint"`
	Fingerprint string `json:"fingerprint"`
	FileHash    string `json:"file_hash,omitempty"`
	Error       string `json:"error,omitempty"`
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output report in JSON")
	expect := fs.String("expect-hash", "", "Fail unless the config file has this BLAKE3 hash")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	report := configReport{Source: "defaults"}
	cfg, err := loadConfig(*configPath)
	if err == nil {
		report.Endpoint = cfg.Host.Endpoint()
		if cfg.SourceFile != "" {
			report.Source = cfg.SourceFile
			report.FileHash, err = config.FileHash(cfg.SourceFile)
			if err == nil && *expect != "" {
				err = config.VerifyFileHash(cfg.SourceFile, *expect)
			}
		} else if *expect != "" {
			err = fmt.Errorf("--expect-hash given but no config file was loaded")
		}
	}
	if err == nil {
		report.Fingerprint, err = config.Fingerprint(cfg)
	}
	if err != nil {
		report.Error = err.Error()
	} else {
		report.Valid = true
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else if report.Valid {
		fmt.Printf("Configuration valid\n")
		fmt.Printf("  source:      %s\n", report.Source)
		fmt.Printf("  endpoint:    %s\n", report.Endpoint)
		fmt.Printf("  fingerprint: %s\n", report.Fingerprint)
		if report.FileHash != "" {
			fmt.Printf("  file hash:   %s\n", report.FileHash)
		}
	} else {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %s\n", report.Error)
	}

	if !report.Valid {
		return 1
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if cfg.API.Token != "" {
		cfg.API.Token = "<redacted>"
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}
