package main

import (
	"encoding/json"
	"fmt"
	"os"
)

func cmdImport() {
	if len(os.Args) < 3 {
		fatal("usage: wkeep import <file> [--format bitwarden|wkeep]")
	}
	file := os.Args[2]
	format := "bitwarden"
	for i, arg := range os.Args[3:] {
		if arg == "--format" && i+4 <= len(os.Args)-1 {
			format = os.Args[i+4]
		}
	}

	data, err := os.ReadFile(file)
	if err != nil {
		fatal("reading %s: %v", file, err)
	}

	resp, err := apiRequest("POST", "/vault/import", map[string]any{
		"format": format,
		"data":   json.RawMessage(data),
	})
	if err != nil {
		fatal("import request: %v", err)
	}

	var result struct {
		Success bool `json:"success"`
		Summary struct {
			FoldersCreated     int `json:"foldersCreated"`
			CredentialsCreated int `json:"credentialsCreated"`
			TotpSecretsCreated int `json:"totpSecretsCreated"`
			Skipped            int `json:"skipped"`
			SkippedExisting    int `json:"skippedExisting"`
			Errors             int `json:"errors"`
		} `json:"summary"`
		Errors []string `json:"errors"`
	}
	if err := apiResult(resp, &result); err != nil {
		fatal("import failed: %v", err)
	}

	fmt.Printf("Folders created:     %d\n", result.Summary.FoldersCreated)
	fmt.Printf("Credentials created: %d\n", result.Summary.CredentialsCreated)
	fmt.Printf("TOTP secrets:        %d\n", result.Summary.TotpSecretsCreated)
	if result.Summary.Skipped > 0 {
		fmt.Printf("Skipped (unsupported): %d\n", result.Summary.Skipped)
	}
	if result.Summary.SkippedExisting > 0 {
		fmt.Printf("Skipped (duplicates):  %d\n", result.Summary.SkippedExisting)
	}
	if result.Summary.Errors > 0 {
		fmt.Printf("Errors:              %d\n", result.Summary.Errors)
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  - %s\n", e)
		}
		os.Exit(1)
	}
	if result.Success {
		fmt.Println("Import complete.")
	}
}
