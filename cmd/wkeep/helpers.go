package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"
)

func dataDir() string {
	if d := os.Getenv("WKEEP_DIR"); d != "" {
		return d
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wkeep")
}

func serverAddr() string {
	if a := os.Getenv("WKEEP_URL"); a != "" {
		return a
	}
	return "http://127.0.0.1:7300"
}

func sessionPath() string {
	return filepath.Join(dataDir(), ".session")
}

func accountTokenPath() string {
	return filepath.Join(dataDir(), ".account")
}

func userPath() string {
	return filepath.Join(dataDir(), "user")
}

// currentUser returns the vault owner's user id. Set by init; overridable
// with WKEEP_USER.
func currentUser() string {
	if u := os.Getenv("WKEEP_USER"); u != "" {
		return u
	}
	data, err := os.ReadFile(userPath())
	if err != nil {
		return "default"
	}
	return strings.TrimSpace(string(data))
}

func writeCurrentUser(userID string) error {
	if err := os.MkdirAll(dataDir(), 0700); err != nil {
		return err
	}
	return os.WriteFile(userPath(), []byte(userID+"\n"), 0600)
}

func readSessionToken() (string, error) {
	data, err := os.ReadFile(sessionPath())
	if err != nil {
		return "", fmt.Errorf("vault is not unlocked (no session file)")
	}
	return strings.TrimSpace(string(data)), nil
}

func writeSessionToken(token string) error {
	if err := os.MkdirAll(dataDir(), 0700); err != nil {
		return err
	}
	return os.WriteFile(sessionPath(), []byte(token+"\n"), 0600)
}

func removeSessionToken() {
	os.Remove(sessionPath())
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// apiRequest makes an authenticated HTTP request to the vault server.
func apiRequest(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		buf, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, serverAddr()+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := readSessionToken()
	if err == nil {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return http.DefaultClient.Do(req)
}

// apiResult decodes a JSON response or returns the error.
func apiResult(resp *http.Response, target any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return fmt.Errorf("%s", errResp.Error)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if target != nil {
		return json.NewDecoder(resp.Body).Decode(target)
	}
	return nil
}

func fatal(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+msg+"\n", args...)
	os.Exit(1)
}
