package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"
)

func cmdUnlock() {
	usePasskey := false
	for _, arg := range os.Args[2:] {
		if arg == "--passkey" {
			usePasskey = true
		}
	}

	if portHasVault() {
		if isVaultUnlocked() {
			fmt.Println("Vault is already unlocked.")
			return
		}
	} else {
		startBackgroundServer()
	}

	if usePasskey {
		unlockWithPasskey()
		return
	}

	pw, err := promptPassword("Master password: ")
	if err != nil {
		fatal("reading password: %v", err)
	}

	resp, err := apiRequest("POST", "/vault/unlock", map[string]any{
		"password": pw,
		"user_id":  currentUser(),
	})
	if err != nil {
		fatal("unlock request: %v", err)
	}
	var result struct {
		Token string `json:"token"`
	}
	if err := apiResult(resp, &result); err != nil {
		fatal("unlock failed: %v", err)
	}
	if result.Token == "" {
		fatal("unlock returned no token")
	}
	if err := writeSessionToken(result.Token); err != nil {
		fatal("write session: %v", err)
	}
	fmt.Println("Vault unlocked. Server running on", serverAddr())
}

func unlockWithPasskey() {
	fmt.Fprintln(os.Stderr, "Touch your authenticator to continue...")
	resp, err := apiRequest("POST", "/vault/unlock/passkey", map[string]any{
		"user_id": currentUser(),
	})
	if err != nil {
		fatal("unlock request: %v", err)
	}
	var result struct {
		Token string `json:"token"`
	}
	if err := apiResult(resp, &result); err != nil {
		fatal("unlock failed: %v", err)
	}
	if result.Token == "" {
		fatal("unlock returned no token")
	}
	if err := writeSessionToken(result.Token); err != nil {
		fatal("write session: %v", err)
	}
	fmt.Println("Vault unlocked. Server running on", serverAddr())
}

// startBackgroundServer spawns "wkeep serve" detached and waits for the
// status endpoint to come up.
func startBackgroundServer() {
	exe, err := os.Executable()
	if err != nil {
		fatal("finding executable: %v", err)
	}
	cmd := exec.Command(exe, "serve")
	cmd.Env = append(os.Environ(), fmt.Sprintf("WKEEP_DIR=%s", dataDir()))
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		fatal("starting server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			fatal("server did not come up on %s", serverAddr())
		default:
			if portHasVault() {
				return
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// portHasVault probes the server address with GET /vault/status.
func portHasVault() bool {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(serverAddr() + "/vault/status")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func isVaultUnlocked() bool {
	resp, err := apiRequest("GET", "/vault/status", nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	var status struct {
		Unlocked bool `json:"unlocked"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false
	}
	return status.Unlocked
}
