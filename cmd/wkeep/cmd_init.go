package main

import (
	"fmt"
	"os"
)

// init creates a fresh vault: a new master key wrapped under the master
// password. Fails if the user already has one.
func cmdInit() {
	userID := currentUser()
	for i, arg := range os.Args[2:] {
		if arg == "--user" && i+3 <= len(os.Args)-1 {
			userID = os.Args[i+3]
		}
	}

	if !portHasVault() {
		startBackgroundServer()
	}

	pw, err := promptPassword("Choose a master password: ")
	if err != nil {
		fatal("reading password: %v", err)
	}
	confirm, err := promptPassword("Confirm master password: ")
	if err != nil {
		fatal("reading password: %v", err)
	}
	if pw != confirm {
		fatal("passwords do not match")
	}

	resp, err := apiRequest("POST", "/vault/unlock", map[string]any{
		"password":  pw,
		"user_id":   userID,
		"new_vault": true,
	})
	if err != nil {
		fatal("init request: %v", err)
	}
	var result struct {
		Token string `json:"token"`
	}
	if err := apiResult(resp, &result); err != nil {
		fatal("init failed: %v", err)
	}

	if err := writeCurrentUser(userID); err != nil {
		fatal("write user file: %v", err)
	}
	if err := writeSessionToken(result.Token); err != nil {
		fatal("write session: %v", err)
	}

	fmt.Printf("Vault created for %s and unlocked.\n", userID)
	fmt.Println("Your master password is the only way to unlock this vault. There is no recovery.")
}
