package main

import (
	"fmt"
	"os"
)

func cmdPasskey() {
	if len(os.Args) < 3 {
		fatal("usage: wkeep passkey <add|list> [args]")
	}
	switch os.Args[2] {
	case "add":
		cmdPasskeyAdd()
	case "list":
		cmdPasskeyList()
	default:
		fatal("unknown passkey subcommand: %s", os.Args[2])
	}
}

func cmdPasskeyAdd() {
	if len(os.Args) < 4 {
		fatal("usage: wkeep passkey add <name>")
	}
	name := os.Args[3]

	fmt.Fprintln(os.Stderr, "Touch your authenticator to continue...")
	resp, err := apiRequest("POST", "/vault/passkeys", map[string]string{"name": name})
	if err != nil {
		fatal("passkey request: %v", err)
	}
	var result struct {
		CredentialID string `json:"credential_id"`
	}
	if err := apiResult(resp, &result); err != nil {
		fatal("passkey registration failed: %v", err)
	}
	fmt.Printf("Passkey %q registered (credential %s).\n", name, result.CredentialID)
	fmt.Println("You can now unlock with: wkeep unlock --passkey")
}

func cmdPasskeyList() {
	resp, err := apiRequest("GET", "/vault/passkeys", nil)
	if err != nil {
		fatal("passkey request: %v", err)
	}
	var infos []struct {
		Name         string `json:"name"`
		CredentialID string `json:"credentialId"`
		Created      string `json:"created"`
	}
	if err := apiResult(resp, &infos); err != nil {
		fatal("listing passkeys: %v", err)
	}
	if len(infos) == 0 {
		fmt.Println("No passkeys registered.")
		return
	}
	for _, info := range infos {
		fmt.Printf("%-20s %s  (added %s)\n", info.Name, info.CredentialID, info.Created)
	}
}
