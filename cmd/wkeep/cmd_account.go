package main

import (
	"fmt"
	"os"
)

func cmdRegister() {
	if !portHasVault() {
		startBackgroundServer()
	}

	email, err := promptLine("Email: ")
	if err != nil {
		fatal("reading email: %v", err)
	}
	name, _ := promptLine("Name: ")
	pw, err := promptPassword("Account password: ")
	if err != nil {
		fatal("reading password: %v", err)
	}

	resp, err := apiRequest("POST", "/auth/register", map[string]string{
		"email": email, "password": pw, "name": name,
	})
	if err != nil {
		fatal("register request: %v", err)
	}
	var result struct {
		AccountID string `json:"account_id"`
	}
	if err := apiResult(resp, &result); err != nil {
		fatal("registration failed: %v", err)
	}
	fmt.Printf("Account created (%s).\n", result.AccountID)
	fmt.Println("The account password gates API access only; run 'wkeep init' to create your vault.")
}

func cmdLogin() {
	if !portHasVault() {
		startBackgroundServer()
	}

	email, err := promptLine("Email: ")
	if err != nil {
		fatal("reading email: %v", err)
	}
	pw, err := promptPassword("Account password: ")
	if err != nil {
		fatal("reading password: %v", err)
	}

	resp, err := apiRequest("POST", "/auth/login", map[string]string{
		"email": email, "password": pw,
	})
	if err != nil {
		fatal("login request: %v", err)
	}
	var result struct {
		AccountID string `json:"accountId"`
		Token     string `json:"token"`
	}
	if err := apiResult(resp, &result); err != nil {
		fatal("login failed: %v", err)
	}

	if err := os.MkdirAll(dataDir(), 0700); err != nil {
		fatal("creating data dir: %v", err)
	}
	if err := os.WriteFile(accountTokenPath(), []byte(result.Token+"\n"), 0600); err != nil {
		fatal("storing account token: %v", err)
	}
	fmt.Println("Logged in.")
}
