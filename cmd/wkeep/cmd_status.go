package main

import (
	"fmt"
	"time"
)

func cmdStatus() {
	resp, err := apiRequest("GET", "/vault/status", nil)
	if err != nil {
		fmt.Println("Server:  not running")
		fmt.Println("Vault:   locked")
		return
	}
	var status struct {
		Unlocked       bool      `json:"unlocked"`
		UserID         string    `json:"user_id"`
		UnlockedAt     time.Time `json:"unlocked_at"`
		LastActivityAt time.Time `json:"last_activity_at"`
		IdleTimeoutMS  int64     `json:"idle_timeout_ms"`
		LockReason     string    `json:"lock_reason"`
	}
	if err := apiResult(resp, &status); err != nil {
		fatal("status request: %v", err)
	}

	fmt.Println("Server:  running on", serverAddr())
	if !status.Unlocked {
		fmt.Println("Vault:   locked")
		if status.LockReason != "" {
			fmt.Printf("Reason:  %s\n", status.LockReason)
		}
		return
	}
	fmt.Println("Vault:   unlocked")
	fmt.Printf("User:    %s\n", status.UserID)
	fmt.Printf("Since:   %s\n", status.UnlockedAt.Local().Format(time.RFC1123))
	idle := time.Since(status.LastActivityAt).Round(time.Second)
	timeout := time.Duration(status.IdleTimeoutMS) * time.Millisecond
	fmt.Printf("Idle:    %s (locks after %s)\n", idle, timeout)
}
