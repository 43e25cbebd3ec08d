package main

import "fmt"

func cmdLock() {
	resp, err := apiRequest("POST", "/vault/lock", nil)
	if err != nil {
		fatal("lock request (is the server running?): %v", err)
	}
	if err := apiResult(resp, nil); err != nil {
		fatal("lock failed: %v", err)
	}
	removeSessionToken()
	fmt.Println("Vault locked.")
}
