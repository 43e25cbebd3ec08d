package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "register":
		cmdRegister()
	case "login":
		cmdLogin()
	case "init":
		cmdInit()
	case "unlock":
		cmdUnlock()
	case "lock":
		cmdLock()
	case "serve":
		cmdServe()
	case "status":
		cmdStatus()
	case "import":
		cmdImport()
	case "passkey":
		cmdPasskey()
	case "genpass":
		cmdGenpass()
	case "audit":
		cmdAudit()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: wkeep <command> [args]

Commands:
  register              Create an account
  login                 Log in and store an account token
  init                  Create a new vault for the current user
  unlock [--passkey]    Unlock vault (starts background server)
  lock                  Lock vault
  serve                 Run server in foreground
  status                Show vault status
  import <file> [--format bitwarden|wkeep]  Import records from an export file
  passkey add <name>    Register a passkey that can unlock the vault
  passkey list          List registered passkeys
  genpass [length]      Generate a random password (--alnum for letters/digits only)
  audit                 Show session audit log`)
}
