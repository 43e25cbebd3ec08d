package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/whisperrkeep/wkeep/internal/crypto"
)

// genpass runs locally; it needs no server and no unlocked vault.
func cmdGenpass() {
	length := 20
	charset := crypto.CharsetStrong
	for _, arg := range os.Args[2:] {
		if arg == "--alnum" {
			charset = crypto.CharsetAlphanumeric
			continue
		}
		if n, err := strconv.Atoi(arg); err == nil {
			length = n
		}
	}

	pw, err := crypto.GeneratePassword(length, charset)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Println(pw)
}
