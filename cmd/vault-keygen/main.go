// Package main provides a tool to generate a vault master key.
//
// The printed key must be persisted (for example in VAULT_MASTER_KEY)
// before the API server is started; data encrypted under a lost key is
// unrecoverable.
package main

import (
	"fmt"
	"os"

	"github.com/nimbuslabs/integration-hub/internal/vault"
)

func main() {
	key, err := vault.NewKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(key)
}
