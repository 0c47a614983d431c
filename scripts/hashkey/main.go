// Command hashkey prints the Argon2id hash of an API key in the encoding
// expected by ICHIBA_API_KEY_HASHES.
//
// Usage (run from the repo root):
//
//	go run ./scripts/hashkey            # generate a fresh key and hash it
//	go run ./scripts/hashkey <api-key>  # hash an existing key
//
// The server only ever sees hashes. When hashkey generates a key it is
// printed exactly once — hand it to the client and keep the hash. The
// fingerprint line shows how the key will be named in token subjects and
// logs.
//
// Safe to run any number of times: each run salts anew, so hashing the same
// key twice yields different (equally valid) hashes.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/ashita-ai/ichiba/internal/auth"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) > 2 {
		return fmt.Errorf("usage: hashkey [api-key]")
	}

	var key string
	generated := false
	if len(os.Args) == 2 {
		key = os.Args[1]
		if key == "" {
			return fmt.Errorf("api key must not be empty")
		}
	} else {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		key = "ichiba_" + base64.RawURLEncoding.EncodeToString(raw)
		generated = true
	}

	hash, err := auth.HashAPIKey(key)
	if err != nil {
		return err
	}

	// Round-trip before printing so a hash that cannot verify never reaches
	// anyone's config.
	ok, err := auth.VerifyAPIKey(key, hash)
	if err != nil || !ok {
		return fmt.Errorf("self-check failed: freshly computed hash does not verify")
	}

	if generated {
		fmt.Printf("api key:     %s\n", key)
		fmt.Println("store the key now; only the hash below is kept server-side")
	}
	fmt.Printf("fingerprint: %s\n", auth.Fingerprint(hash))
	fmt.Printf("hash:        %s\n", hash)
	fmt.Println()
	fmt.Println("add the hash to ICHIBA_API_KEY_HASHES (comma separated for multiple keys):")
	fmt.Printf("  ICHIBA_API_KEY_HASHES='%s'\n", hash)
	return nil
}
