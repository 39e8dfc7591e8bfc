package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"guildgate/cmd/internal/app"
	"guildgate/cmd/security/secret"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-secret" {
		if err := hashSecret(os.Args[2:]); err != nil {
			log.Fatal(err)
		}
		return
	}
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}

// hashSecret prints an argon2id encoding suitable for GUILDGATE_API_TOKEN.
// The secret is read from the first line of stdin so it stays out of shell history.
func hashSecret(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("hash-secret: unexpected arguments %q", args)
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read secret from stdin: %w", err)
	}

	plain := strings.TrimRight(line, "\r\n")
	if err := secret.CheckStrength(plain); err != nil {
		return fmt.Errorf("hash-secret: %w", err)
	}

	encoded, err := secret.Hash(plain, secret.DefaultParams())
	if err != nil {
		return err
	}
	fmt.Println(encoded)
	return nil
}
