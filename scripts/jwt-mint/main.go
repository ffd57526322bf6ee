// Command jwt-mint prints an HS256 token for local testing.
//
//	go run ./scripts/jwt-mint -secret-file .auth/secret -id 1 -scope fire:get,fire:create,scrape:get
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"firewatch/internal/auth"
	"firewatch/internal/scope"
)

func main() {
	secret := flag.String("secret", "", "HS256 signing secret")
	secretFile := flag.String("secret-file", "", "Path to file containing the signing secret")
	userID := flag.Int64("id", 1, "User id claim")
	scopeList := flag.String("scope", "", "Comma-separated category:action grants, e.g. fire:get,user:update")
	expires := flag.Duration("expires", time.Hour, "Token lifetime (e.g. 1h)")
	flag.Parse()

	key, err := resolveSecret(*secret, *secretFile)
	if err != nil {
		exitErr(err)
	}
	grants, err := parseGrants(*scopeList)
	if err != nil {
		exitErr(err)
	}

	tokens, err := auth.NewTokenManager([]byte(key), *expires, 0)
	if err != nil {
		exitErr(err)
	}
	signed, _, err := tokens.Issue(*userID, scope.FromGrants(grants))
	if err != nil {
		exitErr(err)
	}
	fmt.Println(signed)
}

func resolveSecret(secret, path string) (string, error) {
	if secret != "" {
		return secret, nil
	}
	if path == "" {
		return "", fmt.Errorf("one of -secret or -secret-file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func parseGrants(value string) ([]scope.Grant, error) {
	var grants []scope.Grant
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		category, action, ok := strings.Cut(item, ":")
		if !ok || category == "" || action == "" {
			return nil, fmt.Errorf("invalid grant %q, want category:action", item)
		}
		grants = append(grants, scope.Grant{Category: category, Action: action})
	}
	return grants, nil
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
