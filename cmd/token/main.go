// Command token mints a bearer token for an existing user, for local testing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"rentchat/internal/app"
	"rentchat/internal/config"
	"rentchat/internal/user"
)

func main() {
	userID := flag.String("user", "", "user id to mint a token for")
	flag.Parse()
	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: token -user <id>")
		os.Exit(2)
	}

	if err := run(*userID); err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
}

func run(userID string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	b, err := app.OpenBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	u, err := b.Users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup %q: %w", userID, err)
	}

	tokens := user.NewTokenService(b.Users, cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	tok, exp, err := tokens.Issue(u)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s (%s) expires %s\n", u.ID, u.Role, exp.Format(time.RFC3339))
	fmt.Println(tok)
	return nil
}
