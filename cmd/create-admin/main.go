package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/service"
	"golang.org/x/term"
)

func main() {
	reset := flag.Bool("reset", false, "Reset the password of an existing account instead of creating one")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Initialize Service ────────────────────────────────────────────
	authService := service.NewAuthService(cfg, repository.NewUserRepository(pool), log)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	if *reset {
		fmt.Println("=== Reset Account Password ===")
	} else {
		fmt.Println("=== Create New Admin Account ===")
	}

	// Email
	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	// Password
	password, ok := readPassword("Enter Password: ")
	if !ok {
		return
	}
	confirm, ok := readPassword("Confirm Password: ")
	if !ok {
		return
	}
	if password != confirm {
		fmt.Println("Error: Passwords do not match")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────

	if *reset {
		u, err := authService.ResetPassword(ctx, email, password)
		if err != nil {
			if errors.Is(err, service.ErrInvalidCredentials) {
				fmt.Printf("Error: No account with email %s\n", email)
				return
			}
			log.Fatal().Err(err).Msg("Failed to reset password")
		}
		fmt.Printf("\nSuccess! Password for '%s' (ID %d) was reset\n", u.Email, u.ID)
		return
	}

	u, err := authService.Register(ctx, &model.RegisterRequest{
		Email:    email,
		Password: password,
		Role:     model.RoleAdmin,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			fmt.Println("Error: Email already registered (use -reset to change its password)")
			return
		}
		log.Fatal().Err(err).Msg("Failed to create admin")
	}

	fmt.Printf("\nSuccess! Admin '%s' created with ID: %d\n", u.Email, u.ID)
}

func readPassword(prompt string) (string, bool) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Newline after password input
	if err != nil {
		fmt.Println("Error reading password")
		return "", false
	}
	password := string(b)
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return "", false
	}
	return password, true
}
