package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/learnframe/learnframe-backend/internal/config"
	"github.com/learnframe/learnframe-backend/internal/database"
	"github.com/learnframe/learnframe-backend/internal/logger"
	"github.com/learnframe/learnframe-backend/internal/repository"
	"github.com/learnframe/learnframe-backend/internal/service"
)

const defaultRole = "super_admin"

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// Redis is only needed for wallet logins; hashing works without it.
	authService := service.NewAuthService(cfg, nil)
	adminService := service.NewAdminService(
		repository.NewAdminRepository(pool),
		repository.NewRoleRepository(pool),
		authService,
	)

	reader := bufio.NewReader(os.Stdin)
	fmt.Println("=== Create Operator Account ===")

	name := prompt(reader, "Name")
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	email := prompt(reader, "Email")
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	fmt.Print("Password: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}
	password := string(raw)

	roleName := prompt(reader, "Role (default "+defaultRole+")")
	if roleName == "" {
		roleName = defaultRole
	}

	admin, err := adminService.Register(ctx, name, email, password, roleName)
	switch {
	case errors.Is(err, service.ErrWeakPassword), errors.Is(err, service.ErrUnknownRole):
		fmt.Println("Error:", err)
		return
	case err != nil:
		log.Fatal().Err(err).Msg("Failed to create admin")
	}

	fmt.Printf("\nSaved %s <%s> as %s (id %d)\n", admin.Name, admin.Email, admin.RoleName, admin.ID)
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Print(label + ": ")
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}
