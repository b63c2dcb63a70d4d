package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/learnframe/learnframe-backend/internal/model"
	"github.com/learnframe/learnframe-backend/internal/repository"
)

// MinAdminPasswordLen matches the login payload validation.
const MinAdminPasswordLen = 8

var (
	ErrUnknownRole  = errors.New("unknown role")
	ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinAdminPasswordLen)
)

// Passwords hashes and verifies operator passwords.
type Passwords interface {
	HashPassword(password string) (string, error)
	CheckPassword(hash, password string) error
}

// AdminService authenticates operators and resolves their permissions.
type AdminService struct {
	adminRepo *repository.AdminRepository
	roleRepo  *repository.RoleRepository
	passwords Passwords
}

func NewAdminService(adminRepo *repository.AdminRepository, roleRepo *repository.RoleRepository, passwords Passwords) *AdminService {
	return &AdminService{adminRepo: adminRepo, roleRepo: roleRepo, passwords: passwords}
}

// Authenticate checks credentials and returns the operator with its
// permissions. Unknown emails and wrong passwords both yield
// ErrInvalidCredentials.
func (s *AdminService) Authenticate(ctx context.Context, email, password string) (*model.Admin, []string, error) {
	admin, err := s.adminRepo.GetByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lookup admin: %w", err)
	}
	if err := s.passwords.CheckPassword(admin.PasswordHash, password); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	permissions, err := s.GetPermissions(ctx, admin.RoleID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	if err := s.adminRepo.TouchLogin(ctx, admin.ID, now); err != nil {
		return nil, nil, fmt.Errorf("record login: %w", err)
	}
	admin.LastLoginAt = &now
	return admin, permissions, nil
}

func (s *AdminService) GetByID(ctx context.Context, id int) (*model.Admin, error) {
	return s.adminRepo.GetByID(ctx, id)
}

// GetPermissions retrieves permission codes for an operator's role.
func (s *AdminService) GetPermissions(ctx context.Context, roleID int) ([]string, error) {
	permissions, err := s.roleRepo.GetPermissionsByRoleID(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}
	return permissions, nil
}

// Register creates an operator, or rotates the password and role of an
// existing one with the same email.
func (s *AdminService) Register(ctx context.Context, name, email, password, roleName string) (*model.Admin, error) {
	if len(password) < MinAdminPasswordLen {
		return nil, ErrWeakPassword
	}

	roleID, err := s.roleRepo.GetIDByName(ctx, roleName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, roleName)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup role: %w", err)
	}

	hash, err := s.passwords.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	admin := &model.Admin{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		RoleID:       roleID,
		RoleName:     roleName,
	}
	if err := s.adminRepo.Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	return admin, nil
}
