package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnframe/learnframe-backend/internal/model"
)

const adminColumns = `a.id, a.email, a.name, a.password_hash, a.role_id, r.name, a.last_login_at, a.created_at`

// AdminRepository handles operator account data access.
type AdminRepository struct {
	pool *pgxpool.Pool
}

func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

func scanAdmin(row pgx.Row) (*model.Admin, error) {
	a := &model.Admin{}
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.RoleID, &a.RoleName, &a.LastLoginAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an admin together with its role name.
func (r *AdminRepository) GetByID(ctx context.Context, id int) (*model.Admin, error) {
	return scanAdmin(r.pool.QueryRow(ctx,
		`SELECT `+adminColumns+`
		 FROM admins a JOIN roles r ON r.id = a.role_id
		 WHERE a.id = $1`, id,
	))
}

// GetByEmail matches emails case-insensitively; they are stored lowercased.
func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	return scanAdmin(r.pool.QueryRow(ctx,
		`SELECT `+adminColumns+`
		 FROM admins a JOIN roles r ON r.id = a.role_id
		 WHERE a.email = $1`, model.NormalizeEmail(email),
	))
}

// Create inserts a new operator. An existing email is updated in place so
// re-running the bootstrap command rotates the password.
func (r *AdminRepository) Create(ctx context.Context, a *model.Admin) error {
	a.Email = model.NormalizeEmail(a.Email)
	return r.pool.QueryRow(ctx,
		`INSERT INTO admins (email, name, password_hash, role_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE
		 SET name = EXCLUDED.name,
		     password_hash = EXCLUDED.password_hash,
		     role_id = EXCLUDED.role_id,
		     updated_at = NOW()
		 RETURNING id, created_at`,
		a.Email, a.Name, a.PasswordHash, a.RoleID,
	).Scan(&a.ID, &a.CreatedAt)
}

// TouchLogin records a successful sign-in.
func (r *AdminRepository) TouchLogin(ctx context.Context, id int, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE admins SET last_login_at = $2 WHERE id = $1`, id, at,
	)
	return err
}
