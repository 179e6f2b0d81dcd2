package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/campus-auth/internal/model"
	"github.com/iliyamo/campus-auth/internal/utils"
)

// UserRepo is the principal directory backed by the `users` table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,password_hash,university_id,university_name,university_domain,user_type,is_verified,is_active,created_at,updated_at"

// Create hashes password, inserts the principal and returns it with ID and
// timestamps filled in.
func (r *UserRepo) Create(ctx context.Context, p model.Principal, password string, cost int) (model.Principal, error) {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return model.Principal{}, err
	}
	p.ID = utils.NewSessionID()
	p.PasswordHash = hash
	p.IsActive = true
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?)",
		p.ID, p.Email, p.PasswordHash, nullable(p.UniversityID), p.UniversityName, p.UniversityDomain,
		string(p.Type), p.IsVerified, p.IsActive, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return model.Principal{}, ErrEmailExists
		}
		return model.Principal{}, unavailable("users insert", err)
	}
	return p, nil
}

// GetByEmail fetches a principal by normalized email.  ErrNotFound when absent.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a principal by id.  ErrNotFound when absent.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.Principal, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// Ping reports whether the directory is reachable.
func (r *UserRepo) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

func (r *UserRepo) scanOne(row *sql.Row) (model.Principal, error) {
	var (
		p     model.Principal
		uniID sql.NullString
		typ   string
	)
	err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &uniID, &p.UniversityName, &p.UniversityDomain,
		&typ, &p.IsVerified, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Principal{}, ErrNotFound
	}
	if err != nil {
		return model.Principal{}, unavailable("users lookup", err)
	}
	p.UniversityID = uniID.String
	p.Type = model.PrincipalType(typ)
	return p, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
