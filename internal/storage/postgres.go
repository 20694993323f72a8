package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"account_service/internal/models"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

const userColumns = `id, fullname, username, email, password_hash, password_salt, birthday, last_login,
	active, blocked, is_admin, created_at, created_by, updated_at, updated_by`

type PostgresStorage struct {
	db *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, dbURL string) (*PostgresStorage, error) {
	const op = "storage.NewPostgresStorage"

	conn, err := pgxpool.Connect(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &PostgresStorage{
		db: conn,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (models.User, error) {
	var (
		user     models.User
		birthday *time.Time
	)

	err := row.Scan(
		&user.ID,
		&user.Fullname,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.PasswordSalt,
		&birthday,
		&user.LastLogin,
		&user.Active,
		&user.Blocked,
		&user.IsAdmin,
		&user.CreatedAt,
		&user.CreatedBy,
		&user.UpdatedAt,
		&user.UpdatedBy,
	)
	if err != nil {
		return user, err
	}

	if birthday != nil {
		y, m, d := birthday.Date()
		date := models.NewDate(y, m, d)
		user.Birthday = &date
	}

	return user, nil
}

func dateParam(d *models.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

// buildWhere renders filter as a WHERE clause whose placeholders start at
// $next.
func buildWhere(filter models.UserFilter, next int) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if filter.ID != uuid.Nil {
		conds = append(conds, fmt.Sprintf("id=$%d", next+len(args)))
		args = append(args, filter.ID)
	}
	if filter.Email != "" {
		conds = append(conds, fmt.Sprintf("email=$%d", next+len(args)))
		args = append(args, filter.Email)
	}
	if filter.NonAdmin {
		conds = append(conds, "is_admin=FALSE")
	}

	if len(conds) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

func buildSet(changes models.UserChanges) (string, []any) {
	var (
		sets []string
		args []any
	)

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	if changes.Fullname != nil {
		add("fullname", *changes.Fullname)
	}
	if changes.Username != nil {
		add("username", *changes.Username)
	}
	if changes.Email != nil {
		add("email", *changes.Email)
	}
	if changes.PasswordHash != nil {
		add("password_hash", *changes.PasswordHash)
	}
	if changes.PasswordSalt != nil {
		add("password_salt", *changes.PasswordSalt)
	}
	if changes.Birthday != nil {
		add("birthday", dateParam(changes.Birthday))
	}
	if changes.LastLogin != nil {
		add("last_login", *changes.LastLogin)
	}
	if changes.Active != nil {
		add("active", *changes.Active)
	}
	if changes.Blocked != nil {
		add("blocked", *changes.Blocked)
	}
	if changes.IsAdmin != nil {
		add("is_admin", *changes.IsAdmin)
	}
	if changes.UpdatedAt != nil {
		add("updated_at", *changes.UpdatedAt)
	}
	if changes.UpdatedBy != nil {
		add("updated_by", *changes.UpdatedBy)
	}

	return strings.Join(sets, ", "), args
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}

func (p *PostgresStorage) FindUser(ctx context.Context, filter models.UserFilter) (models.User, error) {
	const op = "storage.FindUser"

	where, args := buildWhere(filter, 1)
	query := fmt.Sprintf("SELECT %s FROM %s%s LIMIT 1;", userColumns, usersTable, where)

	user, err := scanUser(p.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (p *PostgresStorage) ListUsers(ctx context.Context, filter models.UserFilter, limit int) ([]models.User, error) {
	const op = "storage.ListUsers"

	where, args := buildWhere(filter, 1)
	args = append(args, limit)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at LIMIT $%d;", userColumns, usersTable, where, len(args))

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows): %w", op, err)
	}

	return users, nil
}

func (p *PostgresStorage) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const op = "storage.CreateUser"

	if user.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return models.User{}, fmt.Errorf("%s: %w", op, err)
		}
		user.ID = id
	}

	query := fmt.Sprintf(`INSERT INTO %s(%s)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	RETURNING %s;`, usersTable, userColumns, userColumns)

	created, err := scanUser(p.db.QueryRow(ctx, query,
		user.ID,
		user.Fullname,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.PasswordSalt,
		dateParam(user.Birthday),
		user.LastLogin,
		user.Active,
		user.Blocked,
		user.IsAdmin,
		user.CreatedAt,
		user.CreatedBy,
		user.UpdatedAt,
		user.UpdatedBy,
	))
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, mapWriteError(err))
	}

	return created, nil
}

func (p *PostgresStorage) UpdateUser(ctx context.Context, filter models.UserFilter, changes models.UserChanges) (int64, error) {
	const op = "storage.UpdateUser"

	if changes.IsEmpty() {
		return 0, nil
	}

	set, args := buildSet(changes)
	where, whereArgs := buildWhere(filter, len(args)+1)
	if where == "" {
		return 0, fmt.Errorf("%s: %w", op, ErrEmptyFilter)
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s;", usersTable, set, where)

	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, mapWriteError(err))
	}

	return tag.RowsAffected(), nil
}

func (p *PostgresStorage) DeleteUser(ctx context.Context, filter models.UserFilter) (int64, error) {
	const op = "storage.DeleteUser"

	where, args := buildWhere(filter, 1)
	if where == "" {
		return 0, fmt.Errorf("%s: %w", op, ErrEmptyFilter)
	}
	query := fmt.Sprintf("DELETE FROM %s%s;", usersTable, where)

	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (p *PostgresStorage) Close() {
	p.db.Close()
}
