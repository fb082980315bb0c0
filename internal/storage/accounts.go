package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magabrotheeeer/glassworks-auth/internal/models"
)

const pgUniqueViolation = "23505"

const accountCols = `uid, email, name, business_name, phone, role, password_hash,
	external_provider, external_subject, email_verified,
	subscription_tier, subscription_status, subscription_start, subscription_end,
	pinned_device_id, session_device_id, session_device_info, session_last_login_at,
	version, created_at, updated_at`

func scanAccount(scanner interface{ Scan(...any) error }) (*models.Account, error) {
	var (
		a                    models.Account
		passwordHash         sql.NullString
		extProvider, extSubj sql.NullString
		pinnedDevice         sql.NullString
		sessionDevice        sql.NullString
		sessionInfo          []byte
		sessionLastLogin     sql.NullTime
	)
	err := scanner.Scan(
		&a.ID, &a.Email, &a.Name, &a.BusinessName, &a.Phone, &a.Role, &passwordHash,
		&extProvider, &extSubj, &a.EmailVerified,
		&a.Subscription.Tier, &a.Subscription.Status, &a.Subscription.StartDate, &a.Subscription.EndDate,
		&pinnedDevice, &sessionDevice, &sessionInfo, &sessionLastLogin,
		&a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if passwordHash.Valid {
		a.PasswordHash = &passwordHash.String
	}
	if extProvider.Valid && extSubj.Valid {
		a.ExternalIdentity = &models.ExternalIdentity{Provider: extProvider.String, Subject: extSubj.String}
	}
	if pinnedDevice.Valid {
		a.PinnedDeviceID = &pinnedDevice.String
	}
	if sessionDevice.Valid || sessionLastLogin.Valid {
		s := &models.ActiveSession{DeviceID: sessionDevice.String, LastLoginAt: sessionLastLogin.Time}
		if len(sessionInfo) > 0 {
			if err := json.Unmarshal(sessionInfo, &s.DeviceInfo); err != nil {
				return nil, fmt.Errorf("decode session device info: %w", err)
			}
		}
		a.ActiveSession = s
	}
	return &a, nil
}

// accountArgs раскладывает изменяемые поля учётной записи в параметры запроса.
func accountArgs(a *models.Account) ([]any, error) {
	var (
		extProvider, extSubject any
		sessionDevice           any
		sessionInfo             any
		sessionLastLogin        any
	)
	if a.ExternalIdentity != nil {
		extProvider, extSubject = a.ExternalIdentity.Provider, a.ExternalIdentity.Subject
	}
	if a.ActiveSession != nil {
		info, err := json.Marshal(a.ActiveSession.DeviceInfo)
		if err != nil {
			return nil, err
		}
		if a.ActiveSession.DeviceID != "" {
			sessionDevice = a.ActiveSession.DeviceID
		}
		sessionInfo = info
		sessionLastLogin = a.ActiveSession.LastLoginAt
	}
	return []any{
		a.Email, a.Name, a.BusinessName, a.Phone, a.Role, a.PasswordHash,
		extProvider, extSubject, a.EmailVerified,
		a.Subscription.Tier, a.Subscription.Status, a.Subscription.StartDate, a.Subscription.EndDate,
		a.PinnedDeviceID, sessionDevice, sessionInfo, sessionLastLogin,
	}, nil
}

// CreateAccount сохраняет новую учётную запись и возвращает её с назначенным ID.
func (s *Storage) CreateAccount(ctx context.Context, acc *models.Account) (*models.Account, error) {
	const op = "storage.CreateAccount"
	args, err := accountArgs(acc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO accounts (email, name, business_name, phone, role, password_hash,
			      external_provider, external_subject, email_verified,
			      subscription_tier, subscription_status, subscription_start, subscription_end,
			      pinned_device_id, session_device_id, session_device_info, session_last_login_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			  RETURNING ` + accountCols
	created, err := scanAccount(s.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("%s: %w", op, models.ErrEmailTaken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

func (s *Storage) getAccount(ctx context.Context, op, where string, args ...any) (*models.Account, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE `+where, args...)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

// GetAccount возвращает учётную запись по ID.
func (s *Storage) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	return s.getAccount(ctx, "storage.GetAccount", `uid::text = $1`, accountID)
}

// GetAccountByEmail возвращает учётную запись по почте без учёта регистра.
func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.getAccount(ctx, "storage.GetAccountByEmail", `LOWER(email) = LOWER($1)`, email)
}

// GetAccountByExternalIdentity возвращает учётную запись, привязанную к субъекту провайдера.
func (s *Storage) GetAccountByExternalIdentity(ctx context.Context, provider, subject string) (*models.Account, error) {
	return s.getAccount(ctx, "storage.GetAccountByExternalIdentity",
		`external_provider = $1 AND external_subject = $2`, provider, subject)
}

// UpdateAccount выполняет атомарное чтение‑изменение‑запись учётной записи.
//
// Строка блокируется SELECT ... FOR UPDATE до конца транзакции, поэтому конкурентные
// вызовы для одного accountID выполняются последовательно. UPDATE дополнительно
// сверяет version. Ошибка fn откатывает транзакцию.
func (s *Storage) UpdateAccount(ctx context.Context, accountID string, fn func(acc *models.Account) error) (*models.Account, error) {
	const op = "storage.UpdateAccount"
	var updated *models.Account
	err := withTx(ctx, s.DB, nil, func(ctx context.Context, tx DBTX) error {
		row := tx.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE uid::text = $1 FOR UPDATE`, accountID)
		acc, err := scanAccount(row)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		version := acc.Version
		if err := fn(acc); err != nil {
			return err
		}

		args, err := accountArgs(acc)
		if err != nil {
			return err
		}
		args = append(args, accountID, version)
		query := `UPDATE accounts SET
			      email = $1, name = $2, business_name = $3, phone = $4, role = $5, password_hash = $6,
			      external_provider = $7, external_subject = $8, email_verified = $9,
			      subscription_tier = $10, subscription_status = $11,
			      subscription_start = $12, subscription_end = $13,
			      pinned_device_id = $14, session_device_id = $15,
			      session_device_info = $16, session_last_login_at = $17,
			      version = version + 1, updated_at = NOW()
			  WHERE uid::text = $18 AND version = $19
			  RETURNING ` + accountCols
		updated, err = scanAccount(tx.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrVersionConflict
		}
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("%s: %w", op, models.ErrEmailTaken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return updated, nil
}
