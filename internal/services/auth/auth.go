// Package services содержит бизнес-логику аутентификации: регистрацию, вход по паролю
// и через Google, выход, принудительный сброс сессии и проверку токенов.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/glassworks-auth/internal/cache"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/jwt"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/oauth"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/password"
	"github.com/magabrotheeeer/glassworks-auth/internal/lib/sl"
	"github.com/magabrotheeeer/glassworks-auth/internal/metrics"
	"github.com/magabrotheeeer/glassworks-auth/internal/models"
	"github.com/magabrotheeeer/glassworks-auth/internal/session"
)

// DefaultTrialPeriod — длительность пробного периода новой учётной записи.
const DefaultTrialPeriod = 30 * 24 * time.Hour

// Способы входа для метрик и логов.
const (
	MethodPassword = "password"
	MethodGoogle   = "google"
)

// CodeEmailTaken — код ошибки регистрации на занятую почту.
const CodeEmailTaken = "EMAIL_TAKEN"

// ErrEmailTaken возвращается при регистрации на уже занятую почту.
var ErrEmailTaken = models.ErrEmailTaken

// ErrGoogleDisabled возвращается, если вход через Google не настроен.
var ErrGoogleDisabled = errors.New("google login is not configured")

// AccountRepository описывает хранилище учётных записей.
type AccountRepository interface {
	session.AccountStore
	CreateAccount(ctx context.Context, acc *models.Account) (*models.Account, error)
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccountByExternalIdentity(ctx context.Context, provider, subject string) (*models.Account, error)
}

// SessionCache кэширует снимки сессий для проверки токенов.
// SetSession не перезаписывает снимок той же или более новой версии.
type SessionCache interface {
	GetSession(ctx context.Context, accountID string) (*cache.SessionSnapshot, bool, error)
	SetSession(ctx context.Context, accountID string, snap *cache.SessionSnapshot) (bool, error)
	InvalidateSession(ctx context.Context, accountID string) error
}

// EventPublisher публикует события жизненного цикла сессии.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event models.SessionEvent) error
}

// EventHistory читает сохранённые события сессий.
type EventHistory interface {
	ListSessionEvents(ctx context.Context, accountID string, limit int) ([]models.SessionEvent, error)
}

// Границы размера страницы истории сессий.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// AuthService отвечает за регистрацию, вход, выход и проверку JWT.
type AuthService struct {
	accounts    AccountRepository
	jwtMaker    jwt.Maker
	admission   *session.Controller
	verifier    oauth.Verifier
	cache       SessionCache
	events      EventPublisher
	history     EventHistory
	metrics     *metrics.Metrics
	log         *slog.Logger
	trialPeriod time.Duration
	now         func() time.Time
}

// Option настраивает AuthService.
type Option func(*AuthService)

// WithVerifier включает вход через Google.
func WithVerifier(v oauth.Verifier) Option {
	return func(s *AuthService) { s.verifier = v }
}

// WithSessionCache подключает кэш сессий.
func WithSessionCache(c SessionCache) Option {
	return func(s *AuthService) { s.cache = c }
}

// WithEventPublisher подключает публикацию событий сессий.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *AuthService) { s.events = p }
}

// WithEventHistory подключает чтение истории сессий.
func WithEventHistory(h EventHistory) Option {
	return func(s *AuthService) { s.history = h }
}

// WithMetrics подключает счётчики Prometheus.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *AuthService) { s.metrics = m }
}

// WithTrialPeriod задаёт длительность пробного периода.
func WithTrialPeriod(d time.Duration) Option {
	return func(s *AuthService) {
		if d > 0 {
			s.trialPeriod = d
		}
	}
}

// WithClock подменяет источник времени сервиса и контроллера допуска.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(accounts AccountRepository, jwtMaker jwt.Maker, policy session.Policy, log *slog.Logger, opts ...Option) *AuthService {
	s := &AuthService{
		accounts:    accounts,
		jwtMaker:    jwtMaker,
		log:         log,
		trialPeriod: DefaultTrialPeriod,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.admission = session.NewController(accounts, policy, session.WithClock(s.now))
	return s
}

// ErrorCode возвращает машинно-читаемый код ошибки сервиса.
func ErrorCode(err error) string {
	if errors.Is(err, models.ErrEmailTaken) {
		return CodeEmailTaken
	}
	return session.Code(err)
}

// RegisterInput — данные регистрации.
type RegisterInput struct {
	Email        string
	Name         string
	BusinessName string
	Phone        string
	Password     string
}

// Register создает учётную запись владельца с пробной подпиской.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.Profile, error) {
	const op = "services.auth.Register"

	hashed, err := password.GetHash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.now()
	acc := &models.Account{
		Email:        strings.TrimSpace(in.Email),
		Name:         strings.TrimSpace(in.Name),
		BusinessName: strings.TrimSpace(in.BusinessName),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         models.RoleOwner,
		PasswordHash: &hashed,
		Subscription: s.trialSubscription(now),
	}
	created, err := s.accounts.CreateAccount(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.ObserveRegistration()
	s.log.Info("account registered", slog.String("op", op), slog.String("account_id", created.ID))
	return created.Profile(), nil
}

// LoginInput — данные входа по паролю.
type LoginInput struct {
	Email      string
	Password   string
	DeviceID   string
	DeviceInfo models.DeviceInfo
	Override   bool
}

// GoogleLoginInput — данные входа через Google.
type GoogleLoginInput struct {
	IDToken    string
	DeviceID   string
	DeviceInfo models.DeviceInfo
	Override   bool
}

// LoginResult — результат успешного входа.
type LoginResult struct {
	Token   string
	Profile *models.Profile
}

// Login проверяет пароль и допускает вход с устройства.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	const op = "services.auth.Login"

	acc, err := s.accounts.GetAccountByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		s.metrics.ObserveRejection(MethodPassword, session.Code(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.admit(ctx, MethodPassword, session.AdmitRequest{
		AccountID:    acc.ID,
		DeviceID:     in.DeviceID,
		DeviceInfo:   in.DeviceInfo,
		CredentialOK: password.Verify(acc.PasswordHash, in.Password),
		Override:     in.Override,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// GoogleLogin проверяет ID‑токен Google, находит, привязывает или создаёт учётную запись
// и допускает вход с устройства.
func (s *AuthService) GoogleLogin(ctx context.Context, in GoogleLoginInput) (*LoginResult, error) {
	const op = "services.auth.GoogleLogin"
	if s.verifier == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrGoogleDisabled)
	}

	identity, err := s.verifier.Verify(ctx, in.IDToken)
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidToken) {
			s.metrics.ObserveRejection(MethodGoogle, session.CodeUnauthorized)
			return nil, fmt.Errorf("%s: %w: %w", op, session.ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	acc, err := s.resolveExternalAccount(ctx, identity)
	if err != nil {
		s.metrics.ObserveRejection(MethodGoogle, session.Code(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.admit(ctx, MethodGoogle, session.AdmitRequest{
		AccountID:    acc.ID,
		DeviceID:     in.DeviceID,
		DeviceInfo:   in.DeviceInfo,
		CredentialOK: true,
		Override:     in.Override,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// resolveExternalAccount ищет учётную запись по субъекту провайдера, затем по почте
// (с привязкой), иначе создаёт новую без пароля.
func (s *AuthService) resolveExternalAccount(ctx context.Context, id *oauth.Identity) (*models.Account, error) {
	acc, err := s.accounts.GetAccountByExternalIdentity(ctx, id.Provider, id.Subject)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, models.ErrAccountNotFound) {
		return nil, err
	}

	acc, err = s.accounts.GetAccountByEmail(ctx, id.Email)
	switch {
	case err == nil:
		return s.linkIdentity(ctx, acc.ID, id)
	case !errors.Is(err, models.ErrAccountNotFound):
		return nil, err
	}

	now := s.now()
	created, err := s.accounts.CreateAccount(ctx, &models.Account{
		Email:            id.Email,
		Name:             id.Name,
		Role:             models.RoleOwner,
		ExternalIdentity: &models.ExternalIdentity{Provider: id.Provider, Subject: id.Subject},
		EmailVerified:    true,
		Subscription:     s.trialSubscription(now),
	})
	if errors.Is(err, models.ErrEmailTaken) {
		// Параллельный первый вход с той же почтой успел создать запись.
		acc, err = s.accounts.GetAccountByEmail(ctx, id.Email)
		if err != nil {
			return nil, err
		}
		return s.linkIdentity(ctx, acc.ID, id)
	}
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveRegistration()
	s.log.Info("account created from external identity",
		slog.String("account_id", created.ID), slog.String("provider", id.Provider))
	return created, nil
}

func (s *AuthService) linkIdentity(ctx context.Context, accountID string, id *oauth.Identity) (*models.Account, error) {
	return s.accounts.UpdateAccount(ctx, accountID, func(acc *models.Account) error {
		if acc.ExternalIdentity != nil {
			if acc.ExternalIdentity.Provider == id.Provider && acc.ExternalIdentity.Subject == id.Subject {
				return nil
			}
			return session.ErrUnauthorized
		}
		acc.ExternalIdentity = &models.ExternalIdentity{Provider: id.Provider, Subject: id.Subject}
		acc.EmailVerified = true
		return nil
	})
}

func (s *AuthService) admit(ctx context.Context, method string, req session.AdmitRequest) (*LoginResult, error) {
	log := s.log.With(slog.String("method", method), slog.String("account_id", req.AccountID))

	res, err := s.admission.AdmitLogin(ctx, req)
	if err != nil {
		code := session.Code(err)
		s.metrics.ObserveRejection(method, code)
		if code == session.CodeInternal {
			log.Error("login admission failed", sl.Err(err))
		} else {
			log.Info("login rejected", slog.String("code", code))
		}
		return nil, err
	}

	acc := res.Account
	token, err := s.jwtMaker.GenerateToken(acc.ID, acc.Role, req.DeviceID)
	if err != nil {
		return nil, err
	}

	if res.Healed {
		log.Warn("dropped session without device id")
	}
	kind := models.EventSessionAdmitted
	switch res.Outcome {
	case session.OutcomeSuperseded:
		kind = models.EventSessionSuperseded
	case session.OutcomeOverridden:
		kind = models.EventSessionOverridden
	}
	s.afterCommit(ctx, acc, kind, req.DeviceID, res.PreviousDeviceID)
	s.metrics.ObserveAdmission(method, string(res.Outcome))
	log.Info("login admitted", slog.String("outcome", string(res.Outcome)))

	return &LoginResult{Token: token, Profile: acc.Profile()}, nil
}

// Logout завершает активную сессию учётной записи. Повторный вызов не считается ошибкой.
func (s *AuthService) Logout(ctx context.Context, accountID string) error {
	const op = "services.auth.Logout"

	res, err := s.admission.Logout(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.PreviousDeviceID != "" {
		s.afterCommit(ctx, res.Account, models.EventSessionCleared, "", res.PreviousDeviceID)
	} else {
		s.refreshSession(ctx, res.Account)
	}
	s.metrics.ObserveLogout()
	s.log.Info("logged out", slog.String("op", op), slog.String("account_id", accountID))
	return nil
}

// ForceClearInput — данные принудительного сброса сессии.
type ForceClearInput struct {
	Email    string
	Password string
}

// ForceClearSession сбрасывает закреплённое устройство и сессию после повторной проверки пароля.
func (s *AuthService) ForceClearSession(ctx context.Context, in ForceClearInput) error {
	const op = "services.auth.ForceClearSession"

	acc, err := s.accounts.GetAccountByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.admission.ForceClearSession(ctx, acc.ID, password.Verify(acc.PasswordHash, in.Password))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.afterCommit(ctx, res.Account, models.EventSessionCleared, "", res.PreviousDeviceID)
	s.metrics.ObserveForceClear()
	s.log.Info("session force-cleared", slog.String("op", op), slog.String("account_id", acc.ID))
	return nil
}

// Profile возвращает профиль учётной записи.
func (s *AuthService) Profile(ctx context.Context, accountID string) (*models.Profile, error) {
	const op = "services.auth.Profile"
	acc, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acc.Profile(), nil
}

// SessionHistory возвращает последние события сессий учётной записи, новые первыми.
// limit вне диапазона 1..MaxHistoryLimit заменяется значением по умолчанию или максимумом.
func (s *AuthService) SessionHistory(ctx context.Context, accountID string, limit int) ([]models.SessionEvent, error) {
	const op = "services.auth.SessionHistory"
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	if s.history == nil {
		return []models.SessionEvent{}, nil
	}
	events, err := s.history.ListSessionEvents(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if events == nil {
		events = []models.SessionEvent{}
	}
	return events, nil
}

// TokenInfo — данные проверенного токена.
type TokenInfo struct {
	AccountID string
	Role      string
	DeviceID  string
}

// ValidateToken проверяет подпись и срок JWT. Токен, привязанный к устройству,
// действителен, только пока это устройство держит активную сессию.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	const op = "services.auth.ValidateToken"

	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, session.ErrUnauthorized, err)
	}
	info := &TokenInfo{AccountID: claims.AccountID(), Role: claims.Role, DeviceID: claims.DeviceID}
	if claims.DeviceID == "" {
		return info, nil
	}

	snap, err := s.sessionSnapshot(ctx, info.AccountID)
	if errors.Is(err, models.ErrAccountNotFound) {
		return nil, fmt.Errorf("%s: %w", op, session.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if snap.ActiveSession == nil || snap.ActiveSession.DeviceID != claims.DeviceID {
		return nil, fmt.Errorf("%s: session ended: %w", op, session.ErrUnauthorized)
	}
	info.Role = snap.Role
	return info, nil
}

func (s *AuthService) sessionSnapshot(ctx context.Context, accountID string) (*cache.SessionSnapshot, error) {
	if s.cache != nil {
		snap, found, err := s.cache.GetSession(ctx, accountID)
		if err != nil {
			s.log.Warn("session cache read failed", slog.String("account_id", accountID), sl.Err(err))
		} else if found {
			return snap, nil
		}
	}

	acc, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	snap := snapshotOf(acc)
	if s.cache != nil {
		if _, err := s.cache.SetSession(ctx, accountID, snap); err != nil {
			s.log.Warn("session cache write failed", slog.String("account_id", accountID), sl.Err(err))
		}
	}
	return snap, nil
}

func snapshotOf(acc *models.Account) *cache.SessionSnapshot {
	return &cache.SessionSnapshot{Version: acc.Version, Role: acc.Role, ActiveSession: acc.ActiveSession}
}

// afterCommit обновляет кэш и публикует событие. Ошибки только логируются.
func (s *AuthService) afterCommit(ctx context.Context, acc *models.Account, kind, deviceID, previousDeviceID string) {
	s.refreshSession(ctx, acc)
	if s.events == nil {
		return
	}
	accountID := acc.ID
	event := models.SessionEvent{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		Kind:             kind,
		DeviceID:         deviceID,
		PreviousDeviceID: previousDeviceID,
		OccurredAt:       s.now(),
	}
	if err := s.events.PublishSessionEvent(ctx, event); err != nil {
		s.log.Warn("failed to publish session event",
			slog.String("account_id", accountID), slog.String("kind", kind), sl.Err(err))
	}
}

// refreshSession кладёт в кэш снимок зафиксированной записи. Снимок, прочитанный
// до фиксации, уже не сможет его перезаписать. Если запись не удалась, ключ удаляется.
func (s *AuthService) refreshSession(ctx context.Context, acc *models.Account) {
	if s.cache == nil {
		return
	}
	_, err := s.cache.SetSession(ctx, acc.ID, snapshotOf(acc))
	if err == nil {
		return
	}
	s.log.Warn("session cache refresh failed", slog.String("account_id", acc.ID), sl.Err(err))
	if err := s.cache.InvalidateSession(ctx, acc.ID); err != nil {
		s.log.Warn("failed to invalidate session cache", slog.String("account_id", acc.ID), sl.Err(err))
	}
}

func (s *AuthService) trialSubscription(now time.Time) models.Subscription {
	return models.Subscription{
		Tier:      models.TierTrial,
		Status:    models.SubscriptionTrial,
		StartDate: now,
		EndDate:   now.Add(s.trialPeriod),
	}
}
