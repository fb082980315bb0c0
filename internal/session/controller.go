// Package session реализует контроль допуска входа: политику единственной
// сессии на учётную запись с привязкой к устройству.
//
// Controller решает, допустить ли вход с уже проверенными учётными данными,
// исходя из закреплённого устройства и активной сессии, и атомарно фиксирует
// новое состояние через AccountStore.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/glassworks-auth/internal/models"
)

// DefaultStaleAfter — возраст, после которого активная сессия перестаёт блокировать вход.
const DefaultStaleAfter = 24 * time.Hour

// AccountStore описывает хранилище учётных записей.
//
// UpdateAccount выполняет атомарное чтение‑изменение‑запись одной учётной записи:
// fn получает последнее зафиксированное состояние, конкурентные вызовы для одного
// accountID сериализуются хранилищем. Если fn возвращает ошибку, изменения
// отбрасываются и ошибка возвращается вызывающему. Для неизвестного accountID
// возвращается models.ErrAccountNotFound.
type AccountStore interface {
	UpdateAccount(ctx context.Context, accountID string, fn func(acc *models.Account) error) (*models.Account, error)
}

// Policy задаёт эвристики допуска.
type Policy struct {
	// StaleAfter — после этого возраста чужая сессия считается истёкшей и вытесняется молча.
	StaleAfter time.Duration
	// VerifyEmailOnLogin помечает почту подтверждённой после успешного входа.
	VerifyEmailOnLogin bool
}

// DefaultPolicy возвращает политику по умолчанию.
func DefaultPolicy() Policy {
	return Policy{
		StaleAfter:         DefaultStaleAfter,
		VerifyEmailOnLogin: true,
	}
}

// Outcome описывает, что произошло с сессией при допуске.
type Outcome string

const (
	// OutcomeAdmitted — вход допущен без вытеснения чужой сессии.
	OutcomeAdmitted Outcome = "admitted"
	// OutcomeSuperseded — вытеснена устаревшая сессия другого устройства.
	OutcomeSuperseded Outcome = "superseded"
	// OutcomeOverridden — вызывающий явно запросил выход с других устройств.
	OutcomeOverridden Outcome = "overridden"
	// OutcomeRejected — вход отклонён.
	OutcomeRejected Outcome = "rejected"
)

// AdmitRequest — параметры попытки входа.
type AdmitRequest struct {
	AccountID string
	// DeviceID пустой, если клиент не передал идентификатор устройства: проверка устройства не выполняется.
	DeviceID   string
	DeviceInfo models.DeviceInfo
	// CredentialOK истинно, только если пароль или OAuth‑утверждение уже проверены.
	CredentialOK bool
	// Override — запрос на вытеснение любой другой активной сессии.
	Override bool
}

// AdmitResult — результат успешного допуска.
type AdmitResult struct {
	Account          *models.Account
	Outcome          Outcome
	PreviousDeviceID string
	// Healed истинно, если повреждённая сессия без устройства была сброшена.
	Healed bool
}

// Controller принимает решения о допуске входа.
type Controller struct {
	store  AccountStore
	policy Policy
	now    func() time.Time
}

// Option настраивает Controller.
type Option func(*Controller)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController создаёт Controller. Нулевой StaleAfter заменяется значением по умолчанию.
func NewController(store AccountStore, policy Policy, opts ...Option) *Controller {
	if policy.StaleAfter <= 0 {
		policy.StaleAfter = DefaultStaleAfter
	}
	c := &Controller{
		store:  store,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AdmitLogin решает, допустить ли вход, и фиксирует новую сессию.
//
// Порядок: проверка учётных данных, явное вытеснение либо проверка конфликта,
// ленивая сверка подписки, фиксация сессии. Все отказы не меняют состояние.
func (c *Controller) AdmitLogin(ctx context.Context, req AdmitRequest) (*AdmitResult, error) {
	const op = "session.AdmitLogin"
	if !req.CredentialOK {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	res := &AdmitResult{Outcome: OutcomeAdmitted}
	acc, err := c.store.UpdateAccount(ctx, req.AccountID, func(acc *models.Account) error {
		now := c.now()
		res.Outcome = OutcomeAdmitted
		res.PreviousDeviceID = ""
		res.Healed = false

		if acc.ActiveSession != nil {
			res.PreviousDeviceID = acc.ActiveSession.DeviceID
		}

		if req.Override {
			acc.PinnedDeviceID = nil
			acc.ActiveSession = nil
			if res.PreviousDeviceID != "" && res.PreviousDeviceID != req.DeviceID {
				res.Outcome = OutcomeOverridden
			}
		} else {
			res.Healed = healCorruptSession(acc)
			if conflict, stale := c.conflicts(acc, req.DeviceID, now); conflict {
				return ErrDeviceConflict
			} else if stale {
				res.Outcome = OutcomeSuperseded
			}
		}

		reconcileSubscription(&acc.Subscription, now)
		if c.policy.VerifyEmailOnLogin {
			acc.EmailVerified = true
		}

		if req.DeviceID != "" {
			deviceID := req.DeviceID
			acc.PinnedDeviceID = &deviceID
			acc.ActiveSession = &models.ActiveSession{
				DeviceID:    req.DeviceID,
				DeviceInfo:  req.DeviceInfo,
				LastLoginAt: now,
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res.Account = acc
	return res, nil
}

// ClearResult — результат сброса сессии.
type ClearResult struct {
	Account          *models.Account
	PreviousDeviceID string
}

// Logout сбрасывает активную сессию. Повторный вызов ничего не меняет и не считается ошибкой.
func (c *Controller) Logout(ctx context.Context, accountID string) (*ClearResult, error) {
	const op = "session.Logout"
	res, err := c.clear(ctx, accountID, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// ForceClearSession сбрасывает закреплённое устройство и активную сессию.
// Требует повторно подтверждённого пароля.
func (c *Controller) ForceClearSession(ctx context.Context, accountID string, credentialOK bool) (*ClearResult, error) {
	const op = "session.ForceClearSession"
	if !credentialOK {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	res, err := c.clear(ctx, accountID, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (c *Controller) clear(ctx context.Context, accountID string, unpin bool) (*ClearResult, error) {
	res := &ClearResult{}
	acc, err := c.store.UpdateAccount(ctx, accountID, func(acc *models.Account) error {
		res.PreviousDeviceID = ""
		if acc.ActiveSession != nil {
			res.PreviousDeviceID = acc.ActiveSession.DeviceID
		}
		acc.ActiveSession = nil
		if unpin {
			acc.PinnedDeviceID = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Account = acc
	return res, nil
}

// conflicts сообщает, блокирует ли активная сессия вход с deviceID,
// и является ли чужая сессия устаревшей (будет вытеснена).
func (c *Controller) conflicts(acc *models.Account, deviceID string, now time.Time) (conflict, stale bool) {
	active := acc.ActiveSession
	if active == nil || deviceID == "" || active.DeviceID == deviceID {
		return false, false
	}
	if acc.PinnedDeviceID != nil && *acc.PinnedDeviceID == deviceID {
		return false, false
	}
	if now.Sub(active.LastLoginAt) < c.policy.StaleAfter {
		return true, false
	}
	return false, true
}

// healCorruptSession сбрасывает сессию с пустым идентификатором устройства.
func healCorruptSession(acc *models.Account) bool {
	if acc.ActiveSession != nil && acc.ActiveSession.DeviceID == "" {
		acc.ActiveSession = nil
		return true
	}
	return false
}

// reconcileSubscription переводит истёкший пробный период в expired.
func reconcileSubscription(sub *models.Subscription, now time.Time) {
	if sub.Status == models.SubscriptionTrial && now.After(sub.EndDate) {
		sub.Status = models.SubscriptionExpired
	}
}
