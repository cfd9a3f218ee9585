package store

import (
	"context"
	"errors"
	"time"

	"premium-referral-go/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrAccountNotFound          = errors.New("account not found")
	ErrEarningNotFound          = errors.New("referral earning not found")
	ErrTransactionLogNotFound   = errors.New("transaction log not found")
	ErrConcurrentModification   = errors.New("concurrent modification detected")
	ErrDuplicateEarning         = errors.New("duplicate referral earning")
	ErrAlreadyApplied           = errors.New("checkout already applied")
	ErrTransactionLogFinalized  = errors.New("transaction log already finalized")
	ErrInvalidStatusTransition  = errors.New("invalid earning status transition")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrSelfTransfer             = errors.New("cannot transfer to the same account")
	ErrNonPositiveBalanceChange = errors.New("balance change must be non-zero")
)

// CreateAccountParams contains the fields needed to register an account.
type CreateAccountParams struct {
	Email               string
	Name                string
	ReferredByAccountId string
	ReferralProgram     models.ReferralProgram
	RegistrationIP      string
	CreatedAt           time.Time
}

// BalanceChange is a single increment (positive) or decrement (negative) of one balance.
type BalanceChange struct {
	AccountId string
	Kind      models.BalanceKind
	Delta     int64
	Reason    string
	Reference string
}

// CheckoutParams describes everything a completed checkout writes in one atomic unit.
// Credit and Mutate are both optional; Log is always finalized.
type CheckoutParams struct {
	AccountId  string
	SessionRef string
	Log        *models.TransactionLog
	Credit     *BalanceChange
	Mutate     func(*models.Account) error
}

// TransferParams describes a balance transfer between two accounts (a gift).
type TransferParams struct {
	FromAccountId string
	ToAccountId   string
	Kind          models.BalanceKind
	Amount        int64
	Reference     string
	At            time.Time
}

// EarningFilter narrows ListEarnings. Zero values mean "no restriction".
type EarningFilter struct {
	Status     models.EarningStatus
	ReferrerId string
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}

// AccountRepository exposes account reads and atomic account mutations.
type AccountRepository interface {
	GetAccount(ctx context.Context, accountId string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	FindAccountByGatewayRef(ctx context.Context, subscriptionRef, customerRef string) (*models.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	CreateAccount(ctx context.Context, params CreateAccountParams) (*models.Account, error)

	// UpdateAccount reads the account, applies mutate and writes it back atomically.
	UpdateAccount(ctx context.Context, accountId string, mutate func(*models.Account) error) (*models.Account, error)
	// IncrementBalance applies a per-field increment and journals it; returns the new balance.
	IncrementBalance(ctx context.Context, change BalanceChange) (int64, error)
	// ApplyCheckout performs a completed checkout exactly once per session.
	ApplyCheckout(ctx context.Context, params CheckoutParams) (*models.Account, error)
	// TransferBalance debits one account and credits another with both audit logs in one unit.
	TransferBalance(ctx context.Context, params TransferParams) error

	CountOtherAccountsWithIP(ctx context.Context, ip, excludeAccountId string) (int, error)
	ExpireCancelledPremium(ctx context.Context, now time.Time) (int64, error)
	ExpireLegacyCancelledPremium(ctx context.Context, plan models.PlanType, startedAtOrBefore time.Time) (int64, error)
	GrantMonthlyCoins(ctx context.Context, amount int64, now time.Time) (int64, error)

	GetBalanceEntries(ctx context.Context, accountId string, kind models.BalanceKind) ([]models.BalanceEntry, error)
	ReconcileBalance(ctx context.Context, accountId string, kind models.BalanceKind) error
}

// LedgerRepository is the append-mostly store for referral earnings and transaction logs.
type LedgerRepository interface {
	InsertEarning(ctx context.Context, earning *models.ReferralEarning) error
	SignupBonusExists(ctx context.Context, referrerId, referredId string) (bool, error)
	EarningExistsForTransaction(ctx context.Context, referrerId, referredId, externalTxId string) (bool, error)
	GetEarning(ctx context.Context, earningId string) (*models.ReferralEarning, error)
	ListEarnings(ctx context.Context, filter EarningFilter) ([]models.ReferralEarning, error)
	UpdateEarningStatus(ctx context.Context, earningId string, next models.EarningStatus) (*models.ReferralEarning, error)

	InsertTransactionLog(ctx context.Context, log *models.TransactionLog) error
	GetTransactionLogBySession(ctx context.Context, sessionRef string) (*models.TransactionLog, error)
	// FinalizeTransactionLog moves the session's log to a terminal status exactly once,
	// inserting it when no initiation row exists.
	FinalizeTransactionLog(ctx context.Context, log *models.TransactionLog) error
}

// Store is the full persistence surface implemented by a single backend.
type Store interface {
	AccountRepository
	LedgerRepository
	Close()
}
