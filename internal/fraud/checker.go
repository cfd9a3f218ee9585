package fraud

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"premium-referral-go/internal/models"
	"premium-referral-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 8

	// quickReferralWindow is how close registration and earning must be to look scripted.
	quickReferralWindow = time.Minute
)

// Report is the advisory verdict for one earning.
type Report struct {
	Earning       models.ReferralEarning `json:"earning"`
	ReferrerEmail string                 `json:"referrerEmail"`
	ReferredEmail string                 `json:"referredEmail"`
	Suspected     bool                   `json:"suspected"`
	Reasons       []string               `json:"reasons"`
}

// Facts are the account-level observations the heuristics read.
type Facts struct {
	ReferredCreatedAt time.Time
	ReferrerEmail     string
	ReferredEmail     string
	// Accounts other than the referred one registered from ReferredIP.
	ReferredIPShared int
	// Accounts other than the referrer registered from ReferrerIP.
	ReferrerIPShared int
}

// Evaluate applies the heuristics to one earning. It never reads or writes storage.
func Evaluate(earning models.ReferralEarning, facts Facts) []string {
	var reasons []string

	if !facts.ReferredCreatedAt.IsZero() {
		gap := earning.CreatedAt.Sub(facts.ReferredCreatedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap < quickReferralWindow {
			reasons = append(reasons, "Registration and referral within 1 minute")
		}
	}

	if earning.ReferredIP != "" {
		if facts.ReferredIPShared > 0 {
			reasons = append(reasons, fmt.Sprintf("Referred user IP shared with %d other user(s)", facts.ReferredIPShared))
		}
		if earning.ReferrerIP != "" && earning.ReferredIP == earning.ReferrerIP {
			reasons = append(reasons, "Referred user and referrer share the same IP")
		}
	}

	if earning.ReferrerIP != "" && facts.ReferrerIPShared > 0 {
		reasons = append(reasons, fmt.Sprintf("Referrer IP shared with %d other user(s)", facts.ReferrerIPShared))
	}
	return reasons
}

// Checker flags suspicious referral earnings for manual review.
type Checker struct {
	accounts    store.AccountRepository
	ledger      store.LedgerRepository
	concurrency int
}

func NewChecker(accounts store.AccountRepository, ledger store.LedgerRepository, concurrency int) *Checker {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Checker{accounts: accounts, ledger: ledger, concurrency: concurrency}
}

// Check evaluates every earning matched by filter, in the filter's order.
func (c *Checker) Check(ctx context.Context, filter store.EarningFilter) ([]Report, error) {
	earnings, err := c.ledger.ListEarnings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list earnings: %w", err)
	}

	lookups := newLookups(c.accounts)
	reports := make([]Report, len(earnings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := range earnings {
		g.Go(func() error {
			facts, err := lookups.facts(gctx, earnings[i])
			if err != nil {
				return fmt.Errorf("earning %s: %w", earnings[i].Id, err)
			}
			reasons := Evaluate(earnings[i], facts)
			reports[i] = Report{
				Earning:       earnings[i],
				ReferrerEmail: facts.ReferrerEmail,
				ReferredEmail: facts.ReferredEmail,
				Suspected:     len(reasons) > 0,
				Reasons:       reasons,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	flagged := 0
	for _, r := range reports {
		if r.Suspected {
			flagged++
		}
	}
	zap.L().Info("Fraud check complete",
		zap.Int("earnings", len(reports)),
		zap.Int("flagged", flagged))
	return reports, nil
}

// Flagged returns only the suspected reports.
func Flagged(reports []Report) []Report {
	var out []Report
	for _, r := range reports {
		if r.Suspected {
			out = append(out, r)
		}
	}
	return out
}

// lookups memoizes account and IP queries shared by earnings in one check.
type lookups struct {
	accounts store.AccountRepository

	mu       sync.Mutex
	byId     map[string]*models.Account
	ipCounts map[string]int
}

func newLookups(accounts store.AccountRepository) *lookups {
	return &lookups{
		accounts: accounts,
		byId:     make(map[string]*models.Account),
		ipCounts: make(map[string]int),
	}
}

func (l *lookups) account(ctx context.Context, id string) (*models.Account, error) {
	l.mu.Lock()
	account, ok := l.byId[id]
	l.mu.Unlock()
	if ok {
		return account, nil
	}

	account, err := l.accounts.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			// the heuristics still run on the IPs recorded with the earning
			account = nil
		} else {
			return nil, err
		}
	}

	l.mu.Lock()
	l.byId[id] = account
	l.mu.Unlock()
	return account, nil
}

func (l *lookups) othersWithIP(ctx context.Context, ip, excludeId string) (int, error) {
	if ip == "" {
		return 0, nil
	}
	key := ip + "|" + excludeId

	l.mu.Lock()
	count, ok := l.ipCounts[key]
	l.mu.Unlock()
	if ok {
		return count, nil
	}

	count, err := l.accounts.CountOtherAccountsWithIP(ctx, ip, excludeId)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	l.ipCounts[key] = count
	l.mu.Unlock()
	return count, nil
}

func (l *lookups) facts(ctx context.Context, earning models.ReferralEarning) (Facts, error) {
	var facts Facts

	referred, err := l.account(ctx, earning.ReferredAccountId)
	if err != nil {
		return facts, err
	}
	if referred != nil {
		facts.ReferredCreatedAt = referred.CreatedAt
		facts.ReferredEmail = referred.Email
	}
	referrer, err := l.account(ctx, earning.ReferrerAccountId)
	if err != nil {
		return facts, err
	}
	if referrer != nil {
		facts.ReferrerEmail = referrer.Email
	}

	if facts.ReferredIPShared, err = l.othersWithIP(ctx, earning.ReferredIP, earning.ReferredAccountId); err != nil {
		return facts, err
	}
	if facts.ReferrerIPShared, err = l.othersWithIP(ctx, earning.ReferrerIP, earning.ReferrerAccountId); err != nil {
		return facts, err
	}
	return facts, nil
}
