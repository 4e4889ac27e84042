package credential

import (
	"context"
	"time"
)

// Attempts is the failed-login bookkeeping of one client context.
type Attempts struct {
	Count       int
	LockedUntil time.Time
}

// LockoutStore persists Attempts. It is the only source of truth for both the
// counter and the lock deadline.
type LockoutStore interface {
	Get(ctx context.Context, client string) (Attempts, error)
	Increment(ctx context.Context, client string) (int, error)
	Lock(ctx context.Context, client string, until time.Time, ttl time.Duration) error
	Delete(ctx context.Context, client string) error
}

// Status is the lockout state at a point in time.
type Status struct {
	Locked    bool
	Remaining time.Duration
	Failures  int
}

// SecondsRemaining rounds Remaining up to whole seconds.
func (s Status) SecondsRemaining() int {
	if !s.Locked {
		return 0
	}
	return (&LockedError{Remaining: s.Remaining}).SecondsRemaining()
}

// Lockout decides whether a client may attempt a login. Lock state is always
// derived from the stored deadline so reloads never reset or extend it.
type Lockout struct {
	store     LockoutStore
	threshold int
	duration  time.Duration
	now       func() time.Time
}

// NewLockout builds a Lockout. A nil clock uses time.Now.
func NewLockout(store LockoutStore, threshold int, duration time.Duration, now func() time.Time) *Lockout {
	if now == nil {
		now = time.Now
	}
	return &Lockout{store: store, threshold: threshold, duration: duration, now: now}
}

// Status reports the current lock. An expired lock is removed.
func (l *Lockout) Status(ctx context.Context, client string) (Status, error) {
	a, err := l.store.Get(ctx, client)
	if err != nil {
		return Status{}, err
	}
	if a.LockedUntil.IsZero() {
		return Status{Failures: a.Count}, nil
	}
	now := l.now()
	if now.Before(a.LockedUntil) {
		return Status{Locked: true, Remaining: a.LockedUntil.Sub(now), Failures: a.Count}, nil
	}
	if err := l.store.Delete(ctx, client); err != nil {
		return Status{}, err
	}
	return Status{}, nil
}

// Check returns a *LockedError while the client is locked.
func (l *Lockout) Check(ctx context.Context, client string) error {
	st, err := l.Status(ctx, client)
	if err != nil {
		return err
	}
	if st.Locked {
		return &LockedError{Remaining: st.Remaining}
	}
	return nil
}

// RecordFailure counts a failed attempt. Reaching the threshold starts a lock
// and resets the counter for the next cycle.
func (l *Lockout) RecordFailure(ctx context.Context, client string) (Status, error) {
	count, err := l.store.Increment(ctx, client)
	if err != nil {
		return Status{}, err
	}
	if count < l.threshold {
		return Status{Failures: count}, nil
	}
	until := l.now().Add(l.duration)
	if err := l.store.Lock(ctx, client, until, l.duration); err != nil {
		return Status{}, err
	}
	return Status{Locked: true, Remaining: l.duration}, nil
}

// RecordSuccess resets the counter after a successful login.
func (l *Lockout) RecordSuccess(ctx context.Context, client string) error {
	return l.store.Delete(ctx, client)
}

// Reset drops every trace of failed attempts for client.
func (l *Lockout) Reset(ctx context.Context, client string) error {
	return l.store.Delete(ctx, client)
}
