package workflow

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// WithMatchLock serializes writer operations per work unit (bank account +
// month) across instances using MySQL advisory locks. GET_LOCK and
// RELEASE_LOCK are connection-scoped, so the lock, the transaction, and the
// release all run on one pinned connection; the lock is held until after
// commit so concurrent writers never see a half-written period.
func WithMatchLock(ctx context.Context, db *gorm.DB, bankAccountId int, year int, month int, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := AcquireMatchLock(conn, bankAccountId, year, month); err != nil {
			return err
		}
		defer ReleaseMatchLock(conn, bankAccountId, year, month)
		return conn.Transaction(fn)
	})
}

func AcquireMatchLock(conn *gorm.DB, bankAccountId int, year int, month int) error {
	lockName := matchLockName(bankAccountId, year, month)
	var ok int
	if err := conn.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire match lock for bank_account_id=%d period=%d-%02d", bankAccountId, year, month)
	}
	return nil
}

// ReleaseMatchLock must run on the same connection that acquired the lock;
// RELEASE_LOCK on any other session is a silent no-op and the lock would
// leak until the holding connection is recycled.
func ReleaseMatchLock(conn *gorm.DB, bankAccountId int, year int, month int) {
	lockName := matchLockName(bankAccountId, year, month)
	var released int
	_ = conn.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&released).Error
}

func matchLockName(bankAccountId int, year int, month int) string {
	return fmt.Sprintf("matching:%d:%d-%02d", bankAccountId, year, month)
}
