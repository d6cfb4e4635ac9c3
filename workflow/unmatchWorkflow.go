package workflow

import (
	"context"

	"bitbucket.org/storhubdata/facilityops_backend/config"
	"bitbucket.org/storhubdata/facilityops_backend/models"
	"bitbucket.org/storhubdata/facilityops_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UnmatchTransaction removes the match between a bank transaction and a daily
// payment and refreshes the period counters. The matched amounts return to the
// unmatched pools on both sides. Unmatching a pair that is not matched is an
// error, never a silent no-op.
func UnmatchTransaction(ctx context.Context, bankTransactionId int, dailyPaymentId int, reason string) error {
	facilityId, ok := utils.GetFacilityIdFromContext(ctx)
	if !ok {
		return utils.ErrorFacilityMismatch
	}

	match, err := models.FindMatchPair(config.GetDB(), ctx, bankTransactionId, dailyPaymentId)
	if err != nil {
		return err
	}

	txn, err := models.GetBankTransaction(ctx, bankTransactionId)
	if err != nil {
		return err
	}
	account, err := models.GetBankAccount(ctx, txn.BankAccountId)
	if err != nil {
		return err
	}
	if account.FacilityId != facilityId {
		return utils.ErrorFacilityMismatch
	}
	year, month := txn.TransactionDate.Year(), int(txn.TransactionDate.Month())

	db := config.GetDB()
	err = WithMatchLock(ctx, db, account.ID, year, month, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Delete(&models.Match{}, match.ID).Error; err != nil {
			return err
		}
		if config.ExpireDiscrepanciesOnUnmatch() {
			if err := models.ExpirePendingDiscrepanciesForPair(tx, ctx, bankTransactionId, dailyPaymentId, reason); err != nil {
				return err
			}
		}
		_, err := models.RecomputePeriodSummary(tx, ctx, facilityId, account.ID, year, month)
		return err
	})
	if err != nil {
		return err
	}

	userName, _ := utils.GetUserNameFromContext(ctx)
	config.GetLogger().WithFields(logrus.Fields{
		"bankTransactionId": bankTransactionId,
		"dailyPaymentId":    dailyPaymentId,
		"matchType":         match.MatchType,
		"period":            periodLabel(year, month),
		"reason":            reason,
		"unmatchedBy":       userName,
	}).Info("match removed")
	return nil
}
