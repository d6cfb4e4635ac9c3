package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/storhubdata/facilityops_backend/config"
	"bitbucket.org/storhubdata/facilityops_backend/models"
	"bitbucket.org/storhubdata/facilityops_backend/utils"
	"bitbucket.org/storhubdata/facilityops_backend/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func TestMatchWriterPersistenceSemantics(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "facilityops_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	facility := models.Facility{Name: "Test Facility", IsActive: true, CriticalDiscrepancyThreshold: decimal.NewFromInt(100)}
	if err := db.Create(&facility).Error; err != nil {
		t.Fatalf("create facility: %v", err)
	}
	account := models.BankAccount{FacilityId: facility.ID, Name: "Operating", IsActive: true}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("create bank account: %v", err)
	}
	txnDate := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	txn := models.BankTransaction{BankAccountId: account.ID, TransactionDate: txnDate, Amount: decimal.RequireFromString("225.75"), TenderTag: "cash"}
	if err := db.Create(&txn).Error; err != nil {
		t.Fatalf("create bank transaction: %v", err)
	}
	cash := decimal.RequireFromString("225.75")
	payment := models.DailyPaymentRaw{FacilityId: facility.ID, PaymentDate: txnDate, Cash: &cash}
	if err := db.Create(&payment).Error; err != nil {
		t.Fatalf("create daily payment: %v", err)
	}

	// A clean pair passes the in-transaction re-check.
	if err := models.EnsureUnmatched(db, ctx, txn.ID, payment.ID); err != nil {
		t.Fatalf("EnsureUnmatched on a clean pair: %v", err)
	}

	// An absent pair is a hard not-found, never a silent no-op.
	if _, err := models.FindMatchPair(db, ctx, txn.ID, payment.ID); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("FindMatchPair on an unmatched pair: want ErrorRecordNotFound, got %v", err)
	}

	// Commit a match under the advisory lock. While the writer holds the
	// lock, a second session must not be able to take it.
	year, month := txnDate.Year(), int(txnDate.Month())
	lockName := fmt.Sprintf("matching:%d:%d-%02d", account.ID, year, month)
	err := workflow.WithMatchLock(ctx, db, account.ID, year, month, func(tx *gorm.DB) error {
		if got := tryLock(t, db, lockName); got != 0 {
			t.Errorf("second session acquired the lock while the writer held it (GET_LOCK=%d)", got)
		}
		match := models.NewMatchRow(txn.ID, payment.ID, models.ConnectionTypeCash, txn.Amount, decimal.Zero, models.ManualMatch{}, "tester", "corr-1")
		return tx.WithContext(ctx).Create(&match).Error
	})
	if err != nil {
		t.Fatalf("WithMatchLock writer: %v", err)
	}

	// The lock must be free again as soon as the writer returns. A release
	// issued on any other session would have leaked it here.
	if got := tryLock(t, db, lockName); got != 1 {
		t.Fatalf("lock still held after the writer finished (GET_LOCK=%d)", got)
	}

	// The booked pair is now findable, and the re-check reports the conflict.
	match, err := models.FindMatchPair(db, ctx, txn.ID, payment.ID)
	if err != nil {
		t.Fatalf("FindMatchPair after commit: %v", err)
	}
	if match.MatchType != models.MatchTypeManual {
		t.Fatalf("unexpected match type %q", match.MatchType)
	}
	if err := models.EnsureUnmatched(db, ctx, txn.ID, payment.ID); !errors.Is(err, utils.ErrorConcurrencyConflict) {
		t.Fatalf("EnsureUnmatched on a booked pair: want ErrorConcurrencyConflict, got %v", err)
	}
	if err := models.EnsureUnmatched(db, ctx, txn.ID+1000, payment.ID); !errors.Is(err, utils.ErrorConcurrencyConflict) {
		t.Fatalf("EnsureUnmatched with a booked payment: want ErrorConcurrencyConflict, got %v", err)
	}
}

// tryLock attempts a zero-wait GET_LOCK on a dedicated connection and releases
// it immediately when acquired. Returns the GET_LOCK result (1 acquired, 0
// busy).
func tryLock(t *testing.T, db *gorm.DB, lockName string) int {
	t.Helper()
	var got int
	err := db.Connection(func(conn *gorm.DB) error {
		if err := conn.Raw("SELECT GET_LOCK(?, 0)", lockName).Scan(&got).Error; err != nil {
			return err
		}
		if got == 1 {
			var released int
			return conn.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&released).Error
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tryLock: %v", err)
	}
	return got
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("facilityops-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=facilityops_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
