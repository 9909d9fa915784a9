package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harborcrm/clover/internal/database"
	"github.com/harborcrm/clover/internal/repositories/contact"
	"github.com/harborcrm/clover/internal/repositories/contactemail"
	"github.com/harborcrm/clover/internal/repositories/mergeaudit"
	"github.com/harborcrm/clover/internal/repositories/transaction"
	"github.com/harborcrm/clover/pkg/detector"
	"github.com/harborcrm/clover/pkg/engine"
	"github.com/harborcrm/clover/pkg/executor"
	"github.com/harborcrm/clover/pkg/models"
	"github.com/harborcrm/clover/pkg/planner"
	"github.com/harborcrm/clover/pkg/scoring"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	t.Helper()

	host := os.Getenv("DB_HOST")
	if host == "" {
		t.Skip("DB_HOST not set, skipping integration tests")
	}
	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}
	user := os.Getenv("DB_USER_NAME")
	if user == "" {
		user = "user"
	}
	pass := os.Getenv("DB_PASSWORD")
	if pass == "" {
		pass = "password"
	}
	name := os.Getenv("DB_NAME")
	if name == "" {
		name = "clover"
	}

	logger := getTestLogger()
	db, err := database.Connect(context.Background(), database.ConnectionConfig{
		Driver:          "postgres",
		Host:            host,
		Port:            port,
		UserName:        user,
		Password:        pass,
		Name:            name,
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err, "Failed to connect to test database")

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: "../../db/pg",
	})
	require.NoError(t, migrations.Migrate(name, db))

	t.Cleanup(func() { _ = db.Close() })
	return db
}

type testHarness struct {
	db           database.DB
	contacts     *contact.Repository
	emails       *contactemail.Repository
	transactions *transaction.Repository
	audits       *mergeaudit.Repository
	engine       *engine.Engine
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	db := getTestDB(t)
	logger := getTestLogger()

	contacts := contact.NewRepository(db, logger)
	emails := contactemail.NewRepository(db, logger)
	transactions := transaction.NewRepository(db, logger)
	audits := mergeaudit.NewRepository(db, logger)

	det := detector.New(detector.Config{DetectAddress: true}, logger)
	scorer := scoring.New(scoring.Config{})
	pln := planner.New(planner.Config{AmountToleranceCents: 100})
	exec := executor.New(db, contacts, emails, transactions, audits, logger)

	eng := engine.New(engine.Config{}, det, scorer, pln, exec, contacts, emails, nil, logger)

	return &testHarness{
		db:           db,
		contacts:     contacts,
		emails:       emails,
		transactions: transactions,
		audits:       audits,
		engine:       eng,
	}
}

// letterSuffix returns a random letters-only token. Name normalization drops
// digits, so fixture surnames must stay unique using letters alone.
func letterSuffix() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	b := []byte(raw)
	for i, c := range b {
		if c >= '0' && c <= '9' {
			b[i] = 'k' + (c - '0')
		}
	}
	return string(b[:12])
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func (h *testHarness) cleanupContacts(t *testing.T, ids ...string) {
	t.Cleanup(func() {
		ctx := context.Background()
		for _, id := range ids {
			_, _ = h.db.ExecContext(ctx, "DELETE FROM transactions WHERE contact_id = $1", id)
			_, _ = h.db.ExecContext(ctx, "DELETE FROM contact_emails WHERE contact_id = $1", id)
			_, _ = h.db.ExecContext(ctx, "DELETE FROM contacts WHERE id = $1", id)
		}
	})
}

func (h *testHarness) insertTransactions(t *testing.T, contactID string, amounts ...int64) {
	t.Helper()
	ctx := context.Background()
	for _, amount := range amounts {
		require.NoError(t, h.transactions.Insert(ctx, &models.Transaction{
			ContactID:   contactID,
			AmountCents: amount,
			Currency:    "USD",
			Type:        "donation",
			OccurredAt:  time.Now().UTC(),
		}))
	}
}

// findGroup locates the detected group whose membership is exactly ids.
func findGroup(groups []models.DuplicateGroup, ids ...string) *models.DuplicateGroup {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	for i := range groups {
		members := groups[i].MemberIDs()
		if len(members) != len(ids) {
			continue
		}
		all := true
		for _, m := range members {
			if !want[m] {
				all = false
				break
			}
		}
		if all {
			return &groups[i]
		}
	}
	return nil
}

func TestEngine_MergeSameNameAndPhone(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	last := letterSuffix()

	// Three records for the same person: shared 10-digit phone, varied
	// formatting, transaction history spread across all three.
	a := &models.Contact{
		ID:               uuid.New().String(),
		Email:            strPtr("lynn." + last + "@example.com"),
		FirstName:        "Lynn",
		LastName:         last,
		Phone:            "(555) 010-0100",
		TransactionCount: 2,
		TotalSpentCents:  3500,
		CreatedAt:        time.Now().UTC().Add(-48 * time.Hour),
	}
	b := &models.Contact{
		ID:               uuid.New().String(),
		Email:            strPtr("lynn.alt." + last + "@example.com"),
		FirstName:        "LYNN",
		LastName:         strings.ToUpper(last),
		Phone:            "555-010-0100",
		TransactionCount: 1,
		TotalSpentCents:  500,
		CreatedAt:        time.Now().UTC().Add(-24 * time.Hour),
	}
	c := &models.Contact{
		ID:        uuid.New().String(),
		FirstName: "Lynn",
		LastName:  last,
		Phone:     "+1 555 010 0100",
		CreatedAt: time.Now().UTC(),
	}
	for _, m := range []*models.Contact{a, b, c} {
		require.NoError(t, h.contacts.Insert(ctx, m))
	}
	h.cleanupContacts(t, a.ID, b.ID, c.ID)

	h.insertTransactions(t, a.ID, 2500, 1000)
	h.insertTransactions(t, b.ID, 500)

	_, err := h.emails.Insert(ctx, b.ID, "old."+last+"@example.com", "import")
	require.NoError(t, err)

	groups, err := h.engine.Detect(ctx, engine.Scope{})
	require.NoError(t, err)

	group := findGroup(groups, a.ID, b.ID, c.ID)
	require.NotNil(t, group, "expected one group containing all three records")
	assert.Equal(t, models.TierHigh, group.Confidence)
	assert.Contains(t, group.Reason, "same name + phone")

	report, plans, err := h.engine.Merge(ctx, engine.Scope{GroupID: group.GroupID}, false)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	require.Empty(t, report.Errors)

	// Most transactions wins the primary slot.
	assert.Equal(t, a.ID, plans[0].Primary.ID)
	assert.Equal(t, 2, report.ContactsMerged)
	// Only the duplicates' transactions change owner; the primary keeps its own.
	assert.Equal(t, 1, report.TransactionsMigrated)

	// Duplicates are soft deleted, primary survives.
	_, err = h.contacts.Get(ctx, b.ID)
	require.Error(t, err)
	_, err = h.contacts.Get(ctx, c.ID)
	require.Error(t, err)

	primary, err := h.contacts.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), primary.TotalSpentCents)
	assert.Equal(t, 3, primary.TransactionCount)

	// Every transaction now belongs to the primary.
	txs, err := h.transactions.ListByContact(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 3)

	// The duplicates' addresses are preserved as secondary emails on the
	// primary; nothing is lost.
	migrated, err := h.emails.ListByContactIDs(ctx, []string{a.ID})
	require.NoError(t, err)
	got := map[string]bool{}
	for _, em := range migrated {
		got[strings.ToLower(em.Email)] = true
	}
	assert.True(t, got["lynn.alt."+last+"@example.com"])
	assert.True(t, got["old."+last+"@example.com"])

	// The merge left an audit trail.
	entries, err := h.audits.ListByGroup(ctx, group.GroupID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, a.ID, entries[0].PrimaryContactID)
}

func TestEngine_SharedHouseholdNeverAutoMerged(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	street := letterSuffix()

	// Two different people at the same address. This must surface as a
	// household review candidate and never merge.
	a := &models.Contact{
		ID:            uuid.New().String(),
		Email:         strPtr("jordan." + street + "@example.com"),
		FirstName:     "Jordan",
		LastName:      "Smith" + street,
		BillingLine1:  "12 " + street + " St",
		BillingCity:   "Springfield",
		BillingState:  "IL",
		BillingPostal: "62704",
	}
	b := &models.Contact{
		ID:            uuid.New().String(),
		Email:         strPtr("casey." + street + "@example.com"),
		FirstName:     "Casey",
		LastName:      "Jones" + street,
		BillingLine1:  "12 " + street + " Street",
		BillingCity:   "Springfield",
		BillingState:  "IL",
		BillingPostal: "62704-1234",
	}
	for _, m := range []*models.Contact{a, b} {
		require.NoError(t, h.contacts.Insert(ctx, m))
	}
	h.cleanupContacts(t, a.ID, b.ID)

	groups, err := h.engine.Detect(ctx, engine.Scope{})
	require.NoError(t, err)

	group := findGroup(groups, a.ID, b.ID)
	require.NotNil(t, group, "expected an address group for the household")
	assert.Equal(t, models.TierLow, group.Confidence)

	report, plans, err := h.engine.Merge(ctx, engine.Scope{GroupID: group.GroupID}, false)
	require.NoError(t, err)
	assert.Empty(t, plans)
	require.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0].Reason, "requires manual review")

	// Both residents are untouched.
	_, err = h.contacts.Get(ctx, a.ID)
	require.NoError(t, err)
	_, err = h.contacts.Get(ctx, b.ID)
	require.NoError(t, err)
}

func TestEngine_SubscriptionDisagreementSkips(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	last := letterSuffix()

	a := &models.Contact{
		ID:                      uuid.New().String(),
		FirstName:               "Avery",
		LastName:                last,
		Phone:                   "555-020-0200",
		SubscriptionAmountCents: int64Ptr(5000),
	}
	b := &models.Contact{
		ID:                      uuid.New().String(),
		FirstName:               "Avery",
		LastName:                last,
		Phone:                   "(555) 020-0200",
		SubscriptionAmountCents: int64Ptr(10000),
	}
	for _, m := range []*models.Contact{a, b} {
		require.NoError(t, h.contacts.Insert(ctx, m))
	}
	h.cleanupContacts(t, a.ID, b.ID)

	groups, err := h.engine.Detect(ctx, engine.Scope{})
	require.NoError(t, err)

	group := findGroup(groups, a.ID, b.ID)
	require.NotNil(t, group)
	assert.Equal(t, models.TierHigh, group.Confidence)

	// High confidence, but the subscription amounts disagree beyond
	// tolerance, so the group is routed to review instead of merged.
	report, plans, err := h.engine.Merge(ctx, engine.Scope{GroupID: group.GroupID}, false)
	require.NoError(t, err)
	assert.Empty(t, plans)
	require.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0].Reason, "subscription amounts disagree")

	_, err = h.contacts.Get(ctx, a.ID)
	require.NoError(t, err)
	_, err = h.contacts.Get(ctx, b.ID)
	require.NoError(t, err)
}

func TestEngine_DryRunWritesNothing(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	last := letterSuffix()

	a := &models.Contact{
		ID:        uuid.New().String(),
		FirstName: "Robin",
		LastName:  last,
		Phone:     "555-030-0300",
	}
	b := &models.Contact{
		ID:        uuid.New().String(),
		FirstName: "Robin",
		LastName:  last,
		Phone:     "555 030 0300",
	}
	for _, m := range []*models.Contact{a, b} {
		require.NoError(t, h.contacts.Insert(ctx, m))
	}
	h.cleanupContacts(t, a.ID, b.ID)
	h.insertTransactions(t, b.ID, 750)

	groups, err := h.engine.Detect(ctx, engine.Scope{})
	require.NoError(t, err)
	group := findGroup(groups, a.ID, b.ID)
	require.NotNil(t, group)

	report, plans, err := h.engine.Merge(ctx, engine.Scope{GroupID: group.GroupID}, true)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, 1, report.ContactsMerged)

	// Dry run: both contacts still active, ledger untouched.
	_, err = h.contacts.Get(ctx, a.ID)
	require.NoError(t, err)
	_, err = h.contacts.Get(ctx, b.ID)
	require.NoError(t, err)

	txs, err := h.transactions.ListByContact(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	entries, err := h.audits.ListByGroup(ctx, group.GroupID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEngine_FlagAndClear(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	last := letterSuffix()

	a := &models.Contact{ID: uuid.New().String(), FirstName: "Sam", LastName: last}
	b := &models.Contact{ID: uuid.New().String(), FirstName: "Sam", LastName: last}
	for _, m := range []*models.Contact{a, b} {
		require.NoError(t, h.contacts.Insert(ctx, m))
	}
	h.cleanupContacts(t, a.ID, b.ID)

	groups, err := h.engine.Detect(ctx, engine.Scope{})
	require.NoError(t, err)
	group := findGroup(groups, a.ID, b.ID)
	require.NotNil(t, group)
	assert.Equal(t, models.TierMedium, group.Confidence)

	flagged, err := h.engine.Flag(ctx, []models.DuplicateGroup{*group})
	require.NoError(t, err)
	assert.Equal(t, int64(2), flagged)

	got, err := h.contacts.Get(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DupGroupID)
	assert.Equal(t, group.GroupID, *got.DupGroupID)
	require.NotNil(t, got.DupReason)
	assert.Contains(t, *got.DupReason, "MEDIUM")
	assert.NotNil(t, got.DupFlaggedAt)

	cleared, err := h.engine.ClearFlags(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cleared, int64(2))

	got, err = h.contacts.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DupGroupID)
	assert.Nil(t, got.DupReason)
	assert.Nil(t, got.DupFlaggedAt)
}

func TestEngine_FailedGroupRollsBackAndRunContinues(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	lastA := letterSuffix()
	lastB := letterSuffix()

	// Group A: the primary already holds transactions, the duplicate carries
	// two emails to migrate. The second of them is made unwritable below, so
	// the executor fails after its first write.
	a1 := &models.Contact{
		ID:               uuid.New().String(),
		Email:            strPtr("ana." + lastA + "@example.com"),
		FirstName:        "Ana",
		LastName:         lastA,
		Phone:            "555-040-0400",
		TransactionCount: 1,
		TotalSpentCents:  1000,
		CreatedAt:        time.Now().UTC().Add(-48 * time.Hour),
	}
	d1 := &models.Contact{
		ID:        uuid.New().String(),
		Email:     strPtr("ana.alt." + lastA + "@example.com"),
		FirstName: "Ana",
		LastName:  lastA,
		Phone:     "(555) 040-0400",
		CreatedAt: time.Now().UTC(),
	}

	// Group B: an ordinary pair that must still merge in the same run.
	b1 := &models.Contact{
		ID:               uuid.New().String(),
		Email:            strPtr("blair." + lastB + "@example.com"),
		FirstName:        "Blair",
		LastName:         lastB,
		Phone:            "555-060-0600",
		TransactionCount: 1,
		TotalSpentCents:  2000,
		CreatedAt:        time.Now().UTC().Add(-48 * time.Hour),
	}
	b2 := &models.Contact{
		ID:        uuid.New().String(),
		FirstName: "Blair",
		LastName:  lastB,
		Phone:     "555 060 0600",
		CreatedAt: time.Now().UTC(),
	}

	for _, m := range []*models.Contact{a1, d1, b1, b2} {
		require.NoError(t, h.contacts.Insert(ctx, m))
	}
	h.cleanupContacts(t, a1.ID, d1.ID, b1.ID, b2.ID)

	h.insertTransactions(t, a1.ID, 1000)
	h.insertTransactions(t, d1.ID, 250)
	h.insertTransactions(t, b1.ID, 2000)
	h.insertTransactions(t, b2.ID, 500)

	blocked := "blocked." + lastA + "@example.com"
	_, err := h.emails.Insert(ctx, d1.ID, blocked, "import")
	require.NoError(t, err)

	// Reject further writes of the blocked email. NOT VALID leaves the seeded
	// row alone; the constraint applies only to new writes, which makes the
	// executor's second email insert for group A fail mid-transaction.
	constraint := "chk_reject_" + lastA
	_, err = h.db.ExecContext(ctx, fmt.Sprintf(
		"ALTER TABLE contact_emails ADD CONSTRAINT %s CHECK (email <> '%s') NOT VALID", constraint, blocked))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = h.db.ExecContext(context.Background(), fmt.Sprintf(
			"ALTER TABLE contact_emails DROP CONSTRAINT IF EXISTS %s", constraint))
	})

	groups, err := h.engine.Detect(ctx, engine.Scope{})
	require.NoError(t, err)
	groupA := findGroup(groups, a1.ID, d1.ID)
	require.NotNil(t, groupA)
	require.Equal(t, models.TierHigh, groupA.Confidence)
	groupB := findGroup(groups, b1.ID, b2.ID)
	require.NotNil(t, groupB)
	require.Equal(t, models.TierHigh, groupB.Confidence)

	report, _, err := h.engine.Merge(ctx, engine.Scope{}, false)
	require.NoError(t, err)

	var failed bool
	for _, e := range report.Errors {
		if strings.Contains(e, groupA.GroupID) && strings.Contains(e, "migrate emails") {
			failed = true
		}
	}
	assert.True(t, failed, "group A's failure must land in the run report errors")

	// Group A rolled back whole: the duplicate's primary email was inserted
	// before the failure and must be gone again, the duplicate stays active,
	// its ledger stays put and no audit row exists.
	migrated, err := h.emails.ListByContactIDs(ctx, []string{a1.ID})
	require.NoError(t, err)
	assert.Empty(t, migrated)

	_, err = h.contacts.Get(ctx, d1.ID)
	require.NoError(t, err)

	txs, err := h.transactions.ListByContact(ctx, d1.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	gotA, err := h.contacts.Get(ctx, a1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotA.TransactionCount)
	assert.Equal(t, int64(1000), gotA.TotalSpentCents)

	entries, err := h.audits.ListByGroup(ctx, groupA.GroupID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Group B is unaffected by group A's failure and merged normally.
	_, err = h.contacts.Get(ctx, b2.ID)
	require.Error(t, err)

	txsB, err := h.transactions.ListByContact(ctx, b1.ID)
	require.NoError(t, err)
	assert.Len(t, txsB, 2)

	entriesB, err := h.audits.ListByGroup(ctx, groupB.GroupID)
	require.NoError(t, err)
	require.Len(t, entriesB, 1)
	assert.Equal(t, b1.ID, entriesB[0].PrimaryContactID)
}

func TestTransactionEnlistment_RollbackDiscardsWrites(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	last := letterSuffix()

	c := &models.Contact{ID: uuid.New().String(), FirstName: "Drew", LastName: last}

	ctxTx, tx, err := h.db.GetTx(ctx, nil)
	require.NoError(t, err)

	// Repository writes made with the transaction context enlist in it.
	require.NoError(t, h.contacts.Insert(ctxTx, c))
	require.NoError(t, tx.Rollback(ctxTx))

	_, err = h.contacts.Get(ctx, c.ID)
	require.Error(t, err, "rolled back insert must not be visible")
}
