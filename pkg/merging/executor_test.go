package merging

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harborcrm/aster/internal/database"
	"github.com/harborcrm/aster/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// recorder collects the order of store operations across all fakes
type recorder struct {
	ops []string
}

func (r *recorder) record(op string) {
	r.ops = append(r.ops, op)
}

type fakeTx struct {
	rec        *recorder
	committed  bool
	rolledBack bool
	closed     bool
}

func (f *fakeTx) ExecContext(context.Context, string, ...any) (sql.Result, error) { return nil, nil }
func (f *fakeTx) GetContext(context.Context, any, string, ...any) error           { return nil }
func (f *fakeTx) SelectContext(context.Context, any, string, ...any) error        { return nil }
func (f *fakeTx) QueryRowxContext(context.Context, string, ...any) *sqlx.Row      { return nil }
func (f *fakeTx) IsOpen() bool                                                    { return !f.closed }

func (f *fakeTx) Commit(context.Context) error {
	if f.closed {
		return nil
	}
	f.rec.record("tx.Commit")
	f.committed = true
	f.closed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.closed {
		return nil
	}
	f.rec.record("tx.Rollback")
	f.rolledBack = true
	f.closed = true
	return nil
}

type fakeDB struct {
	tx        *fakeTx
	getTxCall int
}

func (f *fakeDB) ExecContext(context.Context, string, ...any) (sql.Result, error) { return nil, nil }
func (f *fakeDB) GetContext(context.Context, any, string, ...any) error           { return nil }
func (f *fakeDB) SelectContext(context.Context, any, string, ...any) error        { return nil }
func (f *fakeDB) QueryRowxContext(context.Context, string, ...any) *sqlx.Row      { return nil }
func (f *fakeDB) BeginTxx(context.Context, *sql.TxOptions) (*sqlx.Tx, error)      { return nil, nil }
func (f *fakeDB) Ping() error                                                     { return nil }
func (f *fakeDB) PingContext(context.Context) error                               { return nil }
func (f *fakeDB) Close() error                                                    { return nil }

func (f *fakeDB) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	f.getTxCall++
	return ctx, f.tx, nil
}

type fakeCandidateStore struct {
	rec       *recorder
	db        *fakeDB
	candidate *models.DuplicateCandidate
	getErr    error
}

func (f *fakeCandidateStore) Get(_ context.Context, _ string, _ string) (*models.DuplicateCandidate, error) {
	f.rec.record("candidates.Get")
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.candidate, nil
}

func (f *fakeCandidateStore) MarkMerged(_ context.Context, _ string, id string, keptID string, resolvedBy string) (*models.DuplicateCandidate, error) {
	f.rec.record("candidates.MarkMerged")
	merged := *f.candidate
	merged.Status = models.CandidateStatusMerged
	merged.MergedInto = &keptID
	merged.ResolvedBy = &resolvedBy
	return &merged, nil
}

func (f *fakeCandidateStore) DeletePendingByEntityID(_ context.Context, _ string, _ string) (int64, error) {
	f.rec.record("candidates.DeletePendingByEntityID")
	return 2, nil
}

func (f *fakeCandidateStore) DB() database.DB {
	return f.db
}

type fakeAccountStore struct {
	rec          *recorder
	updateFields map[string]any
}

func (f *fakeAccountStore) Get(_ context.Context, _ string, id string) (*models.Account, error) {
	f.rec.record("accounts.Get " + id)
	return &models.Account{ID: id}, nil
}

func (f *fakeAccountStore) UpdateFields(_ context.Context, _ string, _ string, fields map[string]any) error {
	f.rec.record("accounts.UpdateFields")
	f.updateFields = fields
	return nil
}

func (f *fakeAccountStore) Delete(_ context.Context, _ string, id string) error {
	f.rec.record("accounts.Delete " + id)
	return nil
}

type fakeContactStore struct {
	rec        *recorder
	repointErr error
	repointed  int64
}

func (f *fakeContactStore) Get(_ context.Context, _ string, id string) (*models.Contact, error) {
	f.rec.record("contacts.Get " + id)
	return &models.Contact{ID: id}, nil
}

func (f *fakeContactStore) UpdateFields(_ context.Context, _ string, _ string, _ map[string]any) error {
	f.rec.record("contacts.UpdateFields")
	return nil
}

func (f *fakeContactStore) Delete(_ context.Context, _ string, id string) error {
	f.rec.record("contacts.Delete " + id)
	return nil
}

func (f *fakeContactStore) RepointAccount(_ context.Context, _ string, _, _ string) (int64, error) {
	f.rec.record("contacts.RepointAccount")
	if f.repointErr != nil {
		return 0, f.repointErr
	}
	return f.repointed, nil
}

type fakeActivityStore struct {
	rec *recorder
}

func (f *fakeActivityStore) RepointAccount(_ context.Context, _ string, _, _ string) (int64, error) {
	f.rec.record("activities.RepointAccount")
	return 5, nil
}

func (f *fakeActivityStore) RepointContact(_ context.Context, _ string, _, _ string) (int64, error) {
	f.rec.record("activities.RepointContact")
	return 4, nil
}

type fakeMergeEmitter struct {
	results []*models.MergeResult
	err     error
}

func (f *fakeMergeEmitter) EmitEntityMerged(_ context.Context, result *models.MergeResult) error {
	f.results = append(f.results, result)
	return f.err
}

type mergeFixture struct {
	rec        *recorder
	tx         *fakeTx
	db         *fakeDB
	candidates *fakeCandidateStore
	accounts   *fakeAccountStore
	contacts   *fakeContactStore
	activities *fakeActivityStore
	emitter    *fakeMergeEmitter
	executor   *Executor
}

func newMergeFixture(candidate *models.DuplicateCandidate) *mergeFixture {
	rec := &recorder{}
	tx := &fakeTx{rec: rec}
	db := &fakeDB{tx: tx}
	f := &mergeFixture{
		rec:        rec,
		tx:         tx,
		db:         db,
		candidates: &fakeCandidateStore{rec: rec, db: db, candidate: candidate},
		accounts:   &fakeAccountStore{rec: rec},
		contacts:   &fakeContactStore{rec: rec, repointed: 3},
		activities: &fakeActivityStore{rec: rec},
		emitter:    &fakeMergeEmitter{},
	}
	f.executor = NewExecutor(getTestLogger(), f.candidates, f.accounts, f.contacts, f.activities, f.emitter)
	return f
}

func pendingAccountCandidate() *models.DuplicateCandidate {
	return &models.DuplicateCandidate{
		ID:          "cand-1",
		WorkspaceID: "ws-1",
		EntityType:  models.EntityTypeAccount,
		EntityID1:   "acc-1",
		EntityID2:   "acc-2",
		Status:      models.CandidateStatusPending,
	}
}

func pendingContactCandidate() *models.DuplicateCandidate {
	return &models.DuplicateCandidate{
		ID:          "cand-2",
		WorkspaceID: "ws-1",
		EntityType:  models.EntityTypeContact,
		EntityID1:   "con-1",
		EntityID2:   "con-2",
		Status:      models.CandidateStatusPending,
	}
}

func TestMerge_AccountsHappyPath(t *testing.T) {
	f := newMergeFixture(pendingAccountCandidate())

	req := &models.MergeRequest{
		WorkspaceID: "ws-1",
		KeepID:      "acc-1",
		MergeID:     "acc-2",
		MergedData:  map[string]any{"name": "Acme Corporation"},
	}

	result, err := f.executor.Merge(context.Background(), "ws-1", "cand-1", req, "user-1")
	require.NoError(t, err)

	assert.Equal(t, "cand-1", result.CandidateID)
	assert.Equal(t, models.EntityTypeAccount, result.EntityType)
	assert.Equal(t, "acc-1", result.KeptID)
	assert.Equal(t, "acc-2", result.MergedID)
	assert.Equal(t, "user-1", result.MergedBy)
	assert.Equal(t, int64(3), result.ContactsRepointed)
	assert.Equal(t, int64(5), result.ActivitiesRepointed)

	assert.Equal(t, []string{
		"candidates.Get",
		"accounts.Get acc-1",
		"accounts.Get acc-2",
		"accounts.UpdateFields",
		"contacts.RepointAccount",
		"activities.RepointAccount",
		"accounts.Delete acc-2",
		"candidates.MarkMerged",
		"candidates.DeletePendingByEntityID",
		"tx.Commit",
	}, f.rec.ops)

	assert.True(t, f.tx.committed)
	assert.False(t, f.tx.rolledBack)
	assert.Equal(t, map[string]any{"name": "Acme Corporation"}, f.accounts.updateFields)

	require.Len(t, f.emitter.results, 1)
	assert.Equal(t, result, f.emitter.results[0])
}

func TestMerge_NoMergedDataSkipsUpdate(t *testing.T) {
	f := newMergeFixture(pendingAccountCandidate())

	req := &models.MergeRequest{WorkspaceID: "ws-1", KeepID: "acc-1", MergeID: "acc-2"}

	_, err := f.executor.Merge(context.Background(), "ws-1", "cand-1", req, "user-1")
	require.NoError(t, err)

	assert.NotContains(t, f.rec.ops, "accounts.UpdateFields")
	assert.True(t, f.tx.committed)
}

func TestMerge_PairAcceptedInEitherOrder(t *testing.T) {
	f := newMergeFixture(pendingAccountCandidate())

	// Keep the lexically greater id; merge the lesser one
	req := &models.MergeRequest{WorkspaceID: "ws-1", KeepID: "acc-2", MergeID: "acc-1"}

	result, err := f.executor.Merge(context.Background(), "ws-1", "cand-1", req, "user-1")
	require.NoError(t, err)

	assert.Equal(t, "acc-2", result.KeptID)
	assert.Contains(t, f.rec.ops, "accounts.Delete acc-1")
}

func TestMerge_SameKeepAndMergeID(t *testing.T) {
	f := newMergeFixture(pendingAccountCandidate())

	req := &models.MergeRequest{WorkspaceID: "ws-1", KeepID: "acc-1", MergeID: "acc-1"}

	_, err := f.executor.Merge(context.Background(), "ws-1", "cand-1", req, "user-1")
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))
	assert.Equal(t, 0, f.db.getTxCall, "validation failures never open a transaction")
}

func TestMerge_PairMismatch(t *testing.T) {
	f := newMergeFixture(pendingAccountCandidate())

	req := &models.MergeRequest{WorkspaceID: "ws-1", KeepID: "acc-1", MergeID: "acc-9"}

	_, err := f.executor.Merge(context.Background(), "ws-1", "cand-1", req, "user-1")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))
	assert.Equal(t, 0, f.db.getTxCall)
}

func TestMerge_AlreadyResolved(t *testing.T) {
	candidate := pendingAccountCandidate()
	candidate.Status = models.CandidateStatusMerged
	f := newMergeFixture(candidate)

	req := &models.MergeRequest{WorkspaceID: "ws-1", KeepID: "acc-1", MergeID: "acc-2"}

	_, err := f.executor.Merge(context.Background(), "ws-1", "cand-1", req, "user-1")
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestMerge_CandidateNotFound(t *testing.T) {
	f := newMergeFixture(pendingAccountCandidate())
	f.candidates.getErr = httperror.NewHTTPError(http.StatusNotFound, "duplicate candidate not found")

	req := &models.MergeRequest{WorkspaceID: "ws-1", KeepID: "acc-1", MergeID: "acc-2"}

	_, err := f.executor.Merge(context.Background(), "ws-1", "cand-1", req, "user-1")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestMerge_RollsBackOnFailure(t *testing.T) {
	f := newMergeFixture(pendingAccountCandidate())
	f.contacts.repointErr = fmt.Errorf("connection reset")

	req := &models.MergeRequest{WorkspaceID: "ws-1", KeepID: "acc-1", MergeID: "acc-2"}

	_, err := f.executor.Merge(context.Background(), "ws-1", "cand-1", req, "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, f.contacts.repointErr)

	assert.True(t, f.tx.rolledBack)
	assert.False(t, f.tx.committed)
	assert.NotContains(t, f.rec.ops, "accounts.Delete acc-2")
	assert.NotContains(t, f.rec.ops, "candidates.MarkMerged")
	assert.Empty(t, f.emitter.results)
}

func TestMerge_ContactsHappyPath(t *testing.T) {
	f := newMergeFixture(pendingContactCandidate())

	req := &models.MergeRequest{
		WorkspaceID: "ws-1",
		KeepID:      "con-1",
		MergeID:     "con-2",
		MergedData:  map[string]any{"email": "jane.dole@acme.com"},
	}

	result, err := f.executor.Merge(context.Background(), "ws-1", "cand-2", req, "user-1")
	require.NoError(t, err)

	assert.Equal(t, models.EntityTypeContact, result.EntityType)
	assert.Equal(t, int64(0), result.ContactsRepointed)
	assert.Equal(t, int64(4), result.ActivitiesRepointed)

	assert.Contains(t, f.rec.ops, "activities.RepointContact")
	assert.Contains(t, f.rec.ops, "contacts.Delete con-2")
	assert.NotContains(t, f.rec.ops, "contacts.RepointAccount")
	assert.NotContains(t, f.rec.ops, "activities.RepointAccount")
	assert.True(t, f.tx.committed)
}

func TestMerge_EmitterFailureDoesNotFailMerge(t *testing.T) {
	f := newMergeFixture(pendingAccountCandidate())
	f.emitter.err = fmt.Errorf("broker unavailable")

	req := &models.MergeRequest{WorkspaceID: "ws-1", KeepID: "acc-1", MergeID: "acc-2"}

	result, err := f.executor.Merge(context.Background(), "ws-1", "cand-1", req, "user-1")
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.True(t, f.tx.committed)
}
