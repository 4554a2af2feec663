package interactions

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/engagement-engine/internal/common"
	"serotonyl.ru/engagement-engine/internal/db/sqlite"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepository(db)
}

// fakeCatalog — статусы контента по id. Неизвестный id — NOT_FOUND.
type fakeCatalog map[string]string

func (f fakeCatalog) EnsurePublished(_ context.Context, id string) error {
	status, ok := f[id]
	if !ok {
		return common.ErrContentNotFound
	}
	if status != "published" {
		return common.ErrContentNotPublished
	}
	return nil
}

type recordingRewards struct {
	mu      sync.Mutex
	records []Record
}

func (r *recordingRewards) EnqueueReward(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingRewards) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type failingActivity struct{}

func (failingActivity) RecordActivity(context.Context, Record, Outcome) error {
	return assert.AnError
}

func published(ids ...string) fakeCatalog {
	f := fakeCatalog{}
	for _, id := range ids {
		f[id] = "published"
	}
	return f
}

// ledgerCount считает записи журнала напрямую.
func ledgerCount(t *testing.T, repo *SQLiteRepository, contentID string, k Kind) int64 {
	t.Helper()
	var n int64
	err := repo.db.QueryRow(`SELECT COUNT(*) FROM interactions WHERE content_id = ? AND kind = ?`,
		contentID, k.String()).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestToggleAddThenRemove(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(repo, published("c1"))
	ctx := context.Background()

	res, err := svc.Toggle(ctx, ToggleRequest{UserID: 1, ContentID: "c1", Kind: KindLike})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdded, res.Action)
	assert.Equal(t, int64(1), res.Counters.Likes)
	assert.NotZero(t, res.RecordID)

	res, err = svc.Toggle(ctx, ToggleRequest{UserID: 1, ContentID: "c1", Kind: KindLike})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRemoved, res.Action)
	assert.Equal(t, int64(0), res.Counters.Likes)
	assert.Equal(t, int64(0), ledgerCount(t, repo, "c1", KindLike))
}

func TestToggleConcurrentAddsYieldOneRecord(t *testing.T) {
	repo := newTestRepo(t)
	rewards := &recordingRewards{}
	svc := NewService(repo, published("c1"), WithRewards(rewards))

	const callers = 2
	results := make([]*ToggleResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Toggle(context.Background(), ToggleRequest{
				UserID: 7, ContentID: "c1", Kind: KindLike, Action: ActionAdd,
			})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	outcomes := map[Outcome]int{}
	for _, r := range results {
		require.NotNil(t, r)
		outcomes[r.Action]++
	}
	assert.Equal(t, 1, outcomes[OutcomeAdded])
	assert.Equal(t, 1, outcomes[OutcomeNoop])
	assert.Equal(t, int64(1), ledgerCount(t, repo, "c1", KindLike))

	counters, err := repo.GetCounters(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.Likes)
	assert.Equal(t, 1, rewards.count(), "награда только за вставку")
}

func TestToggleStormConvergesToParity(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(repo, published("c1"))

	for _, n := range []int{7, 10} {
		contentUser := int64(100 + n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Toggle(context.Background(), ToggleRequest{
					UserID: contentUser, ContentID: "c1", Kind: KindSave,
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		state, err := svc.GetState(context.Background(), contentUser, "c1")
		require.NoError(t, err)
		assert.Equal(t, n%2 == 1, state.Saved, "n=%d", n)
	}

	counters, err := repo.GetCounters(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, ledgerCount(t, repo, "c1", KindSave), counters.Saves)
	assert.Equal(t, int64(1), counters.Saves)
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	repo := newTestRepo(t)
	rewards := &recordingRewards{}
	svc := NewService(repo, published("c1"), WithRewards(rewards))
	ctx := context.Background()

	_, err := svc.Toggle(ctx, ToggleRequest{UserID: 2, ContentID: "c1", Kind: KindView, Action: ActionAdd})
	require.NoError(t, err)

	res, err := svc.Toggle(ctx, ToggleRequest{UserID: 1, ContentID: "c1", Kind: KindView, Action: ActionRemove})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Action)
	assert.Equal(t, int64(1), res.Counters.Views)
	assert.Zero(t, res.RecordID)

	res, err = svc.Toggle(ctx, ToggleRequest{UserID: 2, ContentID: "c1", Kind: KindView, Action: ActionAdd})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Action)
	assert.Equal(t, 1, rewards.count())
}

func TestToggleCatalogErrors(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(repo, fakeCatalog{"draft": "draft"})
	ctx := context.Background()

	_, err := svc.Toggle(ctx, ToggleRequest{UserID: 1, ContentID: "missing", Kind: KindLike})
	assert.ErrorIs(t, err, common.ErrContentNotFound)

	_, err = svc.Toggle(ctx, ToggleRequest{UserID: 1, ContentID: "draft", Kind: KindLike})
	assert.ErrorIs(t, err, common.ErrContentNotPublished)

	snaps, err := repo.ScanCounters(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, snaps, "до транзакции дело не дошло")
}

func TestToggleValidation(t *testing.T) {
	svc := NewService(newTestRepo(t), nil)
	ctx := context.Background()

	_, err := svc.Toggle(ctx, ToggleRequest{UserID: 1, ContentID: "c1", Kind: Kind(0)})
	assert.ErrorIs(t, err, common.ErrInvalidKind)

	_, err = svc.Toggle(ctx, ToggleRequest{UserID: 0, ContentID: "c1", Kind: KindLike})
	assert.ErrorIs(t, err, common.ErrInvalidUserID)

	_, err = svc.Toggle(ctx, ToggleRequest{UserID: 1, ContentID: "", Kind: KindLike})
	assert.ErrorIs(t, err, common.ErrInvalidContentID)

	_, err = svc.Toggle(ctx, ToggleRequest{UserID: 1, ContentID: "c1", Kind: KindLike, Action: Action(9)})
	assert.ErrorIs(t, err, common.ErrInvalidAction)
}

func TestToggleClampEmitsDrift(t *testing.T) {
	repo := newTestRepo(t)
	var drifts []DriftSignal
	svc := NewService(repo, nil, WithDriftHook(func(d DriftSignal) { drifts = append(drifts, d) }))
	ctx := context.Background()

	_, err := svc.Toggle(ctx, ToggleRequest{UserID: 1, ContentID: "c1", Kind: KindShare})
	require.NoError(t, err)

	// Счётчик изменили мимо журнала
	_, err = repo.db.Exec(`UPDATE content_counters SET shares = 0 WHERE content_id = 'c1'`)
	require.NoError(t, err)

	res, err := svc.Toggle(ctx, ToggleRequest{UserID: 1, ContentID: "c1", Kind: KindShare})
	require.NoError(t, err, "зажим не ошибка")
	assert.Equal(t, OutcomeRemoved, res.Action)
	assert.Equal(t, int64(0), res.Counters.Shares)

	require.Len(t, drifts, 1)
	assert.Equal(t, KindShare, drifts[0].Kind)
	assert.Equal(t, int64(0), drifts[0].StoredValue)
}

func TestToggleSideEffectFailuresAreSwallowed(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(repo, nil, WithActivity(failingActivity{}))

	res, err := svc.Toggle(context.Background(), ToggleRequest{UserID: 1, ContentID: "c1", Kind: KindComment})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdded, res.Action)
	assert.Equal(t, int64(1), res.Counters.Comments)
}

func TestToggleCancelledLeavesNoState(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Toggle(ctx, ToggleRequest{UserID: 1, ContentID: "c1", Kind: KindLike})
	require.Error(t, err)
	assert.Equal(t, int64(0), ledgerCount(t, repo, "c1", KindLike))

	counters, err := repo.GetCounters(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, counters.Likes)
}

func TestGetState(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(repo, nil)
	ctx := context.Background()

	for _, k := range []Kind{KindLike, KindView} {
		_, err := svc.Toggle(ctx, ToggleRequest{UserID: 3, ContentID: "c9", Kind: k})
		require.NoError(t, err)
	}
	_, err := svc.Toggle(ctx, ToggleRequest{UserID: 4, ContentID: "c9", Kind: KindLike})
	require.NoError(t, err)

	state, err := svc.GetState(ctx, 3, "c9")
	require.NoError(t, err)
	assert.True(t, state.Liked)
	assert.True(t, state.Viewed)
	assert.False(t, state.Saved)
	assert.False(t, state.Shared)
	assert.False(t, state.Commented)
	assert.Equal(t, int64(2), state.Counters.Likes)
	assert.Equal(t, int64(1), state.Counters.Views)

	state, err = svc.GetState(ctx, 5, "unseen")
	require.NoError(t, err)
	assert.False(t, state.Liked)
	assert.Zero(t, state.Counters.Likes)
}

func TestInsertInteractionConflictReturnsNil(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	key := Key{UserID: 1, ContentID: "c1", Kind: KindLike}

	err := repo.WithinTx(ctx, func(tx Tx) error {
		first, err := tx.InsertInteraction(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.False(t, first.CreatedAt.IsZero())

		second, err := tx.InsertInteraction(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, second)

		found, err := tx.FindInteraction(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, first.ID, found.ID)

		deleted, err := tx.DeleteInteraction(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, deleted)
		assert.Equal(t, first.ID, deleted.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestRepairCounter(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(repo, nil)
	ctx := context.Background()

	for u := int64(1); u <= 3; u++ {
		_, err := svc.Toggle(ctx, ToggleRequest{UserID: u, ContentID: "c1", Kind: KindLike})
		require.NoError(t, err)
	}
	_, err := repo.db.Exec(`UPDATE content_counters SET likes = 5 WHERE content_id = 'c1'`)
	require.NoError(t, err)

	snaps, err := repo.ScanCounters(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(5), snaps[0].Stored.Likes)
	assert.Equal(t, int64(3), snaps[0].Actual.Likes)

	stored, actual, err := repo.RepairCounter(ctx, "c1", KindLike)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stored)
	assert.Equal(t, int64(3), actual)

	counters, err := repo.GetCounters(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), counters.Likes)
}

// conflictStore — хранилище, у которого вставка всегда проигрывает гонку
// на уникальном индексе с ошибкой, а не молча.
type conflictStore struct {
	committed   Counters
	getErr      error
	saves       int
	rolledBack  int
	getCounters int
}

func (s *conflictStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	err := fn(conflictTx{s})
	if err != nil {
		s.rolledBack++
	}
	return err
}

func (s *conflictStore) UserKinds(context.Context, int64, string) ([]Kind, error) {
	return nil, nil
}

func (s *conflictStore) GetCounters(_ context.Context, contentID string) (Counters, error) {
	s.getCounters++
	if s.getErr != nil {
		return Counters{}, s.getErr
	}
	c := s.committed
	c.ContentID = contentID
	return c, nil
}

type conflictTx struct{ s *conflictStore }

func (t conflictTx) LockCounters(_ context.Context, contentID string) (Counters, error) {
	// Снимок до коммита победителя
	return Counters{ContentID: contentID, Likes: t.s.committed.Likes - 1}, nil
}

func (t conflictTx) SaveCounters(context.Context, Counters) error {
	t.s.saves++
	return nil
}

func (conflictTx) FindInteraction(context.Context, Key) (*Record, error) { return nil, nil }

func (conflictTx) InsertInteraction(_ context.Context, key Key) (*Record, error) {
	return nil, fmt.Errorf("вставка %s: %w", key.ContentID, common.ErrConflict)
}

func (conflictTx) DeleteInteraction(context.Context, Key) (*Record, error) { return nil, nil }

func TestToggleUniqueConflictBecomesNoop(t *testing.T) {
	store := &conflictStore{committed: Counters{Likes: 5, Views: 2}}
	rewards := &recordingRewards{}
	drifts := 0
	svc := NewService(store, published("c1"),
		WithRewards(rewards),
		WithDriftHook(func(DriftSignal) { drifts++ }),
	)

	res, err := svc.Toggle(context.Background(), ToggleRequest{
		UserID: 1, ContentID: "c1", Kind: KindLike, Action: ActionAdd,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Action)
	assert.Zero(t, res.RecordID)
	assert.Equal(t, Counters{ContentID: "c1", Likes: 5, Views: 2}, res.Counters, "счётчики победителя, а не снимок из транзакции")

	assert.Equal(t, 1, store.rolledBack)
	assert.Equal(t, 1, store.getCounters)
	assert.Zero(t, store.saves)
	assert.Zero(t, rewards.count(), "награда за чужую запись не ставится")
	assert.Zero(t, drifts)
}

func TestToggleUniqueConflictCountersReadFails(t *testing.T) {
	store := &conflictStore{committed: Counters{Likes: 1}, getErr: assert.AnError}
	svc := NewService(store, published("c1"))

	res, err := svc.Toggle(context.Background(), ToggleRequest{
		UserID: 1, ContentID: "c1", Kind: KindLike, Action: ActionAdd,
	})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, common.ErrConflict)
}
