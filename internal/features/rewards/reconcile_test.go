package rewards

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/engagement-engine/internal/features/interactions"
)

type anyPublished struct{}

func (anyPublished) EnsurePublished(context.Context, string) error { return nil }

// gatedAwarder держит первое задание, пока не закроют release, потом отдаёт в next.
type gatedAwarder struct {
	next    Awarder
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedAwarder) AwardPoints(ctx context.Context, job Job) error {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.next.AwardPoints(ctx, job)
}

func entriesOf(t *testing.T, repo *SQLiteRepository, userID int64) int {
	t.Helper()
	entries, err := repo.ListEntries(context.Background(), userID, 10)
	require.NoError(t, err)
	return len(entries)
}

func TestReconcileAwardsJobsDroppedByFullQueue(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	awarder := &gatedAwarder{next: svc, started: make(chan struct{}), release: make(chan struct{})}
	d := NewDispatcher(awarder, DispatcherOptions{Workers: 1, QueueSize: 1})
	toggles := interactions.NewService(interactions.NewSQLiteRepository(repo.db), anyPublished{},
		interactions.WithRewards(d))

	add := func(userID int64) {
		res, err := toggles.Toggle(ctx, interactions.ToggleRequest{
			UserID: userID, ContentID: "c1", Kind: interactions.KindLike, Action: interactions.ActionAdd,
		})
		require.NoError(t, err)
		require.Equal(t, interactions.OutcomeAdded, res.Action)
	}

	add(1)
	<-awarder.started // воркер занят первым заданием
	add(2)            // ждёт в очереди
	add(3)            // очередь полна, задание отброшено

	close(awarder.release)
	require.NoError(t, d.Close(ctx))

	assert.Equal(t, 1, entriesOf(t, repo, 1))
	assert.Equal(t, 1, entriesOf(t, repo, 2))
	assert.Equal(t, 0, entriesOf(t, repo, 3))

	n, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	balance, err := svc.Balance(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, interactions.KindLike.Points(), balance.Points)

	n, err = svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "повторный проход ничего не находит")
}

func TestReconcileSkipsRemovedAndPaginates(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	toggles := interactions.NewService(interactions.NewSQLiteRepository(repo.db), anyPublished{})

	const users = reconcileBatch + 3
	for u := int64(1); u <= users; u++ {
		_, err := toggles.Toggle(ctx, interactions.ToggleRequest{
			UserID: u, ContentID: "c1", Kind: interactions.KindSave, Action: interactions.ActionAdd,
		})
		require.NoError(t, err)
	}
	// Снятое до прохода взаимодействие не награждается
	_, err := toggles.Toggle(ctx, interactions.ToggleRequest{
		UserID: 1, ContentID: "c1", Kind: interactions.KindSave, Action: interactions.ActionRemove,
	})
	require.NoError(t, err)

	n, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, users-1, n)
	assert.Equal(t, 0, entriesOf(t, repo, 1))
	assert.Equal(t, 1, entriesOf(t, repo, users))

	balance, err := svc.Balance(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, interactions.KindSave.Points(), balance.Points)
}
