package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrina-search/vitrina/internal/catalog"
	verrors "github.com/vitrina-search/vitrina/internal/errors"
	"github.com/vitrina-search/vitrina/internal/kv"
)

type fakeIndexer struct {
	mu       sync.Mutex
	indexed  map[string][]catalog.Product
	updates  map[string][]catalog.StockUpdate
	indexErr error
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{
		indexed: make(map[string][]catalog.Product),
		updates: make(map[string][]catalog.StockUpdate),
	}
}

func (f *fakeIndexer) IndexProducts(_ context.Context, projectID string, products []catalog.Product) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return 0, f.indexErr
	}
	f.indexed[projectID] = products
	return len(products), nil
}

func (f *fakeIndexer) UpdateStockPrices(_ context.Context, projectID string, updates []catalog.StockUpdate) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[projectID] = updates
	return len(updates), nil
}

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestManager(t *testing.T, store kv.Store, indexer ProductIndexer, opts ...ManagerOption) *Manager {
	t.Helper()
	base := []ManagerOption{
		WithDownloader(NewDownloader(nil, 2*time.Second, 0)),
		WithRetry(3, time.Millisecond),
	}
	m, err := NewManager(store, indexer, append(base, opts...)...)
	require.NoError(t, err)
	return m
}

func TestNewManager_RequiresDependencies(t *testing.T) {
	_, err := NewManager(nil, newFakeIndexer())
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewManager(kv.NewMemory(), nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestManager_LoadFeed_Success(t *testing.T) {
	srv := feedServer(t, ymlFixture)
	store := kv.NewMemory()
	indexer := newFakeIndexer()
	m := newTestManager(t, store, indexer)

	report, err := m.LoadFeed(context.Background(), "proj_1", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Спорт Мастер", report.ShopName)
	assert.Equal(t, 2, report.ProductsCount)
	assert.Equal(t, 2, report.CategoriesCount)
	assert.Len(t, indexer.indexed["proj_1"], 2)

	st, err := m.Status(context.Background(), "proj_1")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusSuccess, st.Status)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, 2, st.ProductsCount)
	assert.Equal(t, 2, st.CategoriesCount)
	assert.Equal(t, "Спорт Мастер", st.ShopName)
	assert.Equal(t, srv.URL, st.URL)
	assert.NotEmpty(t, st.LastUpdate)
	assert.Empty(t, st.Error)
}

func TestManager_LoadFeed_DownloadErrorRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := kv.NewMemory()
	m := newTestManager(t, store, newFakeIndexer())

	_, err := m.LoadFeed(context.Background(), "proj_1", srv.URL)
	require.Error(t, err)

	st, err := m.Status(context.Background(), "proj_1")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusError, st.Status)
	assert.NotEmpty(t, st.Error)
}

func TestManager_LoadFeed_ErrorKeepsPreviousCounts(t *testing.T) {
	good := feedServer(t, ymlFixture)
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer bad.Close()

	store := kv.NewMemory()
	indexer := newFakeIndexer()
	m := newTestManager(t, store, indexer)

	_, err := m.LoadFeed(context.Background(), "proj_1", good.URL)
	require.NoError(t, err)

	_, err = m.LoadFeed(context.Background(), "proj_1", bad.URL)
	require.Error(t, err)

	st, err := m.Status(context.Background(), "proj_1")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusError, st.Status)
	assert.Equal(t, 2, st.ProductsCount, "previous index stats survive a failed refresh")
	assert.Len(t, indexer.indexed["proj_1"], 2, "previous index untouched")
}

func TestManager_LoadFeed_SuccessClearsPreviousError(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer bad.Close()
	good := feedServer(t, ymlFixture)

	store := kv.NewMemory()
	m := newTestManager(t, store, newFakeIndexer())

	_, err := m.LoadFeed(context.Background(), "proj_1", bad.URL)
	require.Error(t, err)

	_, err = m.LoadFeed(context.Background(), "proj_1", good.URL)
	require.NoError(t, err)

	st, err := m.Status(context.Background(), "proj_1")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusSuccess, st.Status)
	assert.Empty(t, st.Error)
}

func TestManager_LoadFeed_IndexErrorRecorded(t *testing.T) {
	srv := feedServer(t, ymlFixture)
	store := kv.NewMemory()
	indexer := newFakeIndexer()
	indexer.indexErr = verrors.InternalError("index write failed", nil)
	m := newTestManager(t, store, indexer)

	_, err := m.LoadFeed(context.Background(), "proj_1", srv.URL)
	require.Error(t, err)

	st, err := m.Status(context.Background(), "proj_1")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusError, st.Status)
}

func TestManager_LoadFeed_LockedProjectRejected(t *testing.T) {
	srv := feedServer(t, ymlFixture)
	store := kv.NewMemory()
	m := newTestManager(t, store, newFakeIndexer())

	ok, err := store.SetNX(context.Background(), kv.FeedLockKey("proj_1"), "1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = m.LoadFeed(context.Background(), "proj_1", srv.URL)
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeFeedLocked, verrors.GetCode(err))
}

func TestManager_LoadFeed_ReleasesLock(t *testing.T) {
	srv := feedServer(t, ymlFixture)
	store := kv.NewMemory()
	m := newTestManager(t, store, newFakeIndexer())

	_, err := m.LoadFeed(context.Background(), "proj_1", srv.URL)
	require.NoError(t, err)

	// Lock must be gone so the next refresh can start immediately.
	_, err = m.LoadFeed(context.Background(), "proj_1", srv.URL)
	require.NoError(t, err)
}

func TestManager_LoadFeed_EmptyURL(t *testing.T) {
	m := newTestManager(t, kv.NewMemory(), newFakeIndexer())

	_, err := m.LoadFeed(context.Background(), "proj_1", "")
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeInvalidInput, verrors.GetCode(err))
}

func TestManager_LoadStockFeed_AppliesUpdates(t *testing.T) {
	srv := feedServer(t, `<stock>
	  <item id="sku-1"><price>990</price></item>
	  <item id="sku-2"><available>false</available></item>
	</stock>`)
	store := kv.NewMemory()
	indexer := newFakeIndexer()
	m := newTestManager(t, store, indexer)

	report, err := m.LoadStockFeed(context.Background(), "proj_1", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, report.UpdatedCount)
	require.Len(t, indexer.updates["proj_1"], 2)
	assert.Equal(t, "sku-1", indexer.updates["proj_1"][0].ID)
}

func TestManager_Refresh_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(ymlFixture))
	}))
	defer srv.Close()

	m := newTestManager(t, kv.NewMemory(), newFakeIndexer())

	report, err := m.Refresh(context.Background(), "proj_1", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ProductsCount)
	assert.Equal(t, int32(3), calls.Load())
}

func TestManager_Refresh_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	m := newTestManager(t, kv.NewMemory(), newFakeIndexer())

	_, err := m.Refresh(context.Background(), "proj_1", srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestManager_Refresh_DoesNotRetryLockedProject(t *testing.T) {
	srv := feedServer(t, ymlFixture)
	store := kv.NewMemory()
	m := newTestManager(t, store, newFakeIndexer())

	ok, err := store.SetNX(context.Background(), kv.FeedLockKey("proj_1"), "1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = m.Refresh(context.Background(), "proj_1", srv.URL)
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeFeedLocked, verrors.GetCode(err))
}

func TestManager_Status_NotLoadedByDefault(t *testing.T) {
	m := newTestManager(t, kv.NewMemory(), newFakeIndexer())

	st, err := m.Status(context.Background(), "proj_new")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusNotLoaded, st.Status)
}
