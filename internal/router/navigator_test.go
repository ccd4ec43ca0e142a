package router_test

import (
	"context"
	"testing"
	"time"

	"finetune-console/internal/router"
	"finetune-console/internal/session"
	"finetune-console/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetcherFunc func(ctx context.Context) (api.User, error)

func (f fetcherFunc) CurrentUser(ctx context.Context) (api.User, error) {
	return f(ctx)
}

func newStore(t *testing.T, token string) *session.Store {
	persister := session.NewMemoryPersister()
	if token != "" {
		require.NoError(t, persister.Save(map[string]string{session.TokenKey: token}))
	}
	store, err := session.NewStore(persister)
	require.NoError(t, err)
	return store
}

func TestProtectedRoutesRedirectWithoutCredential(t *testing.T) {
	store := newStore(t, "")
	nav := router.NewNavigator(store)

	for _, path := range []string{router.PathTasks, router.PathSubmit, router.PathDatasets, router.PathModels, router.PathChat, router.TaskPath("t1")} {
		loc := nav.Navigate(path)
		assert.Equal(t, router.ScreenLogin, loc.Screen, path)
		assert.Equal(t, router.PathLogin, loc.Path, "requested route %s is dropped", path)
	}
}

func TestPublicRoutesAlwaysRender(t *testing.T) {
	nav := router.NewNavigator(newStore(t, ""))

	assert.Equal(t, router.ScreenLogin, nav.Navigate(router.PathLogin).Screen)
	assert.Equal(t, router.ScreenRegister, nav.Navigate(router.PathRegister).Screen)
}

func TestUnknownRouteFallsBackToTasks(t *testing.T) {
	store := newStore(t, "")
	require.NoError(t, store.SetSession(api.Credential{AccessToken: "t"}, api.User{Username: "alice"}))
	nav := router.NewNavigator(store)

	loc := nav.Navigate("/no/such/page")
	assert.Equal(t, router.ScreenTasks, loc.Screen)
	assert.Equal(t, router.PathTasks, loc.Path)
}

func TestTaskDetailParam(t *testing.T) {
	store := newStore(t, "")
	require.NoError(t, store.SetSession(api.Credential{AccessToken: "t"}, api.User{Username: "alice"}))
	nav := router.NewNavigator(store)

	loc := nav.Navigate(router.TaskPath("8c1e-42"))
	assert.Equal(t, router.ScreenTaskDetail, loc.Screen)
	assert.Equal(t, "8c1e-42", loc.Param("taskId"))
}

func TestLoadingWhileResolving(t *testing.T) {
	store := newStore(t, "tok123")
	nav := router.NewNavigator(store)

	assert.Equal(t, router.Loading, router.Guard(store))
	assert.Equal(t, router.ScreenLoading, nav.Current().Screen)

	release := make(chan struct{})
	store.Resolve(context.Background(), fetcherFunc(func(ctx context.Context) (api.User, error) {
		<-release
		return api.User{UserId: "u1", Username: "alice"}, nil
	}))

	loc := nav.Navigate(router.PathDatasets)
	assert.Equal(t, router.ScreenLoading, loc.Screen)
	assert.Equal(t, router.PathDatasets, loc.Path)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, store.Wait(ctx))

	assert.Equal(t, router.Authenticated, router.Guard(store))
	assert.Equal(t, router.ScreenDatasets, nav.Refresh().Screen)
}

func TestHardRedirectWinsOverSoftNavigation(t *testing.T) {
	store := newStore(t, "")
	require.NoError(t, store.SetSession(api.Credential{AccessToken: "t"}, api.User{Username: "alice"}))
	nav := router.NewNavigator(store)

	gen := nav.Generation()

	store.Clear()
	nav.RedirectToLogin()

	assert.False(t, nav.NavigateFrom(gen, router.PathTasks))
	assert.Equal(t, router.ScreenLogin, nav.Current().Screen)

	assert.True(t, nav.NavigateFrom(nav.Generation(), router.PathRegister))
	assert.Equal(t, router.ScreenRegister, nav.Current().Screen)
}
