package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stwalsh4118/marquee/internal/models"
)

func likedSnapshot(likes, dislikes int64, choice models.LikeType) *models.MediaStateSnapshot {
	snap := vodSnapshot()
	snap.NumLikes = int64Ptr(likes)
	snap.NumDislikes = int64Ptr(dislikes)
	snap.LikeType = choice
	return snap
}

func registerLike(t *testing.T, o *Orchestrator, likeType models.LikeType) bool {
	t.Helper()
	result := make(chan bool, 1)
	require.NoError(t, o.RegisterLike(likeType, func(ok bool) { result <- ok }))
	select {
	case ok := <-result:
		return ok
	case <-time.After(waitFor):
		t.Fatal("like callback did not run")
		return false
	}
}

func counts(t *testing.T, o *Orchestrator) (int64, int64, models.LikeType) {
	t.Helper()
	likes, err := o.NumLikes()
	require.NoError(t, err)
	dislikes, err := o.NumDislikes()
	require.NoError(t, err)
	choice, err := o.LikeType()
	require.NoError(t, err)
	require.NotNil(t, likes)
	require.NotNil(t, dislikes)
	return *likes, *dislikes, choice
}

func TestRegisterLike_Deltas(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []models.LikeType
	)
	h := newHarness(t, likedSnapshot(10, 2, models.LikeTypeNone), withClient(func(c *mockStateClient) {
		c.likes = true
		c.RegisterLikeFunc = func(_ context.Context, _ string, likeType models.LikeType) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			requests = append(requests, likeType)
			return true, nil
		}
	}))
	h.startAndLoad()

	steps := []struct {
		request      models.LikeType
		wantLikes    int64
		wantDislikes int64
		wantChoice   models.LikeType
	}{
		{models.LikeTypeLike, 11, 2, models.LikeTypeLike},
		{models.LikeTypeDislike, 10, 3, models.LikeTypeDislike},
		{models.LikeTypeLike, 11, 2, models.LikeTypeLike},
		{models.LikeTypeReset, 10, 2, models.LikeTypeNone},
		{models.LikeTypeDislike, 10, 3, models.LikeTypeDislike},
		{models.LikeTypeReset, 10, 2, models.LikeTypeNone},
	}
	for _, step := range steps {
		require.True(t, registerLike(t, h.o, step.request), "request %s", step.request)
		likes, dislikes, choice := counts(t, h.o)
		assert.Equal(t, step.wantLikes, likes, "likes after %s", step.request)
		assert.Equal(t, step.wantDislikes, dislikes, "dislikes after %s", step.request)
		assert.Equal(t, step.wantChoice, choice, "choice after %s", step.request)
	}

	mu.Lock()
	assert.Len(t, requests, len(steps))
	mu.Unlock()

	require.Eventually(t, func() bool { return h.events.count(EventLikeTypeChanged) == len(steps) }, waitFor, tick)
}

func TestRegisterLike_CurrentStateSkipsRequest(t *testing.T) {
	requested := false
	h := newHarness(t, likedSnapshot(4, 1, models.LikeTypeLike), withClient(func(c *mockStateClient) {
		c.likes = true
		c.RegisterLikeFunc = func(context.Context, string, models.LikeType) (bool, error) {
			requested = true
			return true, nil
		}
	}))
	h.startAndLoad()

	assert.True(t, registerLike(t, h.o, models.LikeTypeLike))
	assert.False(t, requested)

	likes, _, _ := counts(t, h.o)
	assert.Equal(t, int64(4), likes)
}

func TestRegisterLike_Failure(t *testing.T) {
	h := newHarness(t, likedSnapshot(4, 1, models.LikeTypeNone), withClient(func(c *mockStateClient) {
		c.likes = true
		c.RegisterLikeFunc = func(context.Context, string, models.LikeType) (bool, error) {
			return false, errors.New("status 403")
		}
	}))
	h.startAndLoad()

	assert.False(t, registerLike(t, h.o, models.LikeTypeLike))
	likes, _, choice := counts(t, h.o)
	assert.Equal(t, int64(4), likes)
	assert.Equal(t, models.LikeTypeNone, choice)
}

func TestRegisterLike_StateChangedInFlight(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, likedSnapshot(10, 2, models.LikeTypeNone), withClient(func(c *mockStateClient) {
		c.likes = true
		c.RegisterLikeFunc = func(ctx context.Context, _ string, _ models.LikeType) (bool, error) {
			select {
			case <-release:
				return true, nil
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
	}))
	h.startAndLoad()

	result := make(chan bool, 1)
	require.NoError(t, h.o.RegisterLike(models.LikeTypeLike, func(ok bool) { result <- ok }))

	// the site already counted the like by the time the next poll lands
	h.server.set(likedSnapshot(50, 2, models.LikeTypeLike))
	h.o.Refresh()
	require.Eventually(t, func() bool {
		choice, err := h.o.LikeType()
		return err == nil && choice == models.LikeTypeLike
	}, waitFor, tick)

	close(release)
	select {
	case ok := <-result:
		assert.True(t, ok)
	case <-time.After(waitFor):
		t.Fatal("like callback did not run")
	}

	likes, dislikes, choice := counts(t, h.o)
	assert.Equal(t, int64(50), likes)
	assert.Equal(t, int64(2), dislikes)
	assert.Equal(t, models.LikeTypeLike, choice)
}

func TestRegisterLike_UnknownCounts(t *testing.T) {
	snap := vodSnapshot()
	h := newHarness(t, snap, withClient(func(c *mockStateClient) { c.likes = true }))
	h.startAndLoad()

	assert.True(t, registerLike(t, h.o, models.LikeTypeDislike))
	likes, err := h.o.NumLikes()
	require.NoError(t, err)
	assert.Nil(t, likes)
	choice, err := h.o.LikeType()
	require.NoError(t, err)
	assert.Equal(t, models.LikeTypeDislike, choice)
	assert.Zero(t, h.events.count(EventNumDislikesChanged))
}

func TestRegisterLike_Validation(t *testing.T) {
	disabled := newHarness(t, vodSnapshot())
	assert.ErrorIs(t, disabled.o.RegisterLike(models.LikeTypeLike, nil), ErrLikesDisabled)

	enabled := newHarness(t, vodSnapshot(), withClient(func(c *mockStateClient) { c.likes = true }))
	assert.ErrorIs(t, enabled.o.RegisterLike(models.LikeTypeNone, nil), ErrInvalidLikeType)
	assert.ErrorIs(t, enabled.o.RegisterLike("love", nil), ErrInvalidLikeType)
}

func TestApplyLike(t *testing.T) {
	tests := []struct {
		name         string
		previous     models.LikeType
		requested    models.LikeType
		wantLikes    int64
		wantDislikes int64
		wantEvents   []EventKind
	}{
		{"like", models.LikeTypeNone, models.LikeTypeLike, 6, 3, []EventKind{EventLikeTypeChanged, EventNumLikesChanged}},
		{"dislike", models.LikeTypeNone, models.LikeTypeDislike, 5, 4, []EventKind{EventLikeTypeChanged, EventNumDislikesChanged}},
		{"like to dislike", models.LikeTypeLike, models.LikeTypeDislike, 4, 4, []EventKind{EventLikeTypeChanged, EventNumLikesChanged, EventNumDislikesChanged}},
		{"like reset", models.LikeTypeLike, models.LikeTypeReset, 4, 3, []EventKind{EventLikeTypeChanged, EventNumLikesChanged}},
		{"dislike to like", models.LikeTypeDislike, models.LikeTypeLike, 6, 2, []EventKind{EventLikeTypeChanged, EventNumLikesChanged, EventNumDislikesChanged}},
		{"dislike reset", models.LikeTypeDislike, models.LikeTypeReset, 5, 2, []EventKind{EventLikeTypeChanged, EventNumDislikesChanged}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Orchestrator{
				likeType:    tt.previous,
				numLikes:    int64Ptr(5),
				numDislikes: int64Ptr(3),
			}
			o.applyLikeLocked(tt.previous, tt.requested)

			assert.Equal(t, tt.wantLikes, *o.numLikes)
			assert.Equal(t, tt.wantDislikes, *o.numDislikes)
			assert.Equal(t, tt.requested.Resulting(), o.likeType)
			assert.Len(t, o.effects, len(tt.wantEvents))
		})
	}
}
