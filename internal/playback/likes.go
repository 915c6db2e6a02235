package playback

import (
	"context"

	"github.com/stwalsh4118/marquee/internal/models"
)

// RegisterLike sends a like request. cb, if not nil, receives whether the
// request succeeded; requesting the current state succeeds without a request.
// Counts are adjusted locally on success unless the like state changed while
// the request was in flight, in which case the next poll settles them.
func (o *Orchestrator) RegisterLike(likeType models.LikeType, cb func(success bool)) error {
	if !o.deps.Client.LikesEnabled() {
		return ErrLikesDisabled
	}
	if !likeType.IsValidRequest() {
		return ErrInvalidLikeType
	}
	if cb == nil {
		cb = func(bool) {}
	}

	o.mu.Lock()
	if o.destroyed {
		o.mu.Unlock()
		return nil
	}
	previous := o.likeType
	if likeType.Resulting() == previous {
		o.mu.Unlock()
		cb(true)
		return nil
	}

	client := o.deps.Client
	contentID := o.cfg.ContentID
	log := o.log
	o.background(func(ctx context.Context) {
		success, err := client.RegisterLike(ctx, contentID, likeType)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("like_type", string(likeType)).Msg("Like request failed")
			}
			success = false
		}
		o.post(func() {
			if success {
				o.applyLikeLocked(previous, likeType)
			}
			o.effects = append(o.effects, func() { cb(success) })
		})
	})
	o.mu.Unlock()
	return nil
}

// applyLikeLocked applies the delta of a confirmed like request made while
// the state was previous
func (o *Orchestrator) applyLikeLocked(previous, requested models.LikeType) {
	if previous != o.likeType {
		return
	}

	likesChanged, dislikesChanged := false, false
	switch previous {
	case models.LikeTypeNone:
		switch requested {
		case models.LikeTypeLike:
			likesChanged = addInt64(o.numLikes, 1)
		case models.LikeTypeDislike:
			dislikesChanged = addInt64(o.numDislikes, 1)
		}
	case models.LikeTypeLike:
		switch requested {
		case models.LikeTypeDislike:
			likesChanged = addInt64(o.numLikes, -1)
			dislikesChanged = addInt64(o.numDislikes, 1)
		case models.LikeTypeReset:
			likesChanged = addInt64(o.numLikes, -1)
		}
	case models.LikeTypeDislike:
		switch requested {
		case models.LikeTypeLike:
			likesChanged = addInt64(o.numLikes, 1)
			dislikesChanged = addInt64(o.numDislikes, -1)
		case models.LikeTypeReset:
			dislikesChanged = addInt64(o.numDislikes, -1)
		}
	}

	o.likeType = requested.Resulting()
	o.emitLocked(EventLikeTypeChanged)
	if likesChanged {
		o.emitLocked(EventNumLikesChanged)
	}
	if dislikesChanged {
		o.emitLocked(EventNumDislikesChanged)
	}
}

// addInt64 adjusts a known count; unknown counts stay unknown
func addInt64(v *int64, delta int64) bool {
	if v == nil {
		return false
	}
	*v += delta
	return true
}
