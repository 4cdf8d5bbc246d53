package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/shopdesk/internal/live"
	"github.com/raphaelgruber/shopdesk/internal/metrics"
	"github.com/raphaelgruber/shopdesk/internal/models"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const killTimeout = 5 * time.Second

// WatchConversations subscribes to the full conversation list.
// Every change to any conversation delivers a fresh snapshot.
func (c *Client) WatchConversations(ctx context.Context) *live.Subscription[[]models.Conversation] {
	return watch(ctx, c, "conversations",
		`LIVE SELECT * FROM conversation`, nil,
		c.ListConversations,
	)
}

// WatchMessages subscribes to the messages of one conversation.
func (c *Client) WatchMessages(ctx context.Context, conversationID string) *live.Subscription[[]models.Message] {
	return watch(ctx, c, "messages",
		`LIVE SELECT * FROM message WHERE conversation = type::record("conversation", $id)`,
		map[string]any{"id": conversationID},
		func(ctx context.Context) ([]models.Message, error) {
			return c.ListMessages(ctx, conversationID)
		},
	)
}

// watch registers a live query and turns its notifications into full
// snapshots produced by load. The live query is registered before the
// first load so no change between the two is missed. Notifications that
// pile up during a reload collapse into one reload.
func watch[T any](
	ctx context.Context,
	c *Client,
	kind string,
	liveSQL string,
	vars map[string]any,
	load func(context.Context) (T, error),
) *live.Subscription[T] {
	log := c.logger.With("watch", kind)

	return live.Start(ctx, func(ctx context.Context, emit live.Emitter[T]) error {
		res, err := surrealdb.Query[surrealmodels.UUID](ctx, c.db, liveSQL, vars)
		if err != nil {
			return fmt.Errorf("start live %s: %w", kind, wrapQueryError(err))
		}
		if res == nil || len(*res) == 0 {
			return fmt.Errorf("start live %s: no query id returned", kind)
		}
		liveID := (*res)[0].Result.String()

		notifications, err := c.db.LiveNotifications(liveID)
		if err != nil {
			c.kill(ctx, liveID)
			return fmt.Errorf("live notifications %s: %w", kind, err)
		}
		log.Debug("live query started", "live_id", liveID)

		defer func() {
			c.kill(ctx, liveID)
			log.Debug("live query stopped", "live_id", liveID)
		}()

		reload := func() bool {
			v, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				log.Warn("snapshot reload failed", "error", err)
				return emit(live.Update[T]{Err: err})
			}
			return emit(live.Update[T]{Value: v})
		}

		if !reload() {
			return nil
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case _, ok := <-notifications:
				if !ok {
					return live.ErrClosed
				}
				c.metrics.Inc(metrics.CounterLiveNotifications)
				if !drain(notifications, c.metrics) {
					return live.ErrClosed
				}
				if !reload() {
					return nil
				}
			}
		}
	})
}

// drain discards queued notifications. Returns false if the channel closed.
func drain(ch <-chan connection.Notification, mc *metrics.Collector) bool {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return false
			}
			mc.Inc(metrics.CounterLiveNotifications)
		default:
			return true
		}
	}
}

// kill tears down a live query even when ctx is already cancelled.
func (c *Client) kill(ctx context.Context, liveID string) {
	killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), killTimeout)
	defer cancel()

	if err := surrealdb.Kill(killCtx, c.db, liveID); err != nil {
		c.logger.Debug("kill live query failed", "live_id", liveID, "error", err)
	}
	if err := c.db.CloseLiveNotifications(liveID); err != nil {
		c.logger.Debug("close live notifications failed", "live_id", liveID, "error", err)
	}
}
