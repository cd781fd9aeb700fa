package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"anoapp-backend/internal/feed/domain"
	"anoapp-backend/internal/feed/repository"
	"anoapp-backend/pkg/cache"
)

// presentationLimit caps how many entries a poll response carries; older
// unread entries stay unread and reappear once newer ones are read.
const presentationLimit = 20

const (
	pollCacheKeyPrefix = "anoapp:notifications:"
	pollCacheTTL       = 5 * time.Second
)

// FeedItem is one notification as presented to clients.
type FeedItem struct {
	ID      uint   `json:"id"`
	Message string `json:"message"`
	Link    string `json:"link"`
}

// PollResult is the answer to one poll call.
type PollResult struct {
	Count  int        `json:"count"`
	HasNew bool       `json:"has_new"`
	Items  []FeedItem `json:"notifications"`
}

// FeedUsecase implements the notification feed operations.
type FeedUsecase interface {
	// Poll returns the user's unread entries. previousCount is the unread
	// count the client last saw; a larger current count raises the has-new
	// flag.
	Poll(ctx context.Context, userID uint, previousCount int) (*PollResult, error)
	// Append stores a feed entry addressed to recipientID (0 = broadcast).
	Append(ctx context.Context, recipientID uint, message, link string) (uint, error)
	// MarkRead marks one notification read for the user; idempotent.
	MarkRead(ctx context.Context, userID, notificationID uint) error
	// Seen clears the user's has-new flag.
	Seen(ctx context.Context, userID uint) error
}

type feedUsecase struct {
	repo  repository.NotificationRepository
	cache *cache.Cache
}

// NewFeedUsecase creates a new instance of feedUsecase
func NewFeedUsecase(repo repository.NotificationRepository, c *cache.Cache) FeedUsecase {
	return &feedUsecase{repo: repo, cache: c}
}

func (u *feedUsecase) Poll(ctx context.Context, userID uint, previousCount int) (*PollResult, error) {
	unread, err := u.unread(ctx, userID)
	if err != nil {
		return nil, err
	}

	count := len(unread)
	hasNew, err := u.repo.HasNew(ctx, userID)
	if err != nil {
		return nil, err
	}
	if count > previousCount {
		hasNew = true
		if err := u.repo.SetHasNew(ctx, userID, true); err != nil {
			return nil, err
		}
	}

	if count > presentationLimit {
		unread = unread[:presentationLimit]
	}
	items := make([]FeedItem, 0, len(unread))
	for _, n := range unread {
		items = append(items, FeedItem{
			ID:      n.ID,
			Message: stripTags(n.Message),
			Link:    n.Link,
		})
	}

	return &PollResult{Count: count, HasNew: hasNew, Items: items}, nil
}

func (u *feedUsecase) Append(ctx context.Context, recipientID uint, message, link string) (uint, error) {
	id, err := u.repo.Append(ctx, recipientID, message, link)
	if err != nil {
		return 0, err
	}
	if recipientID != 0 {
		// A broadcast touches every cached poll; the short TTL covers that.
		_ = u.cache.Delete(ctx, pollCacheKey(recipientID))
	}
	return id, nil
}

func (u *feedUsecase) MarkRead(ctx context.Context, userID, notificationID uint) error {
	if err := u.repo.MarkRead(ctx, userID, notificationID); err != nil {
		return err
	}
	_ = u.cache.Delete(ctx, pollCacheKey(userID))
	return nil
}

func (u *feedUsecase) Seen(ctx context.Context, userID uint) error {
	return u.repo.SetHasNew(ctx, userID, false)
}

// unread serves the poll hot path through a short-lived cache so a burst of
// polling clients does not translate into a burst of feed queries.
func (u *feedUsecase) unread(ctx context.Context, userID uint) ([]domain.Notification, error) {
	key := pollCacheKey(userID)

	var cached []domain.Notification
	if err := u.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	unread, err := u.repo.UnreadFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	_ = u.cache.Set(ctx, key, unread, pollCacheTTL)
	return unread, nil
}

func pollCacheKey(userID uint) string {
	return fmt.Sprintf("%s%d", pollCacheKeyPrefix, userID)
}

// stripTags removes HTML markup from stored messages at the render boundary;
// the store keeps the original text.
func stripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
