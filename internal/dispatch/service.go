package dispatch

import (
	"context"
	"errors"
	"sync"

	devicerepo "anoapp-backend/internal/device/repository"
	feedusecase "anoapp-backend/internal/feed/usecase"
	"anoapp-backend/pkg/fcm"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Target selects who receives a push. Exactly one selector is set.
type Target struct {
	Token   string
	Topic   string
	OwnerID uint
	All     bool
}

// ToToken addresses a single registration token.
func ToToken(token string) Target { return Target{Token: token} }

// ToTopic addresses an FCM topic by name.
func ToTopic(topic string) Target { return Target{Topic: topic} }

// ToUser addresses every device registered to one user.
func ToUser(userID uint) Target { return Target{OwnerID: userID} }

// ToAll addresses every registered device.
func ToAll() Target { return Target{All: true} }

// Result summarizes one dispatch: per-target outcomes plus totals. A failed
// target never aborts the rest of the batch.
type Result struct {
	Delivered int
	Failed    int
	Outcomes  []fcm.SendResult
}

// Sender is the part of the FCM client the dispatcher uses.
type Sender interface {
	SendToDevice(ctx context.Context, token string, n fcm.Notification) fcm.SendResult
	SendToTopic(ctx context.Context, topic string, n fcm.Notification) fcm.SendResult
}

// Service resolves targets against the device registry and fans sends out
// over a bounded worker pool.
type Service struct {
	devices devicerepo.DeviceRepository
	feed    feedusecase.FeedUsecase
	client  Sender
	workers int
}

// NewService creates a new instance of Service
func NewService(devices devicerepo.DeviceRepository, feed feedusecase.FeedUsecase, client Sender, workers int) *Service {
	if workers <= 0 {
		workers = 8
	}
	return &Service{devices: devices, feed: feed, client: client, workers: workers}
}

// Send pushes a notification to the target. Token snapshots are taken once at
// the start; devices registered mid-send are picked up next time.
func (s *Service) Send(ctx context.Context, target Target, n fcm.Notification) (*Result, error) {
	if s.client == nil {
		return nil, errors.New("dispatch: push delivery is not configured")
	}
	if target.Topic != "" {
		outcome := s.client.SendToTopic(ctx, target.Topic, n)
		return collect([]fcm.SendResult{outcome}), nil
	}

	var tokens []string
	switch {
	case target.Token != "":
		tokens = []string{target.Token}
	case target.All:
		var err error
		tokens, err = s.devices.TokensForOwner(ctx, 0)
		if err != nil {
			return nil, err
		}
	case target.OwnerID != 0:
		var err error
		tokens, err = s.devices.TokensForOwner(ctx, target.OwnerID)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("dispatch: empty target")
	}

	if len(tokens) == 0 {
		return &Result{}, nil
	}
	return s.fanOut(ctx, tokens, n), nil
}

// ContentPublished handles a new published post: one broadcast feed entry and
// a push to every registered device.
func (s *Service) ContentPublished(ctx context.Context, title, excerpt, link string) (*Result, error) {
	if _, err := s.feed.Append(ctx, 0, title, link); err != nil {
		return nil, err
	}
	return s.Send(ctx, ToAll(), fcm.Notification{Title: title, Body: excerpt, ClickAction: link})
}

// RecordFeed stores a feed entry for a user without pushing.
func (s *Service) RecordFeed(ctx context.Context, recipientID uint, message, link string) (uint, error) {
	return s.feed.Append(ctx, recipientID, message, link)
}

func (s *Service) fanOut(ctx context.Context, tokens []string, n fcm.Notification) *Result {
	batchID := uuid.NewString()
	logrus.WithFields(logrus.Fields{
		"batch":   batchID,
		"targets": len(tokens),
	}).Info("dispatching push batch")

	outcomes := make([]fcm.SendResult, len(tokens))
	jobs := make(chan int)

	var wg sync.WaitGroup
	workers := s.workers
	if workers > len(tokens) {
		workers = len(tokens)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = s.client.SendToDevice(ctx, tokens[i], n)
			}
		}()
	}
	for i := range tokens {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	result := collect(outcomes)
	logrus.WithFields(logrus.Fields{
		"batch":     batchID,
		"delivered": result.Delivered,
		"failed":    result.Failed,
	}).Info("push batch done")
	return result
}

func collect(outcomes []fcm.SendResult) *Result {
	result := &Result{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.OK {
			result.Delivered++
		} else {
			result.Failed++
		}
	}
	return result
}
