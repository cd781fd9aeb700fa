package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"anoapp-backend/internal/device/domain"
	"anoapp-backend/internal/device/repository"
	"anoapp-backend/pkg/cache"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Registration tokens and device UUIDs shorter than this are rejected as
// malformed before touching the registry.
const minIdentifierLen = 10

const (
	tokenCacheKeyPrefix = "anoapp:token:"
	tokenCacheTTL       = 5 * time.Minute
)

// ErrTokenExists reports that a push token is already attached to a device.
var ErrTokenExists = errors.New("device token already registered")

// ValidationError reports malformed input; never retried by callers.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

// SubscribeInput carries the parameters of a subscribe call.
type SubscribeInput struct {
	UUID      string
	Token     string
	Topic     string
	Name      string
	OSVersion string
}

// DeviceUsecase implements the registration operations of the device registry.
type DeviceUsecase interface {
	// Subscribe upserts a device by uuid: a known uuid gets its token and
	// metadata refreshed in place (no-op when unchanged), an unknown uuid
	// creates a device subscribed to the given topic. Returns the device id.
	Subscribe(ctx context.Context, in SubscribeInput) (uint, error)
	// Unsubscribe hard-deletes by uuid; reports whether a device existed.
	Unsubscribe(ctx context.Context, uuid string) (bool, error)
	// RegisterUserToken attaches a push token to a user, rejecting tokens
	// already present in the registry with ErrTokenExists.
	RegisterUserToken(ctx context.Context, userID uint, token string) (uint, error)
}

type deviceUsecase struct {
	repo  repository.DeviceRepository
	cache *cache.Cache
}

// NewDeviceUsecase creates a new instance of deviceUsecase
func NewDeviceUsecase(repo repository.DeviceRepository, c *cache.Cache) DeviceUsecase {
	return &deviceUsecase{repo: repo, cache: c}
}

func (u *deviceUsecase) Subscribe(ctx context.Context, in SubscribeInput) (uint, error) {
	if len(in.Token) < minIdentifierLen {
		return 0, &ValidationError{Field: "device_token", Reason: "There is an error in the token you sent"}
	}
	if len(in.UUID) < minIdentifierLen {
		return 0, &ValidationError{Field: "device_uuid", Reason: "There is an error in the device-uuid you sent"}
	}

	existing, err := u.repo.FindByUUID(ctx, in.UUID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		if existing.Token != in.Token || existing.Name != in.Name || existing.OSVersion != in.OSVersion {
			if err := u.repo.UpdateTokenMeta(ctx, existing.ID, in.Token, in.Name, in.OSVersion); err != nil {
				return 0, err
			}
			u.invalidateTokenCache(ctx, existing.Token, in.Token)
		}
		return existing.ID, nil
	}

	if strings.TrimSpace(in.Topic) == "" {
		return 0, &ValidationError{Field: "subscription", Reason: "Not able to subscribe"}
	}
	topic, err := u.repo.GetOrCreateTopic(ctx, in.Topic)
	if err != nil {
		return 0, err
	}

	device := &domain.Device{
		UUID:      in.UUID,
		Token:     in.Token,
		Name:      in.Name,
		OSVersion: in.OSVersion,
		Topics:    []domain.Topic{*topic},
	}
	if err := u.repo.Create(ctx, device); err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{
		"device_id": device.ID,
		"topic":     topic.Slug,
	}).Info("device registered")
	return device.ID, nil
}

func (u *deviceUsecase) Unsubscribe(ctx context.Context, deviceUUID string) (bool, error) {
	if len(deviceUUID) < minIdentifierLen {
		return false, &ValidationError{Field: "device_uuid", Reason: "There is an error in the device-uuid you sent"}
	}
	return u.repo.Delete(ctx, deviceUUID)
}

func (u *deviceUsecase) RegisterUserToken(ctx context.Context, userID uint, token string) (uint, error) {
	if userID == 0 {
		return 0, &ValidationError{Field: "user_id", Reason: "Unauthorized"}
	}
	if len(token) < minIdentifierLen {
		return 0, &ValidationError{Field: "device_token", Reason: "There is an error in the token you sent"}
	}

	exists, err := u.tokenRegistered(ctx, token)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrTokenExists
	}

	id := uuid.NewString()
	device := &domain.Device{
		UUID:    id,
		Token:   token,
		OwnerID: userID,
		Name:    fmt.Sprintf("Device #%s", strings.SplitN(id, "-", 2)[0]),
	}
	if err := u.repo.Create(ctx, device); err != nil {
		return 0, err
	}
	_ = u.cache.Set(ctx, tokenCacheKeyPrefix+token, true, tokenCacheTTL)
	return device.ID, nil
}

// tokenRegistered answers the existence check hit on every inbound
// registration; positive answers are cached briefly since tokens churn slowly.
func (u *deviceUsecase) tokenRegistered(ctx context.Context, token string) (bool, error) {
	var cached bool
	if err := u.cache.Get(ctx, tokenCacheKeyPrefix+token, &cached); err == nil && cached {
		return true, nil
	}
	exists, err := u.repo.TokenRegistered(ctx, token)
	if err != nil {
		return false, err
	}
	if exists {
		_ = u.cache.Set(ctx, tokenCacheKeyPrefix+token, true, tokenCacheTTL)
	}
	return exists, nil
}

func (u *deviceUsecase) invalidateTokenCache(ctx context.Context, oldToken, newToken string) {
	_ = u.cache.Delete(ctx, tokenCacheKeyPrefix+oldToken)
	_ = u.cache.Set(ctx, tokenCacheKeyPrefix+newToken, true, tokenCacheTTL)
}
