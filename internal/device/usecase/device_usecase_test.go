package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"anoapp-backend/internal/device/domain"
	"anoapp-backend/internal/device/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testUsecase(t *testing.T) (DeviceUsecase, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Device{}, &domain.Topic{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewDeviceUsecase(repository.NewDeviceRepository(db), nil), db
}

func TestSubscribeRejectsShortIdentifiers(t *testing.T) {
	uc, _ := testUsecase(t)
	ctx := context.Background()

	_, err := uc.Subscribe(ctx, SubscribeInput{UUID: "uuid-1234567890", Token: "short", Topic: "news"})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "device_token" {
		t.Fatalf("err = %v, want device_token validation error", err)
	}

	_, err = uc.Subscribe(ctx, SubscribeInput{UUID: "short", Token: "token-1234567890", Topic: "news"})
	if !errors.As(err, &verr) || verr.Field != "device_uuid" {
		t.Fatalf("err = %v, want device_uuid validation error", err)
	}
}

func TestSubscribeIsIdempotentPerUUID(t *testing.T) {
	uc, db := testUsecase(t)
	ctx := context.Background()

	in := SubscribeInput{UUID: "uuid-1234567890", Token: "token-aaaaaaaaaa", Topic: "news", Name: "Pixel"}
	id1, err := uc.Subscribe(ctx, in)
	if err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}

	// Same uuid, rotated token: the registration is refreshed in place.
	in.Token = "token-bbbbbbbbbb"
	id2, err := uc.Subscribe(ctx, in)
	if err != nil {
		t.Fatalf("second Subscribe: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("subscription ids differ: %d vs %d", id1, id2)
	}

	var count int64
	if err := db.Model(&domain.Device{}).Count(&count).Error; err != nil {
		t.Fatalf("count devices: %v", err)
	}
	if count != 1 {
		t.Fatalf("device rows = %d, want 1", count)
	}

	var device domain.Device
	if err := db.First(&device, id1).Error; err != nil {
		t.Fatalf("load device: %v", err)
	}
	if device.Token != "token-bbbbbbbbbb" {
		t.Fatalf("token = %q, want rotated token", device.Token)
	}
}

func TestSubscribeRequiresTopicForNewDevice(t *testing.T) {
	uc, _ := testUsecase(t)

	_, err := uc.Subscribe(context.Background(), SubscribeInput{
		UUID:  "uuid-1234567890",
		Token: "token-1234567890",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	uc, _ := testUsecase(t)
	ctx := context.Background()

	removed, err := uc.Unsubscribe(ctx, "uuid-never-registered")
	if err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if removed {
		t.Fatal("removed = true for unknown device")
	}

	if _, err := uc.Subscribe(ctx, SubscribeInput{UUID: "uuid-1234567890", Token: "token-1234567890", Topic: "news"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	removed, err = uc.Unsubscribe(ctx, "uuid-1234567890")
	if err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if !removed {
		t.Fatal("removed = false for registered device")
	}
}

func TestRegisterUserTokenRejectsDuplicates(t *testing.T) {
	uc, _ := testUsecase(t)
	ctx := context.Background()

	id, err := uc.RegisterUserToken(ctx, 7, "token-user-seven-1")
	if err != nil {
		t.Fatalf("RegisterUserToken: %v", err)
	}
	if id == 0 {
		t.Fatal("expected assigned id")
	}

	if _, err := uc.RegisterUserToken(ctx, 8, "token-user-seven-1"); !errors.Is(err, ErrTokenExists) {
		t.Fatalf("err = %v, want ErrTokenExists", err)
	}
}

func TestRegisterUserTokenRequiresUser(t *testing.T) {
	uc, _ := testUsecase(t)

	_, err := uc.RegisterUserToken(context.Background(), 0, "token-1234567890")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "user_id" {
		t.Fatalf("err = %v, want user_id validation error", err)
	}
}
