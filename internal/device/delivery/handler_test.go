package delivery

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"anoapp-backend/internal/device/domain"
	"anoapp-backend/internal/device/repository"
	"anoapp-backend/internal/device/usecase"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testAPIKey = "test-rest-api-key"

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Device{}, &domain.Topic{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	uc := usecase.NewDeviceUsecase(repository.NewDeviceRepository(db), nil)
	handler := NewDeviceHandler(uc)

	r := gin.New()
	guarded := r.Group("", APIKeyAuth(testAPIKey))
	guarded.POST("/subscribe", handler.Subscribe)
	guarded.POST("/unsubscribe", handler.Unsubscribe)
	guarded.POST("/set-device-token", handler.SetDeviceToken)
	return r
}

func postForm(t *testing.T, r *gin.Engine, path string, form url.Values) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return w, body
}

func TestSubscribeRegistersDevice(t *testing.T) {
	r := testRouter(t)

	w, body := postForm(t, r, "/subscribe", url.Values{
		"rest_api_key": {testAPIKey},
		"device_token": {"token-1234567890"},
		"device_uuid":  {"uuid-1234567890"},
		"subscription": {"news"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["error"] != false {
		t.Fatalf("error = %v", body["error"])
	}
	if body["subscription_id"] == nil {
		t.Fatal("missing subscription_id")
	}
}

func TestSubscribeSameUUIDKeepsID(t *testing.T) {
	r := testRouter(t)

	form := url.Values{
		"rest_api_key": {testAPIKey},
		"device_token": {"token-aaaaaaaaaa"},
		"device_uuid":  {"uuid-1234567890"},
		"subscription": {"news"},
	}
	_, first := postForm(t, r, "/subscribe", form)

	form.Set("device_token", "token-bbbbbbbbbb")
	_, second := postForm(t, r, "/subscribe", form)

	if first["subscription_id"] != second["subscription_id"] {
		t.Fatalf("subscription ids differ: %v vs %v", first["subscription_id"], second["subscription_id"])
	}
}

func TestSubscribeRejectsShortToken(t *testing.T) {
	r := testRouter(t)

	w, body := postForm(t, r, "/subscribe", url.Values{
		"rest_api_key": {testAPIKey},
		"device_token": {"short"},
		"device_uuid":  {"uuid-1234567890"},
		"subscription": {"news"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if body["error"] != true {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestAPIKeyRequired(t *testing.T) {
	r := testRouter(t)

	w, body := postForm(t, r, "/subscribe", url.Values{
		"rest_api_key": {"wrong-key"},
		"device_token": {"token-1234567890"},
		"device_uuid":  {"uuid-1234567890"},
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if body["message"] != "REST API key is not valid" {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestUnsubscribeUnknownDevice(t *testing.T) {
	r := testRouter(t)

	w, body := postForm(t, r, "/unsubscribe", url.Values{
		"rest_api_key": {testAPIKey},
		"device_uuid":  {"uuid-never-registered"},
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if body["message"] != "No device token found" {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestUnsubscribeRemovesDevice(t *testing.T) {
	r := testRouter(t)

	postForm(t, r, "/subscribe", url.Values{
		"rest_api_key": {testAPIKey},
		"device_token": {"token-1234567890"},
		"device_uuid":  {"uuid-1234567890"},
		"subscription": {"news"},
	})

	w, body := postForm(t, r, "/unsubscribe", url.Values{
		"rest_api_key": {testAPIKey},
		"device_uuid":  {"uuid-1234567890"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["message"] != "The device token was successfully removed" {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestSetDeviceToken(t *testing.T) {
	r := testRouter(t)

	w, body := postForm(t, r, "/set-device-token", url.Values{
		"rest_api_key": {testAPIKey},
		"user_id":      {"7"},
		"device_token": {"token-user-7-aaaa"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["id"] == nil {
		t.Fatal("missing id")
	}

	// Same token again is rejected.
	w, body = postForm(t, r, "/set-device-token", url.Values{
		"rest_api_key": {testAPIKey},
		"user_id":      {"8"},
		"device_token": {"token-user-7-aaaa"},
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if body["message"] != "Token already exists" {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestSetDeviceTokenRequiresUser(t *testing.T) {
	r := testRouter(t)

	w, _ := postForm(t, r, "/set-device-token", url.Values{
		"rest_api_key": {testAPIKey},
		"device_token": {"token-1234567890"},
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}
