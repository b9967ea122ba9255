package settings_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"adswap/internal/content"
	"adswap/internal/settings"
)

// MockRepository is a mock implementation of settings.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) List(ctx context.Context) ([]settings.Override, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settings.Override), args.Error(1)
}

func (m *MockRepository) Upsert(ctx context.Context, kind content.Kind, items []string) (*settings.Override, error) {
	args := m.Called(ctx, kind, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.Override), args.Error(1)
}

func (m *MockRepository) Delete(ctx context.Context, kind content.Kind) error {
	args := m.Called(ctx, kind)
	return args.Error(0)
}

func TestHandler_GetSettings(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockRepository)
		handler := settings.NewHandler(settings.NewService(mockRepo))

		mockRepo.On("List", mock.Anything).Return([]settings.Override{
			{Kind: content.KindReminder, Items: []string{"Sit up straight"}, UpdatedAt: time.Now()},
		}, nil)

		req := httptest.NewRequest("GET", "/settings", nil)
		w := httptest.NewRecorder()
		handler.GetSettings(w, req)

		resp := w.Result()
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Data settings.Settings `json:"data"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Len(t, body.Data.Pools, 3)
		assert.Equal(t, []string{"Sit up straight"}, body.Data.Pools[2].Items)
		mockRepo.AssertExpectations(t)
	})

	t.Run("InternalError", func(t *testing.T) {
		mockRepo := new(MockRepository)
		handler := settings.NewHandler(settings.NewService(mockRepo))
		mockRepo.On("List", mock.Anything).Return(nil, errors.New("db error"))

		req := httptest.NewRequest("GET", "/settings", nil)
		w := httptest.NewRecorder()
		handler.GetSettings(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Result().StatusCode)
	})
}

func TestHandler_UpdatePool(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockRepository)
		handler := settings.NewHandler(settings.NewService(mockRepo))

		mockRepo.On("Upsert", mock.Anything, content.KindQuote, []string{"Stay curious."}).
			Return(&settings.Override{Kind: content.KindQuote, Items: []string{"Stay curious."}}, nil)

		req := httptest.NewRequest("PUT", "/settings/quote", bytes.NewBufferString(`{"items":["Stay curious."]}`))
		req.SetPathValue("kind", "quote")
		w := httptest.NewRecorder()
		handler.UpdatePool(w, req)

		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
		mockRepo.AssertExpectations(t)
	})

	t.Run("ValidationError", func(t *testing.T) {
		handler := settings.NewHandler(settings.NewService(new(MockRepository)))

		for _, body := range []string{"invalid json", `{}`} {
			req := httptest.NewRequest("PUT", "/settings/quote", bytes.NewBufferString(body))
			req.SetPathValue("kind", "quote")
			w := httptest.NewRecorder()
			handler.UpdatePool(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode, body)
		}
	})

	t.Run("UnknownKind", func(t *testing.T) {
		handler := settings.NewHandler(settings.NewService(new(MockRepository)))

		req := httptest.NewRequest("PUT", "/settings/jokes", bytes.NewBufferString(`{"items":[]}`))
		req.SetPathValue("kind", "jokes")
		w := httptest.NewRecorder()
		handler.UpdatePool(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
		var body map[string]interface{}
		json.NewDecoder(w.Body).Decode(&body)
		assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]interface{})["code"])
	})
}

func TestHandler_ResetPool(t *testing.T) {
	mockRepo := new(MockRepository)
	handler := settings.NewHandler(settings.NewService(mockRepo))
	mockRepo.On("Delete", mock.Anything, content.KindActivity).Return(nil)

	req := httptest.NewRequest("DELETE", "/settings/activity", nil)
	req.SetPathValue("kind", "activity")
	w := httptest.NewRecorder()
	handler.ResetPool(w, req)

	assert.Equal(t, http.StatusNoContent, w.Result().StatusCode)
	mockRepo.AssertExpectations(t)
}
