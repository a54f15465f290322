package meshy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asset-forge-server/modules/common/model"
)

func newTestService(url string) *Service {
	return &Service{
		apiURL:     url,
		apiKey:     "test-key",
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestIsValidPreset(t *testing.T) {
	for _, p := range AnimationPresets {
		assert.True(t, IsValidPreset(p), p)
	}
	assert.False(t, IsValidPreset("backflip"))
	assert.False(t, IsValidPreset(""))
}

func TestCreateRigTask_SendsInputTaskID(t *testing.T) {
	var got CreateRigRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rigging", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(CreateTaskResponse{Result: "rig-123"})
	}))
	defer srv.Close()

	taskID, err := newTestService(srv.URL).CreateRigTask(context.Background(), "draft-42")
	require.NoError(t, err)
	assert.Equal(t, "rig-123", taskID)
	assert.Equal(t, "draft-42", got.InputTaskID)
}

func TestCreateTask_EmptyTaskIDIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(CreateTaskResponse{})
	}))
	defer srv.Close()

	_, err := newTestService(srv.URL).CreateDraftTask(context.Background(), "a chair")
	assert.Error(t, err)
}

func TestCreateTask_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestService(srv.URL).CreateDraftTask(context.Background(), "a chair")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGetTaskStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/tasks/task-1", r.URL.Path)
		json.NewEncoder(w).Encode(model.TaskStatusResponse{
			Status:   model.TaskSuccess,
			Progress: 100,
			Output:   map[string]interface{}{"model": "https://cdn.example.com/a.glb"},
		})
	}))
	defer srv.Close()

	status, err := newTestService(srv.URL).GetTaskStatus(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskSuccess, status.Status)
	assert.Equal(t, "https://cdn.example.com/a.glb", status.Output["model"])
}
