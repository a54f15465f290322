package meshy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"asset-forge-server/modules/common/config"
	"asset-forge-server/modules/common/model"
)

// Service - Meshy API 서비스 (3D draft / rig / animation)
type Service struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewService - Service 생성
func NewService() *Service {
	cfg := config.GetConfig()

	return &Service{
		apiURL: cfg.MeshyAPIURL,
		apiKey: cfg.MeshyAPIKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// CreateDraftTask - Text to 3D Draft 생성 작업 시작
func (s *Service) CreateDraftTask(ctx context.Context, prompt string) (string, error) {
	reqData := CreateDraftRequest{
		Mode:   "preview",
		Prompt: prompt,
	}

	log.Printf("🚀 [Meshy] Creating text-to-3d draft task...")
	return s.createTask(ctx, "/v2/text-to-3d", reqData)
}

// CreateRigTask - Draft 모델 리깅 작업 시작 (원본 task id로 지정)
func (s *Service) CreateRigTask(ctx context.Context, draftTaskID string) (string, error) {
	reqData := CreateRigRequest{
		InputTaskID: draftTaskID,
	}

	log.Printf("🚀 [Meshy] Creating rig task for draft %s...", draftTaskID)
	return s.createTask(ctx, "/v1/rigging", reqData)
}

// CreateAnimationTask - 애니메이션 작업 시작 (rig task id 기준)
func (s *Service) CreateAnimationTask(ctx context.Context, rigTaskID, preset string) (string, error) {
	reqData := CreateAnimationRequest{
		RigTaskID: rigTaskID,
		Preset:    preset,
	}

	log.Printf("🚀 [Meshy] Creating animation task (preset: %s) for rig %s...", preset, rigTaskID)
	return s.createTask(ctx, "/v1/animations", reqData)
}

// createTask - Task 생성 공통 처리
func (s *Service) createTask(ctx context.Context, path string, reqData interface{}) (string, error) {
	reqBody, err := json.Marshal(reqData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("📥 [Meshy] Response status: %d", resp.StatusCode)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result CreateTaskResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if result.Result == "" {
		return "", fmt.Errorf("API returned empty task id: %s", string(body))
	}

	log.Printf("✅ [Meshy] Task created: %s", result.Result)
	return result.Result, nil
}

// GetTaskStatus - 작업 상태 조회 (Job Status Service 공통 형태로 반환)
func (s *Service) GetTaskStatus(ctx context.Context, taskID string) (*model.TaskStatusResponse, error) {
	statusURL := fmt.Sprintf("%s/v2/tasks/%s", s.apiURL, taskID)

	req, err := http.NewRequestWithContext(ctx, "GET", statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result model.TaskStatusResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &result, nil
}
