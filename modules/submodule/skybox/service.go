package skybox

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

// Service - Skybox 생성 API 서비스
type Service struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewService - Service 생성
func NewService() *Service {
	cfg := config.GetConfig()

	return &Service{
		apiURL: cfg.SkyboxAPIURL,
		apiKey: cfg.SkyboxAPIKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// CreateSkyboxTask - Skybox 생성 작업 시작
func (s *Service) CreateSkyboxTask(ctx context.Context, prompt string, styleID int) (string, error) {
	reqData := CreateSkyboxRequest{
		Prompt:  prompt,
		StyleID: styleID,
	}

	reqBody, err := json.Marshal(reqData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL+"/skybox", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)

	log.Printf("🚀 [Skybox] Creating skybox task...")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("📥 [Skybox] Response status: %d", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result CreateSkyboxResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if result.TaskID == "" {
		return "", fmt.Errorf("API returned empty task id: %s", string(body))
	}

	log.Printf("✅ [Skybox] Task created: %s", result.TaskID)
	return result.TaskID, nil
}

// GetTaskStatus - 작업 상태 조회 (Job Status Service 공통 형태로 반환)
func (s *Service) GetTaskStatus(ctx context.Context, taskID string) (*model.TaskStatusResponse, error) {
	statusURL := fmt.Sprintf("%s/skybox/%s", s.apiURL, taskID)

	req, err := http.NewRequestWithContext(ctx, "GET", statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-api-key", s.apiKey)

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
