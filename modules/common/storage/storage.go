package storage

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/gen2brain/webp"

	"asset-forge-server/modules/common/config"
)

type Client struct {
	httpClient *http.Client
}

// NewClient - Storage 클라이언트 생성
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// UploadVersionImage - 승인된 버전 이미지를 Supabase Storage에 업로드 (WebP 변환)
// 반환: 파일 경로, 파일 크기
func (c *Client) UploadVersionImage(ctx context.Context, imageData []byte, projectID, assetID string, versionNumber int) (string, int64, error) {
	cfg := config.GetConfig()

	// PNG를 WebP로 변환
	webpData, err := c.ConvertPNGToWebP(imageData, 90)
	if err != nil {
		log.Printf("⚠️ [Storage] WebP conversion failed, using original: %v", err)
		webpData = imageData
	}

	// 파일명 생성
	timestamp := time.Now().UnixNano() / int64(time.Millisecond)
	randomID := rand.Intn(999999)
	fileName := fmt.Sprintf("%s_v%d_%d_%d.webp", assetID, versionNumber, timestamp, randomID)

	// 파일 경로 생성
	filePath := fmt.Sprintf("forge-versions/project-%s/%s", projectID, fileName)

	log.Printf("📤 [Storage] Uploading version image: %s", filePath)

	// Supabase Storage API URL
	uploadURL := fmt.Sprintf("%s/storage/v1/object/attachments/%s", cfg.SupabaseURL, filePath)

	req, err := http.NewRequestWithContext(ctx, "POST", uploadURL, bytes.NewReader(webpData))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create upload request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+cfg.SupabaseServiceKey)
	req.Header.Set("Content-Type", "image/webp")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	webpSize := int64(len(webpData))
	log.Printf("✅ [Storage] Version image uploaded: %s (%d bytes)", filePath, webpSize)
	return filePath, webpSize, nil
}

// DownloadVersionImage - Supabase Storage에서 버전 이미지 다운로드 (Reconciliation용)
func (c *Client) DownloadVersionImage(ctx context.Context, filePath string) ([]byte, error) {
	cfg := config.GetConfig()

	fullURL := cfg.SupabaseStorageBaseURL + filePath
	log.Printf("📥 [Storage] Downloading version image: %s", fullURL)

	req, err := http.NewRequestWithContext(ctx, "GET", fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}

	log.Printf("✅ [Storage] Version image downloaded: %d bytes", len(data))
	return data, nil
}

// ConvertPNGToWebP - PNG를 WebP로 변환
func (c *Client) ConvertPNGToWebP(pngData []byte, quality int) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG: %w", err)
	}

	var webpBuffer bytes.Buffer
	if err := webp.Encode(&webpBuffer, img, webp.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}

	return webpBuffer.Bytes(), nil
}
