package imagen

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"google.golang.org/genai"

	"asset-forge-server/modules/common/config"
	"asset-forge-server/modules/common/gemini"
)

// Service - 2D 이미지 생성 서비스 (Gemini)
type Service struct{}

// NewService - Service 생성
func NewService() *Service {
	return &Service{}
}

// Generate - 이미지 1장 생성, 버전 메타데이터 포함 결과 반환
func (s *Service) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	cfg := config.GetConfig()

	if req.Description == "" {
		return nil, fmt.Errorf("description is required")
	}

	prompt := BuildPrompt(req)

	var parts []*genai.Part

	// 레퍼런스 이미지가 있으면 먼저 추가 (일관성 바이어스)
	if req.ReferenceImageBase64 != "" {
		refData, err := decodeBase64Image(req.ReferenceImageBase64)
		if err != nil {
			log.Printf("⚠️ [Imagen] Failed to decode reference image, generating without it: %v", err)
		} else {
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{
					MIMEType: "image/png",
					Data:     refData,
				},
			})
			log.Printf("📎 [Imagen] Using %s reference image", req.ReferenceDirection)
		}
	}

	parts = append(parts, genai.NewPartFromText(prompt))

	content := &genai.Content{
		Parts: parts,
	}

	aspectRatio := req.AspectRatio
	if aspectRatio == "" {
		aspectRatio = "1:1"
	}

	seed := rand.Int63()
	seed32 := int32(seed & 0x7fffffff)
	started := time.Now()

	imageData, err := gemini.GenerateImageWithRetry(
		ctx,
		cfg.GeminiAPIKeys,
		cfg.GeminiModel,
		[]*genai.Content{content},
		&genai.GenerateContentConfig{
			ImageConfig: &genai.ImageConfig{
				AspectRatio: aspectRatio,
			},
			Seed:        &seed32,
			Temperature: floatPtr(0.5), // 일관성을 위해 낮은 temperature
		},
	)
	if err != nil {
		return nil, err
	}

	return &GenerateResult{
		ImageBase64: base64.StdEncoding.EncodeToString(imageData),
		Prompt:      prompt,
		ModelID:     cfg.GeminiModel,
		Seed:        int64(seed32),
		Cost:        cfg.ImagePerPrice,
		DurationMS:  time.Since(started).Milliseconds(),
	}, nil
}

// BuildPrompt - 에셋 설명과 방향 정보로 생성 프롬프트 조립
func BuildPrompt(req *GenerateRequest) string {
	var sb strings.Builder

	sb.WriteString(req.Description)

	if req.Category != "" {
		sb.WriteString(fmt.Sprintf(", %s asset", req.Category))
	}

	if req.Direction != "" {
		sb.WriteString(fmt.Sprintf(", viewed from the %s", strings.ReplaceAll(req.Direction, "-", " ")))
	}

	if req.ReferenceImageBase64 != "" && req.ReferenceDirection != "" {
		sb.WriteString(fmt.Sprintf(
			". Keep the subject visually consistent with the attached %s view reference image",
			req.ReferenceDirection))
	}

	return sb.String()
}

// decodeBase64Image - Base64 이미지 디코딩 (data URL prefix 허용)
func decodeBase64Image(imgBase64 string) ([]byte, error) {
	base64Data := imgBase64

	if idx := strings.Index(imgBase64, ";base64,"); idx >= 0 {
		base64Data = imgBase64[idx+len(";base64,"):]
	}

	imageData, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	return imageData, nil
}

func floatPtr(f float64) *float32 {
	f32 := float32(f)
	return &f32
}
