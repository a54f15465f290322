package imagen

// GenerateRequest - 2D 이미지 생성 요청
type GenerateRequest struct {
	// 프롬프트 생성용 설명
	Description string `json:"description"`

	// 카테고리 (프롬프트 스타일 힌트)
	Category string `json:"category,omitempty"`

	// 방향 변형 에셋 전용 - 생성할 방향
	Direction string `json:"direction,omitempty"`

	// 앵커 승인으로 전파된 레퍼런스 (일관성 바이어스용)
	ReferenceImageBase64 string `json:"reference_image_base64,omitempty"`
	ReferenceDirection   string `json:"reference_direction,omitempty"`

	// Aspect Ratio (기본: 1:1)
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

// GenerateResult - 2D 이미지 생성 결과 (버전 메타데이터 포함)
type GenerateResult struct {
	ImageBase64 string `json:"image_base64"`
	Prompt      string `json:"prompt"` // 실제 사용된 프롬프트
	ModelID     string `json:"model_id"`
	Seed        int64  `json:"seed"`
	Cost        int    `json:"cost"`
	DurationMS  int64  `json:"duration_ms"`
}
