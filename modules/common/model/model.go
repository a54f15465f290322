package model

import "time"

// Asset - 생성 대상 에셋 (forge_assets 테이블 구조)
type Asset struct {
	AssetID     string   `json:"asset_id"`
	AssetName   string   `json:"asset_name"`
	Category    string   `json:"category"`     // 그룹핑용 카테고리 (character, prop, environment...)
	RequiresRig bool     `json:"requires_rig"` // 3D 파이프라인 전용 - 리깅 필요 여부
	Moveable    bool     `json:"moveable"`     // 움직이는 에셋 - 다각도 일관성 필요
	Description string   `json:"description"`  // 프롬프트 생성용 설명
	Animations  []string `json:"animations"`   // 요청된 애니메이션 프리셋 목록

	// 방향 변형 에셋 전용 (parent 기준 8방향)
	Direction *DirectionState `json:"direction,omitempty"`
}

// DirectionState - 다각도 변형 에셋의 방향 정보
type DirectionState struct {
	ParentAssetID string `json:"parent_asset_id"`
	Direction     string `json:"direction"` // front, front-right, right, ...

	// 앵커(front) 승인 시 전파되는 레퍼런스
	ReferenceImageBase64 string `json:"reference_image_base64,omitempty"`
	ReferenceDirection   string `json:"reference_direction,omitempty"`
}

// AssetState - 에셋별 파이프라인 상태 (forge_asset_state 테이블 구조)
type AssetState struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"` // 0-100, 진행 중인 스테이지에서만 의미 있음

	// 스테이지별 Task ID
	DraftTaskID      string            `json:"draft_task_id,omitempty"`
	RigTaskID        string            `json:"rig_task_id,omitempty"`
	AnimationTaskIDs map[string]string `json:"animation_task_ids,omitempty"` // preset → taskId

	// 스테이지별 결과물 URL
	DraftModelURL  string            `json:"draft_model_url,omitempty"`
	RiggedModelURL string            `json:"rigged_model_url,omitempty"`
	AnimationURLs  map[string]string `json:"animation_urls,omitempty"` // preset → url

	// 승인 상태 (파이프라인 상태와 독립)
	ApprovalStatus string `json:"approval_status"`

	// 마지막 에러 메시지
	Error string `json:"error,omitempty"`
}

// Version - 2D 파이프라인 생성 결과물 한 건 (forge_versions 테이블 구조)
type Version struct {
	VersionID     string    `json:"version_id"`
	VersionNumber int       `json:"version_number"` // 에셋별 1부터 단조 증가
	ImageBase64   string    `json:"image_base64"`
	Prompt        string    `json:"prompt"` // 생성에 사용된 정확한 프롬프트
	ModelID       string    `json:"model_id"`
	Seed          int64     `json:"seed"`
	Cost          int       `json:"cost"` // 크레딧 단위
	DurationMS    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// ImageState - 2D 파이프라인 에셋 상태 (버전 목록 + 현재 버전 포인터)
type ImageState struct {
	Status              string    `json:"status"`
	Versions            []Version `json:"versions"`
	CurrentVersionIndex int       `json:"current_version_index"`
	Result              *Version  `json:"result,omitempty"` // versions[currentVersionIndex] 프로젝션
	Error               string    `json:"error,omitempty"`
}

// VersionRecord - 영속화된 승인 버전 한 건 (forge_versions 테이블 row)
type VersionRecord struct {
	VersionID     string    `json:"version_id"`
	AssetID       string    `json:"asset_id"`
	ProjectID     string    `json:"project_id"`
	VersionNumber int       `json:"version_number"`
	FilePath      string    `json:"file_path"`
	Prompt        string    `json:"prompt"`
	ModelID       string    `json:"model_id"`
	Seed          int64     `json:"seed"`
	Cost          int       `json:"cost"`
	DurationMS    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// AssetRecord - 영속화된 에셋 상태 한 건 (forge_asset_state 테이블 row)
type AssetRecord struct {
	AssetID          string            `json:"asset_id"`
	ProjectID        string            `json:"project_id"`
	Status           string            `json:"status"`
	ApprovalStatus   string            `json:"approval_status"`
	DraftTaskID      string            `json:"draft_task_id,omitempty"`
	RigTaskID        string            `json:"rig_task_id,omitempty"`
	AnimationTaskIDs map[string]string `json:"animation_task_ids,omitempty"`
	DraftModelURL    string            `json:"draft_model_url,omitempty"`
	RiggedModelURL   string            `json:"rigged_model_url,omitempty"`
	AnimationURLs    map[string]string `json:"animation_urls,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// BatchJob - 2D 배치 생성 Job (forge_batch_jobs 테이블 구조)
type BatchJob struct {
	JobID           string     `json:"job_id"`
	ProjectID       string     `json:"project_id"`
	TargetMode      string     `json:"target_mode"` // selected, all, remaining
	AssetIDs        []string   `json:"asset_ids"`
	JobStatus       string     `json:"job_status"`
	TotalAssets     int        `json:"total_assets"`
	CompletedAssets int        `json:"completed_assets"`
	FailedAssets    int        `json:"failed_assets"`
	ErrorMessage    *string    `json:"error_message"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
}

// Task - 원격 작업 핸들 (영속화되지 않음, AssetState의 task id로 재구성)
type Task struct {
	TaskID    string `json:"task_id"`
	Stage     Stage  `json:"stage"`
	Status    string `json:"status"` // running, success, failed
	Progress  int    `json:"progress"`
	OutputURL string `json:"output_url,omitempty"`
}

// TaskStatusResponse - Job Status Service 공통 응답 형태
type TaskStatusResponse struct {
	Status   string                 `json:"status"` // running, success, failed
	Progress int                    `json:"progress,omitempty"`
	Output   map[string]interface{} `json:"output,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Stage - 파이프라인 스테이지 (종류 + 애니메이션 프리셋)
type Stage struct {
	Kind   string `json:"kind"`             // draft, rig, animation, skybox
	Preset string `json:"preset,omitempty"` // animation 스테이지 전용
}

// Stage 종류
const (
	StageDraft     = "draft"
	StageRig       = "rig"
	StageAnimation = "animation"
	StageSkybox    = "skybox"
)

// 3D 파이프라인 상태
const (
	StatusReady      = "ready"
	StatusGenerating = "generating"
	StatusGenerated  = "generated"
	StatusRigging    = "rigging"
	StatusRigged     = "rigged"
	StatusAnimating  = "animating"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
)

// 2D 파이프라인 상태
const (
	ImageStatusGenerating       = "generating"
	ImageStatusAwaitingApproval = "awaiting_approval"
	ImageStatusApproved         = "approved"
	ImageStatusRejected         = "rejected"
)

// 승인 상태
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// 원격 Task 상태
const (
	TaskRunning = "running"
	TaskSuccess = "success"
	TaskFailed  = "failed"
)

// Batch Job 상태 (forge_batch_jobs 테이블)
const (
	BatchPending       = "pending"
	BatchProcessing    = "processing"
	BatchCompleted     = "completed"
	BatchFailed        = "failed"
	BatchUserCancelled = "user_cancelled"
)

// DefaultDirections - 다각도 변형 기본 8방향 (front가 앵커)
var DefaultDirections = []string{
	"front", "front-right", "right", "back-right",
	"back", "back-left", "left", "front-left",
}

// DirectionFront - 앵커 방향
const DirectionFront = "front"

// IsValidDirection - 유효한 방향인지 확인
func IsValidDirection(direction string) bool {
	for _, d := range DefaultDirections {
		if d == direction {
			return true
		}
	}
	return false
}

// InFlightStatusFor - 스테이지 종류별 진행 중 상태
func InFlightStatusFor(stageKind string) string {
	switch stageKind {
	case StageRig:
		return StatusRigging
	case StageAnimation:
		return StatusAnimating
	default:
		return StatusGenerating
	}
}
