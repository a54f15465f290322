package meshy

// CreateDraftRequest - Text to 3D Draft 생성 요청
type CreateDraftRequest struct {
	Mode       string `json:"mode"` // preview
	Prompt     string `json:"prompt"`
	ArtStyle   string `json:"art_style,omitempty"`
	TopologyPB bool   `json:"enable_pbr,omitempty"`
}

// CreateRigRequest - Draft 모델 리깅 요청 (원본 task id 기준)
type CreateRigRequest struct {
	InputTaskID string `json:"input_task_id"`
}

// CreateAnimationRequest - 리깅된 모델 애니메이션 요청
type CreateAnimationRequest struct {
	RigTaskID string `json:"rig_task_id"`
	Preset    string `json:"animation_preset"`
}

// CreateTaskResponse - Task 생성 응답
type CreateTaskResponse struct {
	Result string `json:"result"` // task id
}

// 애니메이션 프리셋 (요청 가능한 값)
var AnimationPresets = []string{"idle", "walk", "run", "attack", "death"}

// IsValidPreset - 유효한 애니메이션 프리셋인지 확인
func IsValidPreset(preset string) bool {
	for _, p := range AnimationPresets {
		if p == preset {
			return true
		}
	}
	return false
}
