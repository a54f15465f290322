package skybox

// CreateSkyboxRequest - Skybox 생성 요청
type CreateSkyboxRequest struct {
	Prompt  string `json:"prompt"`
	StyleID int    `json:"skybox_style_id,omitempty"`
}

// CreateSkyboxResponse - Skybox 생성 응답
type CreateSkyboxResponse struct {
	TaskID string `json:"task_id"`
}
