package pipeline

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"asset-forge-server/modules/common/model"
)

// Handler - 파이프라인 HTTP 핸들러
type Handler struct {
	manager      *Manager
	orchestrator *Orchestrator
}

// NewHandler - Handler 생성
func NewHandler(manager *Manager, orchestrator *Orchestrator) *Handler {
	return &Handler{
		manager:      manager,
		orchestrator: orchestrator,
	}
}

// APIResponse - 공통 응답 형태
type APIResponse struct {
	Success      bool        `json:"success"`
	Data         interface{} `json:"data,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// AssetSnapshot - GET /api/assets 응답 한 건
type AssetSnapshot struct {
	Asset model.Asset       `json:"asset"`
	State model.AssetState  `json:"state"`
	Image *model.ImageState `json:"image,omitempty"`
}

// animateRequest - POST animate body
type animateRequest struct {
	Presets []string `json:"presets,omitempty"`
}

// rejectRequest - POST reject body
type rejectRequest struct {
	VersionID string `json:"version_id,omitempty"`
}

// activeVersionRequest - POST versions/active body
type activeVersionRequest struct {
	Index int `json:"index"`
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/assets", h.HandleListAssets).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/assets/{assetId}/generate", h.HandleGenerate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/assets/{assetId}/rig", h.HandleRig).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/assets/{assetId}/animate", h.HandleAnimate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/assets/{assetId}/image", h.HandleGenerateImage).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/assets/{assetId}/approve", h.HandleApprove).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/assets/{assetId}/reject", h.HandleReject).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/assets/{assetId}/regenerate", h.HandleRegenerate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/assets/{assetId}/versions/active", h.HandleSetActiveVersion).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/batch/pause", h.HandleBatchPause).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/batch/resume", h.HandleBatchResume).Methods("POST", "OPTIONS")
	log.Println("✅ Pipeline routes registered")
}

// writeCORS - 응답 헤더 세팅, OPTIONS면 true 반환
func writeCORS(w http.ResponseWriter, r *http.Request, methods string) bool {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return true
	}
	return false
}

func writeOK(w http.ResponseWriter, data interface{}) {
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, ErrorMessage: message})
}

// HandleListAssets - GET /api/assets
// 에셋 + 상태 전체 스냅샷
func (h *Handler) HandleListAssets(w http.ResponseWriter, r *http.Request) {
	if writeCORS(w, r, "GET, OPTIONS") {
		return
	}

	assets := h.manager.Assets()
	snapshots := make([]AssetSnapshot, 0, len(assets))
	for id, asset := range assets {
		snap := AssetSnapshot{
			Asset: asset,
			State: h.manager.StateOf(id),
		}
		if img, ok := h.manager.ImageStateOf(id); ok {
			snap.Image = &img
		}
		snapshots = append(snapshots, snap)
	}

	writeOK(w, snapshots)
}

// HandleGenerate - POST /api/assets/{assetId}/generate
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if writeCORS(w, r, "POST, OPTIONS") {
		return
	}

	assetID := mux.Vars(r)["assetId"]
	if err := h.manager.GenerateDraft(r.Context(), assetID); err != nil {
		log.Printf("❌ [Handler] Generate failed for %s: %v", assetID, err)
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeOK(w, h.manager.StateOf(assetID))
}

// HandleRig - POST /api/assets/{assetId}/rig
func (h *Handler) HandleRig(w http.ResponseWriter, r *http.Request) {
	if writeCORS(w, r, "POST, OPTIONS") {
		return
	}

	assetID := mux.Vars(r)["assetId"]
	if err := h.manager.RequestRig(r.Context(), assetID); err != nil {
		log.Printf("❌ [Handler] Rig failed for %s: %v", assetID, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeOK(w, h.manager.StateOf(assetID))
}

// HandleAnimate - POST /api/assets/{assetId}/animate
func (h *Handler) HandleAnimate(w http.ResponseWriter, r *http.Request) {
	if writeCORS(w, r, "POST, OPTIONS") {
		return
	}

	assetID := mux.Vars(r)["assetId"]

	var req animateRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // body 없으면 에셋 기본 프리셋 사용
	}

	if err := h.manager.RequestAnimations(r.Context(), assetID, req.Presets); err != nil {
		log.Printf("❌ [Handler] Animate failed for %s: %v", assetID, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeOK(w, h.manager.StateOf(assetID))
}

// HandleGenerateImage - POST /api/assets/{assetId}/image
// 2D 이미지 생성 (동기)
func (h *Handler) HandleGenerateImage(w http.ResponseWriter, r *http.Request) {
	if writeCORS(w, r, "POST, OPTIONS") {
		return
	}

	assetID := mux.Vars(r)["assetId"]
	if err := h.manager.GenerateImage(r.Context(), assetID); err != nil {
		log.Printf("❌ [Handler] Image generation failed for %s: %v", assetID, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	img, _ := h.manager.ImageStateOf(assetID)
	writeOK(w, img)
}

// HandleApprove - POST /api/assets/{assetId}/approve
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	if writeCORS(w, r, "POST, OPTIONS") {
		return
	}

	assetID := mux.Vars(r)["assetId"]
	if err := h.manager.Approve(r.Context(), assetID); err != nil {
		log.Printf("❌ [Handler] Approve failed for %s: %v", assetID, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeOK(w, nil)
}

// HandleReject - POST /api/assets/{assetId}/reject
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	if writeCORS(w, r, "POST, OPTIONS") {
		return
	}

	assetID := mux.Vars(r)["assetId"]

	var req rejectRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.manager.Reject(r.Context(), assetID, req.VersionID); err != nil {
		log.Printf("❌ [Handler] Reject failed for %s: %v", assetID, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeOK(w, nil)
}

// HandleRegenerate - POST /api/assets/{assetId}/regenerate
func (h *Handler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	if writeCORS(w, r, "POST, OPTIONS") {
		return
	}

	assetID := mux.Vars(r)["assetId"]
	if err := h.manager.Regenerate(r.Context(), assetID); err != nil {
		log.Printf("❌ [Handler] Regenerate failed for %s: %v", assetID, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeOK(w, h.manager.StateOf(assetID))
}

// HandleSetActiveVersion - POST /api/assets/{assetId}/versions/active
func (h *Handler) HandleSetActiveVersion(w http.ResponseWriter, r *http.Request) {
	if writeCORS(w, r, "POST, OPTIONS") {
		return
	}

	assetID := mux.Vars(r)["assetId"]

	var req activeVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.manager.SetActiveVersion(assetID, req.Index); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	img, _ := h.manager.ImageStateOf(assetID)
	writeOK(w, img)
}

// HandleBatchPause - POST /api/batch/pause
func (h *Handler) HandleBatchPause(w http.ResponseWriter, r *http.Request) {
	if writeCORS(w, r, "POST, OPTIONS") {
		return
	}

	h.orchestrator.Pause()
	writeOK(w, map[string]bool{"paused": true})
}

// HandleBatchResume - POST /api/batch/resume
func (h *Handler) HandleBatchResume(w http.ResponseWriter, r *http.Request) {
	if writeCORS(w, r, "POST, OPTIONS") {
		return
	}

	h.orchestrator.Resume()
	writeOK(w, map[string]bool{"paused": false})
}
