package worker

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"asset-forge-server/modules/common/database"
	"asset-forge-server/modules/common/model"
	redisutil "asset-forge-server/modules/common/redis"
)

// CancelHandler - Batch Job 취소 API 핸들러
type CancelHandler struct {
	rdb *redis.Client
	db  *database.Client
}

// NewCancelHandler - 핸들러 생성
func NewCancelHandler(rdb *redis.Client, db *database.Client) *CancelHandler {
	if rdb == nil || db == nil {
		log.Println("❌ [CancelHandler] Missing Redis or Database connection")
		return nil
	}

	return &CancelHandler{
		rdb: rdb,
		db:  db,
	}
}

// RegisterRoutes - 라우트 등록
func (h *CancelHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/batch/{jobId}/cancel", h.CancelJob).Methods("POST", "OPTIONS")
	log.Println("✅ [CancelHandler] Routes registered: POST /api/batch/{jobId}/cancel")
}

// CancelJob - Batch Job 취소 처리
// Redis 플래그가 먼저 - Worker는 에셋 사이마다 플래그를 확인함
func (h *CancelHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	jobID := mux.Vars(r)["jobId"]
	if jobID == "" {
		http.Error(w, `{"error": "jobId is required"}`, http.StatusBadRequest)
		return
	}

	log.Printf("🛑 [CancelHandler] Cancel requested for batch job: %s", jobID)

	// 1. Redis에 취소 플래그 설정
	if err := redisutil.SetJobCancelled(h.rdb, jobID); err != nil {
		log.Printf("❌ [CancelHandler] Failed to set cancel flag: %v", err)
		http.Error(w, `{"error": "Failed to set cancel flag"}`, http.StatusInternalServerError)
		return
	}

	// 2. Job 상태를 user_cancelled로 업데이트
	if err := h.db.UpdateBatchJobStatus(r.Context(), jobID, model.BatchUserCancelled); err != nil {
		log.Printf("⚠️ [CancelHandler] Failed to update job status: %v", err)
		// 플래그는 설정됐으니 Worker가 멈추기는 함 - 응답은 성공으로
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"job_id":  jobID,
		"status":  model.BatchUserCancelled,
	})
}
