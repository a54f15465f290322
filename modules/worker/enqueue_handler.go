package worker

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"asset-forge-server/modules/common/database"
	"asset-forge-server/modules/common/model"
	redisClient "asset-forge-server/modules/common/redis"
)

// EnqueueHandler - Batch Job 생성 + Queue 등록 핸들러
type EnqueueHandler struct {
	rdb       *redis.Client
	db        *database.Client
	projectID string
}

// EnqueueRequest - Enqueue 요청
type EnqueueRequest struct {
	TargetMode string   `json:"target_mode"` // selected, all, remaining
	AssetIDs   []string `json:"asset_ids,omitempty"`
}

// EnqueueResponse - Enqueue 응답
type EnqueueResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	JobID         string `json:"job_id,omitempty"`
	Queue         string `json:"queue,omitempty"`
	QueuePosition int64  `json:"queuePosition,omitempty"`
}

// NewEnqueueHandler - EnqueueHandler 생성
func NewEnqueueHandler(rdb *redis.Client, db *database.Client, projectID string) *EnqueueHandler {
	if rdb == nil || db == nil {
		log.Println("⚠️ [Enqueue] Missing Redis or Database connection")
		return nil
	}

	return &EnqueueHandler{
		rdb:       rdb,
		db:        db,
		projectID: projectID,
	}
}

// RegisterRoutes - 라우트 등록
func (h *EnqueueHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/batch/enqueue", h.HandleEnqueue).Methods("POST", "OPTIONS")
	log.Println("✅ Enqueue routes registered: /api/batch/enqueue")
}

// HandleEnqueue - POST /api/batch/enqueue
// Batch Job 레코드 생성 후 jobs:queue에 LPUSH
func (h *EnqueueHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ [Enqueue] Invalid request: %v", err)
		json.NewEncoder(w).Encode(EnqueueResponse{
			Success: false,
			Error:   "Invalid request body",
		})
		return
	}

	if req.TargetMode == "" {
		json.NewEncoder(w).Encode(EnqueueResponse{
			Success: false,
			Error:   "target_mode is required",
		})
		return
	}
	if req.TargetMode == "selected" && len(req.AssetIDs) == 0 {
		json.NewEncoder(w).Encode(EnqueueResponse{
			Success: false,
			Error:   "asset_ids is required for selected mode",
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job := &model.BatchJob{
		JobID:       uuid.New().String(),
		ProjectID:   h.projectID,
		TargetMode:  req.TargetMode,
		AssetIDs:    req.AssetIDs,
		JobStatus:   model.BatchPending,
		TotalAssets: len(req.AssetIDs),
	}

	if err := h.db.InsertBatchJob(ctx, job); err != nil {
		log.Printf("❌ [Enqueue] Failed to create batch job: %v", err)
		json.NewEncoder(w).Encode(EnqueueResponse{
			Success: false,
			Error:   "Failed to create batch job",
		})
		return
	}

	position, err := h.rdb.LPush(ctx, redisClient.QueueKey, job.JobID).Result()
	if err != nil {
		log.Printf("❌ [Enqueue] Redis LPUSH failed: %v", err)
		json.NewEncoder(w).Encode(EnqueueResponse{
			Success: false,
			Error:   "Failed to enqueue job",
		})
		return
	}

	log.Printf("📥 [Enqueue] Batch job %s queued (position: %d)", job.JobID, position)

	json.NewEncoder(w).Encode(EnqueueResponse{
		Success:       true,
		JobID:         job.JobID,
		Queue:         redisClient.QueueKey,
		QueuePosition: position,
	})
}
