package worker

import (
	"context"
	"log"
	"time"

	"asset-forge-server/modules/common/database"
	"asset-forge-server/modules/common/model"
	redisClient "asset-forge-server/modules/common/redis"
	"asset-forge-server/modules/pipeline"

	"github.com/redis/go-redis/v9"
)

// StartWorker - Redis Batch Queue Worker 시작
// jobs:queue를 BRPOP으로 감시하면서 2D 배치 생성 Job을 순차 처리
func StartWorker(rdb *redis.Client, dbClient *database.Client, orchestrator *pipeline.Orchestrator) {
	log.Println("🔄 Batch Queue Worker starting...")
	log.Printf("👀 Watching queue: %s", redisClient.QueueKey)

	ctx := context.Background()

	for {
		// Job 받기 (BRPOP - Blocking Right Pop)
		result, err := rdb.BRPop(ctx, 0, redisClient.QueueKey).Result()
		if err != nil {
			log.Printf("❌ Redis BRPOP error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		// result[0]은 queue 키, result[1]이 실제 job_id
		jobID := result[1]
		log.Printf("🎯 Received batch job: %s", jobID)

		// 배치는 순차 실행이 전제라 goroutine 없이 바로 처리
		processBatchJob(ctx, dbClient, orchestrator, jobID)
	}
}

// batchStore - Worker가 쓰는 Batch Job 영속화 표면
type batchStore interface {
	FetchBatchJob(ctx context.Context, jobID string) (*model.BatchJob, error)
	UpdateBatchJobStatus(ctx context.Context, jobID string, status string) error
	UpdateBatchJobTotal(ctx context.Context, jobID string, total int) error
	UpdateBatchJobProgress(ctx context.Context, jobID string, completed, failed int) error
}

// processBatchJob - Batch Job 한 건 처리
func processBatchJob(ctx context.Context, store batchStore, orchestrator *pipeline.Orchestrator, jobID string) {
	job, err := store.FetchBatchJob(ctx, jobID)
	if err != nil {
		log.Printf("❌ Failed to fetch batch job %s: %v", jobID, err)
		return
	}

	// 이미 취소된 Job이면 건너뜀
	if job.JobStatus == model.BatchUserCancelled {
		log.Printf("🛑 Batch job %s was already cancelled, skipping", jobID)
		return
	}

	targets, err := orchestrator.ResolveTargets(job.TargetMode, job.AssetIDs)
	if err != nil {
		log.Printf("❌ Batch job %s has invalid targets: %v", jobID, err)
		markFailed(ctx, store, jobID, err.Error())
		return
	}

	// enqueue 시점의 total은 selected만 정확함 - 확정된 대상 수로 갱신
	if err := store.UpdateBatchJobTotal(ctx, jobID, len(targets)); err != nil {
		log.Printf("⚠️ Failed to update batch job %s total: %v", jobID, err)
	}

	if err := store.UpdateBatchJobStatus(ctx, jobID, model.BatchProcessing); err != nil {
		log.Printf("⚠️ Failed to mark batch job %s processing: %v", jobID, err)
	}

	progress, cancelled, err := orchestrator.Run(ctx, jobID, targets, pipeline.BatchCallbacks{
		OnProgress: func(p pipeline.BatchProgress) {
			if err := store.UpdateBatchJobProgress(ctx, jobID, p.Completed, p.Failed); err != nil {
				log.Printf("⚠️ Failed to update batch progress for %s: %v", jobID, err)
			}
		},
	})

	switch {
	case err != nil:
		log.Printf("❌ Batch job %s aborted: %v", jobID, err)
		markFailed(ctx, store, jobID, err.Error())

	case cancelled:
		if err := store.UpdateBatchJobStatus(ctx, jobID, model.BatchUserCancelled); err != nil {
			log.Printf("⚠️ Failed to mark batch job %s cancelled: %v", jobID, err)
		}
		log.Printf("🛑 Batch job %s cancelled at %d/%d", jobID, progress.Completed+progress.Failed, progress.Total)

	default:
		status := model.BatchCompleted
		if progress.Failed == progress.Total && progress.Total > 0 {
			status = model.BatchFailed
		}
		if err := store.UpdateBatchJobStatus(ctx, jobID, status); err != nil {
			log.Printf("⚠️ Failed to mark batch job %s %s: %v", jobID, status, err)
		}
		log.Printf("🏁 Batch job %s done: %d ok, %d failed", jobID, progress.Completed, progress.Failed)
	}
}

// markFailed - Job 실패 처리 (에러 메시지 포함)
func markFailed(ctx context.Context, store batchStore, jobID, message string) {
	if err := store.UpdateBatchJobStatus(ctx, jobID, model.BatchFailed); err != nil {
		log.Printf("⚠️ Failed to mark batch job %s failed: %v", jobID, err)
	}
	log.Printf("❌ Batch job %s failed: %s", jobID, message)
}
