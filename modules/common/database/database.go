package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/supabase-community/supabase-go"

	"asset-forge-server/modules/common/config"
	"asset-forge-server/modules/common/model"
)

type Client struct {
	supabase *supabase.Client
}

// NewClient - Database 클라이언트 생성
func NewClient() *Client {
	cfg := config.GetConfig()

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		log.Printf("❌ Failed to create Supabase client: %v", err)
		return nil
	}

	return &Client{
		supabase: supabaseClient,
	}
}

// FetchPlanAssets - Plan Source에서 프로젝트의 에셋 목록 조회 (로드 시 1회)
func (c *Client) FetchPlanAssets(ctx context.Context, projectID string) ([]model.Asset, error) {
	log.Printf("🔍 Fetching plan assets for project: %s", projectID)

	var assets []model.Asset

	data, _, err := c.supabase.From("forge_assets").
		Select("*", "exact", false).
		Eq("project_id", projectID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query forge_assets: %w", err)
	}

	if err := json.Unmarshal(data, &assets); err != nil {
		return nil, fmt.Errorf("failed to parse plan assets: %w", err)
	}

	log.Printf("✅ Plan loaded: %d assets for project %s", len(assets), projectID)
	return assets, nil
}

// FetchAssetRecords - 영속화된 에셋 상태 스냅샷 조회 (Hydration 입력)
func (c *Client) FetchAssetRecords(ctx context.Context, projectID string) ([]model.AssetRecord, error) {
	log.Printf("🔍 Fetching asset records for project: %s", projectID)

	var records []model.AssetRecord

	data, _, err := c.supabase.From("forge_asset_state").
		Select("*", "exact", false).
		Eq("project_id", projectID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query forge_asset_state: %w", err)
	}

	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse asset records: %w", err)
	}

	log.Printf("✅ Asset records fetched: %d rows", len(records))
	return records, nil
}

// UpdateAssetRecord - 에셋 상태 부분 업데이트 (PATCH, asset_id 기준)
func (c *Client) UpdateAssetRecord(ctx context.Context, assetID string, fields map[string]interface{}) error {
	log.Printf("📝 Updating asset record %s: %v", assetID, fieldKeys(fields))

	fields["updated_at"] = "now()"

	_, _, err := c.supabase.From("forge_asset_state").
		Update(fields, "", "").
		Eq("asset_id", assetID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update asset record: %w", err)
	}

	return nil
}

// InsertVersionRecord - 승인된 버전 레코드 저장 (Version/Blob Store)
func (c *Client) InsertVersionRecord(ctx context.Context, projectID, assetID string, v model.Version, filePath string) error {
	log.Printf("💾 Inserting version record: asset=%s v%d", assetID, v.VersionNumber)

	insertData := map[string]interface{}{
		"version_id":     v.VersionID,
		"asset_id":       assetID,
		"project_id":     projectID,
		"version_number": v.VersionNumber,
		"file_path":      filePath,
		"prompt":         v.Prompt,
		"model_id":       v.ModelID,
		"seed":           v.Seed,
		"cost":           v.Cost,
		"duration_ms":    v.DurationMS,
	}

	_, _, err := c.supabase.From("forge_versions").
		Insert(insertData, false, "", "", "").
		Execute()

	if err != nil {
		return fmt.Errorf("failed to insert version record: %w", err)
	}

	log.Printf("✅ Version record created: %s", v.VersionID)
	return nil
}

// FetchVersionRecords - 프로젝트의 승인된 버전 레코드 조회 (2D Reconciliation 입력)
func (c *Client) FetchVersionRecords(ctx context.Context, projectID string) ([]model.VersionRecord, error) {
	log.Printf("🔍 Fetching version records for project: %s", projectID)

	var records []model.VersionRecord

	data, _, err := c.supabase.From("forge_versions").
		Select("*", "exact", false).
		Eq("project_id", projectID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query forge_versions: %w", err)
	}

	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse version records: %w", err)
	}

	log.Printf("✅ Version records fetched: %d rows", len(records))
	return records, nil
}

// FetchBatchJob - Batch Job 조회
func (c *Client) FetchBatchJob(ctx context.Context, jobID string) (*model.BatchJob, error) {
	log.Printf("🔍 Fetching batch job: %s", jobID)

	var jobs []model.BatchJob

	data, _, err := c.supabase.From("forge_batch_jobs").
		Select("*", "exact", false).
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query forge_batch_jobs: %w", err)
	}

	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse batch job: %w", err)
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("batch job not found: %s", jobID)
	}

	job := &jobs[0]
	log.Printf("✅ Batch job fetched: %s (status: %s, assets: %d)", job.JobID, job.JobStatus, job.TotalAssets)

	return job, nil
}

// InsertBatchJob - Batch Job 생성
func (c *Client) InsertBatchJob(ctx context.Context, job *model.BatchJob) error {
	insertData := map[string]interface{}{
		"job_id":       job.JobID,
		"project_id":   job.ProjectID,
		"target_mode":  job.TargetMode,
		"asset_ids":    job.AssetIDs,
		"job_status":   job.JobStatus,
		"total_assets": job.TotalAssets,
	}

	_, _, err := c.supabase.From("forge_batch_jobs").
		Insert(insertData, false, "", "", "").
		Execute()

	if err != nil {
		return fmt.Errorf("failed to insert batch job: %w", err)
	}

	log.Printf("✅ Batch job created: %s", job.JobID)
	return nil
}

// UpdateBatchJobStatus - Batch Job 상태 업데이트
func (c *Client) UpdateBatchJobStatus(ctx context.Context, jobID string, status string) error {
	log.Printf("📝 Updating batch job %s status to: %s", jobID, status)

	updateData := map[string]interface{}{
		"job_status": status,
	}

	if status == model.BatchProcessing {
		updateData["started_at"] = "now()"
	} else if status == model.BatchCompleted || status == model.BatchFailed {
		updateData["completed_at"] = "now()"
	}

	_, _, err := c.supabase.From("forge_batch_jobs").
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update batch job status: %w", err)
	}

	return nil
}

// UpdateBatchJobTotal - 대상 확정 후 total_assets 갱신
// all/remaining 모드는 enqueue 시점에 대상 수를 모름
func (c *Client) UpdateBatchJobTotal(ctx context.Context, jobID string, total int) error {
	updateData := map[string]interface{}{
		"total_assets": total,
	}

	_, _, err := c.supabase.From("forge_batch_jobs").
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update batch job total: %w", err)
	}

	log.Printf("📊 Batch job %s total: %d assets", jobID, total)
	return nil
}

// UpdateBatchJobProgress - Batch Job 진행 상황 업데이트
func (c *Client) UpdateBatchJobProgress(ctx context.Context, jobID string, completed, failed int) error {
	updateData := map[string]interface{}{
		"completed_assets": completed,
		"failed_assets":    failed,
	}

	_, _, err := c.supabase.From("forge_batch_jobs").
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update batch job progress: %w", err)
	}

	log.Printf("📊 Batch job %s progress: %d completed, %d failed", jobID, completed, failed)
	return nil
}

// fieldKeys - 로그용 필드 키 목록
func fieldKeys(fields map[string]interface{}) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	return keys
}
