package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"asset-forge-server/modules/common/model"
	"asset-forge-server/modules/submodule/imagen"
)

// RecordStore - 에셋 상태 영속화 (부분 업데이트)
type RecordStore interface {
	UpdateAssetRecord(ctx context.Context, assetID string, fields map[string]interface{}) error
}

// ModelService - 3D 파이프라인 Job 제출 + 상태 조회 (Meshy)
type ModelService interface {
	CreateDraftTask(ctx context.Context, prompt string) (string, error)
	CreateRigTask(ctx context.Context, draftTaskID string) (string, error)
	CreateAnimationTask(ctx context.Context, rigTaskID, preset string) (string, error)
	GetTaskStatus(ctx context.Context, taskID string) (*model.TaskStatusResponse, error)
}

// ImageService - 2D 이미지 생성
type ImageService interface {
	Generate(ctx context.Context, req *imagen.GenerateRequest) (*imagen.GenerateResult, error)
}

// SkyboxService - Skybox Job 제출 + 상태 조회
type SkyboxService interface {
	CreateSkyboxTask(ctx context.Context, prompt string, styleID int) (string, error)
	GetTaskStatus(ctx context.Context, taskID string) (*model.TaskStatusResponse, error)
}

// ArtifactStore - 승인된 버전 영속화 (storage + version record)
type ArtifactStore interface {
	PersistApprovedVersion(ctx context.Context, projectID, assetID string, v model.Version) (string, error)
}

// ProgressEvent - 파이프라인 진행 이벤트 (websocket hub로 브로드캐스트)
type ProgressEvent struct {
	Type     string `json:"type"` // status_update, progress_update, batch_progress
	AssetID  string `json:"assetId,omitempty"`
	Status   string `json:"status,omitempty"`
	Progress int    `json:"progress,omitempty"`
	Preset   string `json:"preset,omitempty"`
	Error    string `json:"error,omitempty"`

	// batch_progress 전용
	BatchCompleted int `json:"batchCompleted,omitempty"`
	BatchFailed    int `json:"batchFailed,omitempty"`
	BatchTotal     int `json:"batchTotal,omitempty"`
	BatchPercent   int `json:"batchPercent,omitempty"`
}

// EventSink - 진행 이벤트를 받는 쪽 (nil 허용)
type EventSink interface {
	PublishProgress(ev ProgressEvent)
}

// 리깅/애니메이션 precondition 에러 메시지
const (
	ErrMsgMissingDraftTask = "Cannot rig this asset: Missing original task ID. Please regenerate the model first."
	ErrMsgMissingDraftURL  = "Cannot rig this asset: No draft model available. Please generate the model first."
	ErrMsgMissingRigData   = "Cannot animate this asset: Missing rig data. Please re-rig this asset."
	ErrMsgTimeout          = "Generation timed out after 5 minutes. The job may still complete server-side - try refreshing."
)

// ManagerConfig - Manager 의존성 묶음
type ManagerConfig struct {
	ProjectID    string
	PollInterval time.Duration
	PollTimeout  time.Duration

	Records   RecordStore
	Models    ModelService
	Images    ImageService
	Skyboxes  SkyboxService
	Artifacts ArtifactStore
	Events    EventSink
}

// Manager - 에셋 상태 머신
// 모든 상태 갱신은 copy-on-write: 현재 스냅샷을 읽고 새 맵을 만들어 통째로 교체
type Manager struct {
	projectID string

	mu     sync.RWMutex
	assets map[string]model.Asset
	states map[string]model.AssetState
	images map[string]model.ImageState

	poller    *Poller
	records   RecordStore
	models    ModelService
	imager    ImageService
	skyboxes  SkyboxService
	artifacts ArtifactStore
	events    EventSink
}

// NewManager - Manager 생성 (Poller 포함)
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		projectID: cfg.ProjectID,
		assets:    make(map[string]model.Asset),
		states:    make(map[string]model.AssetState),
		images:    make(map[string]model.ImageState),
		records:   cfg.Records,
		models:    cfg.Models,
		imager:    cfg.Images,
		skyboxes:  cfg.Skyboxes,
		artifacts: cfg.Artifacts,
		events:    cfg.Events,
	}

	m.poller = NewPoller(cfg.PollInterval, cfg.PollTimeout, m)
	return m
}

// Poller - 소유한 Poller 반환 (teardown 시 CancelAll용)
func (m *Manager) Poller() *Poller {
	return m.poller
}

// LoadPlan - Plan Source에서 읽은 에셋 목록 설치
func (m *Manager) LoadPlan(assets []model.Asset) {
	m.mu.Lock()
	next := make(map[string]model.Asset, len(assets))
	for _, a := range assets {
		next[a.AssetID] = a
	}
	m.assets = next
	m.mu.Unlock()

	log.Printf("📋 [State] Plan loaded: %d assets", len(assets))
}

// AssetOf - 에셋 조회
func (m *Manager) AssetOf(assetID string) (model.Asset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[assetID]
	return a, ok
}

// Assets - 현재 에셋 스냅샷 (교체 전용 맵이라 그대로 반환)
func (m *Manager) Assets() map[string]model.Asset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.assets
}

// StateOf - 에셋 상태 조회 (없으면 ready 기본값을 lazy 생성하지 않고 기본값만 반환)
func (m *Manager) StateOf(assetID string) model.AssetState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.states[assetID]; ok {
		return st
	}
	return model.AssetState{Status: model.StatusReady, ApprovalStatus: model.ApprovalPending}
}

// States - 현재 상태 스냅샷
func (m *Manager) States() map[string]model.AssetState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states
}

// setState - copy-on-write 상태 교체
func (m *Manager) setState(assetID string, st model.AssetState) {
	m.mu.Lock()
	next := make(map[string]model.AssetState, len(m.states)+1)
	for k, v := range m.states {
		next[k] = v
	}
	next[assetID] = st
	m.states = next
	m.mu.Unlock()
}

// setStates - Hydration 결과 일괄 설치
func (m *Manager) setStates(states map[string]model.AssetState) {
	m.mu.Lock()
	m.states = states
	m.mu.Unlock()
}

// mutateState - 잠금을 쥔 채로 read-modify-write 수행, fn이 false면 커밋 안 함
// 프리셋별 완료 콜백처럼 같은 에셋에 동시에 쓰는 경로는 StateOf+setState 대신
// 이걸 써야 함 (분리하면 사이에 끼어든 쓰기를 덮어씀)
func (m *Manager) mutateState(assetID string, fn func(st *model.AssetState) bool) (model.AssetState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[assetID]
	if !ok {
		st = model.AssetState{Status: model.StatusReady, ApprovalStatus: model.ApprovalPending}
	}
	if !fn(&st) {
		return st, false
	}

	next := make(map[string]model.AssetState, len(m.states)+1)
	for k, v := range m.states {
		next[k] = v
	}
	next[assetID] = st
	m.states = next
	return st, true
}

// GenerateDraft - 3D draft (또는 skybox) 생성 시작
func (m *Manager) GenerateDraft(ctx context.Context, assetID string) error {
	asset, ok := m.AssetOf(assetID)
	if !ok {
		return fmt.Errorf("asset not found: %s", assetID)
	}

	st := m.StateOf(assetID)
	st.Status = model.StatusGenerating
	st.Progress = 0
	st.Error = ""
	m.setState(assetID, st)
	m.persist(ctx, assetID, map[string]interface{}{
		"status":        model.StatusGenerating,
		"error_message": "",
	})
	m.publishStatus(assetID, model.StatusGenerating, 0, "")

	stageKind := model.StageDraft
	var taskID string
	var err error

	if asset.Category == "skybox" && m.skyboxes != nil {
		stageKind = model.StageSkybox
		taskID, err = m.skyboxes.CreateSkyboxTask(ctx, asset.Description, 0)
	} else {
		taskID, err = m.models.CreateDraftTask(ctx, asset.Description)
	}

	if err != nil {
		m.failStage(ctx, assetID, fmt.Sprintf("Failed to submit generation job: %v", err))
		return nil
	}

	st = m.StateOf(assetID)
	st.DraftTaskID = taskID
	m.setState(assetID, st)
	m.persist(ctx, assetID, map[string]interface{}{"draft_task_id": taskID})

	m.poller.StartPolling(assetID, taskID, model.Stage{Kind: stageKind}, m.statusFuncFor(asset))
	return nil
}

// RequestRig - 리깅 시작
// draft 결과물과 원본 task id가 모두 있어야 함 (리깅 API는 URL이 아니라 task id로 원본을 지정)
func (m *Manager) RequestRig(ctx context.Context, assetID string) error {
	asset, ok := m.AssetOf(assetID)
	if !ok {
		return fmt.Errorf("asset not found: %s", assetID)
	}
	if !asset.RequiresRig {
		return fmt.Errorf("asset %s does not require rigging", assetID)
	}

	st := m.StateOf(assetID)

	// precondition 체크 - 실패하면 원격 호출 없이 바로 failed
	if st.DraftModelURL == "" {
		m.failStage(ctx, assetID, ErrMsgMissingDraftURL)
		return nil
	}
	if st.DraftTaskID == "" {
		m.failStage(ctx, assetID, ErrMsgMissingDraftTask)
		return nil
	}

	st.Status = model.StatusRigging
	st.Progress = 0
	st.Error = ""
	m.setState(assetID, st)
	m.persist(ctx, assetID, map[string]interface{}{
		"status":        model.StatusRigging,
		"error_message": "",
	})
	m.publishStatus(assetID, model.StatusRigging, 0, "")

	taskID, err := m.models.CreateRigTask(ctx, st.DraftTaskID)
	if err != nil {
		m.failStage(ctx, assetID, fmt.Sprintf("Failed to submit rig job: %v", err))
		return nil
	}

	st = m.StateOf(assetID)
	st.RigTaskID = taskID
	m.setState(assetID, st)
	m.persist(ctx, assetID, map[string]interface{}{"rig_task_id": taskID})

	m.poller.StartPolling(assetID, taskID, model.Stage{Kind: model.StageRig}, m.statusFuncFor(asset))
	return nil
}

// RequestAnimations - 애니메이션 프리셋들 동시 요청 (프리셋마다 poller 하나)
// presets가 비어 있으면 에셋의 요청 프리셋 목록 사용
func (m *Manager) RequestAnimations(ctx context.Context, assetID string, presets []string) error {
	asset, ok := m.AssetOf(assetID)
	if !ok {
		return fmt.Errorf("asset not found: %s", assetID)
	}

	if len(presets) == 0 {
		presets = asset.Animations
	}
	if len(presets) == 0 {
		return fmt.Errorf("asset %s has no animation presets requested", assetID)
	}

	st := m.StateOf(assetID)

	// precondition 체크 - rig 결과물과 rig task id 필수
	// 리로드 후 rig task id가 사라진 경우는 복구 가능한 에러 (re-rig 안내)
	if st.RiggedModelURL == "" || st.RigTaskID == "" {
		m.failStage(ctx, assetID, ErrMsgMissingRigData)
		return nil
	}

	st.Status = model.StatusAnimating
	st.Progress = 0
	st.Error = ""
	m.setState(assetID, st)
	m.persist(ctx, assetID, map[string]interface{}{
		"status":        model.StatusAnimating,
		"error_message": "",
	})
	m.publishStatus(assetID, model.StatusAnimating, 0, "")

	// 프리셋별 동시 제출
	for _, preset := range presets {
		taskID, err := m.models.CreateAnimationTask(ctx, st.RigTaskID, preset)
		if err != nil {
			// 한 프리셋 실패가 나머지를 막지 않음
			log.Printf("❌ [State] Animation submit failed for %s/%s: %v", assetID, preset, err)
			continue
		}

		cur, _ := m.mutateState(assetID, func(st *model.AssetState) bool {
			st.AnimationTaskIDs = cloneStringMap(st.AnimationTaskIDs)
			st.AnimationTaskIDs[preset] = taskID
			return true
		})
		m.persist(ctx, assetID, map[string]interface{}{"animation_task_ids": cur.AnimationTaskIDs})

		m.poller.StartPolling(assetID, taskID,
			model.Stage{Kind: model.StageAnimation, Preset: preset}, m.statusFuncFor(asset))
	}

	return nil
}

// Regenerate - generated/rigged/complete/failed에서 ready로 리셋
// progress 포함 전부 초기화, 진행 중이던 폴링은 취소
func (m *Manager) Regenerate(ctx context.Context, assetID string) error {
	if _, ok := m.AssetOf(assetID); !ok {
		return fmt.Errorf("asset not found: %s", assetID)
	}

	st := m.StateOf(assetID)
	switch st.Status {
	case model.StatusGenerated, model.StatusRigged, model.StatusComplete, model.StatusFailed:
	default:
		return fmt.Errorf("cannot regenerate asset %s from status %q", assetID, st.Status)
	}

	// 떠 있는 폴링 취소 - 취소된 틱은 레지스트리 체크에서 버려짐
	m.cancelAssetPolls(st)

	m.setState(assetID, model.AssetState{
		Status:         model.StatusReady,
		ApprovalStatus: model.ApprovalPending,
	})
	m.persist(ctx, assetID, map[string]interface{}{
		"status":             model.StatusReady,
		"approval_status":    model.ApprovalPending,
		"draft_task_id":      "",
		"rig_task_id":        "",
		"animation_task_ids": map[string]string{},
		"draft_model_url":    "",
		"rigged_model_url":   "",
		"animation_urls":     map[string]string{},
		"error_message":      "",
	})
	m.publishStatus(assetID, model.StatusReady, 0, "")

	log.Printf("🔄 [State] Asset %s reset to ready", assetID)
	return nil
}

// Approve - 승인 (파이프라인 상태와 직교)
// 2D 에셋이면 버전 승인 + 영속화 + 앵커 전파, 3D 에셋이면 approval_status만 변경
func (m *Manager) Approve(ctx context.Context, assetID string) error {
	if _, ok := m.AssetOf(assetID); !ok {
		return fmt.Errorf("asset not found: %s", assetID)
	}

	if _, ok := m.imageStateOf(assetID); ok {
		return m.approveImage(ctx, assetID)
	}

	st := m.StateOf(assetID)
	st.ApprovalStatus = model.ApprovalApproved
	m.setState(assetID, st)
	m.persist(ctx, assetID, map[string]interface{}{"approval_status": model.ApprovalApproved})
	m.publishStatus(assetID, st.Status, st.Progress, "")

	log.Printf("👍 [State] Asset %s approved (pipeline status: %s)", assetID, st.Status)
	return nil
}

// Reject - 거부
// 3D: 에셋 전체를 ready로 리셋 (결과물 1개 모델)
// 2D: 해당 버전만 제거 (versionID 없으면 현재 버전)
func (m *Manager) Reject(ctx context.Context, assetID, versionID string) error {
	if _, ok := m.AssetOf(assetID); !ok {
		return fmt.Errorf("asset not found: %s", assetID)
	}

	if _, ok := m.imageStateOf(assetID); ok {
		return m.RejectVersion(ctx, assetID, versionID)
	}

	st := m.StateOf(assetID)
	m.cancelAssetPolls(st)

	m.setState(assetID, model.AssetState{
		Status:         model.StatusReady,
		ApprovalStatus: model.ApprovalRejected,
	})
	m.persist(ctx, assetID, map[string]interface{}{
		"status":             model.StatusReady,
		"approval_status":    model.ApprovalRejected,
		"draft_task_id":      "",
		"rig_task_id":        "",
		"animation_task_ids": map[string]string{},
		"draft_model_url":    "",
		"rigged_model_url":   "",
		"animation_urls":     map[string]string{},
		"error_message":      "",
	})
	m.publishStatus(assetID, model.StatusReady, 0, "")

	log.Printf("👎 [State] Asset %s rejected, reset to ready", assetID)
	return nil
}

// OnTaskSuccess - Poller 성공 콜백, 스테이지별 전이 + 결과물 영속화
func (m *Manager) OnTaskSuccess(assetID string, stage model.Stage, taskID, outputURL string) {
	ctx := context.Background()
	st := m.StateOf(assetID)

	switch stage.Kind {
	case model.StageDraft:
		st.Status = model.StatusGenerated
		// 후속 스테이지가 없는 에셋은 draft가 곧 최종 결과물
		if asset, ok := m.AssetOf(assetID); ok && !asset.RequiresRig && len(asset.Animations) == 0 {
			st.Status = model.StatusComplete
		}
		st.Progress = 100
		st.DraftModelURL = outputURL
		m.setState(assetID, st)
		m.persist(ctx, assetID, map[string]interface{}{
			"status":          st.Status,
			"draft_model_url": outputURL,
			"draft_task_id":   taskID,
		})
		m.publishStatus(assetID, st.Status, 100, "")

	case model.StageSkybox:
		// skybox는 후속 스테이지가 없어서 바로 complete
		st.Status = model.StatusComplete
		st.Progress = 100
		st.DraftModelURL = outputURL
		m.setState(assetID, st)
		m.persist(ctx, assetID, map[string]interface{}{
			"status":          model.StatusComplete,
			"draft_model_url": outputURL,
			"draft_task_id":   taskID,
		})
		m.publishStatus(assetID, st.Status, 100, "")

	case model.StageRig:
		st.Status = model.StatusRigged
		st.Progress = 100
		st.RiggedModelURL = outputURL
		// 새 rig 기준으로 애니메이션을 다시 돌려야 해서 이전 결과는 비움
		st.AnimationTaskIDs = nil
		st.AnimationURLs = nil
		m.setState(assetID, st)
		m.persist(ctx, assetID, map[string]interface{}{
			"status":             model.StatusRigged,
			"rigged_model_url":   outputURL,
			"rig_task_id":        taskID,
			"animation_task_ids": map[string]string{},
			"animation_urls":     map[string]string{},
		})
		m.publishStatus(assetID, st.Status, 100, "")

	case model.StageAnimation:
		// 프리셋별 완료가 동시에 들어오므로 URL 병합과 완료 판정을 한 잠금 안에서
		var done bool
		st, _ = m.mutateState(assetID, func(st *model.AssetState) bool {
			st.AnimationURLs = cloneStringMap(st.AnimationURLs)
			st.AnimationURLs[stage.Preset] = outputURL

			// 제출된 모든 프리셋이 끝났으면 complete
			done = len(st.AnimationTaskIDs) > 0
			for preset := range st.AnimationTaskIDs {
				if _, ok := st.AnimationURLs[preset]; !ok {
					done = false
					break
				}
			}
			if done {
				st.Status = model.StatusComplete
				st.Progress = 100
			}
			return true
		})

		fields := map[string]interface{}{"animation_urls": st.AnimationURLs}
		if done {
			fields["status"] = model.StatusComplete
		}
		m.persist(ctx, assetID, fields)
		m.publish(ProgressEvent{
			Type: "status_update", AssetID: assetID,
			Status: st.Status, Progress: st.Progress, Preset: stage.Preset,
		})
	}

	log.Printf("✅ [State] Asset %s stage %s resolved → %s", assetID, stage.Kind, m.StateOf(assetID).Status)
}

// OnTaskFailed - Poller 실패 콜백
func (m *Manager) OnTaskFailed(assetID string, stage model.Stage, taskID, message string) {
	m.failStage(context.Background(), assetID, message)
}

// OnTaskProgress - Poller 진행 콜백
// 해당 스테이지 진행 중일 때만 반영 (뒤늦게 도착한 stale 틱 무시)
func (m *Manager) OnTaskProgress(assetID string, stage model.Stage, progress int) {
	st, ok := m.mutateState(assetID, func(st *model.AssetState) bool {
		if st.Status != model.InFlightStatusFor(stage.Kind) {
			return false
		}
		st.Progress = progress
		return true
	})
	if !ok {
		return
	}
	m.publish(ProgressEvent{Type: "progress_update", AssetID: assetID, Status: st.Status, Progress: progress})
}

// OnTaskTimeout - Poller 타임아웃 콜백
// 이미 완료된 뒤 타이머가 발화한 경우를 대비해 아직 해당 스테이지 진행 중일 때만 failed 처리
func (m *Manager) OnTaskTimeout(assetID string, stage model.Stage, taskID string) {
	st := m.StateOf(assetID)
	if st.Status != model.InFlightStatusFor(stage.Kind) {
		log.Printf("⏰ [State] Timeout for task %s ignored - asset %s is %s", taskID, assetID, st.Status)
		return
	}

	m.failStage(context.Background(), assetID, ErrMsgTimeout)
}

// failStage - failed 전이 + 에러 메시지 영속화
func (m *Manager) failStage(ctx context.Context, assetID, message string) {
	m.mutateState(assetID, func(st *model.AssetState) bool {
		st.Status = model.StatusFailed
		st.Progress = 0
		st.Error = message
		return true
	})
	m.persist(ctx, assetID, map[string]interface{}{
		"status":        model.StatusFailed,
		"error_message": message,
	})
	m.publishStatus(assetID, model.StatusFailed, 0, message)

	log.Printf("❌ [State] Asset %s failed: %s", assetID, message)
}

// cancelAssetPolls - 에셋의 모든 떠 있는 폴링 취소
func (m *Manager) cancelAssetPolls(st model.AssetState) {
	if st.DraftTaskID != "" {
		m.poller.CancelTask(st.DraftTaskID)
	}
	if st.RigTaskID != "" {
		m.poller.CancelTask(st.RigTaskID)
	}
	for _, taskID := range st.AnimationTaskIDs {
		m.poller.CancelTask(taskID)
	}
}

// statusFuncFor - 에셋 카테고리에 맞는 Job Status Service 선택
func (m *Manager) statusFuncFor(asset model.Asset) StatusFunc {
	if asset.Category == "skybox" && m.skyboxes != nil {
		return m.skyboxes.GetTaskStatus
	}
	return m.models.GetTaskStatus
}

// persist - 부분 업데이트 (실패해도 로컬 상태는 유지, 로그만)
func (m *Manager) persist(ctx context.Context, assetID string, fields map[string]interface{}) {
	if m.records == nil {
		return
	}
	if err := m.records.UpdateAssetRecord(ctx, assetID, fields); err != nil {
		log.Printf("⚠️ [State] Failed to persist asset %s: %v", assetID, err)
	}
}

// publishStatus - status_update 이벤트 발행
func (m *Manager) publishStatus(assetID, status string, progress int, errMsg string) {
	m.publish(ProgressEvent{
		Type: "status_update", AssetID: assetID,
		Status: status, Progress: progress, Error: errMsg,
	})
}

// publish - 이벤트 발행 (sink 없으면 무시)
func (m *Manager) publish(ev ProgressEvent) {
	if m.events != nil {
		m.events.PublishProgress(ev)
	}
}

// cloneStringMap - copy-on-write용 맵 복사
func cloneStringMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
