package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"asset-forge-server/modules/common/model"
)

// BatchProgress - 배치 진행 스냅샷
type BatchProgress struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

// BatchCallbacks - 배치 진행 훅 (모두 nil 허용)
type BatchCallbacks struct {
	// 에셋 하나 처리 끝날 때마다
	OnProgress func(p BatchProgress)
	// 유저 취소로 중단됐을 때
	OnCancelled func(p BatchProgress)
}

// Orchestrator - 2D 배치 생성 오케스트레이터
// 순차 처리: 동시 생성은 레퍼런스 전파 순서를 깨뜨림 (front 먼저)
type Orchestrator struct {
	manager *Manager
	paused  atomic.Bool

	// 외부 취소 신호 (배치 job 단위, redis cancel flag 조회)
	cancelled func(ctx context.Context, jobID string) bool

	// pause 상태 폴링 간격
	pauseCheckInterval time.Duration
}

// NewOrchestrator - Orchestrator 생성
func NewOrchestrator(manager *Manager, cancelled func(ctx context.Context, jobID string) bool) *Orchestrator {
	return &Orchestrator{
		manager:            manager,
		cancelled:          cancelled,
		pauseCheckInterval: 200 * time.Millisecond,
	}
}

// Pause - 다음 에셋부터 대기 (진행 중인 생성은 끝까지 감)
func (o *Orchestrator) Pause() {
	o.paused.Store(true)
	log.Printf("⏸️ [Queue] Batch paused")
}

// Resume - 대기 해제
func (o *Orchestrator) Resume() {
	o.paused.Store(false)
	log.Printf("▶️ [Queue] Batch resumed")
}

// IsPaused - 현재 pause 상태
func (o *Orchestrator) IsPaused() bool {
	return o.paused.Load()
}

// ResolveTargets - target mode에 따라 처리 대상 에셋 결정
// selected: 지정 목록 그대로 / all: 전체 / remaining: 2D 상태가 없거나 미승인인 것
// 앵커(front) 방향이 형제보다 먼저 오도록 정렬
func (o *Orchestrator) ResolveTargets(mode string, assetIDs []string) ([]string, error) {
	switch mode {
	case "selected":
		if len(assetIDs) == 0 {
			return nil, fmt.Errorf("selected mode requires asset ids")
		}
		for _, id := range assetIDs {
			if _, ok := o.manager.AssetOf(id); !ok {
				return nil, fmt.Errorf("asset not found: %s", id)
			}
		}
		return orderAnchorsFirst(o.manager, assetIDs), nil

	case "all":
		ids := make([]string, 0, len(o.manager.Assets()))
		for id := range o.manager.Assets() {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return orderAnchorsFirst(o.manager, ids), nil

	case "remaining":
		var ids []string
		for id := range o.manager.Assets() {
			st, ok := o.manager.ImageStateOf(id)
			// 이미지 상태가 아예 없으면 아직 한 번도 안 돌린 것 - 대상에 포함
			// approved는 끝난 것, awaiting_approval은 결과가 이미 나와 판정 대기 중 - 둘 다 제외
			if !ok || (st.Status != model.ImageStatusApproved && st.Status != model.ImageStatusAwaitingApproval) {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		return orderAnchorsFirst(o.manager, ids), nil

	default:
		return nil, fmt.Errorf("unknown target mode: %s", mode)
	}
}

// Run - 배치 실행 (순차, pause/cancel 체크는 에셋 사이에서)
// 취소되면 (progress, true, nil) 반환
func (o *Orchestrator) Run(ctx context.Context, jobID string, assetIDs []string, cb BatchCallbacks) (BatchProgress, bool, error) {
	progress := BatchProgress{Total: len(assetIDs)}

	log.Printf("🚀 [Queue] Batch %s started: %d assets", jobID, len(assetIDs))

	for _, assetID := range assetIDs {
		// pause 중이면 대기 (취소는 pause 중에도 먹어야 함)
		for o.paused.Load() {
			if o.isCancelled(ctx, jobID) {
				o.reportCancelled(progress, cb)
				return progress, true, nil
			}
			select {
			case <-ctx.Done():
				return progress, false, ctx.Err()
			case <-time.After(o.pauseCheckInterval):
			}
		}

		if o.isCancelled(ctx, jobID) {
			o.reportCancelled(progress, cb)
			return progress, true, nil
		}

		if err := o.manager.GenerateImage(ctx, assetID); err != nil {
			// 에셋을 못 찾는 수준의 에러 - 실패로 집계하고 계속
			log.Printf("❌ [Queue] Asset %s skipped: %v", assetID, err)
			progress.Failed++
		} else if st, ok := o.manager.ImageStateOf(assetID); ok && st.Status == model.ImageStatusRejected {
			progress.Failed++
		} else {
			progress.Completed++
		}

		progress.Percent = percentOf(progress.Completed+progress.Failed, progress.Total)
		if cb.OnProgress != nil {
			cb.OnProgress(progress)
		}

		o.manager.publish(ProgressEvent{
			Type:           "batch_progress",
			BatchCompleted: progress.Completed,
			BatchFailed:    progress.Failed,
			BatchTotal:     progress.Total,
			BatchPercent:   progress.Percent,
		})
	}

	log.Printf("🏁 [Queue] Batch %s finished: %d ok, %d failed", jobID, progress.Completed, progress.Failed)
	return progress, false, nil
}

func (o *Orchestrator) isCancelled(ctx context.Context, jobID string) bool {
	return o.cancelled != nil && o.cancelled(ctx, jobID)
}

func (o *Orchestrator) reportCancelled(p BatchProgress, cb BatchCallbacks) {
	log.Printf("🛑 [Queue] Batch cancelled at %d/%d", p.Completed+p.Failed, p.Total)
	if cb.OnCancelled != nil {
		cb.OnCancelled(p)
	}
}

// orderAnchorsFirst - front 방향 에셋을 같은 목록 안에서 앞으로
// (형제 방향들이 전파된 레퍼런스를 받으려면 앵커가 먼저 생성/승인돼야 함)
func orderAnchorsFirst(m *Manager, ids []string) []string {
	anchors := make([]string, 0, len(ids))
	rest := make([]string, 0, len(ids))

	for _, id := range ids {
		a, ok := m.AssetOf(id)
		if ok && a.Direction != nil && a.Direction.Direction == model.DirectionFront {
			anchors = append(anchors, id)
		} else {
			rest = append(rest, id)
		}
	}

	return append(anchors, rest...)
}

func percentOf(done, total int) int {
	if total == 0 {
		return 0
	}
	return done * 100 / total
}
