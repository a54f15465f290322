package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"asset-forge-server/modules/common/model"
)

// StatusFunc - Job Status Service 조회 함수 (스테이지별로 다른 서비스 사용)
type StatusFunc func(ctx context.Context, taskID string) (*model.TaskStatusResponse, error)

// PollSink - Poller 결과를 받는 쪽 (Asset State Machine)
type PollSink interface {
	OnTaskSuccess(assetID string, stage model.Stage, taskID, outputURL string)
	OnTaskFailed(assetID string, stage model.Stage, taskID, message string)
	OnTaskProgress(assetID string, stage model.Stage, progress int)
	OnTaskTimeout(assetID string, stage model.Stage, taskID string)
}

// Poller - 원격 Task 반복 상태 체크 프리미티브
// task 하나당 폴링 루프 하나, 전체 핸들은 레지스트리에서 직접 관리
type Poller struct {
	interval time.Duration
	timeout  time.Duration
	sink     PollSink

	mu     sync.Mutex
	active map[string]chan struct{} // taskID → stop 채널
}

// NewPoller - Poller 생성
func NewPoller(interval, timeout time.Duration, sink PollSink) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Poller{
		interval: interval,
		timeout:  timeout,
		sink:     sink,
		active:   make(map[string]chan struct{}),
	}
}

// StartPolling - taskID에 대한 폴링 시작
// 이미 폴링 중인 task면 무시 (로컬 폴링 루프는 task당 최대 1개)
func (p *Poller) StartPolling(assetID, taskID string, stage model.Stage, check StatusFunc) {
	p.mu.Lock()
	if _, exists := p.active[taskID]; exists {
		p.mu.Unlock()
		log.Printf("⚠️ [Poller] Task %s is already being polled, ignoring", taskID)
		return
	}
	stop := make(chan struct{})
	p.active[taskID] = stop
	p.mu.Unlock()

	log.Printf("⏳ [Poller] Started polling task %s (asset: %s, stage: %s)", taskID, assetID, stage.Kind)

	go p.run(assetID, taskID, stage, check, stop)
}

// run - 폴링 루프 본체
func (p *Poller) run(assetID, taskID string, stage model.Stage, check StatusFunc, stop chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	deadline := time.NewTimer(p.timeout)
	defer deadline.Stop()

	ctx := context.Background()

	for {
		select {
		case <-stop:
			// CancelAll/CancelTask로 중단됨 - 이후 응답은 버려짐
			return

		case <-deadline.C:
			// 타임아웃 - 레지스트리에 아직 있을 때만 타임아웃 처리
			// (성공/실패 직후 타이머가 늦게 발화하는 레이스 방지)
			if p.remove(taskID) {
				log.Printf("⏰ [Poller] Task %s timed out after %v", taskID, p.timeout)
				p.sink.OnTaskTimeout(assetID, stage, taskID)
			}
			return

		case <-ticker.C:
			status, err := check(ctx, taskID)
			if err != nil {
				// 전송 에러는 틱만 버리고 계속 폴링 (타임아웃 전까지는 치명적이지 않음)
				log.Printf("⚠️ [Poller] Status check failed for task %s: %v", taskID, err)
				continue
			}

			// 조회 도중 취소됐으면 응답 버림
			if !p.isActive(taskID) {
				return
			}

			switch status.Status {
			case model.TaskSuccess:
				outputURL := ExtractOutputURL(status.Output)
				if !p.remove(taskID) {
					return
				}
				if outputURL == "" {
					log.Printf("❌ [Poller] Task %s succeeded but no output locator found", taskID)
					p.sink.OnTaskFailed(assetID, stage, taskID, "Generation finished but no output was returned")
					return
				}
				log.Printf("✅ [Poller] Task %s resolved: %s", taskID, outputURL)
				p.sink.OnTaskSuccess(assetID, stage, taskID, outputURL)
				return

			case model.TaskFailed:
				if !p.remove(taskID) {
					return
				}
				message := status.Error
				if message == "" {
					message = "Generation failed on the remote service"
				}
				log.Printf("❌ [Poller] Task %s failed: %s", taskID, message)
				p.sink.OnTaskFailed(assetID, stage, taskID, message)
				return

			default:
				// 진행 중 - progress만 갱신
				p.sink.OnTaskProgress(assetID, stage, status.Progress)
			}
		}
	}
}

// isActive - task가 레지스트리에 있는지 확인
func (p *Poller) isActive(taskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[taskID]
	return ok
}

// remove - 레지스트리에서 제거, 제거했으면 true
func (p *Poller) remove(taskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[taskID]; !ok {
		return false
	}
	delete(p.active, taskID)
	return true
}

// CancelTask - 특정 task 폴링 중단
func (p *Poller) CancelTask(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if stop, ok := p.active[taskID]; ok {
		close(stop)
		delete(p.active, taskID)
		log.Printf("🛑 [Poller] Cancelled polling for task %s", taskID)
	}
}

// CancelAll - 모든 폴링 중단 (세션 teardown용)
func (p *Poller) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for taskID, stop := range p.active {
		close(stop)
		delete(p.active, taskID)
	}

	log.Printf("🛑 [Poller] All polling cancelled")
}

// ActiveCount - 현재 폴링 중인 task 수
func (p *Poller) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// IsPolling - taskID 폴링 중인지 확인
func (p *Poller) IsPolling(taskID string) bool {
	return p.isActive(taskID)
}
