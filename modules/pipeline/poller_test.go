package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asset-forge-server/modules/common/model"
)

// sinkEvent - 테스트용 콜백 기록
type sinkEvent struct {
	kind      string // success, failed, progress, timeout
	assetID   string
	stage     model.Stage
	taskID    string
	outputURL string
	message   string
	progress  int
}

// recordingSink - PollSink 테스트 더블
type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
	done   chan sinkEvent // 종결 이벤트(success/failed/timeout)만 전달
}

func newRecordingSink() *recordingSink {
	return &recordingSink{done: make(chan sinkEvent, 16)}
}

func (s *recordingSink) record(ev sinkEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()

	if ev.kind != "progress" {
		s.done <- ev
	}
}

func (s *recordingSink) OnTaskSuccess(assetID string, stage model.Stage, taskID, outputURL string) {
	s.record(sinkEvent{kind: "success", assetID: assetID, stage: stage, taskID: taskID, outputURL: outputURL})
}

func (s *recordingSink) OnTaskFailed(assetID string, stage model.Stage, taskID, message string) {
	s.record(sinkEvent{kind: "failed", assetID: assetID, stage: stage, taskID: taskID, message: message})
}

func (s *recordingSink) OnTaskProgress(assetID string, stage model.Stage, progress int) {
	s.record(sinkEvent{kind: "progress", assetID: assetID, stage: stage, progress: progress})
}

func (s *recordingSink) OnTaskTimeout(assetID string, stage model.Stage, taskID string) {
	s.record(sinkEvent{kind: "timeout", assetID: assetID, stage: stage, taskID: taskID})
}

func (s *recordingSink) waitTerminal(t *testing.T) sinkEvent {
	t.Helper()
	select {
	case ev := <-s.done:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no terminal event received")
		return sinkEvent{}
	}
}

func (s *recordingSink) snapshot() []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkEvent(nil), s.events...)
}

// scriptedStatus - 호출 순서대로 응답을 돌려주는 StatusFunc
func scriptedStatus(responses ...interface{}) StatusFunc {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, taskID string) (*model.TaskStatusResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(responses) {
			// 스크립트 소진 후에는 마지막 응답 반복
			i = len(responses) - 1
		}
		r := responses[i]
		i++
		switch v := r.(type) {
		case error:
			return nil, v
		case *model.TaskStatusResponse:
			return v, nil
		default:
			panic("unsupported scripted response")
		}
	}
}

func TestPoller_SuccessDeliversOutput(t *testing.T) {
	sink := newRecordingSink()
	p := NewPoller(5*time.Millisecond, time.Second, sink)

	p.StartPolling("asset-1", "task-1", model.Stage{Kind: model.StageDraft}, scriptedStatus(
		&model.TaskStatusResponse{Status: model.TaskRunning, Progress: 40},
		&model.TaskStatusResponse{
			Status: model.TaskSuccess,
			Output: map[string]interface{}{"model": "https://cdn.example.com/a.glb"},
		},
	))

	ev := sink.waitTerminal(t)
	assert.Equal(t, "success", ev.kind)
	assert.Equal(t, "asset-1", ev.assetID)
	assert.Equal(t, "https://cdn.example.com/a.glb", ev.outputURL)
	assert.Equal(t, 0, p.ActiveCount())
}

func TestPoller_SuccessWithoutOutputIsFailure(t *testing.T) {
	sink := newRecordingSink()
	p := NewPoller(5*time.Millisecond, time.Second, sink)

	p.StartPolling("asset-1", "task-1", model.Stage{Kind: model.StageDraft}, scriptedStatus(
		&model.TaskStatusResponse{Status: model.TaskSuccess, Output: map[string]interface{}{}},
	))

	ev := sink.waitTerminal(t)
	assert.Equal(t, "failed", ev.kind)
	assert.Equal(t, "Generation finished but no output was returned", ev.message)
	assert.Equal(t, 0, p.ActiveCount())
}

func TestPoller_FailureUsesRemoteMessage(t *testing.T) {
	sink := newRecordingSink()
	p := NewPoller(5*time.Millisecond, time.Second, sink)

	p.StartPolling("asset-1", "task-1", model.Stage{Kind: model.StageRig}, scriptedStatus(
		&model.TaskStatusResponse{Status: model.TaskFailed, Error: "mesh has no skeleton candidates"},
	))

	ev := sink.waitTerminal(t)
	assert.Equal(t, "failed", ev.kind)
	assert.Equal(t, "mesh has no skeleton candidates", ev.message)
}

func TestPoller_FailureWithoutMessageGetsFallback(t *testing.T) {
	sink := newRecordingSink()
	p := NewPoller(5*time.Millisecond, time.Second, sink)

	p.StartPolling("asset-1", "task-1", model.Stage{Kind: model.StageDraft}, scriptedStatus(
		&model.TaskStatusResponse{Status: model.TaskFailed},
	))

	ev := sink.waitTerminal(t)
	assert.Equal(t, "failed", ev.kind)
	assert.Equal(t, "Generation failed on the remote service", ev.message)
}

func TestPoller_TransportErrorsAreNotFatal(t *testing.T) {
	sink := newRecordingSink()
	p := NewPoller(5*time.Millisecond, time.Second, sink)

	p.StartPolling("asset-1", "task-1", model.Stage{Kind: model.StageDraft}, scriptedStatus(
		fmt.Errorf("connection reset"),
		fmt.Errorf("connection reset"),
		&model.TaskStatusResponse{
			Status: model.TaskSuccess,
			Output: map[string]interface{}{"model": "https://cdn.example.com/a.glb"},
		},
	))

	// 전송 에러 틱은 건너뛰고 결국 성공에 도달해야 함
	ev := sink.waitTerminal(t)
	assert.Equal(t, "success", ev.kind)
}

func TestPoller_TimeoutFiresOnce(t *testing.T) {
	sink := newRecordingSink()
	p := NewPoller(5*time.Millisecond, 30*time.Millisecond, sink)

	p.StartPolling("asset-1", "task-1", model.Stage{Kind: model.StageDraft}, scriptedStatus(
		&model.TaskStatusResponse{Status: model.TaskRunning, Progress: 10},
	))

	ev := sink.waitTerminal(t)
	assert.Equal(t, "timeout", ev.kind)
	assert.Equal(t, 0, p.ActiveCount())

	// 타임아웃 이후 추가 종결 이벤트가 없어야 함
	select {
	case extra := <-sink.done:
		t.Fatalf("unexpected extra terminal event: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPoller_DuplicateTaskIgnored(t *testing.T) {
	sink := newRecordingSink()
	p := NewPoller(time.Hour, time.Hour, sink) // 틱이 안 오게

	check := scriptedStatus(&model.TaskStatusResponse{Status: model.TaskRunning})
	p.StartPolling("asset-1", "task-1", model.Stage{Kind: model.StageDraft}, check)
	p.StartPolling("asset-1", "task-1", model.Stage{Kind: model.StageDraft}, check)

	assert.Equal(t, 1, p.ActiveCount())
	p.CancelAll()
}

func TestPoller_CancelAllStopsEverything(t *testing.T) {
	sink := newRecordingSink()
	p := NewPoller(5*time.Millisecond, time.Hour, sink)

	running := scriptedStatus(&model.TaskStatusResponse{Status: model.TaskRunning, Progress: 10})
	p.StartPolling("asset-1", "task-1", model.Stage{Kind: model.StageDraft}, running)
	p.StartPolling("asset-2", "task-2", model.Stage{Kind: model.StageRig}, running)

	require.Equal(t, 2, p.ActiveCount())
	p.CancelAll()
	assert.Equal(t, 0, p.ActiveCount())

	// 취소 후 종결 이벤트 없음
	select {
	case ev := <-sink.done:
		t.Fatalf("unexpected terminal event after cancel: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPoller_CancelTaskLeavesOthersRunning(t *testing.T) {
	sink := newRecordingSink()
	p := NewPoller(5*time.Millisecond, time.Hour, sink)

	running := scriptedStatus(&model.TaskStatusResponse{Status: model.TaskRunning, Progress: 10})
	p.StartPolling("asset-1", "task-1", model.Stage{Kind: model.StageDraft}, running)
	p.StartPolling("asset-2", "task-2", model.Stage{Kind: model.StageDraft}, running)

	p.CancelTask("task-1")

	assert.False(t, p.IsPolling("task-1"))
	assert.True(t, p.IsPolling("task-2"))
	p.CancelAll()
}
