package pipeline

import (
	"context"
	"encoding/base64"
	"log"
	"sort"
	"time"

	"asset-forge-server/modules/common/model"
)

// ResumeTask - Hydration이 판정한 재개 대상 폴링
type ResumeTask struct {
	AssetID string
	TaskID  string
	Stage   model.Stage
}

// HydrationResult - Hydration 출력 (설치할 상태 + 재개할 폴링 목록)
type HydrationResult struct {
	States map[string]model.AssetState
	Resume []ResumeTask
}

// legacy/외부 기록에 남아 있을 수 있는 비정규 상태
var legacyStatuses = map[string]bool{
	"queued":  true,
	"pending": true,
	"unknown": true,
}

// Hydrate - 영속 레코드를 로컬 상태로 복원 + 레코드/결과물 불일치 자가 치유
// 순수 함수: 설치와 재개는 호출자 몫
func Hydrate(assets map[string]model.Asset, records []model.AssetRecord) HydrationResult {
	result := HydrationResult{
		States: make(map[string]model.AssetState, len(records)),
	}

	for _, rec := range records {
		if _, ok := assets[rec.AssetID]; !ok {
			// Plan에 없는 에셋의 레코드는 버림 (plan이 진실)
			log.Printf("⚠️ [Hydrate] Record for unknown asset %s dropped", rec.AssetID)
			continue
		}

		st := model.AssetState{
			Status:           rec.Status,
			ApprovalStatus:   rec.ApprovalStatus,
			DraftTaskID:      rec.DraftTaskID,
			RigTaskID:        rec.RigTaskID,
			AnimationTaskIDs: rec.AnimationTaskIDs,
			DraftModelURL:    rec.DraftModelURL,
			RiggedModelURL:   rec.RiggedModelURL,
			AnimationURLs:    rec.AnimationURLs,
			Error:            rec.ErrorMessage,
		}
		if st.ApprovalStatus == "" {
			st.ApprovalStatus = model.ApprovalPending
		}

		// 비정규 상태는 ready로 정규화
		if legacyStatuses[st.Status] || st.Status == "" {
			log.Printf("🔧 [Hydrate] Asset %s: legacy status %q normalized to ready", rec.AssetID, st.Status)
			st.Status = model.StatusReady
		}

		// 자가 치유 A: ready로 기록됐는데 draft 결과물이 있으면 generated
		if st.Status == model.StatusReady && st.DraftModelURL != "" {
			log.Printf("🔧 [Hydrate] Asset %s: draft artifact found, ready → generated", rec.AssetID)
			st.Status = model.StatusGenerated
		}

		// 자가 치유 B: rig 결과물이 있는데 상태가 generated 이전이면 rigged
		if st.RiggedModelURL != "" && statusAtOrBefore(st.Status, model.StatusGenerated) {
			log.Printf("🔧 [Hydrate] Asset %s: rig artifact found, %s → rigged", rec.AssetID, st.Status)
			st.Status = model.StatusRigged
		}

		// 완료 상태는 progress 100으로 복원
		switch st.Status {
		case model.StatusGenerated, model.StatusRigged, model.StatusComplete:
			st.Progress = 100
		}

		// 진행 중이던 스테이지는 task id가 남아 있으면 폴링 재개
		switch st.Status {
		case model.StatusGenerating:
			if st.DraftTaskID != "" {
				result.Resume = append(result.Resume, ResumeTask{
					AssetID: rec.AssetID, TaskID: st.DraftTaskID,
					Stage: model.Stage{Kind: model.StageDraft},
				})
			} else {
				// 재개 불가 - 처음부터 다시
				st.Status = model.StatusReady
				st.Progress = 0
			}

		case model.StatusRigging:
			if st.RigTaskID != "" {
				result.Resume = append(result.Resume, ResumeTask{
					AssetID: rec.AssetID, TaskID: st.RigTaskID,
					Stage: model.Stage{Kind: model.StageRig},
				})
			} else {
				st.Status = model.StatusGenerated
				st.Progress = 100
			}

		case model.StatusAnimating:
			for preset, taskID := range st.AnimationTaskIDs {
				if _, done := st.AnimationURLs[preset]; done {
					continue
				}
				result.Resume = append(result.Resume, ResumeTask{
					AssetID: rec.AssetID, TaskID: taskID,
					Stage: model.Stage{Kind: model.StageAnimation, Preset: preset},
				})
			}

		case model.StatusRigged:
			// 결과물 URL이 유실된 경우 task id로 재조회
			if st.RiggedModelURL == "" && st.RigTaskID != "" {
				log.Printf("🔧 [Hydrate] Asset %s: rigged without artifact URL, re-polling task %s",
					rec.AssetID, st.RigTaskID)
				st.Status = model.StatusRigging
				st.Progress = 0
				result.Resume = append(result.Resume, ResumeTask{
					AssetID: rec.AssetID, TaskID: st.RigTaskID,
					Stage: model.Stage{Kind: model.StageRig},
				})
			}

		case model.StatusComplete:
			// draft 결과물이 유실된 complete는 task id로 재조회 (skybox, rig 없는 에셋)
			if st.DraftModelURL == "" && st.DraftTaskID != "" {
				log.Printf("🔧 [Hydrate] Asset %s: complete without draft artifact URL, re-polling task %s",
					rec.AssetID, st.DraftTaskID)
				st.Status = model.StatusGenerating
				st.Progress = 0
				result.Resume = append(result.Resume, ResumeTask{
					AssetID: rec.AssetID, TaskID: st.DraftTaskID,
					Stage: model.Stage{Kind: model.StageDraft},
				})
				break
			}

			// 애니메이션 URL이 일부 유실된 complete는 animating으로 되돌려 재조회
			var missing []ResumeTask
			for preset, taskID := range st.AnimationTaskIDs {
				if _, done := st.AnimationURLs[preset]; !done {
					missing = append(missing, ResumeTask{
						AssetID: rec.AssetID, TaskID: taskID,
						Stage: model.Stage{Kind: model.StageAnimation, Preset: preset},
					})
				}
			}
			if len(missing) > 0 {
				log.Printf("🔧 [Hydrate] Asset %s: %d animation artifacts missing, re-polling",
					rec.AssetID, len(missing))
				st.Status = model.StatusAnimating
				st.Progress = 0
				result.Resume = append(result.Resume, missing...)
			}
		}

		result.States[rec.AssetID] = st
	}

	return result
}

// statusAtOrBefore - 파이프라인 순서상 target 이전(포함)인지
func statusAtOrBefore(status, target string) bool {
	order := []string{
		model.StatusReady,
		model.StatusGenerating,
		model.StatusGenerated,
		model.StatusRigging,
		model.StatusRigged,
		model.StatusAnimating,
		model.StatusComplete,
	}

	pos := func(s string) int {
		for i, v := range order {
			if v == s {
				return i
			}
		}
		return -1
	}

	sp, tp := pos(status), pos(target)
	if sp < 0 || tp < 0 {
		return false
	}
	return sp <= tp
}

// HydrateFromStore - 영속 레코드 조회 → 상태 설치 → 폴링 재개
// 재개는 약간 지연시켜 설치된 상태가 먼저 자리잡게 함
func (m *Manager) HydrateFromStore(ctx context.Context, fetch func(ctx context.Context, projectID string) ([]model.AssetRecord, error)) error {
	records, err := fetch(ctx, m.projectID)
	if err != nil {
		return err
	}

	result := Hydrate(m.Assets(), records)
	m.setStates(result.States)

	log.Printf("💧 [Hydrate] %d states restored, %d tasks to resume", len(result.States), len(result.Resume))

	if len(result.Resume) == 0 {
		return nil
	}

	resume := result.Resume
	time.AfterFunc(500*time.Millisecond, func() {
		for _, task := range resume {
			asset, ok := m.AssetOf(task.AssetID)
			if !ok {
				continue
			}
			m.poller.StartPolling(task.AssetID, task.TaskID, task.Stage, m.statusFuncFor(asset))
		}
	})

	return nil
}

// HydrateVersions - 승인된 2D 버전들을 Version/Blob Store에서 복원
// 다운로드 실패한 버전은 건너뜀 (복원은 best-effort)
func (m *Manager) HydrateVersions(
	ctx context.Context,
	fetch func(ctx context.Context, projectID string) ([]model.VersionRecord, error),
	download func(ctx context.Context, filePath string) ([]byte, error),
) error {
	records, err := fetch(ctx, m.projectID)
	if err != nil {
		return err
	}

	byAsset := make(map[string][]model.VersionRecord)
	for _, rec := range records {
		if _, ok := m.AssetOf(rec.AssetID); !ok {
			continue
		}
		byAsset[rec.AssetID] = append(byAsset[rec.AssetID], rec)
	}

	restored := 0
	for assetID, recs := range byAsset {
		sort.Slice(recs, func(i, j int) bool {
			return recs[i].VersionNumber < recs[j].VersionNumber
		})

		var versions []model.Version
		for _, rec := range recs {
			data, err := download(ctx, rec.FilePath)
			if err != nil {
				log.Printf("⚠️ [Hydrate] Failed to download version %s: %v", rec.VersionID, err)
				continue
			}
			versions = append(versions, model.Version{
				VersionID:     rec.VersionID,
				VersionNumber: rec.VersionNumber,
				ImageBase64:   base64.StdEncoding.EncodeToString(data),
				Prompt:        rec.Prompt,
				ModelID:       rec.ModelID,
				Seed:          rec.Seed,
				Cost:          rec.Cost,
				DurationMS:    rec.DurationMS,
				CreatedAt:     rec.CreatedAt,
			})
		}
		if len(versions) == 0 {
			continue
		}

		st := model.ImageState{
			Status:              model.ImageStatusApproved,
			Versions:            versions,
			CurrentVersionIndex: len(versions) - 1,
		}
		recomputeResult(&st)
		m.setImageState(assetID, st)
		restored++
	}

	log.Printf("💧 [Hydrate] %d assets restored from version store", restored)
	return nil
}
