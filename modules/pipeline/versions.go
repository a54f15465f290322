package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"asset-forge-server/modules/common/model"
	"asset-forge-server/modules/submodule/imagen"
)

// imageStateOf - 2D 상태 조회 (존재 여부 포함)
func (m *Manager) imageStateOf(assetID string) (model.ImageState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.images[assetID]
	return st, ok
}

// ImageStateOf - 2D 상태 조회
func (m *Manager) ImageStateOf(assetID string) (model.ImageState, bool) {
	return m.imageStateOf(assetID)
}

// ImageStates - 2D 상태 스냅샷
func (m *Manager) ImageStates() map[string]model.ImageState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.images
}

// setImageState - copy-on-write 2D 상태 교체
func (m *Manager) setImageState(assetID string, st model.ImageState) {
	m.mu.Lock()
	next := make(map[string]model.ImageState, len(m.images)+1)
	for k, v := range m.images {
		next[k] = v
	}
	next[assetID] = st
	m.images = next
	m.mu.Unlock()
}

// GenerateImage - 2D 이미지 생성 (동기, 버전 추가)
// 방향 변형 에셋이면 전파된 레퍼런스를 같이 보냄
func (m *Manager) GenerateImage(ctx context.Context, assetID string) error {
	asset, ok := m.AssetOf(assetID)
	if !ok {
		return fmt.Errorf("asset not found: %s", assetID)
	}
	if m.imager == nil {
		return fmt.Errorf("image generation is not configured")
	}

	st, _ := m.imageStateOf(assetID)
	st.Status = model.ImageStatusGenerating
	st.Error = ""
	m.setImageState(assetID, st)
	m.publish(ProgressEvent{Type: "status_update", AssetID: assetID, Status: model.ImageStatusGenerating})

	req := &imagen.GenerateRequest{
		Description: asset.Description,
		Category:    asset.Category,
	}
	if asset.Direction != nil {
		req.Direction = asset.Direction.Direction
		req.ReferenceImageBase64 = asset.Direction.ReferenceImageBase64
		req.ReferenceDirection = asset.Direction.ReferenceDirection
	}

	result, err := m.imager.Generate(ctx, req)
	if err != nil {
		st, _ = m.imageStateOf(assetID)
		st.Status = model.ImageStatusRejected
		st.Error = fmt.Sprintf("Image generation failed: %v", err)
		m.setImageState(assetID, st)
		m.publish(ProgressEvent{Type: "status_update", AssetID: assetID, Status: st.Status, Error: st.Error})
		log.Printf("❌ [Versions] Image generation failed for %s: %v", assetID, err)
		return nil
	}

	version := model.Version{
		VersionID:   uuid.New().String(),
		ImageBase64: result.ImageBase64,
		Prompt:      result.Prompt,
		ModelID:     result.ModelID,
		Seed:        result.Seed,
		Cost:        result.Cost,
		DurationMS:  result.DurationMS,
		CreatedAt:   time.Now(),
	}
	m.AddVersion(assetID, version)

	log.Printf("🖼️ [Versions] Asset %s: new version generated (v%d)",
		assetID, m.mustImageState(assetID).Result.VersionNumber)
	return nil
}

// AddVersion - 버전 추가, 새 버전이 현재 버전이 됨
// 버전 번호는 기존 최대값 + 1 (삭제돼도 번호는 재사용하지 않음)
func (m *Manager) AddVersion(assetID string, v model.Version) {
	st, _ := m.imageStateOf(assetID)

	maxNumber := 0
	for _, existing := range st.Versions {
		if existing.VersionNumber > maxNumber {
			maxNumber = existing.VersionNumber
		}
	}
	v.VersionNumber = maxNumber + 1

	versions := make([]model.Version, 0, len(st.Versions)+1)
	versions = append(versions, st.Versions...)
	versions = append(versions, v)

	st.Versions = versions
	st.CurrentVersionIndex = len(versions) - 1
	st.Status = model.ImageStatusAwaitingApproval
	st.Error = ""
	recomputeResult(&st)

	m.setImageState(assetID, st)
	m.publish(ProgressEvent{Type: "status_update", AssetID: assetID, Status: st.Status})
}

// SetActiveVersion - 현재 버전 포인터 이동 (범위 밖이면 에러)
func (m *Manager) SetActiveVersion(assetID string, index int) error {
	st, ok := m.imageStateOf(assetID)
	if !ok {
		return fmt.Errorf("asset has no versions: %s", assetID)
	}
	if index < 0 || index >= len(st.Versions) {
		return fmt.Errorf("version index %d out of range (0-%d)", index, len(st.Versions)-1)
	}

	st.CurrentVersionIndex = index
	recomputeResult(&st)
	m.setImageState(assetID, st)

	log.Printf("🔀 [Versions] Asset %s: active version → v%d", assetID, st.Result.VersionNumber)
	return nil
}

// RejectVersion - 버전 한 건 제거 (versionID 비면 현재 버전)
// 마지막 버전을 지우면 rejected 상태로 (전체가 거부된 것)
func (m *Manager) RejectVersion(ctx context.Context, assetID, versionID string) error {
	st, ok := m.imageStateOf(assetID)
	if !ok {
		return fmt.Errorf("asset has no versions: %s", assetID)
	}
	if len(st.Versions) == 0 {
		return fmt.Errorf("asset %s has no versions to reject", assetID)
	}

	target := st.CurrentVersionIndex
	if versionID != "" {
		target = -1
		for i, v := range st.Versions {
			if v.VersionID == versionID {
				target = i
				break
			}
		}
		if target < 0 {
			return fmt.Errorf("version not found: %s", versionID)
		}
	}

	versions := make([]model.Version, 0, len(st.Versions)-1)
	versions = append(versions, st.Versions[:target]...)
	versions = append(versions, st.Versions[target+1:]...)
	st.Versions = versions

	if len(versions) == 0 {
		st.CurrentVersionIndex = 0
		st.Status = model.ImageStatusRejected
		st.Result = nil
	} else {
		// 지운 버전보다 뒤를 가리키고 있었으면 한 칸 당김
		if st.CurrentVersionIndex >= target && st.CurrentVersionIndex > 0 {
			st.CurrentVersionIndex--
		}
		if st.CurrentVersionIndex >= len(versions) {
			st.CurrentVersionIndex = len(versions) - 1
		}
		st.Status = model.ImageStatusAwaitingApproval
		recomputeResult(&st)
	}

	m.setImageState(assetID, st)
	m.publish(ProgressEvent{Type: "status_update", AssetID: assetID, Status: st.Status})

	log.Printf("🗑️ [Versions] Asset %s: version rejected, %d remaining", assetID, len(versions))
	return nil
}

// approveImage - 현재 버전 승인 + 영속화 + 앵커면 레퍼런스 전파
func (m *Manager) approveImage(ctx context.Context, assetID string) error {
	st, ok := m.imageStateOf(assetID)
	if !ok || st.Result == nil {
		return fmt.Errorf("asset %s has no version to approve", assetID)
	}

	st.Status = model.ImageStatusApproved
	st.Error = ""
	m.setImageState(assetID, st)
	m.publish(ProgressEvent{Type: "status_update", AssetID: assetID, Status: model.ImageStatusApproved})

	// 영속화 실패는 승인을 되돌리지 않음 (로컬 승인 유지)
	if m.artifacts != nil {
		if _, err := m.artifacts.PersistApprovedVersion(ctx, m.projectID, assetID, *st.Result); err != nil {
			log.Printf("⚠️ [Versions] Version approved locally but not synced: %v", err)
		}
	}

	m.maybePropagate(assetID, *st.Result)

	log.Printf("👍 [Versions] Asset %s: version v%d approved", assetID, st.Result.VersionNumber)
	return nil
}

// mustImageState - 방금 쓴 상태 재조회 (내부 로그용)
func (m *Manager) mustImageState(assetID string) model.ImageState {
	st, _ := m.imageStateOf(assetID)
	return st
}

// recomputeResult - Result 프로젝션 재계산 (versions[currentVersionIndex])
func recomputeResult(st *model.ImageState) {
	if len(st.Versions) == 0 {
		st.Result = nil
		return
	}
	v := st.Versions[st.CurrentVersionIndex]
	st.Result = &v
}
