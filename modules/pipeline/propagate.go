package pipeline

import (
	"log"

	"asset-forge-server/modules/common/model"
)

// PropagateReference - 앵커(front) 승인 이미지를 형제 방향 에셋에 레퍼런스로 전파
// moveable 에셋만 방향 변형을 가짐 - 비 moveable은 앵커가 될 수 없음
// 순수 함수: 갱신된 형제 에셋 사본 목록 반환, 입력은 변경하지 않음
func PropagateReference(approved model.Asset, imageBase64 string, assets map[string]model.Asset) []model.Asset {
	if !approved.Moveable {
		return nil
	}
	if approved.Direction == nil || approved.Direction.Direction != model.DirectionFront {
		return nil
	}

	var updated []model.Asset
	for _, sibling := range assets {
		if sibling.AssetID == approved.AssetID {
			continue
		}
		if sibling.Direction == nil {
			continue
		}
		if sibling.Direction.ParentAssetID != approved.Direction.ParentAssetID {
			continue
		}

		// Direction 포인터까지 복사해서 원본 오염 방지
		dir := *sibling.Direction
		dir.ReferenceImageBase64 = imageBase64
		dir.ReferenceDirection = model.DirectionFront

		copied := sibling
		copied.Direction = &dir
		updated = append(updated, copied)
	}

	return updated
}

// maybePropagate - 승인된 버전이 앵커 방향이면 형제들에게 레퍼런스 설치
func (m *Manager) maybePropagate(assetID string, v model.Version) {
	asset, ok := m.AssetOf(assetID)
	if !ok || asset.Direction == nil {
		return
	}

	siblings := PropagateReference(asset, v.ImageBase64, m.Assets())
	if len(siblings) == 0 {
		return
	}

	m.mu.Lock()
	next := make(map[string]model.Asset, len(m.assets))
	for k, a := range m.assets {
		next[k] = a
	}
	for _, s := range siblings {
		next[s.AssetID] = s
	}
	m.assets = next
	m.mu.Unlock()

	log.Printf("📎 [Propagate] Front reference installed on %d sibling directions of %s",
		len(siblings), asset.Direction.ParentAssetID)
}
