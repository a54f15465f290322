package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asset-forge-server/modules/common/model"
)

func directionAsset(id, parent, direction string) model.Asset {
	a := spriteAsset(id)
	a.Moveable = true
	a.Direction = &model.DirectionState{
		ParentAssetID: parent,
		Direction:     direction,
	}
	return a
}

func TestPropagateReference_FrontAnchorUpdatesSiblings(t *testing.T) {
	assets := map[string]model.Asset{
		"hero-front": directionAsset("hero-front", "hero", "front"),
		"hero-left":  directionAsset("hero-left", "hero", "left"),
		"hero-back":  directionAsset("hero-back", "hero", "back"),
		"tree":       spriteAsset("tree"),
		"orc-left":   directionAsset("orc-left", "orc", "left"),
	}

	updated := PropagateReference(assets["hero-front"], "aW1n", assets)

	require.Len(t, updated, 2)
	for _, s := range updated {
		assert.Contains(t, []string{"hero-left", "hero-back"}, s.AssetID)
		assert.Equal(t, "aW1n", s.Direction.ReferenceImageBase64)
		assert.Equal(t, model.DirectionFront, s.Direction.ReferenceDirection)
	}

	// 원본은 그대로 (순수 함수)
	assert.Empty(t, assets["hero-left"].Direction.ReferenceImageBase64)
}

func TestPropagateReference_NonFrontDoesNothing(t *testing.T) {
	assets := map[string]model.Asset{
		"hero-left":  directionAsset("hero-left", "hero", "left"),
		"hero-right": directionAsset("hero-right", "hero", "right"),
	}

	updated := PropagateReference(assets["hero-left"], "aW1n", assets)
	assert.Empty(t, updated)
}

func TestPropagateReference_NonMoveableAnchorDoesNothing(t *testing.T) {
	// front 방향이라도 moveable이 아니면 전파 대상이 아님
	anchor := directionAsset("statue-front", "statue", "front")
	anchor.Moveable = false
	assets := map[string]model.Asset{
		"statue-front": anchor,
		"statue-left":  directionAsset("statue-left", "statue", "left"),
	}

	updated := PropagateReference(assets["statue-front"], "aW1n", assets)
	assert.Empty(t, updated)
	assert.Empty(t, assets["statue-left"].Direction.ReferenceImageBase64)
}

func TestPropagateReference_PlainAssetDoesNothing(t *testing.T) {
	assets := map[string]model.Asset{
		"tree":      spriteAsset("tree"),
		"hero-left": directionAsset("hero-left", "hero", "left"),
	}

	updated := PropagateReference(assets["tree"], "aW1n", assets)
	assert.Empty(t, updated)
}

func TestApprove_AnchorPropagatesToSiblings(t *testing.T) {
	d := newTestManager(t,
		directionAsset("hero-front", "hero", "front"),
		directionAsset("hero-left", "hero", "left"),
		spriteAsset("tree"),
	)

	require.NoError(t, d.manager.GenerateImage(context.Background(), "hero-front"))
	require.NoError(t, d.manager.Approve(context.Background(), "hero-front"))

	// 형제가 승인된 front 이미지를 레퍼런스로 받음
	left, _ := d.manager.AssetOf("hero-left")
	require.NotNil(t, left.Direction)
	assert.Equal(t, "aW1hZ2U=", left.Direction.ReferenceImageBase64)
	assert.Equal(t, model.DirectionFront, left.Direction.ReferenceDirection)

	// 무관한 에셋은 그대로
	tree, _ := d.manager.AssetOf("tree")
	assert.Nil(t, tree.Direction)

	// 이후 형제 생성 요청에 레퍼런스가 실림
	require.NoError(t, d.manager.GenerateImage(context.Background(), "hero-left"))
	last := d.imager.calls[len(d.imager.calls)-1]
	assert.Equal(t, "aW1hZ2U=", last.ReferenceImageBase64)
}
