package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asset-forge-server/modules/common/model"
)

func spriteAsset(id string) model.Asset {
	return model.Asset{
		AssetID:     id,
		AssetName:   "Oak Tree",
		Category:    "prop",
		Description: "a gnarled oak tree sprite",
	}
}

func makeVersion(id string) model.Version {
	return model.Version{
		VersionID:   id,
		ImageBase64: "aW1hZ2U=",
		Prompt:      "a gnarled oak tree sprite",
		CreatedAt:   time.Now(),
	}
}

func TestGenerateImage_AddsVersionAwaitingApproval(t *testing.T) {
	d := newTestManager(t, spriteAsset("s1"))

	require.NoError(t, d.manager.GenerateImage(context.Background(), "s1"))

	st, ok := d.manager.ImageStateOf("s1")
	require.True(t, ok)
	assert.Equal(t, model.ImageStatusAwaitingApproval, st.Status)
	require.Len(t, st.Versions, 1)
	assert.Equal(t, 1, st.Versions[0].VersionNumber)
	require.NotNil(t, st.Result)
	assert.Equal(t, st.Versions[0].VersionID, st.Result.VersionID)
}

func TestGenerateImage_FailureMarksRejected(t *testing.T) {
	d := newTestManager(t, spriteAsset("s1"))
	d.imager.fail = fmt.Errorf("model overloaded")

	require.NoError(t, d.manager.GenerateImage(context.Background(), "s1"))

	st, ok := d.manager.ImageStateOf("s1")
	require.True(t, ok)
	assert.Equal(t, model.ImageStatusRejected, st.Status)
	assert.Contains(t, st.Error, "model overloaded")
	assert.Empty(t, st.Versions)
}

func TestGenerateImage_PassesReferenceForDirectionVariant(t *testing.T) {
	asset := spriteAsset("s1")
	asset.Direction = &model.DirectionState{
		ParentAssetID:        "parent",
		Direction:            "left",
		ReferenceImageBase64: "cmVm",
		ReferenceDirection:   model.DirectionFront,
	}
	d := newTestManager(t, asset)

	require.NoError(t, d.manager.GenerateImage(context.Background(), "s1"))

	require.Len(t, d.imager.calls, 1)
	assert.Equal(t, "left", d.imager.calls[0].Direction)
	assert.Equal(t, "cmVm", d.imager.calls[0].ReferenceImageBase64)
	assert.Equal(t, model.DirectionFront, d.imager.calls[0].ReferenceDirection)
}

func TestAddVersion_NumbersAreMonotonic(t *testing.T) {
	d := newTestManager(t, spriteAsset("s1"))

	d.manager.AddVersion("s1", makeVersion("v-a"))
	d.manager.AddVersion("s1", makeVersion("v-b"))
	d.manager.AddVersion("s1", makeVersion("v-c"))

	st, _ := d.manager.ImageStateOf("s1")
	assert.Equal(t, []int{1, 2, 3}, []int{
		st.Versions[0].VersionNumber,
		st.Versions[1].VersionNumber,
		st.Versions[2].VersionNumber,
	})
	// 새 버전이 현재 버전
	assert.Equal(t, 2, st.CurrentVersionIndex)

	// 중간 버전을 지워도 번호는 재사용하지 않음
	require.NoError(t, d.manager.RejectVersion(context.Background(), "s1", "v-b"))
	d.manager.AddVersion("s1", makeVersion("v-d"))

	st, _ = d.manager.ImageStateOf("s1")
	assert.Equal(t, 4, st.Versions[len(st.Versions)-1].VersionNumber)
}

func TestSetActiveVersion_Bounds(t *testing.T) {
	d := newTestManager(t, spriteAsset("s1"))
	d.manager.AddVersion("s1", makeVersion("v-a"))
	d.manager.AddVersion("s1", makeVersion("v-b"))

	require.NoError(t, d.manager.SetActiveVersion("s1", 0))
	st, _ := d.manager.ImageStateOf("s1")
	assert.Equal(t, "v-a", st.Result.VersionID)

	assert.Error(t, d.manager.SetActiveVersion("s1", -1))
	assert.Error(t, d.manager.SetActiveVersion("s1", 2))
	assert.Error(t, d.manager.SetActiveVersion("missing", 0))
}

func TestRejectVersion_CurrentByDefault(t *testing.T) {
	d := newTestManager(t, spriteAsset("s1"))
	d.manager.AddVersion("s1", makeVersion("v-a"))
	d.manager.AddVersion("s1", makeVersion("v-b"))

	// versionID 없이 - 현재 버전(v-b) 제거
	require.NoError(t, d.manager.RejectVersion(context.Background(), "s1", ""))

	st, _ := d.manager.ImageStateOf("s1")
	require.Len(t, st.Versions, 1)
	assert.Equal(t, "v-a", st.Versions[0].VersionID)
	assert.Equal(t, "v-a", st.Result.VersionID)
	assert.Equal(t, model.ImageStatusAwaitingApproval, st.Status)
}

func TestRejectVersion_LastVersionLeavesRejected(t *testing.T) {
	d := newTestManager(t, spriteAsset("s1"))
	d.manager.AddVersion("s1", makeVersion("v-a"))

	require.NoError(t, d.manager.RejectVersion(context.Background(), "s1", "v-a"))

	st, _ := d.manager.ImageStateOf("s1")
	assert.Empty(t, st.Versions)
	assert.Nil(t, st.Result)
	assert.Equal(t, model.ImageStatusRejected, st.Status)
	assert.Equal(t, 0, st.CurrentVersionIndex)
}

func TestRejectVersion_UnknownID(t *testing.T) {
	d := newTestManager(t, spriteAsset("s1"))
	d.manager.AddVersion("s1", makeVersion("v-a"))

	assert.Error(t, d.manager.RejectVersion(context.Background(), "s1", "v-zzz"))
}

func TestApprove_ImageAssetPersistsVersion(t *testing.T) {
	d := newTestManager(t, spriteAsset("s1"))
	d.manager.AddVersion("s1", makeVersion("v-a"))

	require.NoError(t, d.manager.Approve(context.Background(), "s1"))

	st, _ := d.manager.ImageStateOf("s1")
	assert.Equal(t, model.ImageStatusApproved, st.Status)
	require.Len(t, d.artifacts.persisted, 1)
	assert.Equal(t, "v-a", d.artifacts.persisted[0].VersionID)
}

func TestApprove_SyncFailureKeepsLocalApproval(t *testing.T) {
	d := newTestManager(t, spriteAsset("s1"))
	d.manager.AddVersion("s1", makeVersion("v-a"))
	d.artifacts.fail = fmt.Errorf("storage down")

	require.NoError(t, d.manager.Approve(context.Background(), "s1"))

	st, _ := d.manager.ImageStateOf("s1")
	assert.Equal(t, model.ImageStatusApproved, st.Status)
}
