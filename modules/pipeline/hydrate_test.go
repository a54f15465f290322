package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asset-forge-server/modules/common/model"
)

func planOf(ids ...string) map[string]model.Asset {
	assets := make(map[string]model.Asset, len(ids))
	for _, id := range ids {
		assets[id] = charAsset(id)
	}
	return assets
}

func TestHydrate_VerbatimStatus(t *testing.T) {
	result := Hydrate(planOf("a1"), []model.AssetRecord{
		{AssetID: "a1", Status: model.StatusGenerated, DraftModelURL: "https://cdn.example.com/a.glb"},
	})

	st := result.States["a1"]
	assert.Equal(t, model.StatusGenerated, st.Status)
	assert.Equal(t, 100, st.Progress)
	assert.Empty(t, result.Resume)
}

func TestHydrate_ReadyWithArtifactBecomesGenerated(t *testing.T) {
	result := Hydrate(planOf("a1"), []model.AssetRecord{
		{AssetID: "a1", Status: model.StatusReady, DraftModelURL: "x"},
	})

	st := result.States["a1"]
	assert.Equal(t, model.StatusGenerated, st.Status)
	assert.Equal(t, 100, st.Progress)
}

func TestHydrate_RigArtifactPromotesToRigged(t *testing.T) {
	// 상태는 generated 이전인데 rig 결과물이 있음
	result := Hydrate(planOf("a1"), []model.AssetRecord{
		{AssetID: "a1", Status: model.StatusReady, DraftModelURL: "x", RiggedModelURL: "y"},
	})

	st := result.States["a1"]
	assert.Equal(t, model.StatusRigged, st.Status)
	assert.Equal(t, 100, st.Progress)
}

func TestHydrate_RigArtifactDoesNotDemote(t *testing.T) {
	// 이미 animating이면 rig 결과물이 있어도 끌어내리지 않음
	result := Hydrate(planOf("a1"), []model.AssetRecord{
		{
			AssetID: "a1", Status: model.StatusAnimating,
			RiggedModelURL:   "y",
			AnimationTaskIDs: map[string]string{"idle": "anim-1"},
		},
	})

	st := result.States["a1"]
	assert.Equal(t, model.StatusAnimating, st.Status)
}

func TestHydrate_LegacyStatusesNormalized(t *testing.T) {
	for _, legacy := range []string{"queued", "pending", "unknown", ""} {
		result := Hydrate(planOf("a1"), []model.AssetRecord{
			{AssetID: "a1", Status: legacy},
		})
		assert.Equal(t, model.StatusReady, result.States["a1"].Status, "status %q", legacy)
	}
}

func TestHydrate_ResumesInFlightStages(t *testing.T) {
	result := Hydrate(planOf("a1", "a2", "a3"), []model.AssetRecord{
		{AssetID: "a1", Status: model.StatusGenerating, DraftTaskID: "draft-1"},
		{AssetID: "a2", Status: model.StatusRigging, RigTaskID: "rig-1", DraftModelURL: "x", DraftTaskID: "draft-2"},
		{
			AssetID: "a3", Status: model.StatusAnimating,
			RigTaskID: "rig-2", RiggedModelURL: "y",
			AnimationTaskIDs: map[string]string{"idle": "anim-1", "walk": "anim-2"},
			AnimationURLs:    map[string]string{"idle": "https://cdn.example.com/i.glb"},
		},
	})

	require.Len(t, result.Resume, 3)

	byTask := make(map[string]ResumeTask)
	for _, r := range result.Resume {
		byTask[r.TaskID] = r
	}

	assert.Equal(t, model.StageDraft, byTask["draft-1"].Stage.Kind)
	assert.Equal(t, model.StageRig, byTask["rig-1"].Stage.Kind)
	// walk만 미완 - idle은 이미 URL이 있으니 재개 안 함
	walk, ok := byTask["anim-2"]
	require.True(t, ok)
	assert.Equal(t, model.StageAnimation, walk.Stage.Kind)
	assert.Equal(t, "walk", walk.Stage.Preset)
	_, idleResumed := byTask["anim-1"]
	assert.False(t, idleResumed)
}

func TestHydrate_GeneratingWithoutTaskIDFallsBack(t *testing.T) {
	result := Hydrate(planOf("a1"), []model.AssetRecord{
		{AssetID: "a1", Status: model.StatusGenerating},
	})

	st := result.States["a1"]
	assert.Equal(t, model.StatusReady, st.Status)
	assert.Empty(t, result.Resume)
}

func TestHydrate_RiggedWithoutArtifactRePolls(t *testing.T) {
	result := Hydrate(planOf("a1"), []model.AssetRecord{
		{AssetID: "a1", Status: model.StatusRigged, RigTaskID: "rig-1", DraftModelURL: "x"},
	})

	st := result.States["a1"]
	// URL 없이 rigged로 남을 수 없음 - 재조회를 위해 rigging으로 되돌림
	assert.Equal(t, model.StatusRigging, st.Status)
	require.Len(t, result.Resume, 1)
	assert.Equal(t, "rig-1", result.Resume[0].TaskID)
	assert.Equal(t, model.StageRig, result.Resume[0].Stage.Kind)
}

func TestHydrate_CompleteWithMissingAnimationRePolls(t *testing.T) {
	result := Hydrate(planOf("a1"), []model.AssetRecord{
		{
			AssetID: "a1", Status: model.StatusComplete,
			RigTaskID: "rig-1", RiggedModelURL: "y",
			AnimationTaskIDs: map[string]string{"idle": "anim-1", "walk": "anim-2"},
			AnimationURLs:    map[string]string{"idle": "https://cdn.example.com/i.glb"},
		},
	})

	st := result.States["a1"]
	assert.Equal(t, model.StatusAnimating, st.Status)
	require.Len(t, result.Resume, 1)
	assert.Equal(t, "anim-2", result.Resume[0].TaskID)
}

func TestHydrate_CompleteWithMissingDraftArtifactRePolls(t *testing.T) {
	// rig도 애니메이션도 없이 complete로 기록됐는데 결과물 URL이 유실된 경우
	result := Hydrate(planOf("a1"), []model.AssetRecord{
		{AssetID: "a1", Status: model.StatusComplete, DraftTaskID: "draft-1"},
	})

	st := result.States["a1"]
	assert.Equal(t, model.StatusGenerating, st.Status)
	assert.Equal(t, 0, st.Progress)
	require.Len(t, result.Resume, 1)
	assert.Equal(t, "draft-1", result.Resume[0].TaskID)
	assert.Equal(t, model.StageDraft, result.Resume[0].Stage.Kind)
}

func TestHydrate_DropsRecordsOutsidePlan(t *testing.T) {
	result := Hydrate(planOf("a1"), []model.AssetRecord{
		{AssetID: "a1", Status: model.StatusReady},
		{AssetID: "ghost", Status: model.StatusComplete},
	})

	assert.Len(t, result.States, 1)
	_, ok := result.States["ghost"]
	assert.False(t, ok)
}

func TestHydrate_EmptyApprovalDefaultsPending(t *testing.T) {
	result := Hydrate(planOf("a1"), []model.AssetRecord{
		{AssetID: "a1", Status: model.StatusReady},
	})

	assert.Equal(t, model.ApprovalPending, result.States["a1"].ApprovalStatus)
}

func TestHydrateVersions_RestoresApprovedImageStates(t *testing.T) {
	d := newTestManager(t, spriteAsset("s1"), spriteAsset("s2"))

	fetch := func(ctx context.Context, projectID string) ([]model.VersionRecord, error) {
		return []model.VersionRecord{
			{VersionID: "v-2", AssetID: "s1", VersionNumber: 2, FilePath: "p/v2.webp"},
			{VersionID: "v-1", AssetID: "s1", VersionNumber: 1, FilePath: "p/v1.webp"},
			{VersionID: "v-x", AssetID: "ghost", VersionNumber: 1, FilePath: "p/vx.webp"},
		}, nil
	}
	download := func(ctx context.Context, filePath string) ([]byte, error) {
		return []byte("img:" + filePath), nil
	}

	require.NoError(t, d.manager.HydrateVersions(context.Background(), fetch, download))

	st, ok := d.manager.ImageStateOf("s1")
	require.True(t, ok)
	assert.Equal(t, model.ImageStatusApproved, st.Status)
	require.Len(t, st.Versions, 2)
	// 번호순 정렬, 최신이 현재
	assert.Equal(t, "v-1", st.Versions[0].VersionID)
	assert.Equal(t, "v-2", st.Versions[1].VersionID)
	assert.Equal(t, 1, st.CurrentVersionIndex)
	assert.Equal(t, "v-2", st.Result.VersionID)

	// plan에 없는 에셋은 버림, 레코드가 없는 에셋은 상태도 없음
	_, ok = d.manager.ImageStateOf("s2")
	assert.False(t, ok)
}

func TestHydrateVersions_SkipsUndownloadableVersions(t *testing.T) {
	d := newTestManager(t, spriteAsset("s1"))

	fetch := func(ctx context.Context, projectID string) ([]model.VersionRecord, error) {
		return []model.VersionRecord{
			{VersionID: "v-1", AssetID: "s1", VersionNumber: 1, FilePath: "p/gone.webp"},
			{VersionID: "v-2", AssetID: "s1", VersionNumber: 2, FilePath: "p/v2.webp"},
		}, nil
	}
	download := func(ctx context.Context, filePath string) ([]byte, error) {
		if filePath == "p/gone.webp" {
			return nil, assert.AnError
		}
		return []byte("img"), nil
	}

	require.NoError(t, d.manager.HydrateVersions(context.Background(), fetch, download))

	st, ok := d.manager.ImageStateOf("s1")
	require.True(t, ok)
	require.Len(t, st.Versions, 1)
	assert.Equal(t, "v-2", st.Versions[0].VersionID)
}
