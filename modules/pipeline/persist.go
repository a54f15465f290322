package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	"asset-forge-server/modules/common/database"
	"asset-forge-server/modules/common/model"
	"asset-forge-server/modules/common/storage"
)

// VersionArtifactStore - 승인된 버전을 Storage 업로드 + 버전 레코드로 영속화
type VersionArtifactStore struct {
	storage  *storage.Client
	database *database.Client
}

// NewVersionArtifactStore - VersionArtifactStore 생성
func NewVersionArtifactStore(st *storage.Client, db *database.Client) *VersionArtifactStore {
	return &VersionArtifactStore{
		storage:  st,
		database: db,
	}
}

// PersistApprovedVersion - 이미지 업로드 후 버전 레코드 삽입, 파일 경로 반환
// 레코드 삽입이 실패해도 업로드된 파일은 지우지 않음 (경로는 재삽입으로 복구 가능)
func (s *VersionArtifactStore) PersistApprovedVersion(ctx context.Context, projectID, assetID string, v model.Version) (string, error) {
	imageData, err := base64.StdEncoding.DecodeString(v.ImageBase64)
	if err != nil {
		return "", fmt.Errorf("failed to decode version image: %w", err)
	}

	filePath, size, err := s.storage.UploadVersionImage(ctx, imageData, projectID, assetID, v.VersionNumber)
	if err != nil {
		return "", fmt.Errorf("failed to upload version image: %w", err)
	}

	if err := s.database.InsertVersionRecord(ctx, projectID, assetID, v, filePath); err != nil {
		log.Printf("⚠️ [Persist] Version uploaded (%d bytes) but record insert failed: %v", size, err)
		return filePath, fmt.Errorf("failed to record version: %w", err)
	}

	return filePath, nil
}
