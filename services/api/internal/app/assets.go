package app

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"portfoliohub/internal/util"
	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/events"
	"portfoliohub/pkg/storage"
)

var assetTypeByExt = map[string]domain.AssetType{
	".jpg": domain.AssetImage, ".jpeg": domain.AssetImage, ".png": domain.AssetImage,
	".gif": domain.AssetImage, ".webp": domain.AssetImage,
	".dwg": domain.AssetDrawing, ".dxf": domain.AssetDrawing, ".svg": domain.AssetDrawing,
	".pdf": domain.AssetDocument, ".doc": domain.AssetDocument, ".docx": domain.AssetDocument,
	".obj": domain.AssetModel3D, ".fbx": domain.AssetModel3D, ".glb": domain.AssetModel3D,
	".gltf": domain.AssetModel3D, ".stl": domain.AssetModel3D,
	".mp4": domain.AssetVideo, ".mov": domain.AssetVideo, ".webm": domain.AssetVideo,
}

// InferAssetType guesses the asset type from a file name.
func InferAssetType(fileName string) (domain.AssetType, bool) {
	t, ok := assetTypeByExt[strings.ToLower(path.Ext(fileName))]
	return t, ok
}

type AssetUpload struct {
	Type        domain.AssetType
	Title       string
	Description string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
	SortOrder   int
	IsPrimary   bool
}

type AssetPatch struct {
	Title       *string
	Description *string
	SortOrder   *int
	IsPrimary   *bool
}

// UploadAsset stores the file, records a PENDING asset and queues it for
// processing.
func (a *App) UploadAsset(ctx context.Context, actor domain.User, projectID string, in AssetUpload) (domain.ProjectAsset, error) {
	project, err := a.editableProject(actor, projectID)
	if err != nil {
		return domain.ProjectAsset{}, err
	}
	if a.objects == nil {
		return domain.ProjectAsset{}, ErrStorageUnavailable
	}
	fileName := path.Base(strings.ReplaceAll(strings.TrimSpace(in.FileName), `\`, "/"))
	if fileName == "" || fileName == "." || fileName == "/" {
		return domain.ProjectAsset{}, invalid("file", "file name is required")
	}
	if in.Size <= 0 {
		return domain.ProjectAsset{}, invalid("file", "file is empty")
	}
	if in.Type == "" {
		t, ok := InferAssetType(fileName)
		if !ok {
			return domain.ProjectAsset{}, ErrUnsupportedFile
		}
		in.Type = t
	}
	if !in.Type.Valid() {
		return domain.ProjectAsset{}, invalid("type", "unknown asset type %q", in.Type)
	}
	title, err := optionalText("title", in.Title, maxShortTextField)
	if err != nil {
		return domain.ProjectAsset{}, err
	}
	description, err := optionalText("description", util.PlainText(in.Description), 2000)
	if err != nil {
		return domain.ProjectAsset{}, err
	}
	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	now := a.now()
	asset := domain.ProjectAsset{
		ID:               util.NewID(),
		ProjectID:        project.ID,
		UploaderID:       actor.ID,
		Type:             in.Type,
		Title:            title,
		Description:      description,
		FileName:         fileName,
		MimeType:         contentType,
		FileSize:         in.Size,
		SortOrder:        in.SortOrder,
		IsPrimary:        in.IsPrimary,
		ProcessingStatus: domain.ProcessingPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	asset.StorageKey = storage.AssetKey(project.ID, asset.ID, fileName)
	if err := a.objects.Put(ctx, asset.StorageKey, in.Body, in.Size, contentType); err != nil {
		return domain.ProjectAsset{}, fmt.Errorf("store object: %w", err)
	}
	if err := a.store.CreateAsset(asset); err != nil {
		a.removeObjects(ctx, asset)
		return domain.ProjectAsset{}, fmt.Errorf("create asset: %w", mapStoreErr(err))
	}
	if asset.IsPrimary {
		if err := a.clearOtherPrimary(asset); err != nil {
			return domain.ProjectAsset{}, err
		}
	}

	logger := util.LoggerFromContext(ctx)
	if a.jobs == nil {
		logger.Warn("asset_queue_unavailable", "asset_id", asset.ID)
	} else if job, err := a.jobs.Enqueue(ctx, asset.ID); err != nil {
		logger.Error("asset_enqueue_failed", "asset_id", asset.ID, "err", err)
	} else {
		logger.Info("asset_enqueued", "asset_id", asset.ID, "job_id", job.ID)
	}
	a.emit(ctx, events.AssetUploaded, map[string]any{
		"assetId":   asset.ID,
		"projectId": project.ID,
		"type":      asset.Type,
		"fileSize":  asset.FileSize,
	})
	return asset, nil
}

func (a *App) ListAssets(actor domain.User, projectID string) ([]domain.ProjectAsset, error) {
	if err := require(actor, domain.PermAuthorProjects); err != nil {
		return nil, err
	}
	if _, err := a.projectByID(projectID); err != nil {
		return nil, err
	}
	assets, err := a.store.ListAssetsByProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return assets, nil
}

// UpdateAsset changes an asset's descriptive fields.
func (a *App) UpdateAsset(actor domain.User, assetID string, patch AssetPatch) (domain.ProjectAsset, error) {
	asset, err := a.editableAsset(actor, assetID)
	if err != nil {
		return domain.ProjectAsset{}, err
	}
	if patch.Title != nil {
		if asset.Title, err = optionalText("title", *patch.Title, maxShortTextField); err != nil {
			return domain.ProjectAsset{}, err
		}
	}
	if patch.Description != nil {
		if asset.Description, err = optionalText("description", util.PlainText(*patch.Description), 2000); err != nil {
			return domain.ProjectAsset{}, err
		}
	}
	if patch.SortOrder != nil {
		asset.SortOrder = *patch.SortOrder
	}
	if patch.IsPrimary != nil {
		asset.IsPrimary = *patch.IsPrimary
	}
	asset.UpdatedAt = a.now()
	if err := a.store.UpdateAssetDetails(asset); err != nil {
		return domain.ProjectAsset{}, fmt.Errorf("update asset: %w", mapStoreErr(err))
	}
	if asset.IsPrimary {
		if err := a.clearOtherPrimary(asset); err != nil {
			return domain.ProjectAsset{}, err
		}
	}
	return asset, nil
}

// DeleteAsset removes the record and its stored objects.
func (a *App) DeleteAsset(ctx context.Context, actor domain.User, assetID string) error {
	asset, err := a.editableAsset(actor, assetID)
	if err != nil {
		return err
	}
	if err := a.store.DeleteAsset(asset.ID); err != nil {
		return fmt.Errorf("delete asset: %w", mapStoreErr(err))
	}
	a.removeObjects(ctx, asset)
	return nil
}

// AssetDownloadURL returns a short-lived presigned URL for the original file.
func (a *App) AssetDownloadURL(ctx context.Context, actor domain.User, assetID string) (string, error) {
	if err := require(actor, domain.PermAuthorProjects); err != nil {
		return "", err
	}
	if a.objects == nil {
		return "", ErrStorageUnavailable
	}
	asset, ok, err := a.store.GetAsset(assetID)
	if err != nil {
		return "", fmt.Errorf("fetch asset: %w", err)
	}
	if !ok {
		return "", ErrNotFound
	}
	url, err := a.objects.PresignGet(ctx, asset.StorageKey, a.downloadURLTTL)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return url, nil
}

func (a *App) editableAsset(actor domain.User, assetID string) (domain.ProjectAsset, error) {
	if err := require(actor, domain.PermAuthorProjects); err != nil {
		return domain.ProjectAsset{}, err
	}
	asset, ok, err := a.store.GetAsset(assetID)
	if err != nil {
		return domain.ProjectAsset{}, fmt.Errorf("fetch asset: %w", err)
	}
	if !ok {
		return domain.ProjectAsset{}, ErrNotFound
	}
	if _, err := a.editableProject(actor, asset.ProjectID); err != nil {
		return domain.ProjectAsset{}, err
	}
	return asset, nil
}

// clearOtherPrimary keeps at most one primary asset per project.
func (a *App) clearOtherPrimary(primary domain.ProjectAsset) error {
	if err := a.store.ClearOtherPrimaryAssets(primary.ProjectID, primary.ID); err != nil {
		return fmt.Errorf("clear primary: %w", err)
	}
	return nil
}

func (a *App) removeObjects(ctx context.Context, asset domain.ProjectAsset) {
	if a.objects == nil {
		return
	}
	for _, key := range []string{asset.StorageKey, asset.ThumbnailKey} {
		if key == "" {
			continue
		}
		if err := a.objects.Delete(ctx, key); err != nil {
			util.LoggerFromContext(ctx).Warn("object_delete_failed", "key", key, "err", err)
		}
	}
}
