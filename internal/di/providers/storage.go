package providers

import (
	"github.com/samber/do/v2"

	"github.com/motorlot/motorlot-server/internal/config"
	"github.com/motorlot/motorlot-server/internal/logger"
	"github.com/motorlot/motorlot-server/internal/uploads"
)

// UploadStorageHandle wraps the upload storage for DI resolution.
type UploadStorageHandle struct {
	*uploads.Storage
}

// ProvideUploadStorage provides the on-disk attachment storage.
func ProvideUploadStorage(i do.Injector) (*UploadStorageHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	storage, err := uploads.NewStorage(cfg.UploadsPath())
	if err != nil {
		return nil, err
	}

	log.Info("Upload storage initialized", "path", cfg.UploadsPath())

	return &UploadStorageHandle{Storage: storage}, nil
}
