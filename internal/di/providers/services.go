package providers

import (
	"github.com/samber/do/v2"

	"github.com/motorlot/motorlot-server/internal/logger"
	"github.com/motorlot/motorlot-server/internal/service"
)

// ProvideCarService provides the car listing service.
func ProvideCarService(i do.Injector) (*service.CarService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	uploadHandle := do.MustInvoke[*UploadStorageHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewCarService(storeHandle.Store, uploadHandle.Storage, indexHandle.SearchIndex, log.Logger), nil
}
