package media

import (
	"errors"

	"github.com/wolfman30/healthcare-booking/internal/apperr"
)

var errStorageUnavailable = apperr.Upload(errors.New("media: object storage is not configured"))

func isStorageFailure(err error) bool {
	return errors.Is(err, apperr.ErrUpload)
}
