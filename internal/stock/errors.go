package stock

import "errors"

var (
	ErrExpiryBeforeManufacture = errors.New("expiry date must be after manufacture date")
	ErrDuplicateBatchNo        = errors.New("batch number already exists for this product")
)
