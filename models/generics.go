package models

import (
	"context"

	"github.com/solarclean/backoffice/utils"
)

// first find in redis, then in db, cache result
// (may return RecordNotFound error)
func GetResource[T any](ctx context.Context, id any, associations ...string) (*T, error) {
	result, err := utils.RetrieveRedis[T](id)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	result, err = utils.FetchModel[T](ctx, id, associations...)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedis[T](result, id); err != nil {
		return nil, err
	}
	return result, nil
}
