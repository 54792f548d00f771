package utils

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/solarclean/backoffice/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

func GetTypeName[T any]() string {
	var v T
	return reflect.TypeOf(v).Name()
}

func cacheKey[T any](id any) string {
	return GetTypeName[T]() + ":" + fmt.Sprint(id)
}

// StoreRedis caches obj under Type:id.
func StoreRedis[T any](obj *T, id any) error {
	return config.SetRedisObject(cacheKey[T](id), obj, GetCacheLifespan())
}

// RetrieveRedis returns nil when the key is absent or Redis is not configured.
func RetrieveRedis[T any](id any) (*T, error) {
	var result T
	exists, err := config.GetRedisObject(cacheKey[T](id), &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return &result, nil
}

func RemoveRedisItem[T any](id any) error {
	return config.RemoveRedisKey(cacheKey[T](id))
}
