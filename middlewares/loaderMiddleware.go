package middlewares

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/models"
	"gorm.io/gorm"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders batch the lookups made while rendering a listing.
type Loaders struct {
	clientLoader       *dataloader.Loader[string, *models.Client]
	siteLoader         *dataloader.Loader[int, *models.Site]
	stockArticleLoader *dataloader.Loader[int, *models.StockArticle]
}

func NewLoaders(conn *gorm.DB) *Loaders {
	clientReader := &clientReader{db: conn}
	siteReader := &siteReader{db: conn}
	stockArticleReader := &stockArticleReader{db: conn}

	return &Loaders{
		clientLoader:       dataloader.NewBatchedLoader(clientReader.getClients, dataloader.WithWait[string, *models.Client](time.Millisecond)),
		siteLoader:         dataloader.NewBatchedLoader(siteReader.getSites, dataloader.WithWait[int, *models.Site](time.Millisecond)),
		stockArticleLoader: dataloader.NewBatchedLoader(stockArticleReader.getArticles, dataloader.WithWait[int, *models.StockArticle](time.Millisecond)),
	}
}

func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(config.GetDB())
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// For returns the request's loaders, or fresh ones outside an HTTP request.
func For(ctx context.Context) *Loaders {
	if loaders, ok := ctx.Value(loadersKey).(*Loaders); ok {
		return loaders
	}
	return NewLoaders(config.GetDB())
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// generateLoaderResults orders rows by the requested keys; a missing key yields a nil entry.
func generateLoaderResults[K comparable, T any](results []*T, keys []K, keyOf func(*T) K) []*dataloader.Result[*T] {
	resultMap := make(map[K]*T, len(results))
	for _, result := range results {
		resultMap[keyOf(result)] = result
	}
	loaderResults := make([]*dataloader.Result[*T], 0, len(keys))
	for _, key := range keys {
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: resultMap[key]})
	}
	return loaderResults
}
