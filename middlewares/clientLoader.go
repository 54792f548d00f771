package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/solarclean/backoffice/models"
	"gorm.io/gorm"
)

type clientReader struct {
	db *gorm.DB
}

func (r *clientReader) getClients(ctx context.Context, ids []string) []*dataloader.Result[*models.Client] {
	var results []*models.Client
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return handleError[*models.Client](len(ids), err)
	}
	return generateLoaderResults(results, ids, func(c *models.Client) string { return c.ID })
}

func GetClients(ctx context.Context, ids []string) ([]*models.Client, []error) {
	loaders := For(ctx)
	return loaders.clientLoader.LoadMany(ctx, ids)()
}

// ClientNames maps each id to the client's company name; unknown ids are left out.
func ClientNames(ctx context.Context, ids []string) map[string]string {
	names := make(map[string]string, len(ids))
	clients, _ := GetClients(ctx, ids)
	for _, c := range clients {
		if c != nil {
			names[c.ID] = c.Company
		}
	}
	return names
}
