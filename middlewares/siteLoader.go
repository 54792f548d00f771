package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/utils"
	"gorm.io/gorm"
)

type siteReader struct {
	db *gorm.DB
}

func (r *siteReader) getSites(ctx context.Context, ids []int) []*dataloader.Result[*models.Site] {
	var results []*models.Site
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return handleError[*models.Site](len(ids), err)
	}
	return generateLoaderResults(results, ids, func(s *models.Site) int { return s.ID })
}

func GetSite(ctx context.Context, id int) (*models.Site, error) {
	site, err := For(ctx).siteLoader.Load(ctx, id)()
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, utils.ErrorRecordNotFound
	}
	return site, nil
}

type stockArticleReader struct {
	db *gorm.DB
}

func (r *stockArticleReader) getArticles(ctx context.Context, ids []int) []*dataloader.Result[*models.StockArticle] {
	var results []*models.StockArticle
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error; err != nil {
		return handleError[*models.StockArticle](len(ids), err)
	}
	return generateLoaderResults(results, ids, func(a *models.StockArticle) int { return a.ID })
}

func GetStockArticles(ctx context.Context, ids []int) ([]*models.StockArticle, []error) {
	return For(ctx).stockArticleLoader.LoadMany(ctx, ids)()
}

// StockArticleCodes maps each id to the article code; unknown ids are left out.
func StockArticleCodes(ctx context.Context, ids []int) map[int]string {
	codes := make(map[int]string, len(ids))
	articles, _ := GetStockArticles(ctx, ids)
	for _, a := range articles {
		if a != nil {
			codes[a.ID] = a.Code
		}
	}
	return codes
}
