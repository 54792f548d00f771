package reports

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/utils"
)

func reportCacheEnabled() bool {
	v := strings.TrimSpace(os.Getenv("ENABLE_REPORT_CACHE"))
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}

func reportCacheTTL() time.Duration {
	// REPORT_CACHE_TTL_SECONDS, default 120s
	ttl := 120
	if v := strings.TrimSpace(os.Getenv("REPORT_CACHE_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = n
		}
	}
	return time.Duration(ttl) * time.Second
}

func reportSlowMs() int64 {
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

func logSlowReport(ctx context.Context, name string, started time.Time, fields logrus.Fields) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	config.GetLogger().WithFields(fields).WithFields(logrus.Fields{
		"report":         name,
		"ms":             d.Milliseconds(),
		"correlation_id": cid,
	}).Warn("slow report")
}

func cacheGet[T any](key string, dest *T) (bool, error) {
	if !reportCacheEnabled() {
		return false, nil
	}
	return config.GetRedisObject(key, dest)
}

func cacheSet(key string, obj any, ttl time.Duration) error {
	if !reportCacheEnabled() {
		return nil
	}
	return config.SetRedisObject(key, obj, ttl)
}

// projectionCacheKey changes whenever the project or one of its flows is edited.
func projectionCacheKey(project *models.Project, flows []*models.IntercompanyFlow) string {
	latest := project.UpdatedAt
	for _, f := range flows {
		if f.UpdatedAt.After(latest) {
			latest = f.UpdatedAt
		}
	}
	return fmt.Sprintf("projection:%d:%d:%d", project.ID, len(flows), latest.UnixNano())
}

// GetProjectProjection simulates a stored project together with the
// inter-company flows touching its company.
func GetProjectProjection(ctx context.Context, projectId int) (*Projection, error) {
	started := time.Now()
	project, err := models.GetProject(ctx, projectId)
	if err != nil {
		return nil, err
	}
	flows, err := models.ListFlowsOfProject(ctx, project)
	if err != nil {
		return nil, err
	}

	key := projectionCacheKey(project, flows)
	var cached Projection
	if ok, err := cacheGet(key, &cached); err != nil {
		config.LogError(config.GetLogger(), "reports", "GetProjectProjection", "reading cache", key, err)
	} else if ok {
		return &cached, nil
	}

	result := BuildProjection(project.Company, project.Params(), flows)
	if err := cacheSet(key, result, reportCacheTTL()); err != nil {
		config.LogError(config.GetLogger(), "reports", "GetProjectProjection", "writing cache", key, err)
	}
	logSlowReport(ctx, "projection", started, logrus.Fields{"project_id": projectId})
	return result, nil
}

// SimulateProjection runs unsaved parameters against the stored flows of company.
func SimulateProjection(ctx context.Context, company string, params models.ProjectionParams) (*Projection, error) {
	if err := params.WithDefaults().Validate(); err != nil {
		return nil, err
	}
	flows, err := models.ListIntercompanyFlows(ctx, models.IntercompanyFlowFilter{Company: company})
	if err != nil {
		return nil, err
	}
	return BuildProjection(company, params, flows), nil
}
