package services

import (
	"context"
	"fmt"
	"time"

	"tripbuilder/crmsync/internal/common"
	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/db/repositories"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/models/gorm"
	"tripbuilder/crmsync/internal/providers"
)

const stageCacheTTL = time.Hour

// PipelineStageService resolves the stage new records are created in.
type PipelineStageService struct {
	repo      *repositories.PipelineRepo
	client    providers.RemoteClient
	cache     common.CacheInterface
	pipelines map[constants.ResourceKind]string
}

// NewPipelineStageService takes the configured pipeline id per record kind.
func NewPipelineStageService(
	repo *repositories.PipelineRepo,
	client providers.RemoteClient,
	cache common.CacheInterface,
	pipelines map[constants.ResourceKind]string,
) *PipelineStageService {
	return &PipelineStageService{repo: repo, client: client, cache: cache, pipelines: pipelines}
}

// PipelineID returns the configured pipeline of kind.
func (s *PipelineStageService) PipelineID(kind constants.ResourceKind) string {
	return s.pipelines[kind]
}

// FirstStage returns the first stage of kind's pipeline: cache, then the
// local pipeline table, then the remote pipeline list.
func (s *PipelineStageService) FirstStage(ctx context.Context, kind constants.ResourceKind) (string, error) {
	pipelineID := s.pipelines[kind]
	if pipelineID == "" {
		return "", fmt.Errorf("no pipeline configured for %s", kind)
	}

	key := string(constants.CachePrefixPipelineStage) + pipelineID
	stageID, err := s.cache.GetOrSet(key, stageCacheTTL, func() (string, error) {
		id, err := s.repo.FirstStageID(ctx, pipelineID)
		if err != nil || id != "" {
			return id, err
		}
		return s.fetchRemote(ctx, pipelineID)
	})
	if err != nil {
		return "", err
	}
	if stageID == "" {
		return "", fmt.Errorf("%s: %s", constants.GetErrorMessage(constants.ErrCodePipelineNotFound), pipelineID)
	}
	return stageID, nil
}

func (s *PipelineStageService) fetchRemote(ctx context.Context, pipelineID string) (string, error) {
	remote, err := s.client.GetPipelines(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch pipelines: %w", err)
	}

	for _, rp := range remote {
		if rp.ID != pipelineID || len(rp.Stages) == 0 {
			continue
		}
		if err := s.repo.Upsert(ctx, PipelineFromRemote(rp)); err != nil {
			logging.Warn("Failed to store pipeline", "pipeline_id", pipelineID, "error", err)
		}
		return rp.Stages[0].ID, nil
	}
	return "", nil
}

// PipelineFromRemote converts a remote pipeline; stage order is the list order.
func PipelineFromRemote(rp providers.RemotePipeline) *gorm.Pipeline {
	p := &gorm.Pipeline{ID: rp.ID, Name: rp.Name}
	for i, st := range rp.Stages {
		p.Stages = append(p.Stages, gorm.PipelineStage{
			ID:         st.ID,
			PipelineID: rp.ID,
			Name:       st.Name,
			Position:   i,
		})
	}
	return p
}
