package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"simpleautomate/models"
)

// ErrStageMismatch is returned when a reorder does not name exactly the
// pipeline's stages
var ErrStageMismatch = errors.New("stage ids do not match the pipeline")

type PipelineRepository struct {
	DB *gorm.DB
}

func NewPipelineRepository(db *gorm.DB) *PipelineRepository {
	return &PipelineRepository{DB: db}
}

func orderedStages(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC, id ASC")
}

// EnsureDefaultPipeline creates the default sales pipeline for a tenant
// without any pipeline and returns the tenant's first pipeline.
func (r *PipelineRepository) EnsureDefaultPipeline(ctx context.Context, userID uint) (*models.Pipeline, error) {
	var pipeline models.Pipeline
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Preload("Stages", orderedStages).
			Where("user_id = ?", userID).
			Order("id ASC").
			First(&pipeline).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		pipeline = models.Pipeline{UserID: userID, Name: models.DefaultPipelineName}
		for i, name := range models.DefaultStageNames {
			pipeline.Stages = append(pipeline.Stages, models.Stage{Name: name, Position: i})
		}
		return tx.Create(&pipeline).Error
	})
	if err != nil {
		return nil, err
	}
	return &pipeline, nil
}

func (r *PipelineRepository) List(ctx context.Context, userID uint) ([]models.Pipeline, error) {
	if _, err := r.EnsureDefaultPipeline(ctx, userID); err != nil {
		return nil, err
	}
	var pipelines []models.Pipeline
	err := r.DB.WithContext(ctx).
		Preload("Stages", orderedStages).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&pipelines).Error
	return pipelines, err
}

func (r *PipelineRepository) Get(ctx context.Context, userID, id uint) (*models.Pipeline, error) {
	var pipeline models.Pipeline
	err := r.DB.WithContext(ctx).
		Preload("Stages", orderedStages).
		Where("id = ? AND user_id = ?", id, userID).
		First(&pipeline).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &pipeline, nil
}

// Create stores a pipeline whose stages are positioned in slice order
func (r *PipelineRepository) Create(ctx context.Context, userID uint, name string, stageNames []string) (*models.Pipeline, error) {
	pipeline := models.Pipeline{UserID: userID, Name: name}
	for i, stage := range stageNames {
		pipeline.Stages = append(pipeline.Stages, models.Stage{Name: stage, Position: i})
	}
	if err := r.DB.WithContext(ctx).Create(&pipeline).Error; err != nil {
		return nil, err
	}
	return &pipeline, nil
}

// AddStage appends a stage after the pipeline's last stage
func (r *PipelineRepository) AddStage(ctx context.Context, userID, pipelineID uint, name string) (*models.Stage, error) {
	var stage models.Stage
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pipeline models.Pipeline
		if err := tx.Where("id = ? AND user_id = ?", pipelineID, userID).First(&pipeline).Error; err != nil {
			return notFound(err)
		}
		var count int64
		if err := tx.Model(&models.Stage{}).Where("pipeline_id = ?", pipelineID).Count(&count).Error; err != nil {
			return err
		}
		stage = models.Stage{PipelineID: pipelineID, Name: name, Position: int(count)}
		return tx.Create(&stage).Error
	})
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

// ReorderStages sets stage positions to the order of stageIDs, which must
// name every stage of the pipeline exactly once.
func (r *PipelineRepository) ReorderStages(ctx context.Context, userID, pipelineID uint, stageIDs []uint) (*models.Pipeline, error) {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pipeline models.Pipeline
		if err := tx.Preload("Stages").Where("id = ? AND user_id = ?", pipelineID, userID).First(&pipeline).Error; err != nil {
			return notFound(err)
		}
		if len(stageIDs) != len(pipeline.Stages) {
			return ErrStageMismatch
		}
		owned := make(map[uint]bool, len(pipeline.Stages))
		for _, s := range pipeline.Stages {
			owned[s.ID] = true
		}
		for i, id := range stageIDs {
			if !owned[id] {
				return ErrStageMismatch
			}
			delete(owned, id)
			if err := tx.Model(&models.Stage{}).Where("id = ?", id).Update("position", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, userID, pipelineID)
}

// BoardColumn is one stage of a pipeline board with the contacts in it
type BoardColumn struct {
	Stage    models.Stage     `json:"stage"`
	Contacts []models.Contact `json:"contacts"`
}

// Board groups the tenant's contacts by current stage. Contacts whose
// current stage is not in this pipeline land in the first column.
func (r *PipelineRepository) Board(ctx context.Context, userID, pipelineID uint) ([]BoardColumn, error) {
	pipeline, err := r.Get(ctx, userID, pipelineID)
	if err != nil {
		return nil, err
	}
	if len(pipeline.Stages) == 0 {
		return []BoardColumn{}, nil
	}

	var contacts []models.Contact
	err = withHistory(r.DB.WithContext(ctx)).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&contacts).Error
	if err != nil {
		return nil, err
	}

	columns := make([]BoardColumn, len(pipeline.Stages))
	index := make(map[uint]int, len(pipeline.Stages))
	for i, s := range pipeline.Stages {
		columns[i] = BoardColumn{Stage: s, Contacts: []models.Contact{}}
		index[s.ID] = i
	}
	for _, c := range contacts {
		col := 0
		if current := c.CurrentStage(); current != nil {
			if i, ok := index[current.StageID]; ok {
				col = i
			}
		}
		columns[col].Contacts = append(columns[col].Contacts, c)
	}
	return columns, nil
}
