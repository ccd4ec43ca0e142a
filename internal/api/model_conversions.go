package api

import (
	"finetune-console/internal/database"
	"finetune-console/pkg/api"
)

func convertUser(u database.User) api.User {
	return api.User{
		UserId:   u.Id.String(),
		Username: u.Username,
		Email:    u.Email,
	}
}

func convertTask(t database.Task) api.Task {
	return api.Task{
		TaskId:                    t.Id.String(),
		UserId:                    t.UserId.String(),
		Name:                      t.Name,
		ModelName:                 t.ModelName,
		DatasetPath:               t.DatasetPath,
		Stage:                     t.Stage,
		Epochs:                    t.Epochs,
		LearningRate:              t.LearningRate,
		BatchSize:                 t.BatchSize,
		GradientAccumulationSteps: t.GradientAccumulationSteps,
		OutputDir:                 t.OutputDir,
		Status:                    t.Status,
		CreatedAt:                 api.Timestamp{Time: t.CreationTime},
		UpdatedAt:                 api.Timestamp{Time: t.UpdateTime},
	}
}

func convertTasks(ts []database.Task) []api.Task {
	tasks := make([]api.Task, 0, len(ts))
	for _, t := range ts {
		tasks = append(tasks, convertTask(t))
	}
	return tasks
}

func convertDataset(d database.Dataset) api.DatasetFile {
	return api.DatasetFile{
		FileId:    d.Id.String(),
		UserId:    d.UserId.String(),
		Filename:  d.Filename,
		FilePath:  d.FilePath,
		Size:      d.Size,
		CreatedAt: api.Timestamp{Time: d.CreationTime},
	}
}

func convertDatasets(ds []database.Dataset) []api.DatasetFile {
	datasets := make([]api.DatasetFile, 0, len(ds))
	for _, d := range ds {
		datasets = append(datasets, convertDataset(d))
	}
	return datasets
}

func convertModel(m database.Model) api.ModelFile {
	model := api.ModelFile{
		ModelId:   m.Id.String(),
		UserId:    m.UserId.String(),
		Name:      m.Name,
		ModelPath: m.ModelPath,
		CreatedAt: api.Timestamp{Time: m.CreationTime},
	}
	if m.BaseModelPath.Valid {
		base := m.BaseModelPath.String
		model.BaseModelPath = &base
	}
	if m.TaskId.Valid {
		taskId := m.TaskId.UUID.String()
		model.TaskId = &taskId
	}
	if m.Size.Valid {
		size := m.Size.Int64
		model.Size = &size
	}
	return model
}

func convertModels(ms []database.Model) []api.ModelFile {
	models := make([]api.ModelFile, 0, len(ms))
	for _, m := range ms {
		models = append(models, convertModel(m))
	}
	return models
}
