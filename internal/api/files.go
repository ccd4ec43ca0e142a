package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"finetune-console/internal/core/datagen"
	"finetune-console/internal/database"
	"finetune-console/internal/storage"
	"finetune-console/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultMaxUploadSize = 100 * 1024 * 1024

type FileService struct {
	db            *gorm.DB
	storage       storage.ObjectStore
	generator     *datagen.Generator
	maxUploadSize int64
}

// NewFileService builds the dataset and model endpoints. A nil generator
// disables dataset generation.
func NewFileService(db *gorm.DB, storage storage.ObjectStore, generator *datagen.Generator, maxUploadSize int64) *FileService {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &FileService{db: db, storage: storage, generator: generator, maxUploadSize: maxUploadSize}
}

func (s *FileService) AddRoutes(r chi.Router) {
	r.Route("/datasets", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListDatasets))
		r.Post("/", RestHandlerWithStatus(http.StatusCreated, s.UploadDataset))
		r.Post("/generate", RestHandlerWithStatus(http.StatusCreated, s.GenerateDataset))
		r.Delete("/{file_id}", RestHandlerWithStatus(http.StatusNoContent, s.DeleteDataset))
	})
	r.Route("/models", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListModels))
		r.Get("/available", RestHandler(s.AvailableModels))
	})
}

func datasetKey(userId, fileId uuid.UUID, filename string) string {
	return fmt.Sprintf("%s/datasets/%s/%s", userId, fileId, filename)
}

// cleanFilename drops any directory part a client sent with the name.
func cleanFilename(name string) (string, error) {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || strings.TrimSpace(name) == "" {
		return "", CodedErrorf(http.StatusBadRequest, "invalid filename")
	}
	return name, nil
}

func (s *FileService) ListDatasets(r *http.Request) (any, error) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		return nil, err
	}

	var datasets []database.Dataset
	if err := s.db.WithContext(r.Context()).Where("user_id = ?", user.Id).Order("creation_time DESC").Find(&datasets).Error; err != nil {
		slog.Error("error listing datasets", "user_id", user.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing datasets")
	}

	return convertDatasets(datasets), nil
}

func (s *FileService) saveDataset(r *http.Request, user database.User, filename string, data *bytes.Reader) (database.Dataset, error) {
	ctx := r.Context()

	dataset := database.Dataset{
		Id:           uuid.New(),
		UserId:       user.Id,
		Filename:     filename,
		CreationTime: time.Now().UTC(),
	}
	dataset.StorageKey = datasetKey(user.Id, dataset.Id, filename)
	dataset.FilePath = s.storage.Location(dataset.StorageKey)

	size, err := s.storage.PutObject(ctx, dataset.StorageKey, data)
	if err != nil {
		slog.Error("error storing dataset", "key", dataset.StorageKey, "error", err)
		return database.Dataset{}, CodedErrorf(http.StatusInternalServerError, "error storing dataset")
	}
	dataset.Size = size

	if err := s.db.WithContext(ctx).Create(&dataset).Error; err != nil {
		slog.Error("error creating dataset record", "error", err)
		if err := s.storage.DeleteObject(ctx, dataset.StorageKey); err != nil {
			slog.Error("error removing orphaned dataset", "key", dataset.StorageKey, "error", err)
		}
		return database.Dataset{}, CodedErrorf(http.StatusInternalServerError, "error saving dataset")
	}

	slog.Info("saved dataset", "file_id", dataset.Id, "user_id", user.Id, "filename", filename, "size", size)
	return dataset, nil
}

func (s *FileService) UploadDataset(r *http.Request) (any, error) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		return nil, err
	}

	if r.ContentLength > s.maxUploadSize {
		return nil, CodedErrorf(http.StatusRequestEntityTooLarge, "file exceeds the %d byte upload limit", s.maxUploadSize)
	}
	r.Body = http.MaxBytesReader(nil, r.Body, s.maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, CodedErrorf(http.StatusRequestEntityTooLarge, "file exceeds the %d byte upload limit", s.maxUploadSize)
		}
		return nil, CodedErrorf(http.StatusBadRequest, "missing multipart field 'file'")
	}
	defer file.Close()

	filename, err := cleanFilename(header.Filename)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(file); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "error reading uploaded file")
	}

	dataset, err := s.saveDataset(r, user, filename, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, err
	}
	return convertDataset(dataset), nil
}

func (s *FileService) GenerateDataset(r *http.Request) (any, error) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.DatasetGenerateRequest](r)
	if err != nil {
		return nil, err
	}

	if s.generator == nil {
		return nil, CodedErrorf(http.StatusServiceUnavailable, "dataset generation is not configured")
	}

	filename, err := cleanFilename(datagen.Filename(req.Topic, req.Filename))
	if err != nil {
		return nil, err
	}

	records, err := s.generator.Generate(r.Context(), req.Topic)
	if err != nil {
		slog.Error("error generating dataset", "topic", req.Topic, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "Dataset generation failed: %v", err)
	}

	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error encoding generated dataset")
	}

	dataset, err := s.saveDataset(r, user, filename, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, err
	}
	return convertDataset(dataset), nil
}

func (s *FileService) DeleteDataset(r *http.Request) (any, error) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		return nil, err
	}

	fileId, err := URLParamUUID(r, "file_id", "File not found")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var dataset database.Dataset
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", fileId, user.Id).First(&dataset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "File not found")
		}
		slog.Error("error getting dataset", "file_id", fileId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error deleting dataset")
	}

	if err := s.db.WithContext(ctx).Delete(&dataset).Error; err != nil {
		slog.Error("error deleting dataset record", "file_id", fileId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error deleting dataset")
	}

	if err := s.storage.DeleteObject(ctx, dataset.StorageKey); err != nil {
		slog.Error("error deleting dataset object", "key", dataset.StorageKey, "error", err)
	}

	return nil, nil
}

func (s *FileService) listModels(r *http.Request, availableOnly bool) ([]api.ModelFile, error) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(r.Context()).Where("user_id = ?", user.Id)
	if availableOnly {
		query = query.Where("base_model_path IS NOT NULL AND base_model_path <> ''")
	}

	var models []database.Model
	if err := query.Order("creation_time DESC").Find(&models).Error; err != nil {
		slog.Error("error listing models", "user_id", user.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing models")
	}

	return convertModels(models), nil
}

func (s *FileService) ListModels(r *http.Request) (any, error) {
	return s.listModels(r, false)
}

func (s *FileService) AvailableModels(r *http.Request) (any, error) {
	return s.listModels(r, true)
}
