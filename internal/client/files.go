package client

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"finetune-console/internal/transport"
	"finetune-console/pkg/api"
)

type FileClient struct {
	doer transport.Doer
}

func NewFileClient(doer transport.Doer) *FileClient {
	return &FileClient{doer: doer}
}

func (c *FileClient) ListDatasets(ctx context.Context) ([]api.DatasetFile, error) {
	var files []api.DatasetFile
	err := c.doer.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/files/datasets"}, &files)
	return files, err
}

// UploadDataset sends data as the multipart field "file" under filename.
func (c *FileClient) UploadDataset(ctx context.Context, filename string, data io.Reader) (api.DatasetFile, error) {
	var file api.DatasetFile
	err := c.doer.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/files/datasets",
		File:   &transport.File{Param: "file", Name: filename, Reader: data},
	}, &file)
	return file, err
}

func (c *FileClient) DeleteDataset(ctx context.Context, fileId string) error {
	return c.doer.Do(ctx, transport.Request{Method: http.MethodDelete, Path: "/files/datasets/" + url.PathEscape(fileId)}, nil)
}

// GenerateDataset asks the backend to synthesize a dataset about topic. A nil
// filename lets the backend derive one.
func (c *FileClient) GenerateDataset(ctx context.Context, topic string, filename *string) (api.DatasetFile, error) {
	var file api.DatasetFile
	err := c.doer.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/files/datasets/generate",
		Body:   api.DatasetGenerateRequest{Topic: topic, Filename: filename},
	}, &file)
	return file, err
}

func (c *FileClient) ListModels(ctx context.Context) ([]api.ModelFile, error) {
	var models []api.ModelFile
	err := c.doer.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/files/models"}, &models)
	return models, err
}

func (c *FileClient) AvailableModels(ctx context.Context) ([]api.ModelFile, error) {
	var models []api.ModelFile
	err := c.doer.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/files/models/available"}, &models)
	return models, err
}
