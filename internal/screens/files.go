package screens

import (
	"context"
	"fmt"
	"io"
	"strings"

	"finetune-console/pkg/api"
)

type Datasets struct {
	status

	Files []api.DatasetFile

	// Generating is set while a dataset is being generated. Generation has no
	// progress to report, so the view shows an indeterminate indicator.
	Generating bool

	files FileService
}

func NewDatasets(files FileService) *Datasets {
	return &Datasets{files: files}
}

func (s *Datasets) Load(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	return s.reload(ctx)
}

func (s *Datasets) reload(ctx context.Context) error {
	files, err := s.files.ListDatasets(ctx)
	if err != nil {
		return s.fail(err, "failed to load datasets")
	}
	s.Files = files
	return nil
}

func (s *Datasets) Upload(ctx context.Context, filename string, data io.Reader) (api.DatasetFile, error) {
	if strings.TrimSpace(filename) == "" {
		return api.DatasetFile{}, s.invalid("file", "a file is required")
	}

	if err := s.begin(); err != nil {
		return api.DatasetFile{}, err
	}
	defer s.end()

	file, err := s.files.UploadDataset(ctx, filename, data)
	if err != nil {
		return api.DatasetFile{}, s.fail(err, "upload failed")
	}

	return file, s.reload(ctx)
}

// Delete removes a dataset. Confirmation is the caller's job.
func (s *Datasets) Delete(ctx context.Context, fileId string) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	if err := s.files.DeleteDataset(ctx, fileId); err != nil {
		return s.fail(err, "delete failed")
	}

	return s.reload(ctx)
}

// Generate asks the backend for a synthetic dataset about topic. An empty
// filename lets the backend name the file; whatever name it returns is shown
// as is.
func (s *Datasets) Generate(ctx context.Context, topic, filename string) (api.DatasetFile, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return api.DatasetFile{}, s.invalid("topic", "topic is required")
	}

	if err := s.begin(); err != nil {
		return api.DatasetFile{}, err
	}
	defer s.end()

	s.Generating = true
	defer func() { s.Generating = false }()

	var name *string
	if filename = strings.TrimSpace(filename); filename != "" {
		name = &filename
	}

	file, err := s.files.GenerateDataset(ctx, topic, name)
	if err != nil {
		return api.DatasetFile{}, s.fail(err, "generation failed")
	}

	return file, s.reload(ctx)
}

func FormatSize(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.2f MB", float64(bytes)/(1024*1024))
	}
}

type Models struct {
	status

	Models []api.ModelFile

	files FileService
}

func NewModels(files FileService) *Models {
	return &Models{files: files}
}

func (s *Models) Load(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	models, err := s.files.ListModels(ctx)
	if err != nil {
		return s.fail(err, "failed to load models")
	}
	s.Models = models
	return nil
}
