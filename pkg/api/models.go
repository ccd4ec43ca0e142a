package api

const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

type User struct {
	UserId   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Credential is the bearer token returned by login. It is opaque to the client.
type Credential struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required"`
}

type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email" validate:"required"`
	Password        string `json:"password" validate:"required"`
	RememberMe      bool   `json:"remember_me"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

func (r LoginResponse) Credential() Credential {
	return Credential{AccessToken: r.AccessToken, TokenType: r.TokenType}
}

type MessageResponse struct {
	Message string `json:"message,omitempty"`
}

type Task struct {
	TaskId                    string    `json:"task_id"`
	UserId                    string    `json:"user_id"`
	Name                      string    `json:"name"`
	ModelName                 string    `json:"model_name"`
	DatasetPath               string    `json:"dataset_path"`
	Stage                     string    `json:"stage,omitempty"`
	Epochs                    float64   `json:"epochs"`
	LearningRate              float64   `json:"learning_rate"`
	BatchSize                 int       `json:"batch_size"`
	GradientAccumulationSteps int       `json:"gradient_accumulation_steps,omitempty"`
	OutputDir                 string    `json:"output_dir"`
	Status                    string    `json:"status"`
	CreatedAt                 Timestamp `json:"created_at"`
	UpdatedAt                 Timestamp `json:"updated_at"`
}

// Terminal reports whether the backend will not move the task any further.
func (t Task) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

// TaskCreate is the training job submission. Optional fields left at their zero
// value are omitted so the backend applies its own defaults.
type TaskCreate struct {
	Name        string `json:"name" validate:"required"`
	ModelName   string `json:"model_name" validate:"required"`
	DatasetPath string `json:"dataset_path" validate:"required"`

	Stage    string `json:"stage,omitempty"`
	Template string `json:"template,omitempty"`

	Epochs                    float64 `json:"epochs,omitempty" validate:"gte=0"`
	LearningRate              float64 `json:"learning_rate,omitempty" validate:"gte=0"`
	BatchSize                 int     `json:"batch_size,omitempty" validate:"gte=0"`
	GradientAccumulationSteps int     `json:"gradient_accumulation_steps,omitempty" validate:"gte=0"`

	FP16      *bool  `json:"fp16,omitempty"`
	OutputDir string `json:"output_dir,omitempty"`
}

const (
	DefaultStage                     = "sft"
	DefaultTemplate                  = "qwen2"
	DefaultEpochs                    = 3.0
	DefaultLearningRate              = 5e-5
	DefaultBatchSize                 = 4
	DefaultGradientAccumulationSteps = 4
)

// NewTaskCreate returns a submission prefilled with the platform defaults.
func NewTaskCreate() TaskCreate {
	return TaskCreate{
		Stage:                     DefaultStage,
		Epochs:                    DefaultEpochs,
		LearningRate:              DefaultLearningRate,
		BatchSize:                 DefaultBatchSize,
		GradientAccumulationSteps: DefaultGradientAccumulationSteps,
	}
}

type TaskLogs struct {
	Logs string `json:"logs"`
}

type DatasetFile struct {
	FileId    string    `json:"file_id"`
	UserId    string    `json:"user_id"`
	Filename  string    `json:"filename"`
	FilePath  string    `json:"file_path"`
	Size      int64     `json:"size"`
	CreatedAt Timestamp `json:"created_at"`
}

type ModelFile struct {
	ModelId       string    `json:"model_id"`
	UserId        string    `json:"user_id"`
	Name          string    `json:"name"`
	ModelPath     string    `json:"model_path"`
	BaseModelPath *string   `json:"base_model_path,omitempty"`
	TaskId        *string   `json:"task_id,omitempty"`
	Size          *int64    `json:"size,omitempty"`
	CreatedAt     Timestamp `json:"created_at"`
}

type DatasetGenerateRequest struct {
	Topic    string  `json:"topic" validate:"required"`
	Filename *string `json:"filename,omitempty"`
}
