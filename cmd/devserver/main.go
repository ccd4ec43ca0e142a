package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"finetune-console/internal/api"
	"finetune-console/internal/config"
	"finetune-console/internal/core"
	"finetune-console/internal/core/datagen"
	"finetune-console/internal/database"
	"finetune-console/internal/messaging"
	"finetune-console/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/pflag"
	"gorm.io/gorm"
)

type queue interface {
	messaging.Publisher
	messaging.Receiver
}

type rabbitQueue struct {
	*messaging.RabbitMQPublisher
	receiver *messaging.RabbitMQReceiver
}

func (q *rabbitQueue) Tasks() <-chan messaging.Task {
	return q.receiver.Tasks()
}

func (q *rabbitQueue) Close() {
	q.receiver.Close()
	q.RabbitMQPublisher.Close()
}

func createQueue(db *gorm.DB, cfg config.ServerConfig) queue {
	if cfg.QueueType == "rabbitmq" {
		publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to start RabbitMQ consumer: %v", err)
		}
		// The broker keeps undelivered jobs across restarts.
		return &rabbitQueue{RabbitMQPublisher: publisher, receiver: receiver}
	}

	var pending []database.Task
	if err := db.Where("status = ?", database.TaskPending).Order("creation_time").Find(&pending).Error; err != nil {
		log.Fatalf("Failed to fetch tasks from database: %v", err)
	}

	queue := messaging.NewInMemoryQueue()
	for _, task := range pending {
		if err := queue.PublishTrainTask(context.Background(), messaging.TrainTaskPayload{TaskId: task.Id}); err != nil {
			log.Fatalf("Failed to requeue training task: %v", err)
		}
	}
	if len(pending) > 0 {
		slog.Info("requeued pending training tasks", "count", len(pending))
	}

	return queue
}

func createStorage(cfg config.ServerConfig) storage.ObjectStore {
	if cfg.StorageType == "s3" {
		store, err := storage.NewS3ObjectStore(cfg.S3Bucket, storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("Failed to create s3 storage: %v", err)
		}
		if err := store.CreateBucket(context.Background()); err != nil {
			log.Fatalf("Failed to create bucket: %v", err)
		}
		return store
	}

	store, err := storage.NewLocalObjectStore(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}
	return store
}

func createGenerator(cfg config.ServerConfig) *datagen.Generator {
	if cfg.DatagenAPIKey == "" {
		slog.Warn("DEEPSEEK_API_KEY not set, dataset generation is disabled")
		return nil
	}

	llm := datagen.NewOpenAI(datagen.OpenAIConfig{
		APIKey:      cfg.DatagenAPIKey,
		BaseURL:     cfg.DatagenBaseURL,
		Model:       cfg.DatagenModel,
		Temperature: cfg.DatagenTemp,
	})
	return datagen.NewGenerator(llm, cfg.DatagenRecords)
}

func createResponder(cfg config.ServerConfig) core.ChatResponder {
	if cfg.ChatBaseURL == "" {
		slog.Warn("CHAT_API_URL not set, chat replies echo the last user message")
		return core.EchoResponder{}
	}

	responder, err := core.NewLangchainResponder(core.LangchainConfig{
		APIKey:  cfg.ChatAPIKey,
		BaseURL: cfg.ChatBaseURL,
		Model:   cfg.ChatModel,
	})
	if err != nil {
		log.Fatalf("Failed to create chat responder: %v", err)
	}
	return responder
}

func secretKey(cfg config.ServerConfig) string {
	if cfg.SecretKey != "" {
		return cfg.SecretKey
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("Failed to generate secret key: %v", err)
	}
	slog.Warn("SECRET_KEY not set, using a random key; issued tokens end with this process")
	return hex.EncodeToString(buf)
}

func createServer(db *gorm.DB, store storage.ObjectStore, publisher messaging.Publisher, cfg config.ServerConfig) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	service := api.NewBackendService(
		api.NewAuthService(db, secretKey(cfg), cfg.TokenTTL),
		api.NewTaskService(db, store, publisher),
		api.NewFileService(db, store, createGenerator(cfg), cfg.MaxUploadSize),
		api.NewChatService(db, createResponder(cfg)),
	)

	r.Route("/api", service.AddRoutes)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
}

func main() {
	envFile := pflag.String("env", "", "path to load env from")
	pflag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatal(err)
	}

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatal(err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating data directory: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.Root, "devserver.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	slog.Info("starting dev server", "root", cfg.Root, "port", cfg.Port, "storage", cfg.StorageType, "queue", cfg.QueueType)

	db, err := database.NewDatabase(filepath.Join(cfg.Root, "db", "finetune.db"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	store := createStorage(cfg)
	queue := createQueue(db, cfg)

	worker := core.NewTaskProcessor(db, store, queue, core.TrainerConfig{
		Workers:   cfg.TrainerWorkers,
		StepDelay: cfg.TrainerStepDelay,
	})

	server := createServer(db, store, queue, cfg)

	slog.Info("starting worker")
	worker.Start()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down worker")
		worker.Stop()
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
