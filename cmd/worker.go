package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	weaviateClient "github.com/weaviate/weaviate-go-client/v4/weaviate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"docchat/src/core/chunker"
	"docchat/src/core/ingest"
	"docchat/src/infrastructure/integrations/ollama"
	"docchat/src/infrastructure/integrations/unstructured"
	"docchat/src/infrastructure/job"
	"docchat/src/infrastructure/log"
	"docchat/src/storage/minioctrl"
	"docchat/src/storage/postgres/chunkctrl"
	"docchat/src/storage/postgres/documentctrl"
	"docchat/src/storage/weaviate"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the document ingestion worker",
	Long: `The worker command consumes ingestion jobs from the queue and runs
the processing pipeline: text extraction, chunking, embedding and vector
storage. Run at least one worker alongside the serve process.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	if err := log.UseProduction(); err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}

	logger := watermill.NewStdLogger(false, false)

	// Initialize PostgreSQL connection
	db, err := gorm.Open(postgres.Open(postgresDSN()), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	// Get underlying *sql.DB for cleanup
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %v", err)
	}
	defer sqlDB.Close()

	documentService, err := documentctrl.NewDocumentService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize document service: %v", err)
	}

	chunkService, err := chunkctrl.NewChunkService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize chunk service: %v", err)
	}

	// Initialize MinioService
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize minio service: %v", err)
	}

	bucket := viper.GetString("minio.document_bucket")
	if err := minioService.EnsureBucketExists(context.Background(), bucket); err != nil {
		return fmt.Errorf("failed to ensure document bucket exists: %v", err)
	}

	// Initialize Weaviate client and create the chunk class on first run
	wc := weaviateClient.New(weaviateClient.Config{
		Host:   viper.GetString("weaviate.host"),
		Scheme: viper.GetString("weaviate.scheme"),
	})
	wsdk := weaviate.NewSDK(wc)
	if err := wsdk.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("failed to ensure weaviate schema: %v", err)
	}

	// Initialize Ollama client
	ollamaClient := ollama.NewClient(viper.GetString("ollama.url"), &http.Client{
		Timeout: 120 * time.Second,
	})

	// Initialize Unstructured API client
	unstructuredService := unstructured.NewService(viper.GetString("unstructured.url"), &http.Client{
		Timeout: 5 * time.Minute,
	})

	pipeline, err := ingest.NewPipeline(
		documentService,
		minioService,
		unstructuredService,
		ollamaClient,
		wsdk,
		chunkService,
		ingest.Config{
			Bucket:     bucket,
			EmbedModel: viper.GetString("ingest.embed_model"),
			Chunking: chunker.Config{
				Size:    viper.GetInt("ingest.chunk_size"),
				Overlap: viper.GetInt("ingest.chunk_overlap"),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %v", err)
	}

	// Initialize AMQP subscriber. Failed jobs are not requeued; the failure
	// is recorded on the document instead.
	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	// Initialize AMQP publisher. The worker never publishes today but the
	// job service requires one for its queue side.
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		logger,
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	jobService := job.NewService(amqpPublisher, logger, pipeline)

	// Initialize router
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}

	// Add middleware
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
	)

	// Add handler for processing ingestion jobs
	router.AddNoPublisherHandler(
		"ingest_worker",
		job.Topic,
		amqpSubscriber,
		func(msg *message.Message) error {
			return jobService.ProcessMessage(msg)
		},
	)

	// Run the router
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := router.Run(ctx); err != nil {
			log.Error(err, "Router stopped with error")
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Info("Shutting down...")
	cancel()
	<-router.Running()
	log.Info("Router stopped")

	return nil
}
