package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"docchat/src/core/ingest"
	"docchat/src/infrastructure/job"
	"docchat/src/storage/minioctrl"
	"docchat/src/storage/postgres/documentctrl"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Upload documents for processing in bulk",
	Long: `The ingest command uploads local files through the same path as the
HTTP upload endpoint: each file is stored, registered and queued for the
worker. Useful for seeding a fresh deployment.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	// Initialize PostgreSQL connection
	db, err := gorm.Open(postgres.Open(postgresDSN()), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %v", err)
	}
	defer sqlDB.Close()

	documentService, err := documentctrl.NewDocumentService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize document service: %v", err)
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

	// Initialize AMQP publisher
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return fmt.Errorf("failed to create AMQP publisher: %v", err)
	}
	defer amqpPublisher.Close()

	jobService := job.NewService(amqpPublisher, watermill.NewStdLogger(false, false), nil)

	coordinator := ingest.NewCoordinator(
		documentService,
		minioService,
		jobService,
		bucket,
		viper.GetStringSlice("ingest.allowed_extensions"),
	)

	bar := progressbar.NewOptions(len(args),
		progressbar.OptionSetDescription("Uploading documents"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
	)

	var failed int
	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\n%s: %v\n", path, err)
			failed++
			bar.Add(1)
			continue
		}

		doc, err := coordinator.Submit(cmd.Context(), filepath.Base(path), content)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\n%s: %v\n", path, err)
			failed++
			bar.Add(1)
			continue
		}

		fmt.Fprintf(os.Stderr, "\n%s: queued as %s\n", path, doc.ID)
		bar.Add(1)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(args))
	}
	return nil
}
