// backend/cmd/seed/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/mathtutor-ai/backend/internal/config"
	"github.com/mathtutor-ai/backend/internal/kb"
	"github.com/mathtutor-ai/backend/internal/llm"
	"github.com/mathtutor-ai/backend/internal/seeder"
	"github.com/mathtutor-ai/backend/pkg/utils"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
)

var (
	// Command line flags
	datasetPath = flag.String("file", "data/dataset.json", "Path to the solved-problems dataset")
	fewShotPath = flag.String("few-shot", "", "Optional path to few-shot examples JSON")
	dryRun      = flag.Bool("dry-run", false, "Don't upload to Qdrant, just print what would be uploaded")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	limit       = flag.Int("limit", 0, "Limit number of problems to process (0 = all)")
)

func main() {
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	// Initialize logger
	logger := utils.GetLogger()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.Info("Starting knowledge base seeder...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	processor := seeder.NewContentProcessor()

	problems, err := loadDataset(*datasetPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load dataset")
	}

	// Keep math problems only
	var mathProblems []seeder.DatasetProblem
	for _, problem := range problems {
		if problem.Subject == "math" {
			mathProblems = append(mathProblems, problem)
		}
	}

	logger.WithFields(logrus.Fields{
		"total": len(problems),
		"math":  len(mathProblems),
	}).Info("Dataset loaded")

	if *limit > 0 && *limit < len(mathProblems) {
		mathProblems = mathProblems[:*limit]
		logger.WithField("limit", *limit).Info("Limited problems to process")
	}

	if *dryRun {
		runDry(processor, mathProblems, logger)
		return
	}

	if err := cfg.ValidateLLM(); err != nil {
		logger.WithError(err).Fatal("LLM configuration validation failed")
	}

	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Qdrant.Host,
		Port: cfg.Qdrant.Port,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Qdrant")
	}
	defer qdrantClient.Close()

	embedder := llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.EmbeddingModel, logger)
	store := kb.NewStore(qdrantClient, embedder, cfg.Qdrant.Collection, logger)

	ctx := context.Background()
	if err := store.EnsureCollection(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to ensure collection")
	}

	seeded := 0
	for i, problem := range mathProblems {
		entry, err := processor.BuildProblemEntry(problem)
		if err != nil {
			logger.WithError(err).WithField("index", i).Warn("Skipping problem")
			continue
		}

		if _, err := store.Add(ctx, entry); err != nil {
			logger.WithError(err).WithField("index", i).Error("Failed to add problem")
			continue
		}

		seeded++
		if seeded%25 == 0 {
			logger.WithFields(logrus.Fields{
				"seeded": seeded,
				"total":  len(mathProblems),
			}).Info("Seeding progress")
		}
	}

	logger.WithField("seeded", seeded).Info("Problem seeding completed")

	if *fewShotPath != "" {
		count, err := seedFewShot(ctx, store, processor, *fewShotPath, logger)
		if err != nil {
			logger.WithError(err).Fatal("Few-shot seeding failed")
		}
		logger.WithField("seeded", count).Info("Few-shot seeding completed")
	}

	logger.Info("Knowledge base seeding completed successfully!")
}

func loadDataset(path string) ([]seeder.DatasetProblem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset file: %w", err)
	}

	var problems []seeder.DatasetProblem
	if err := json.Unmarshal(data, &problems); err != nil {
		return nil, fmt.Errorf("failed to parse dataset file: %w", err)
	}

	return problems, nil
}

// seedFewShot loads worked examples keyed by subject and problem type.
// Only the math section is ingested.
func seedFewShot(ctx context.Context, store *kb.Store, processor *seeder.ContentProcessor, path string, logger *logrus.Logger) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read few-shot file: %w", err)
	}

	var bySubject map[string]map[string]seeder.FewShotExample
	if err := json.Unmarshal(data, &bySubject); err != nil {
		return 0, fmt.Errorf("failed to parse few-shot file: %w", err)
	}

	mathExamples, ok := bySubject["math"]
	if !ok {
		logger.Warn("No math examples found in few-shot file")
		return 0, nil
	}

	count := 0
	for problemType, example := range mathExamples {
		entry, err := processor.BuildFewShotEntry(problemType, example)
		if err != nil {
			logger.WithError(err).Warn("Skipping few-shot example")
			continue
		}

		if _, err := store.Add(ctx, entry); err != nil {
			return count, fmt.Errorf("failed to add few-shot example %q: %w", problemType, err)
		}
		count++
	}

	return count, nil
}

func runDry(processor *seeder.ContentProcessor, problems []seeder.DatasetProblem, logger *logrus.Logger) {
	for i, problem := range problems {
		entry, err := processor.BuildProblemEntry(problem)
		if err != nil {
			logger.WithError(err).WithField("index", i).Warn("Skipping problem")
			continue
		}

		preview := entry.Text
		if len(preview) > 120 {
			preview = preview[:120] + "..."
		}
		fmt.Printf("[%d] type=%s %s\n", i, entry.Type, preview)
	}
	logger.WithField("count", len(problems)).Info("Dry run completed, nothing uploaded")
}
