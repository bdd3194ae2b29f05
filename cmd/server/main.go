package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Anzful/devtrain/internal/api"
	"github.com/Anzful/devtrain/internal/app/service"
	"github.com/Anzful/devtrain/internal/app/worker"
	"github.com/Anzful/devtrain/internal/common/security"
	"github.com/Anzful/devtrain/internal/domain/repository"
	"github.com/Anzful/devtrain/internal/feedback"
	"github.com/Anzful/devtrain/internal/grader"
	"github.com/Anzful/devtrain/internal/judge"
	"github.com/Anzful/devtrain/internal/platform/config"
	"github.com/Anzful/devtrain/internal/platform/database"
	"github.com/Anzful/devtrain/internal/platform/queue"
)

func main() {
	// 1. Load Configuration
	config.Load()
	fmt.Println("Configuration loaded.")

	// 2. Initialize JWT
	security.InitJWT()
	fmt.Println("JWT initialized.")

	// 3. Initialize Database
	database.Connect()
	defer database.Close()
	fmt.Println("Database connected.")

	// 4. Initialize Redis
	queue.ConnectRedis()
	defer queue.CloseRedis()
	fmt.Println("Redis connected.")

	// 5. Initialize Repositories
	userRepo := repository.NewPgUserRepository(database.DB)
	challengeRepo := repository.NewPgChallengeRepository(database.DB)
	submissionRepo := repository.NewPgSubmissionRepository(database.DB)

	// 6. External collaborators
	judgeClient := judge.NewClient(
		config.AppConfig.JudgeURL,
		config.AppConfig.JudgeAPIKey,
		config.AppConfig.JudgePollInterval,
		config.AppConfig.JudgePollAttempts,
	)
	var feedbackProvider feedback.Provider = feedback.NoopProvider{}
	if config.AppConfig.FeedbackURL != "" {
		feedbackProvider = feedback.NewHTTPProvider(
			config.AppConfig.FeedbackURL,
			config.AppConfig.FeedbackAPIKey,
			config.AppConfig.FeedbackModel,
		)
	}

	// 7. Initialize Services
	harness := grader.NewHarness(judgeClient)
	authService := service.NewAuthService(userRepo)
	challengeService := service.NewChallengeService(challengeRepo, database.DB)
	gradingService := service.NewGradingService(submissionRepo, challengeRepo, userRepo, harness, feedbackProvider, database.DB)
	submissionService := service.NewSubmissionService(submissionRepo, challengeRepo, gradingService, queue.RDB)
	progressService := service.NewProgressService(userRepo, submissionRepo)

	// 8. Initialize Grading Workers (as goroutines)
	gradingWorker := worker.NewGradingWorker(queue.RDB, gradingService)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	for i := 0; i < config.AppConfig.GradingWorkerCount; i++ {
		go gradingWorker.Start(workerCtx)
	}
	fmt.Printf("%d grading worker(s) started.\n", config.AppConfig.GradingWorkerCount)

	// 9. Initialize Router & HTTP Server
	router := api.NewRouter(authService, challengeService, submissionService, progressService)

	server := &http.Server{
		Addr:         ":" + config.AppConfig.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 6 * time.Minute, // Sync grading holds the connection
		IdleTimeout:  120 * time.Second,
	}

	// 10. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", config.AppConfig.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", config.AppConfig.APIPort, err)
		}
	}()
	log.Println("Server started successfully.")

	<-stop // Wait for interrupt signal

	log.Println("Shutting down server...")
	workerCancel() // Signal workers to stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server and workers stopped gracefully.")
}
