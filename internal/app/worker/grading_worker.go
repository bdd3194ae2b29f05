package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Anzful/devtrain/internal/app/service"
	"github.com/Anzful/devtrain/internal/domain/model"
	"github.com/Anzful/devtrain/internal/platform/config"

	"github.com/redis/go-redis/v9"
)

// GradingWorker consumes grading jobs from the Redis list queue. Delivery is
// at-least-once: a job that fails before the terminal submission write is
// requeued, and GradingService.Grade is idempotent so repeats are harmless.
// Several worker instances may pull from the same queue.
type GradingWorker struct {
	rdb            *redis.Client
	gradingService *service.GradingService
}

func NewGradingWorker(rdb *redis.Client, gradingService *service.GradingService) *GradingWorker {
	return &GradingWorker{rdb: rdb, gradingService: gradingService}
}

func (w *GradingWorker) Start(ctx context.Context) {
	log.Println("Grading worker started, listening to queue:", config.AppConfig.GradingQueueName)
	for {
		select {
		case <-ctx.Done():
			log.Println("Grading worker stopping...")
			return
		default:
			// Blocking pop from Redis queue
			popped, err := w.rdb.BRPop(ctx, 0*time.Second, config.AppConfig.GradingQueueName).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					log.Printf("Worker BRPop exiting or timed out: %v", err)
					time.Sleep(1 * time.Second) // Avoid busy-looping on certain errors
					continue
				}
				log.Printf("ERROR: Failed to BRPop from queue '%s': %v", config.AppConfig.GradingQueueName, err)
				time.Sleep(5 * time.Second) // Wait before retrying on other errors
				continue
			}

			// popped is [queueName, value]
			if len(popped) < 2 || popped[1] == "" {
				log.Println("WARN: BRPop returned empty job payload.")
				continue
			}
			w.processJob(ctx, popped[1])
		}
	}
}

func (w *GradingWorker) processJob(ctx context.Context, payload string) {
	var job model.GradingJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		log.Printf("ERROR: Dropping malformed grading job payload %q: %v", payload, err)
		return
	}
	log.Printf("INFO: Worker picked up grading job for submission %s (attempt %d)", job.SubmissionID, job.Attempts+1)

	// Per-job deadline so one pathological challenge cannot pin a worker.
	jobCtx, cancel := context.WithTimeout(ctx, config.AppConfig.GradingTimeout)
	defer cancel()

	_, err := w.gradingService.Grade(jobCtx, job.SubmissionID)
	if err == nil {
		return
	}
	log.Printf("ERROR: Grading attempt for submission %s failed: %v", job.SubmissionID, err)

	job.Attempts++
	if job.Attempts < config.AppConfig.GradingMaxAttempts {
		w.requeueJob(ctx, job)
		return
	}

	// Out of attempts: the submission must not stay pending forever.
	diagnostic := fmt.Sprintf("grading failed after %d attempts: %v", job.Attempts, err)
	if err := w.gradingService.MarkFailed(ctx, job.SubmissionID, diagnostic); err != nil {
		log.Printf("ERROR: Failed to mark submission %s as failed: %v", job.SubmissionID, err)
	}
}

func (w *GradingWorker) requeueJob(ctx context.Context, job model.GradingJob) {
	payload, err := json.Marshal(job)
	if err != nil {
		log.Printf("ERROR: Failed to marshal grading job for requeue: %v", err)
		return
	}
	if err := w.rdb.RPush(ctx, config.AppConfig.GradingQueueName, payload).Err(); err != nil {
		log.Printf("ERROR: Failed to requeue grading job for submission %s: %v", job.SubmissionID, err)
	} else {
		log.Printf("INFO: Grading job for submission %s requeued (attempt %d).", job.SubmissionID, job.Attempts)
	}
}
