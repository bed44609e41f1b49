package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/affinity/pkg/models"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const jobTTL = 24 * time.Hour

// JobManager tracks asynchronous personalization requests in Redis.
type JobManager struct {
	redis  *redis.Client // hot tier
	logger *logrus.Logger
}

func NewJobManager(redisClient *redis.Client, logger *logrus.Logger) *JobManager {
	return &JobManager{
		redis:  redisClient,
		logger: logger,
	}
}

func (jm *JobManager) CreateJob(ctx context.Context, agentCount int) (*models.PersonalizationJob, error) {
	now := time.Now()
	job := &models.PersonalizationJob{
		JobID:      uuid.New(),
		Status:     JobStatusQueued,
		AgentCount: agentCount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := jm.storeJob(ctx, job); err != nil {
		return nil, err
	}

	jm.logger.WithFields(logrus.Fields{
		"job_id": job.JobID,
		"agents": agentCount,
	}).Info("Personalization job created")

	return job, nil
}

func (jm *JobManager) GetJob(ctx context.Context, jobID uuid.UUID) (*models.PersonalizationJob, error) {
	data, err := jm.redis.Get(ctx, jobKey(jobID)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job: %w", err)
	}

	var job models.PersonalizationJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (jm *JobManager) MarkProcessing(ctx context.Context, jobID uuid.UUID) error {
	return jm.update(ctx, jobID, func(job *models.PersonalizationJob) {
		job.Status = JobStatusProcessing
	})
}

func (jm *JobManager) CompleteJob(ctx context.Context, jobID uuid.UUID, result *models.PersonalizeResponse) error {
	return jm.update(ctx, jobID, func(job *models.PersonalizationJob) {
		job.Status = JobStatusCompleted
		job.Result = result
	})
}

func (jm *JobManager) FailJob(ctx context.Context, jobID uuid.UUID, errorMessage string) error {
	return jm.update(ctx, jobID, func(job *models.PersonalizationJob) {
		job.Status = JobStatusFailed
		job.ErrorMessage = &errorMessage
	})
}

func (jm *JobManager) update(ctx context.Context, jobID uuid.UUID, apply func(*models.PersonalizationJob)) error {
	job, err := jm.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	apply(job)
	job.UpdatedAt = time.Now()

	if err := jm.storeJob(ctx, job); err != nil {
		return err
	}

	jm.logger.WithFields(logrus.Fields{
		"job_id": jobID,
		"status": job.Status,
	}).Debug("Job updated")

	return nil
}

func (jm *JobManager) storeJob(ctx context.Context, job *models.PersonalizationJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := jm.redis.Set(ctx, jobKey(job.JobID), data, jobTTL).Err(); err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	return nil
}

func jobKey(jobID uuid.UUID) string {
	return fmt.Sprintf("personalization:job:%s", jobID)
}
