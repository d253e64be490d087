package detectionRepository

import (
	"context"
	"database/sql"
	"time"

	"FaunaVision/internal/entity"
	contextPkg "FaunaVision/pkg/context"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type DetectionJobDB struct {
	ID              sql.NullString `db:"id"`
	ModelID         sql.NullString `db:"model_id"`
	ImageName       sql.NullString `db:"image_name"`
	ImageURL        sql.NullString `db:"image_url"`
	AnnotationCount sql.NullInt64  `db:"annotation_count"`
	Error           sql.NullString `db:"error"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (j DetectionJobDB) toEntity() entity.DetectionJob {
	return entity.DetectionJob{
		ID:              j.ID.String,
		ModelID:         j.ModelID.String,
		ImageName:       j.ImageName.String,
		ImageURL:        j.ImageURL.String,
		AnnotationCount: int(j.AnnotationCount.Int64),
		Error:           j.Error.String,
		CreatedAt:       j.CreatedAt,
	}
}

func (r *jobRepository) CreateJob(c context.Context, job entity.DetectionJob) error {
	requestID := contextPkg.GetRequestID(c)
	argsKV := map[string]interface{}{
		"id":               job.ID,
		"model_id":         job.ModelID,
		"image_name":       job.ImageName,
		"image_url":        job.ImageURL,
		"annotation_count": job.AnnotationCount,
		"error":            job.Error,
		"created_at":       job.CreatedAt,
	}

	query, args, err := sqlx.Named(queryCreateJob, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for CreateJob")
		return err
	}
	query = r.q.Rebind(query)

	_, err = r.q.ExecContext(c, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when creating detection job")

		return err
	}

	return nil
}

func (r *jobRepository) GetRecentJobs(c context.Context, limit int) ([]entity.DetectionJob, error) {
	requestID := contextPkg.GetRequestID(c)

	if limit <= 0 {
		limit = 50
	}

	argsKV := map[string]interface{}{
		"limit": limit,
	}

	query, args, err := sqlx.Named(queryGetRecentJobs, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetRecentJobs named query preparation err")
		return nil, err
	}
	query = r.q.Rebind(query)

	var rows []DetectionJobDB
	if err := r.q.SelectContext(c, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when fetching recent detection jobs")
		return nil, err
	}

	jobs := make([]entity.DetectionJob, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.toEntity())
	}

	return jobs, nil
}

func (r *jobRepository) GetJobsByModel(c context.Context, modelID string, limit int) ([]entity.DetectionJob, error) {
	requestID := contextPkg.GetRequestID(c)

	if limit <= 0 {
		limit = 50
	}

	argsKV := map[string]interface{}{
		"model_id": modelID,
		"limit":    limit,
	}

	query, args, err := sqlx.Named(queryGetJobsByModel, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetJobsByModel named query preparation err")
		return nil, err
	}
	query = r.q.Rebind(query)

	var rows []DetectionJobDB
	if err := r.q.SelectContext(c, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when fetching detection jobs by model")
		return nil, err
	}

	jobs := make([]entity.DetectionJob, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.toEntity())
	}

	return jobs, nil
}
