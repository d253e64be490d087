package detectionRepository

const (
	queryCreateJob = `
		INSERT INTO detection_jobs (
			id,
			model_id,
			image_name,
			image_url,
			annotation_count,
			error,
			created_at
		) VALUES (
			:id,
			:model_id,
			:image_name,
			:image_url,
			:annotation_count,
			:error,
			:created_at
		)
	`

	queryGetRecentJobs = `
		SELECT
			id,
			model_id,
			image_name,
			image_url,
			annotation_count,
			error,
			created_at
		FROM detection_jobs
		ORDER BY created_at DESC
		LIMIT :limit
	`

	queryGetJobsByModel = `
		SELECT
			id,
			model_id,
			image_name,
			image_url,
			annotation_count,
			error,
			created_at
		FROM detection_jobs
		WHERE model_id = :model_id
		ORDER BY created_at DESC
		LIMIT :limit
	`
)
