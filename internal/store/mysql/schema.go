package mysql

// Statements are executed one at a time: the driver rejects multi-statement
// Exec without multiStatements=true, which we do not enable.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS change_log (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		session_id VARCHAR(64) NOT NULL,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		row_id VARCHAR(255) NOT NULL,
		object_type VARCHAR(64) NOT NULL,
		operation_type VARCHAR(16) NOT NULL,
		success TINYINT(1) NOT NULL,
		resource_id BIGINT,
		error_message TEXT,
		before_state TEXT,
		after_state TEXT,
		INDEX idx_change_log_session (session_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS checkpoints (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		session_id VARCHAR(64) NOT NULL,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		batch_id INT NOT NULL,
		operation_index INT NOT NULL DEFAULT 0,
		completed_operations INT NOT NULL DEFAULT 0,
		total_operations INT NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'in_progress',
		input_hash VARCHAR(64) NOT NULL DEFAULT '',
		metadata TEXT,
		INDEX idx_checkpoints_session (session_id),
		INDEX idx_checkpoints_timestamp (timestamp)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS created_resources (
		session_id VARCHAR(64) NOT NULL,
		resource_type VARCHAR(32) NOT NULL,
		resource_key VARCHAR(255) NOT NULL,
		bam_id BIGINT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, resource_type, resource_key),
		INDEX idx_created_resources_session (session_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}
