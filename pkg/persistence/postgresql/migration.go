package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create journeys table
			CREATE TABLE journeys (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'paused', 'completed', 'archived')),
				version INTEGER NOT NULL DEFAULT 1,
				trigger JSONB NOT NULL,
				custom_variables JSONB,
				analytics JSONB,
				created_by VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_journeys_status ON journeys(status);
			CREATE INDEX idx_journeys_created_at ON journeys(created_at);
			CREATE INDEX idx_journeys_deleted_at ON journeys(deleted_at);

			-- Create journey_nodes table
			CREATE TABLE journey_nodes (
				journey_id VARCHAR(255) NOT NULL REFERENCES journeys(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				ordinal INTEGER NOT NULL,
				node_type VARCHAR(50) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				config JSONB DEFAULT '{}',
				next JSONB DEFAULT '[]',
				position_x DOUBLE PRECISION DEFAULT 0,
				position_y DOUBLE PRECISION DEFAULT 0,
				PRIMARY KEY (journey_id, id)
			);

			CREATE INDEX idx_journey_nodes_journey_id ON journey_nodes(journey_id);
			CREATE INDEX idx_journey_nodes_type ON journey_nodes(node_type);

			-- Immutable definition snapshots, one per published version
			CREATE TABLE journey_versions (
				journey_id VARCHAR(255) NOT NULL,
				version INTEGER NOT NULL,
				definition JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (journey_id, version)
			);
		`,
		2: `
			-- Create journey_executions table
			CREATE TABLE journey_executions (
				id VARCHAR(255) PRIMARY KEY,
				journey_id VARCHAR(255) NOT NULL,
				journey_version INTEGER NOT NULL,
				customer_id VARCHAR(255) NOT NULL,
				current_node_id VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'completed', 'failed', 'exited')),
				history JSONB NOT NULL DEFAULT '[]',
				context JSONB NOT NULL DEFAULT '{}',
				failure_reason TEXT NOT NULL DEFAULT '',
				exit_reason TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_journey_executions_journey_id ON journey_executions(journey_id);
			CREATE INDEX idx_journey_executions_status ON journey_executions(status);

			-- A customer has at most one active execution per journey
			CREATE UNIQUE INDEX idx_journey_executions_active
				ON journey_executions(journey_id, customer_id) WHERE status = 'active';

			-- Create delivery_events table
			CREATE TABLE delivery_events (
				id VARCHAR(255) PRIMARY KEY,
				journey_id VARCHAR(255) NOT NULL,
				execution_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				customer_id VARCHAR(255) NOT NULL DEFAULT '',
				channel VARCHAR(50) NOT NULL,
				event_type VARCHAR(50) NOT NULL,
				message_id VARCHAR(255) NOT NULL DEFAULT '',
				occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_delivery_events_journey_id ON delivery_events(journey_id);
			CREATE INDEX idx_delivery_events_occurred_at ON delivery_events(occurred_at);
		`,
		3: `
			-- Create approval_requests table
			CREATE TABLE approval_requests (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				journey_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				customer_id VARCHAR(255) NOT NULL,
				channel VARCHAR(50) NOT NULL,
				content JSONB NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
				requested_at TIMESTAMP WITH TIME ZONE NOT NULL,
				decided_at TIMESTAMP WITH TIME ZONE,
				decided_by VARCHAR(255) NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_approval_requests_status ON approval_requests(status);

			-- Create journey_schedules table
			CREATE TABLE journey_schedules (
				journey_id VARCHAR(255) PRIMARY KEY,
				id VARCHAR(255) NOT NULL,
				cron_expression VARCHAR(255) NOT NULL,
				segment_id VARCHAR(255) NOT NULL DEFAULT '',
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_run_at TIMESTAMP WITH TIME ZONE,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_journey_schedules_next_due_at ON journey_schedules(next_due_at) WHERE active;
		`,
	}
}
