package postgresql

// migrations returns the schema migrations keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflow_definitions (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				version INTEGER NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE,
				UNIQUE (name, version)
			);

			CREATE TABLE IF NOT EXISTS workflow_instances (
				id TEXT PRIMARY KEY,
				workflow_name TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				status TEXT NOT NULL,
				version BIGINT NOT NULL,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			-- One active instance per (workflow, entity).
			CREATE UNIQUE INDEX IF NOT EXISTS workflow_instances_active_entity
				ON workflow_instances (workflow_name, entity_type, entity_id)
				WHERE status = 'active';

			-- Projection of the assignments inside the instance documents,
			-- rewritten on every instance save, for assignee-centric lookups.
			CREATE TABLE IF NOT EXISTS approval_assignments (
				id TEXT PRIMARY KEY,
				instance_id TEXT NOT NULL REFERENCES workflow_instances (id) ON DELETE CASCADE,
				assignee TEXT NOT NULL,
				action TEXT,
				due_at TIMESTAMP WITH TIME ZONE,
				document JSONB NOT NULL
			);

			CREATE INDEX IF NOT EXISTS approval_assignments_open_by_assignee
				ON approval_assignments (assignee)
				WHERE action IS NULL;

			CREATE INDEX IF NOT EXISTS approval_assignments_open_due
				ON approval_assignments (due_at)
				WHERE action IS NULL;

			CREATE TABLE IF NOT EXISTS approval_history (
				id TEXT PRIMARY KEY,
				instance_id TEXT NOT NULL,
				event_type TEXT NOT NULL,
				stage_number INTEGER,
				assignment_id TEXT,
				actor TEXT,
				payload JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS approval_history_by_instance
				ON approval_history (instance_id, created_at);

			CREATE TABLE IF NOT EXISTS assignment_cursors (
				definition_id TEXT NOT NULL,
				role TEXT NOT NULL,
				cursor BIGINT NOT NULL DEFAULT 0,
				PRIMARY KEY (definition_id, role)
			);
		`,
	}
}
