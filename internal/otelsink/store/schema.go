package store

// schemaSQL creates the three record tables, their surrogate-id sequences,
// and the indexes the query engine relies on. Idempotent: safe to run on
// every Open.
const schemaSQL = `
CREATE SEQUENCE IF NOT EXISTS logs_id_seq;
CREATE SEQUENCE IF NOT EXISTS metric_id_seq;

CREATE TABLE IF NOT EXISTS logs (
	id BIGINT PRIMARY KEY,
	ts TIMESTAMP NOT NULL,
	service VARCHAR NOT NULL,
	severity INTEGER NOT NULL,
	trace_id VARCHAR,
	span_id VARCHAR,
	body VARCHAR NOT NULL,
	attrs_json VARCHAR NOT NULL,
	attrs_text VARCHAR NOT NULL
);

CREATE TABLE IF NOT EXISTS spans (
	trace_id VARCHAR NOT NULL,
	span_id VARCHAR NOT NULL,
	parent_span_id VARCHAR,
	service VARCHAR NOT NULL,
	name VARCHAR NOT NULL,
	start_ts TIMESTAMP NOT NULL,
	end_ts TIMESTAMP NOT NULL,
	status VARCHAR NOT NULL,
	attrs_json VARCHAR NOT NULL,
	events_json VARCHAR NOT NULL,
	PRIMARY KEY (trace_id, span_id)
);

CREATE TABLE IF NOT EXISTS metric_points (
	id BIGINT PRIMARY KEY,
	ts TIMESTAMP NOT NULL,
	name VARCHAR NOT NULL,
	service VARCHAR NOT NULL,
	value DOUBLE NOT NULL,
	attrs_json VARCHAR NOT NULL
);

CREATE INDEX IF NOT EXISTS logs_ts_idx ON logs (ts);
CREATE INDEX IF NOT EXISTS logs_service_ts_idx ON logs (service, ts);
CREATE INDEX IF NOT EXISTS logs_trace_id_idx ON logs (trace_id);
CREATE INDEX IF NOT EXISTS logs_span_id_idx ON logs (span_id);

CREATE INDEX IF NOT EXISTS spans_trace_id_idx ON spans (trace_id);
CREATE INDEX IF NOT EXISTS spans_service_start_ts_idx ON spans (service, start_ts);

CREATE INDEX IF NOT EXISTS metric_points_name_ts_idx ON metric_points (name, ts);
CREATE INDEX IF NOT EXISTS metric_points_service_ts_idx ON metric_points (service, ts);
`
