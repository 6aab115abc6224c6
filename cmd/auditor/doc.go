// Package main hosts the auditor service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, readiness, metrics and the /v1/sessions endpoints. Requests are
//     parsed into an audit.JobSpec, normalized and validated by the orchestrator, and answered with the session id.
//   - Orchestrator & queue: sessions flow through a bounded in-memory queue sized by limits.queue_depth and are
//     fanned out to a fixed worker pool sized by limits.max_concurrent_audits. The session tracker owns status
//     transitions and stop signals; a stopped session finishes its in-flight units and reports "stopped".
//   - Runners: each audit kind has a runner. Static and video captures fan out per URL, browser and viewport
//     behind kind-specific gates; inspections share one page per URL; unified sessions run every inspection.
//   - Persistence & fanout: artifacts land in the configured BlobStore (memory/local/GCS), session and result rows
//     in Postgres when a DSN is configured, and a completion message is published to Pub/Sub when a topic is set.
//     Progress events are batched by the progress Hub and handed to log and Prometheus sinks.
//   - Configuration & plumbing: Viper populates config from YAML and AUDITOR_* env vars; zap provides structured
//     logging; OpenTelemetry traces each unit; Prometheus metrics are served on /metrics.
//
// Operational notes:
//   - Chromium is started lazily on the first session; set browser.exec_path when it is not on PATH.
//   - Video sessions shell out to ffmpeg (artifacts.ffmpeg_path) and need scratch space in artifacts.temp_frames_dir.
//   - SIGINT/SIGTERM stop running sessions, mark queued ones stopped and close every client.
//
// Quick checklist:
//   - Run locally: go run ./cmd/auditor serve --config config.yaml
//   - One-shot: go run ./cmd/auditor run --kind heading --url example.com
package main
