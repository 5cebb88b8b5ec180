// Package taskd is a single-node job daemon.
//
// It stores versioned code bundles per project, queues run requests for the
// tasks those bundles declare and runs each request as a supervised OS
// process under a global concurrency budget:
//
//   - artifact  – versioned bundles per project (memory or any afs URL)
//   - queue     – per-project FIFO with round-robin admission across projects
//   - ledger    – durable record of every job and its state transitions
//   - launcher  – slot accounting, process supervision, cancel and retry
//
// Callers embed the daemon through the Service facade exposed by the root
// package:
//
//	srv, _ := taskd.New(ctx, taskd.WithConfig(cfg))
//	_ = srv.Start(ctx)
//	_, _ = srv.UploadVersion(ctx, "quotesbot", "1", bundle)
//	receipt, _ := srv.Enqueue(ctx, &taskd.EnqueueRequest{Project: "quotesbot", Task: "spiderA"})
//	aJob, _ := srv.JobStatus(ctx, receipt.JobID)
//
// The cmd/taskd binary wires the same service from a YAML configuration.
package taskd

// Version of the daemon reported to tracing.
const Version = "0.1.0"
