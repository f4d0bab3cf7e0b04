// Package taskflow is the facade over the distributed task queue and
// message-dispatch engine in internal/core: a priority task queue, worker
// pool, result backend, chain/chord composition, scheduler, and monitor,
// wired together behind TaskSystem. Topic routing (package router) is a
// second, independent mode with no dependency on task execution.
package taskflow
