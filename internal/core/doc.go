// Package core implements the task execution engine and its closely
// coupled building blocks: the payload container, task record, priority
// queue, result backend, task context, worker pool, task client (with
// chain/chord composition), async result handles, scheduler and monitor.
//
// This package is internal: it is the engine itself. Collaborators that
// are out of the engine's scope but ship alongside it in this repository —
// logging sinks, serialization, wire transports, metrics exporters,
// configuration loading, CLI parsing — live in sibling packages and are
// wired into the engine only through the narrow interfaces this package
// exports: Handler, ResultBackend, Executor, Logger, MetricsSink.
//
// Construction
//
// Start from NewQueue and NewMemoryBackend (or a remote ResultBackend),
// register handlers on a NewHandlerRegistry, then NewPool to drain the
// queue. NewClient wraps the queue and backend for producers, including
// Chain and Chord workflow composition. The taskflow package at the
// module root assembles all of this into a single facade.
package core
