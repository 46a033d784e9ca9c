// Package coordinator drives multi-turn, multi-session generation on top of a
// single stateful inference engine. It is structured into small files by
// concern:
//
//   - coordinator.go: core Coordinator type and simple getters.
//   - config.go: Config and package defaults; New applies defaults.
//   - params.go: per-session Params, defaults and validation.
//   - errors.go: Error kinds and helpers (IsTooBusy, IsConversationNotFound, ...).
//   - admission.go: bounded job queue in front of the worker.
//   - worker.go: the single worker goroutine and session completion.
//   - turn.go: the turn algorithm (tokenize, plan, prefill, generate, record).
//   - generate.go: Start, Cancel and session introspection.
//   - control.go: conversation operations serialized with turns.
//   - evict.go: conversation eviction under MaxConversations.
//   - status.go, persist.go, close.go: reporting, snapshots, drain.
//
// Every engine call, store write and cache belief update happens on the
// worker, in admission order. Callers interact through Handles, whose
// fragment channels are the only data shared with the worker.
package coordinator
