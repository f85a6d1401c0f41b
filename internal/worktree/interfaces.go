package worktree

import "context"

// Lifecycle is the part of Manager the coordinators depend on. Tests can
// substitute their own implementation.
type Lifecycle interface {
	// Create adds a worktree at path on a new branch from HEAD.
	Create(ctx context.Context, path, branch string) (Handle, error)

	// Remove deletes a worktree. It never fails.
	Remove(ctx context.Context, path string)

	// With scopes a worktree to the lifetime of fn.
	With(ctx context.Context, path, branch string, fn func(Handle) error) error

	// PathFor returns the deterministic worktree path for branch.
	PathFor(branch string) string

	// RemoveForBranch removes every worktree checked out on branch.
	RemoveForBranch(ctx context.Context, branch string) int
}

// Ensure Manager implements Lifecycle at compile time.
var _ Lifecycle = (*Manager)(nil)
