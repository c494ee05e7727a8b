package constants

// SandboxExcludes are glob patterns left out of copy_out archives, file
// listings, and the memory index.
//
//nolint:gochecknoglobals // Constant-like lookup table
var SandboxExcludes = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/dist/**",
	"**/build/**",
	"**/.next/**",
	"**/__pycache__/**",
	"**/.venv/**",
	"**/venv/**",
	"**/vendor/**",
	"**/target/**",
	"**/.forge/**",
}

// ExcludedDirNames are the directory basenames matching SandboxExcludes, used
// where a runtime tool needs plain names rather than globs.
//
//nolint:gochecknoglobals // Constant-like lookup table
var ExcludedDirNames = []string{
	"node_modules", ".git", "dist", "build", ".next", "__pycache__", ".venv", "venv", "vendor", "target", ".forge",
}
