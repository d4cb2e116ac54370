package resultscache

import "embed"

// migrationsFS embeds the submission-history schema as a goose
// migration directory so the binary has no runtime dependency on a
// migrations folder being present on disk.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS
