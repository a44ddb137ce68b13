// Package all registers every storage backend.
package all

import (
	_ "github.com/rodrigobaldaia/data-onboarding/internal/storage/mssql"
	_ "github.com/rodrigobaldaia/data-onboarding/internal/storage/objstore"
	_ "github.com/rodrigobaldaia/data-onboarding/internal/storage/postgres"
	_ "github.com/rodrigobaldaia/data-onboarding/internal/storage/sqlite"
)
