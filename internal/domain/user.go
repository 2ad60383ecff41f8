package domain

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// User represents a chat participant. Identity is the unique username; the
// record ID is only populated when the user was loaded from SurrealDB.
type User struct {
	ID        *surrealmodels.RecordID `json:"id,omitempty"`
	Username  string                  `json:"username"`
	CreatedAt time.Time               `json:"createdAt,omitempty"`
}
