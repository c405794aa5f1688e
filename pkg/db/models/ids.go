package models

import "github.com/google/uuid"

// assignID fills a missing primary key. Postgres defaults exist too, but rows
// are also created under SQLite where gen_random_uuid() is unavailable.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
