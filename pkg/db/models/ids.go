package models

import "github.com/google/uuid"

// assignID fills an unset primary key with a time-ordered v7 uuid so rows
// sort by insertion without a separate sequence.
func assignID(id *uuid.UUID) error {
	if *id != uuid.Nil {
		return nil
	}
	v7, err := uuid.NewV7()
	if err != nil {
		return err
	}
	*id = v7
	return nil
}
