package model

import "go.mongodb.org/mongo-driver/bson/primitive"

// NewID returns a fresh ObjectID in hex form. Both store backends use it so
// identifier syntax does not depend on the configured driver.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// ValidID reports whether s is a well-formed identifier.
func ValidID(s string) bool {
	return primitive.IsValidObjectID(s)
}
