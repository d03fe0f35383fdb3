// Copyright (c) 2026 Townhub. All rights reserved.

package sec

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plain-text password using the bcrypt algorithm at
// the default cost. Each call embeds a fresh random salt, so hashing the
// same password twice yields two different digests.
func HashPassword(plainTextPassword string) (string, error) {
	return HashPasswordWithCost(plainTextPassword, bcrypt.DefaultCost)
}

// HashPasswordWithCost hashes a plain-text password at an explicit cost
// factor. The cost is deployment-tunable (see config.BcryptCost) so the
// work factor can grow with hardware.
func HashPasswordWithCost(plainTextPassword string, cost int) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainTextPassword), cost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// CheckPasswordHash compares a plain-text password with its hashed version
// using bcrypt's constant-time comparison.
//
// A malformed or truncated digest yields false, never an error or a panic:
// from the caller's point of view a corrupt stored hash is indistinguishable
// from a wrong password.
func CheckPasswordHash(plainTextPassword, existingHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(plainTextPassword))
	return err == nil
}
