package utils

import "golang.org/x/crypto/bcrypt"

// PasswordCost is lowered by tests; production keeps the default.
var PasswordCost = bcrypt.DefaultCost

func HashPassword(s string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(s), PasswordCost)
}

func ComparePassword(hashed string, normal string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(normal))
}
