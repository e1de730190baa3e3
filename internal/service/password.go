package service

import "golang.org/x/crypto/bcrypt"

func comparePassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
