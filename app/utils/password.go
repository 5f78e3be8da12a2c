package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength 登录密码最短长度
const MinPasswordLength = 8

// HashPassword 生成写入 auth.password_hash 的 bcrypt 哈希
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", errors.New("密码长度不能少于 8 位")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword 校验密码，哈希为空时一律不通过
func VerifyPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
