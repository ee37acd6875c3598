package user

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

var (
	userIDRegex  = regexp.MustCompile(`^\d{4}-\d{6}$`)
	userIDSerial = big.NewInt(1000000)
)

// GenerateUserID returns a human readable id: the year of `at`, a dash and 6 random digits.
func GenerateUserID(at time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, userIDSerial)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d-%06d", at.Year(), n.Int64()), nil
}

func IsValidUserID(id string) bool {
	return userIDRegex.MatchString(id)
}
