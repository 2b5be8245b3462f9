package identity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// Resolve derives the stable content id for a source locator. The id is the
// lowercase hex MD5 digest of the locator bytes, so the same locator always
// maps to the same record no matter which run observed it first.
func Resolve(locator string) (string, error) {
	if strings.TrimSpace(locator) == "" {
		return "", fmt.Errorf("locator is empty")
	}

	sum := md5.Sum([]byte(locator))
	return hex.EncodeToString(sum[:]), nil
}
