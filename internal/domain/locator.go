package domain

import (
	"fmt"
	"strings"
)

// Bucket обозначает логический бакет хранилища
type Bucket string

const (
	BucketStaging Bucket = "staging"
	BucketSecure  Bucket = "secure"
)

// PurgedLocator записывается вместо локатора после удаления объекта
const PurgedLocator = "purged"

// FormatLocator собирает непрозрачный локатор вида "<bucket>/<key>"
func FormatLocator(bucket Bucket, key string) string {
	return string(bucket) + "/" + key
}

// ParseLocator разбирает локатор, созданный FormatLocator
func ParseLocator(locator string) (Bucket, string, error) {
	bucket, key, ok := strings.Cut(locator, "/")
	if !ok || key == "" {
		return "", "", fmt.Errorf("%w: malformed storage locator %q", ErrInvalidArgument, locator)
	}
	switch Bucket(bucket) {
	case BucketStaging, BucketSecure:
		return Bucket(bucket), key, nil
	default:
		return "", "", fmt.Errorf("%w: unknown bucket in locator %q", ErrInvalidArgument, locator)
	}
}

// LocatorInBucket проверяет, что локатор указывает на объект в заданном бакете
func LocatorInBucket(locator string, bucket Bucket) bool {
	b, _, err := ParseLocator(locator)
	return err == nil && b == bucket
}

// StagingKey и SecureKey детерминированно выводятся из id файла,
// поэтому повторное подтверждение перезаписывает объект, а не плодит копии.
func StagingKey(fileID string) string {
	return "uploads/" + fileID
}

func SecureKey(fileID string) string {
	return "files/" + fileID
}
