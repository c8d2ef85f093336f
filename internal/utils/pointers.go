package utils

import "time"

func StringPtr(s string) *string {
	return &s
}

// StringPtrOrNil treats the empty string as absent.
func StringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func TimePtr(t time.Time) *time.Time {
	return &t
}
