package utils

import "fmt"

// ValidateCoordinates checks that a position is a real point on the globe
func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90")
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude must be between -180 and 180")
	}
	return nil
}

// ValidateMessageContent bounds chat message size
func ValidateMessageContent(content string) error {
	if content == "" {
		return fmt.Errorf("message content is required")
	}
	if len(content) > 4096 {
		return fmt.Errorf("message content exceeds 4096 bytes")
	}
	return nil
}
