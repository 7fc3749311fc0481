package records

import "time"

// ============================================================================
// Row Helper Functions
// ============================================================================

func getStringFromRow(row map[string]any, key string) string {
	val, ok := row[key]
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getTimeFromRow(row map[string]any, key string) time.Time {
	val, ok := row[key]
	if !ok || val == nil {
		return time.Time{}
	}
	// Graph datetime values come back as time.Time
	if t, ok := val.(time.Time); ok {
		return t
	}
	if str, ok := val.(string); ok {
		if t, err := time.Parse(time.RFC3339, str); err == nil {
			return t
		}
	}
	return time.Time{}
}

func getStringSliceFromRow(row map[string]any, key string) []string {
	val, ok := row[key]
	if !ok || val == nil {
		return nil
	}
	if slice, ok := val.([]any); ok {
		result := make([]string, 0, len(slice))
		for _, v := range slice {
			if str, ok := v.(string); ok {
				result = append(result, str)
			}
		}
		return result
	}
	return nil
}
