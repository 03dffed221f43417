package model

// Level is the alert classification of a device reading.
type Level string

const (
	LevelAbsent Level = "absent"
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelNormal Level = "normal"
)

// Severity orders levels for comparison, higher is more severe.
func (l Level) Severity() int {
	switch l {
	case LevelLow:
		return 2
	case LevelMedium:
		return 1
	default:
		return 0
	}
}
