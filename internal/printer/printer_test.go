package printer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("returns error with title when including suggestions", func(t *testing.T) {
		err := Error("Test Error", "Explanation", []string{"Try this fix"})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("returns error with title for multiple suggestions", func(t *testing.T) {
		err := Error("Test Error", "Explanation", []string{
			"First option",
			"Second option",
		})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})
}

func TestTaskLine(t *testing.T) {
	t.Run("includes course when present", func(t *testing.T) {
		line := TaskLine("Physics Lab", "PHYS 101", "Wednesday, Mar 11 at 11:59 PM", false)
		require.Contains(t, line, "Physics Lab (PHYS 101)")
		require.Contains(t, line, "due Wednesday, Mar 11 at 11:59 PM")
	})

	t.Run("omits course when empty", func(t *testing.T) {
		line := TaskLine("Essay draft", "", "Friday, Mar 13 at 5:00 PM", false)
		require.Contains(t, line, "Essay draft")
		require.NotContains(t, line, "()")
	})

	t.Run("flags overdue tasks", func(t *testing.T) {
		line := TaskLine("Late quiz", "", "Monday, Mar 9 at 9:00 AM", true)
		require.Contains(t, line, "!")
		require.Contains(t, line, "Late quiz")
	})
}

// Note: The Error function prints formatted output to stderr with colors. The
// error object returned only contains the title for Cobra's error handling.
// This is intentional to avoid duplicate output while providing rich formatted errors.
