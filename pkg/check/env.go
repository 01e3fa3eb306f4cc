package check

import "os"

// overrideEnv sets an environment variable for the duration of a check
// and returns the undo that restores the previous state.
func overrideEnv(key, value string) func() {
	prev, had := os.LookupEnv(key)
	os.Setenv(key, value)

	return func() {
		if had {
			os.Setenv(key, prev)
			return
		}

		os.Unsetenv(key)
	}
}
