package artifacts

// Config decides which artifacts are captured for an attempt.
type Config struct {
	ScreenshotOnFail bool
	TraceEnabled     bool
	RecordVideo      bool
	// Suppressed turns off screenshot, trace and video capture for one test
	// (the no-artifacts tag). The console transcript is kept regardless.
	Suppressed bool
}

// Screenshots reports whether a failed attempt gets a screenshot.
func (c Config) Screenshots() bool {
	return c.ScreenshotOnFail && !c.Suppressed
}

// Traces reports whether attempts are traced.
func (c Config) Traces() bool {
	return c.TraceEnabled && !c.Suppressed
}

// Videos reports whether attempts are recorded.
func (c Config) Videos() bool {
	return c.RecordVideo && !c.Suppressed
}
