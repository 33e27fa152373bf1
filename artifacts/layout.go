package artifacts

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/amp-labs/e2e-harness/attempt"
	"github.com/amp-labs/e2e-harness/sanitize"
)

// DefaultRoot is the artifacts directory used unless configured otherwise.
const DefaultRoot = "playwright-report"

// Artifact kinds, also the sub-directory each kind is written to.
const (
	KindScreenshot = "screenshots"
	KindTrace      = "traces"
	KindVideo      = "videos"
	KindConsole    = "logs"
)

// timestampLayout is yyyyMMddHHmmss.
const timestampLayout = "20060102150405"

// Layout maps artifact names to paths under Root.
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at root, or DefaultRoot when root is empty.
func NewLayout(root string) Layout {
	if root == "" {
		root = DefaultRoot
	}

	return Layout{Root: root}
}

// Dir returns the directory artifacts of kind are written to.
func (l Layout) Dir(kind string) string {
	return filepath.Join(l.Root, kind)
}

// Screenshot returns the path of the failure screenshot for name.
func (l Layout) Screenshot(name string) string {
	return filepath.Join(l.Dir(KindScreenshot), name+".png")
}

// Trace returns the path of the trace archive for name.
func (l Layout) Trace(name string) string {
	return filepath.Join(l.Dir(KindTrace), name+".zip")
}

// Video returns the path the recording for name is saved to.
func (l Layout) Video(name string) string {
	return filepath.Join(l.Dir(KindVideo), name+".webm")
}

// Console returns the path of the console transcript for name.
func (l Layout) Console(name string) string {
	return filepath.Join(l.Dir(KindConsole), name+".log")
}

// Name builds the identity shared by every artifact of one attempt:
//
//	<Class>_<Method>-attempt<N>-<yyyyMMddHHmmss>
//
// Class and Method are sanitized; missing halves read "Test" and "method".
func Name(test attempt.Test, n int, at time.Time) string {
	return fmt.Sprintf("%s_%s-attempt%d-%s",
		sanitize.NameOr(test.Class, "Test"),
		sanitize.NameOr(test.Method, "method"),
		max(attempt.Default, n),
		at.Format(timestampLayout),
	)
}
