// ABOUTME: Selection policy for choosing which artifact to disable
// ABOUTME: NewestSelector picks the most recently modified enabled jar

package plugins

// Selector chooses the artifact to disable from a set of enabled artifacts.
// The boolean is false when nothing should be disabled.
type Selector interface {
	Select(enabled []Artifact) (Artifact, bool)
}

// NewestSelector selects the artifact with the latest modification time,
// breaking ties by name.
type NewestSelector struct{}

// Select implements Selector.
func (NewestSelector) Select(enabled []Artifact) (Artifact, bool) {
	if len(enabled) == 0 {
		return Artifact{}, false
	}
	best := enabled[0]
	for _, a := range enabled[1:] {
		if a.ModTime.After(best.ModTime) || (a.ModTime.Equal(best.ModTime) && a.Name < best.Name) {
			best = a
		}
	}
	return best, true
}

// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(enabled []Artifact) (Artifact, bool)

// Select implements Selector.
func (f SelectorFunc) Select(enabled []Artifact) (Artifact, bool) {
	return f(enabled)
}
