package client

// Mode declares what kind of browsing context hosts the client. The hosting
// page supplies it at construction time; guessing from window relationships
// is fragile across origins and kept only as the ModeAuto fallback.
type Mode int

const (
	// ModeAuto falls back to the opener/artifact heuristic.
	ModeAuto Mode = iota

	// ModePrimary is the main application window.
	ModePrimary

	// ModeAuthWindow is a secondary popup/iframe whose sole job is
	// completing the handshake; business logic must not run in it.
	ModeAuthWindow
)

// Environment abstracts the hosting browser window.
type Environment interface {
	// HasOpener reports whether an opener or parent window is present.
	HasOpener() bool

	// HasAuthArtifacts reports whether the current URL carries handshake
	// artifacts (code/state/error).
	HasAuthArtifacts() bool

	// StripAuthArtifacts removes handshake artifacts from the URL via
	// history replacement so tokens never land in browser history.
	StripAuthArtifacts()

	// CloseWindow closes the current window (auth windows only).
	CloseWindow()

	// Visible signals transitions of the tab to the visible state. Timers
	// pause in background tabs, so visibility is a refresh trigger.
	Visible() <-chan struct{}
}
