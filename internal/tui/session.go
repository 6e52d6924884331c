package tui

import (
	"hash/fnv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish/bubbletea"
	gossh "golang.org/x/crypto/ssh"
)

// Handler builds one dashboard per SSH session from the shared services.
func Handler(base Services) bubbletea.Handler {
	return func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
		svc := base
		svc.Username = s.User()
		fingerprint := ""
		if key := s.PublicKey(); key != nil {
			fingerprint = gossh.FingerprintSHA256(key)
		}
		svc.SessionID = SessionID(s.User(), fingerprint)

		model := NewAppModel(svc)
		pty, _, _ := s.Pty()
		model.SetSize(pty.Window.Width, pty.Window.Height)

		return model, []tea.ProgramOption{tea.WithAltScreen()}
	}
}

// SessionID derives a stable conversation key from the SSH identity so
// /ask history survives reconnects. The top bit is cleared to keep it
// positive.
func SessionID(user, fingerprint string) int64 {
	h := fnv.New64a()
	h.Write([]byte(user))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	return int64(h.Sum64() &^ (1 << 63))
}
