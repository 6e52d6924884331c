package tui

import (
	"strings"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	gossh "golang.org/x/crypto/ssh"
)

// FingerprintAuth accepts public keys whose SHA256 fingerprint is in
// allowed. Entries may omit the "SHA256:" prefix. An empty list rejects
// every key.
func FingerprintAuth(allowed []string) ssh.PublicKeyHandler {
	set := make(map[string]struct{}, len(allowed))
	for _, fp := range allowed {
		fp = strings.TrimSpace(fp)
		if fp == "" {
			continue
		}
		if !strings.HasPrefix(fp, "SHA256:") {
			fp = "SHA256:" + fp
		}
		set[fp] = struct{}{}
	}

	return func(ctx ssh.Context, key ssh.PublicKey) bool {
		fingerprint := gossh.FingerprintSHA256(key)
		if _, ok := set[fingerprint]; !ok {
			log.Warn("SSH auth denied", "fingerprint", fingerprint)
			return false
		}
		log.Info("SSH auth accepted", "fingerprint", fingerprint)
		return true
	}
}
