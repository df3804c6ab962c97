package narrative

import "github.com/null-channel/twitch-alerts/internal/domain"

// Media is the image and sound an overlay plays with an alert.
type Media struct {
	ImageURL string
	SoundURL string
}

// MediaConfig maps each event kind to its alert media. Missing kinds play nothing.
type MediaConfig map[domain.EventKind]Media

func (m MediaConfig) For(kind domain.EventKind) Media {
	return m[kind]
}
