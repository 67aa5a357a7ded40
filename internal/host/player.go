package host

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dshills/musicbox/internal/plugin/api"
)

// ErrEmptyPlaylist is returned by transport operations with nothing queued.
var ErrEmptyPlaylist = errors.New("playlist is empty")

// Publisher receives host events.
type Publisher interface {
	Emit(topic string, data any)
}

// PlaybackState is the payload of player:playbackStateChanged.
type PlaybackState struct {
	Playing  bool    `json:"playing"`
	Position float64 `json:"position"`
}

// Player is an in-memory player. It keeps a playlist and a cursor and
// publishes the player: topics as its state changes; no audio is produced.
type Player struct {
	events Publisher

	mu       sync.Mutex
	playlist []api.Track
	index    int
	playing  bool
	volume   float64
	position float64
}

// NewPlayer creates a stopped player at full volume. events may be nil.
func NewPlayer(events Publisher) *Player {
	return &Player{events: events, volume: 1, index: -1}
}

func (p *Player) emit(topic string, data any) {
	if p.events != nil {
		p.events.Emit(topic, data)
	}
}

func (p *Player) current() *api.Track {
	if p.index < 0 || p.index >= len(p.playlist) {
		return nil
	}
	t := p.playlist[p.index]
	return &t
}

// Play starts playback of the current track.
func (p *Player) Play(context.Context) error {
	p.mu.Lock()
	if p.current() == nil {
		p.mu.Unlock()
		return ErrEmptyPlaylist
	}
	changed := !p.playing
	p.playing = true
	state := PlaybackState{Playing: true, Position: p.position}
	p.mu.Unlock()

	if changed {
		p.emit(api.TopicPlaybackStateChanged, state)
	}
	return nil
}

// Pause stops playback, keeping the position.
func (p *Player) Pause(context.Context) error {
	p.mu.Lock()
	changed := p.playing
	p.playing = false
	state := PlaybackState{Position: p.position}
	p.mu.Unlock()

	if changed {
		p.emit(api.TopicPlaybackStateChanged, state)
	}
	return nil
}

// Stop stops playback and rewinds.
func (p *Player) Stop(context.Context) error {
	p.mu.Lock()
	changed := p.playing || p.position != 0
	p.playing = false
	p.position = 0
	p.mu.Unlock()

	if changed {
		p.emit(api.TopicPlaybackStateChanged, PlaybackState{})
		p.emit(api.TopicPositionChanged, 0.0)
	}
	return nil
}

// Next advances to the following track, wrapping at the end.
func (p *Player) Next(context.Context) error {
	return p.step(1)
}

// Previous moves to the preceding track, wrapping at the start.
func (p *Player) Previous(context.Context) error {
	return p.step(-1)
}

func (p *Player) step(delta int) error {
	p.mu.Lock()
	n := len(p.playlist)
	if n == 0 {
		p.mu.Unlock()
		return ErrEmptyPlaylist
	}
	p.index = ((p.index+delta)%n + n) % n
	p.position = 0
	track := *p.current()
	p.mu.Unlock()

	p.trackChanged(track)
	return nil
}

func (p *Player) trackChanged(track api.Track) {
	p.emit(api.TopicTrackLoaded, track)
	p.emit(api.TopicTrackChanged, track)
	p.emit(api.TopicDurationChanged, track.Duration)
}

// SetVolume sets the volume in [0,1].
func (p *Player) SetVolume(_ context.Context, volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume %v out of range [0,1]", volume)
	}
	p.mu.Lock()
	changed := p.volume != volume
	p.volume = volume
	p.mu.Unlock()

	if changed {
		p.emit(api.TopicVolumeChanged, volume)
	}
	return nil
}

// Volume returns the current volume.
func (p *Player) Volume(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume, nil
}

// CurrentTrack returns the track under the cursor, or nil.
func (p *Player) CurrentTrack(context.Context) (*api.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current(), nil
}

// Playlist returns a copy of the queued tracks.
func (p *Player) Playlist(context.Context) ([]api.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.playlist), nil
}

// SetPlaylist replaces the queue and moves the cursor to index.
func (p *Player) SetPlaylist(_ context.Context, tracks []api.Track, index int) error {
	if len(tracks) > 0 && (index < 0 || index >= len(tracks)) {
		return fmt.Errorf("playlist index %d out of range [0,%d)", index, len(tracks))
	}
	p.mu.Lock()
	p.playlist = slices.Clone(tracks)
	p.position = 0
	if len(tracks) == 0 {
		p.index = -1
		p.playing = false
		p.mu.Unlock()
		return nil
	}
	p.index = index
	track := *p.current()
	p.mu.Unlock()

	p.trackChanged(track)
	return nil
}

// Seek moves the position within the current track.
func (p *Player) Seek(_ context.Context, position float64) error {
	p.mu.Lock()
	t := p.current()
	if t == nil {
		p.mu.Unlock()
		return ErrEmptyPlaylist
	}
	if position < 0 || (t.Duration > 0 && position > t.Duration) {
		p.mu.Unlock()
		return fmt.Errorf("position %v out of range", position)
	}
	p.position = position
	p.mu.Unlock()

	p.emit(api.TopicPositionChanged, position)
	return nil
}

// Position returns the playback position in seconds.
func (p *Player) Position(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, nil
}

// Duration returns the current track's duration, or zero.
func (p *Player) Duration(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t := p.current(); t != nil {
		return t.Duration, nil
	}
	return 0, nil
}

// IsPlaying reports whether playback is running.
func (p *Player) IsPlaying(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing, nil
}
