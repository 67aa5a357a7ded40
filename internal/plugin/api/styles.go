package api

import (
	"sort"
	"strings"
	"sync"
)

// StyleSheet holds one CSS block per plugin. Adding CSS for a plugin
// replaces its previous block.
type StyleSheet struct {
	mu     sync.RWMutex
	blocks map[string]string
}

// NewStyleSheet creates an empty style sheet.
func NewStyleSheet() *StyleSheet {
	return &StyleSheet{blocks: make(map[string]string)}
}

// StyleID returns the element id the host uses for a plugin's styles.
func StyleID(pluginID string) string {
	return "plugin-style-" + pluginID
}

// Set replaces pluginID's CSS.
func (s *StyleSheet) Set(pluginID, css string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[pluginID] = css
}

// Remove drops pluginID's CSS and reports whether any existed.
func (s *StyleSheet) Remove(pluginID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blocks[pluginID]
	delete(s.blocks, pluginID)
	return ok
}

// Get returns pluginID's CSS.
func (s *StyleSheet) Get(pluginID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	css, ok := s.blocks[pluginID]
	return css, ok
}

// Render returns every block wrapped in a <style> element, ordered by id.
func (s *StyleSheet) Render() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.blocks))
	for id := range s.blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		b.WriteString(`<style id="`)
		b.WriteString(StyleID(id))
		b.WriteString(`">`)
		b.WriteString(strings.ReplaceAll(s.blocks[id], "</", `<\/`))
		b.WriteString("</style>\n")
	}
	return b.String()
}
