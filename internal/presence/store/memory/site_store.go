package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/ecstasyos/presence/server/internal/presence/geofence"
)

type SiteStore struct {
	mu    sync.RWMutex
	sites map[string]geofence.Point
}

func NewSiteStore(points ...geofence.Point) *SiteStore {
	s := &SiteStore{sites: make(map[string]geofence.Point, len(points))}
	for _, p := range points {
		s.sites[p.ID] = p
	}
	return s
}

func (s *SiteStore) UpsertSite(_ context.Context, p geofence.Point) error {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[p.ID] = p
	return nil
}

func (s *SiteStore) Site(_ context.Context, id string) (geofence.Point, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.sites[id]
	return p, ok, nil
}
