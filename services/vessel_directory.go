package services

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"vesselwatch/models"

	"github.com/sirupsen/logrus"
)

// VesselSource is where registry metadata comes from
type VesselSource interface {
	GetAll(ctx context.Context) ([]models.VesselInfo, error)
}

// VesselDirectory serves owner/boat metadata from memory. Static entries
// (from the geofence YAML file) are always present; registry entries are
// reloaded from the source on an interval and override static ones.
type VesselDirectory struct {
	source VesselSource
	static map[string]models.VesselInfo

	cache       map[string]models.VesselInfo
	cacheMutex  sync.RWMutex
	refreshedAt time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

type VesselDirectoryStats struct {
	Vessels     int       `json:"vessels"`
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

func NewVesselDirectory(source VesselSource, static []models.VesselInfo) *VesselDirectory {
	d := &VesselDirectory{
		source: source,
		static: make(map[string]models.VesselInfo),
		cache:  make(map[string]models.VesselInfo),
	}
	for _, v := range static {
		if v.TrackerID != "" {
			d.static[v.TrackerID] = v
			d.cache[v.TrackerID] = v
		}
	}
	return d
}

func (d *VesselDirectory) Lookup(ctx context.Context, trackerID string) (*models.VesselInfo, bool) {
	d.cacheMutex.RLock()
	v, ok := d.cache[trackerID]
	d.cacheMutex.RUnlock()

	if !ok {
		d.misses.Add(1)
		return nil, false
	}
	d.hits.Add(1)
	return &v, true
}

// Refresh reloads the registry. The previous cache stays in place on error.
func (d *VesselDirectory) Refresh(ctx context.Context) error {
	if d.source == nil {
		return nil
	}

	vessels, err := d.source.GetAll(ctx)
	if err != nil {
		return err
	}

	cache := make(map[string]models.VesselInfo, len(vessels)+len(d.static))
	for id, v := range d.static {
		cache[id] = v
	}
	for _, v := range vessels {
		if v.TrackerID != "" {
			cache[v.TrackerID] = v
		}
	}

	d.cacheMutex.Lock()
	d.cache = cache
	d.refreshedAt = time.Now()
	d.cacheMutex.Unlock()

	logrus.Debugf("Vessel directory refreshed: %d vessels", len(cache))
	return nil
}

// Run refreshes on every tick until ctx is done
func (d *VesselDirectory) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := d.Refresh(refreshCtx); err != nil {
				logrus.Warnf("Failed to refresh vessel directory: %v", err)
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

func (d *VesselDirectory) All() []models.VesselInfo {
	d.cacheMutex.RLock()
	defer d.cacheMutex.RUnlock()

	out := make([]models.VesselInfo, 0, len(d.cache))
	for _, v := range d.cache {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackerID < out[j].TrackerID })
	return out
}

func (d *VesselDirectory) Stats() VesselDirectoryStats {
	d.cacheMutex.RLock()
	defer d.cacheMutex.RUnlock()

	return VesselDirectoryStats{
		Vessels:     len(d.cache),
		Hits:        d.hits.Load(),
		Misses:      d.misses.Load(),
		RefreshedAt: d.refreshedAt,
	}
}
