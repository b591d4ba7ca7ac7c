// Package board implements the dynamic record engine: organization-scoped
// typed fields, EAV record storage, history with restore, unseen-change
// notifications and the list query layer consumed by the API and the bulk
// pipeline.
package board

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/leadboard/leadboard-go/internal/cache"
	"github.com/leadboard/leadboard-go/internal/datastore"
	"github.com/leadboard/leadboard-go/internal/geocoder"
	"github.com/leadboard/leadboard-go/internal/logging"
	"github.com/leadboard/leadboard-go/internal/observability/metrics"
	"github.com/leadboard/leadboard-go/internal/realtime"
)

// Well-known field names the engine dispatches on. These are display names
// configured per organization; callers are responsible for keeping them
// unique within a module.
const (
	RecordNameColumn    = "Record"
	StatusFieldName     = "Status"
	ReasonFieldName     = "Reason"
	ActionDateFieldName = "Action Date (Accepted / Rejected)"
	CountyFieldName     = "County"
	FacilityFieldName   = "Facility"
)

// locationDestinations are the display names a location write fans out to.
var locationDestinations = []string{"Address", "City", "State", "Zip Code", "County", "Country"}

// Service is the board engine. All mutations purge the owning organization's
// cached list results and emit a realtime event.
type Service struct {
	store    datastore.Interface
	cache    cache.Store
	notifier realtime.Notifier
	geocoder geocoder.Geocoder
	metrics  *metrics.BoardMetrics
	cacheTTL time.Duration
	logger   *slog.Logger
}

// Config wires the service's collaborators.
type Config struct {
	Store    datastore.Interface
	Cache    cache.Store
	Notifier realtime.Notifier
	Geocoder geocoder.Geocoder
	Metrics  *metrics.BoardMetrics // optional
	CacheTTL time.Duration
}

// New creates a board service. Notifier may be nil, in which case events are
// discarded.
func New(config *Config) *Service {
	notifier := config.Notifier
	if notifier == nil {
		notifier = realtime.NoopNotifier{}
	}
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{
		store:    config.Store,
		cache:    config.Cache,
		notifier: notifier,
		geocoder: config.Geocoder,
		metrics:  config.Metrics,
		cacheTTL: ttl,
		logger:   logging.ForService("board"),
	}
}

// orgPrefix is the cache key prefix shared by every cached query of one
// organization, enabling conservative purge-on-write.
func orgPrefix(organizationID uint) string {
	return fmt.Sprintf("%d:", organizationID)
}

// purgeAndEmit invalidates the organization's cached list results and
// broadcasts the mutation. Called at the end of every successful write path.
func (s *Service) purgeAndEmit(organizationID uint, eventName string, payload map[string]any) {
	if s.cache != nil {
		s.cache.PurgeByPrefix(orgPrefix(organizationID))
	}
	s.notifier.Emit(organizationID, eventName, payload)
}
