package upstream

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
	"github.com/kevin07696/purchase-gateway/pkg/observability"
)

// SiteClient reads site configuration from the configuration service
type SiteClient struct {
	client *Client
}

var _ ports.SiteRepository = (*SiteClient)(nil)

// NewSiteClient creates a site client
func NewSiteClient(client *Client) *SiteClient {
	return &SiteClient{client: client}
}

func (s *SiteClient) GetSite(ctx context.Context, siteID string) (*domain.Site, error) {
	var site domain.Site
	err := s.client.Do(ctx, http.MethodGet, "/api/v1/sites/"+url.PathEscape(siteID), nil, nil, &site)
	if err != nil {
		if StatusCode(err) == http.StatusNotFound {
			return nil, domain.NewDomainError(domain.ErrorCodeSiteNotFound, "site not found").
				WithDetail("site_id", siteID)
		}
		return nil, err
	}
	if site.ID == "" {
		site.ID = siteID
	}
	return &site, nil
}

// SiteCache keeps resolved sites for a TTL in front of a SiteRepository.
// Eviction is approximate LRU over sync.Map iteration order.
type SiteCache struct {
	next    ports.SiteRepository
	logger  *zap.Logger
	ttl     time.Duration
	maxSize int

	cache       sync.Map // siteID -> *cachedSite
	accessTimes sync.Map // siteID -> time.Time
	mu          sync.Mutex
	size        int
}

type cachedSite struct {
	site      domain.Site
	expiresAt time.Time
}

var _ ports.SiteRepository = (*SiteCache)(nil)

// NewSiteCache wraps next with a TTL cache
func NewSiteCache(next ports.SiteRepository, ttl time.Duration, maxSize int, logger *zap.Logger) *SiteCache {
	return &SiteCache{
		next:    next,
		logger:  logger,
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// GetSite returns a cached copy when fresh, otherwise asks the next repository
func (c *SiteCache) GetSite(ctx context.Context, siteID string) (*domain.Site, error) {
	if val, ok := c.cache.Load(siteID); ok {
		cached := val.(*cachedSite)
		if time.Now().Before(cached.expiresAt) {
			c.accessTimes.Store(siteID, time.Now())
			observability.RecordSiteCacheHit()
			site := cached.site
			return &site, nil
		}
		observability.RecordSiteCacheMiss("expired")
	} else {
		observability.RecordSiteCacheMiss("not_found")
	}

	site, err := c.next.GetSite(ctx, siteID)
	if err != nil {
		observability.RecordSiteCacheMiss("error")
		return nil, err
	}
	c.store(siteID, *site)
	return site, nil
}

// Invalidate drops a site from the cache
func (c *SiteCache) Invalidate(siteID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, loaded := c.cache.LoadAndDelete(siteID); loaded {
		c.size--
	}
	c.accessTimes.Delete(siteID)
}

func (c *SiteCache) store(siteID string, site domain.Site) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cache.Load(siteID); !exists {
		if c.maxSize > 0 && c.size >= c.maxSize {
			c.evictOldest()
		}
		c.size++
	}
	c.cache.Store(siteID, &cachedSite{site: site, expiresAt: time.Now().Add(c.ttl)})
	c.accessTimes.Store(siteID, time.Now())
}

// evictOldest drops the least recently read entry; caller holds mu
func (c *SiteCache) evictOldest() {
	var (
		oldestID   string
		oldestTime time.Time
	)
	c.accessTimes.Range(func(key, value interface{}) bool {
		t := value.(time.Time)
		if oldestID == "" || t.Before(oldestTime) {
			oldestID = key.(string)
			oldestTime = t
		}
		return true
	})
	if oldestID == "" {
		return
	}
	c.cache.Delete(oldestID)
	c.accessTimes.Delete(oldestID)
	c.size--
	c.logger.Debug("Evicted site from cache", zap.String("site_id", oldestID))
}
