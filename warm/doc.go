// Package warm schedules cache warming: named fetch operations run
// periodically in priority order, writing through the cache's normal set
// and set-query-result contract.
package warm
