// Automod component for durable, string-keyed records: warning ledgers, throttle timestamps and once-only processing markers.
//
// Includes an interface and implementations using redis, bolt, pebble, SQL (via gorm) and in-process memory. Every implementation supports an optimistic compare-and-swap, which callers use to avoid lost updates when several event handlers touch the same key at the same time. The store itself offers no other locking.
package recordstore
