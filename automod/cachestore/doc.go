// Cache for lookups against the moderation API (content authors, account metadata), stored as strings with a fixed TTL and purging.
//
// Includes an interface and implementations using redis, memcached and in-process memory.
package cachestore
