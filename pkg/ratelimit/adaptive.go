package ratelimit

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// AdaptiveRateLimiter scales its refill rate between minRate and maxRate
// based on goroutine pressure.
type AdaptiveRateLimiter struct {
	baseLimiter        *TokenBucket
	maxRate            float64
	minRate            float64
	currentRate        float64
	loadThreshold      float64 // 0.0-1.0
	currentLoad        float64
	requestCount       int64
	successCount       int64
	rejectionCount     int64
	mutex              sync.Mutex
	stopChan           chan struct{}
	stopOnce           sync.Once
	adaptationInterval time.Duration
}

// NewAdaptiveRateLimiter creates a new adaptive rate limiter
func NewAdaptiveRateLimiter(maxTokens, maxRate, minRate float64, loadThreshold float64) *AdaptiveRateLimiter {
	arl := &AdaptiveRateLimiter{
		baseLimiter:        NewTokenBucket(maxTokens, maxRate),
		maxRate:            maxRate,
		minRate:            minRate,
		currentRate:        maxRate,
		loadThreshold:      loadThreshold,
		adaptationInterval: 5 * time.Second,
		stopChan:           make(chan struct{}),
	}

	go arl.adaptationLoop()

	return arl
}

// Allow checks if a request can proceed based on the adaptive rate limit
func (arl *AdaptiveRateLimiter) Allow() bool {
	atomic.AddInt64(&arl.requestCount, 1)

	if arl.baseLimiter.Allow() {
		atomic.AddInt64(&arl.successCount, 1)
		return true
	}

	atomic.AddInt64(&arl.rejectionCount, 1)
	return false
}

func (arl *AdaptiveRateLimiter) adaptationLoop() {
	ticker := time.NewTicker(arl.adaptationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			arl.adapt(sampleLoad())
		case <-arl.stopChan:
			return
		}
	}
}

// adapt recomputes the refill rate for the given load in [0, 1]
func (arl *AdaptiveRateLimiter) adapt(load float64) {
	arl.mutex.Lock()
	defer arl.mutex.Unlock()

	arl.currentLoad = load

	var newRate float64

	if load > arl.loadThreshold {
		loadFactor := min(1.0, (load-arl.loadThreshold)/(1.0-arl.loadThreshold))
		newRate = arl.maxRate - (arl.maxRate-arl.minRate)*loadFactor
	} else {
		loadFactor := load / arl.loadThreshold
		newRate = arl.minRate + (arl.maxRate-arl.minRate)*(1.0-loadFactor)
	}

	arl.currentRate = newRate
	arl.baseLimiter.SetRefillRate(newRate)
}

// sampleLoad uses the goroutine count as a load proxy, saturating at 10k
func sampleLoad() float64 {
	return min(1.0, float64(runtime.NumGoroutine())/10000.0)
}

// Stop stops the adaptation loop
func (arl *AdaptiveRateLimiter) Stop() {
	arl.stopOnce.Do(func() { close(arl.stopChan) })
}

// GetMetrics returns metrics about the rate limiter
func (arl *AdaptiveRateLimiter) GetMetrics() map[string]interface{} {
	arl.mutex.Lock()
	rate, load := arl.currentRate, arl.currentLoad
	arl.mutex.Unlock()

	return map[string]interface{}{
		"current_rate":     rate,
		"max_rate":         arl.maxRate,
		"min_rate":         arl.minRate,
		"current_load":     load,
		"load_threshold":   arl.loadThreshold,
		"request_count":    atomic.LoadInt64(&arl.requestCount),
		"success_count":    atomic.LoadInt64(&arl.successCount),
		"rejection_count":  atomic.LoadInt64(&arl.rejectionCount),
		"available_tokens": arl.baseLimiter.Available(),
	}
}

// Reset resets the rate limiter to its initial state
func (arl *AdaptiveRateLimiter) Reset() {
	arl.mutex.Lock()
	defer arl.mutex.Unlock()

	arl.baseLimiter.Reset()
	arl.baseLimiter.SetRefillRate(arl.maxRate)
	arl.currentRate = arl.maxRate

	atomic.StoreInt64(&arl.requestCount, 0)
	atomic.StoreInt64(&arl.successCount, 0)
	atomic.StoreInt64(&arl.rejectionCount, 0)
}
