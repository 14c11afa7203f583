package health

import (
	"context"
	"encoding/json"
	"runtime"
	"strconv"
	"time"

	"shard-exchange/internal/domain"
	"shard-exchange/internal/middleware"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

// Deps are the optional dependencies probed by CollectHealth; nil means not configured.
type Deps struct {
	DB    *gorm.DB
	Redis *redis.Client
	Kafka Pinger
}

type CollectResult struct {
	Status       string               `json:"status"`
	Runtime      RuntimeInfo          `json:"runtime"`
	Traffic      TrafficInfo          `json:"traffic"`
	Market       *MarketInfo          `json:"market,omitempty"`
	Dependencies map[string]DepStatus `json:"dependencies"`
}

type RuntimeInfo struct {
	UptimeSeconds int64      `json:"uptimeSeconds"`
	Memory        MemoryInfo `json:"memory"`
	Goroutines    int        `json:"goroutines"`
	Platform      string     `json:"platform"`
	GoVersion     string     `json:"goVersion"`
}

type MemoryInfo struct {
	AllocMB    int `json:"allocMb"`
	HeapUsedMB int `json:"heapUsedMb"`
}

type TrafficInfo struct {
	TotalRequests   int         `json:"totalRequests"`
	SuccessCount    int         `json:"successCount"`
	FailedCount     int         `json:"failedCount"`
	SuccessRate     string      `json:"successRate"`
	AvgResponseTime string      `json:"avgResponseTime"`
	LastRequest     interface{} `json:"lastRequest"`
}

// MarketInfo is a snapshot of book activity.
type MarketInfo struct {
	Issuers               int64 `json:"issuers"`
	OpenSellOffers        int64 `json:"openSellOffers"`
	ReservedSellOffers    int64 `json:"reservedSellOffers"`
	OpenAlternativeOffers int64 `json:"openAlternativeOffers"`
	OpenDirectOffers      int64 `json:"openDirectOffers"`
	Transfers             int64 `json:"transfers"`
	PledgedShares         int64 `json:"pledgedShares"`
}

type DepStatus struct {
	Status string `json:"status"`
	PingMs *int64 `json:"pingMs"`
}

const (
	statusConnected    = "connected"
	statusDisconnected = "disconnected"
	statusError        = "error"
)

// CollectHealth probes the dependencies and reads request stats from Redis and book stats from the DB.
// Status is "ok" when the database is up and every configured dependency answers.
func CollectHealth(ctx context.Context, deps Deps) CollectResult {
	result := CollectResult{Dependencies: make(map[string]DepStatus)}
	healthy := true

	var dbPing Pinger
	if deps.DB != nil {
		dbPing = func(ctx context.Context) error {
			sqlDB, err := deps.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	result.Dependencies["database"] = probe(ctx, dbPing)
	if result.Dependencies["database"].Status != statusConnected {
		healthy = false
	} else if m, err := collectMarket(ctx, deps.DB); err == nil {
		result.Market = m
	}

	var redisPing Pinger
	if deps.Redis != nil {
		redisPing = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
	}
	result.Dependencies["redis"] = probe(ctx, redisPing)

	startTimeMs := time.Now().UnixMilli()
	result.Traffic = TrafficInfo{SuccessRate: "100", AvgResponseTime: "0"}
	switch result.Dependencies["redis"].Status {
	case statusConnected:
		result.Traffic, startTimeMs = collectTraffic(ctx, deps.Redis, startTimeMs)
	case statusError:
		healthy = false
	}

	result.Dependencies["kafka"] = probe(ctx, deps.Kafka)
	if result.Dependencies["kafka"].Status == statusError {
		healthy = false
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptimeSec := (time.Now().UnixMilli() - startTimeMs) / 1000
	if uptimeSec < 0 {
		uptimeSec = 0
	}
	result.Runtime = RuntimeInfo{
		UptimeSeconds: uptimeSec,
		Memory:        MemoryInfo{AllocMB: int(m.Alloc / 1024 / 1024), HeapUsedMB: int(m.HeapInuse / 1024 / 1024)},
		Goroutines:    runtime.NumGoroutine(),
		Platform:      runtime.GOOS + " (" + runtime.GOARCH + ")",
		GoVersion:     runtime.Version(),
	}

	result.Status = "issue"
	if healthy {
		result.Status = "ok"
	}
	return result
}

func probe(ctx context.Context, ping Pinger) DepStatus {
	if ping == nil {
		return DepStatus{Status: statusDisconnected}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	start := time.Now()
	if err := ping(ctx); err != nil {
		return DepStatus{Status: statusError}
	}
	ms := time.Since(start).Milliseconds()
	return DepStatus{Status: statusConnected, PingMs: &ms}
}

func collectTraffic(ctx context.Context, rdb *redis.Client, nowMs int64) (TrafficInfo, int64) {
	stats := TrafficInfo{SuccessRate: "100", AvgResponseTime: "0"}
	startTimeMs := nowMs

	totalReq, _ := rdb.Get(ctx, middleware.KeyReqTotal).Result()
	totalErr, _ := rdb.Get(ctx, middleware.KeyReqErrors).Result()
	totalTime, _ := rdb.Get(ctx, middleware.KeyResTime).Result()
	resCount, _ := rdb.Get(ctx, middleware.KeyResCount).Result()
	startTimeStr, _ := rdb.Get(ctx, middleware.KeyStartTime).Result()
	lastReqStr, _ := rdb.Get(ctx, middleware.KeyLastReq).Result()

	if t, err := strconv.ParseInt(startTimeStr, 10, 64); err == nil {
		startTimeMs = t
	} else {
		rdb.Set(ctx, middleware.KeyStartTime, startTimeMs, 0)
	}

	stats.TotalRequests, _ = strconv.Atoi(totalReq)
	stats.FailedCount, _ = strconv.Atoi(totalErr)
	stats.SuccessCount = stats.TotalRequests - stats.FailedCount
	if stats.TotalRequests > 0 {
		stats.SuccessRate = strconv.FormatFloat(float64(stats.SuccessCount)/float64(stats.TotalRequests)*100, 'f', 1, 64)
	}
	timeSum, _ := strconv.ParseFloat(totalTime, 64)
	countSum, _ := strconv.Atoi(resCount)
	if countSum > 0 {
		stats.AvgResponseTime = strconv.FormatFloat(timeSum/float64(countSum), 'f', 2, 64)
	}
	if lastReqStr != "" {
		var lastReq map[string]interface{}
		_ = json.Unmarshal([]byte(lastReqStr), &lastReq)
		stats.LastRequest = lastReq
	}
	return stats, startTimeMs
}

func collectMarket(ctx context.Context, db *gorm.DB) (*MarketInfo, error) {
	m := &MarketInfo{}
	q := db.WithContext(ctx)
	counts := []struct {
		dst   *int64
		model interface{}
		where string
		args  []interface{}
	}{
		{&m.Issuers, &domain.Issuer{}, "", nil},
		{&m.OpenSellOffers, &domain.SellOffer{}, "status = ?", []interface{}{domain.SellOfferCreated}},
		{&m.ReservedSellOffers, &domain.SellOffer{}, "status = ?", []interface{}{domain.SellOfferReserved}},
		{&m.OpenAlternativeOffers, &domain.BuyOffer{}, "kind = ? AND status = ?", []interface{}{domain.BuyOfferAlternative, domain.BuyOfferCreated}},
		{&m.OpenDirectOffers, &domain.BuyOffer{}, "kind = ? AND status = ?", []interface{}{domain.BuyOfferDirect, domain.BuyOfferCreated}},
		{&m.Transfers, &domain.TransferRecord{}, "", nil},
	}
	for _, c := range counts {
		stmt := q.Model(c.model)
		if c.where != "" {
			stmt = stmt.Where(c.where, c.args...)
		}
		if err := stmt.Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	if err := q.Model(&domain.Holding{}).Select("COALESCE(SUM(reserved_shares), 0)").Scan(&m.PledgedShares).Error; err != nil {
		return nil, err
	}
	return m, nil
}
