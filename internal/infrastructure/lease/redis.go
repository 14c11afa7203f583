package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// NewClient builds a go-redis client from a redis:// URL.
func NewClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return redis.NewClient(opt), nil
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a best-effort single-holder lease, so only one API replica runs the sweeps per tick.
type Redis struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration
	token  string
}

func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	return &Redis{Client: client, Key: key, TTL: ttl, token: uuid.NewString()}
}

// Acquire returns true when this instance now holds the lease.
func (l *Redis) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.Client.SetNX(ctx, l.Key, l.token, l.TTL).Result()
	if err != nil {
		return false, errors.Wrap(err, "acquire lease")
	}
	return ok, nil
}

// Release gives the lease up early; a lease taken over by another holder is left alone.
func (l *Redis) Release(ctx context.Context) error {
	return errors.Wrap(releaseScript.Run(ctx, l.Client, []string{l.Key}, l.token).Err(), "release lease")
}
