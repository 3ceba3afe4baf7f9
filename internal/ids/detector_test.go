package ids

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newDetectorTest(t *testing.T, mutate func(*Config)) (*Detector, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := DefaultConfig()
	cfg.Prefix = "gg:"
	cfg.WhitelistPaths = []string{"/audit/client"}
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())
	return New(rdb, cfg, nil), mr
}

func headers(h map[string]string) func(string) string {
	return func(name string) string { return h[name] }
}

func okRequest(ip string) Request {
	return Request{
		IP:     ip,
		Method: "GET",
		URL:    "/user/5",
		Header: headers(map[string]string{"host": "api.example.com", "user-agent": "test/1.0"}),
	}
}

func TestCleanRequestPasses(t *testing.T) {
	d, _ := newDetectorTest(t, nil)
	f, err := d.Inspect(context.Background(), okRequest("10.0.0.1"))
	require.NoError(t, err)
	require.Nil(t, f)
	require.EqualValues(t, 1, d.Scans())
}

func TestSQLiBodyIsMaliciousAndCountsOnce(t *testing.T) {
	d, _ := newDetectorTest(t, nil)
	ctx := context.Background()

	req := okRequest("10.0.0.2")
	req.Method = "POST"
	req.Body = []byte(`{"password":"' OR '1'='1"}`)

	f, err := d.Inspect(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, f)
	require.Equal(t, StageSignature, f.Stage)
	require.Equal(t, Malicious, f.Strike)
	require.Equal(t, MsgSQLi, f.Msg)

	rec, err := d.Strikes().Get(ctx, "10.0.0.2")
	require.NoError(t, err)
	require.Equal(t, 1, rec.Malicious)
	require.Equal(t, 0, rec.Suspicious)
}

func TestXSSInURL(t *testing.T) {
	d, _ := newDetectorTest(t, nil)
	req := okRequest("10.0.0.3")
	req.URL = "/search?q=%3Cscript%3Ealert(1)%3C/script%3E"

	f, err := d.Inspect(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, f)
	require.Equal(t, MsgXSS, f.Msg)
}

func TestMissingHeaderAndBadMethodAreSuspicious(t *testing.T) {
	d, _ := newDetectorTest(t, nil)
	ctx := context.Background()

	noUA := okRequest("10.0.0.4")
	noUA.Header = headers(map[string]string{"host": "api.example.com"})
	f, err := d.Inspect(ctx, noUA)
	require.NoError(t, err)
	require.Equal(t, StageHeaders, f.Stage)

	trace := okRequest("10.0.0.4")
	trace.Method = "TRACE"
	f, err = d.Inspect(ctx, trace)
	require.NoError(t, err)
	require.Equal(t, StageMethod, f.Stage)

	rec, err := d.Strikes().Get(ctx, "10.0.0.4")
	require.NoError(t, err)
	require.Equal(t, 2, rec.Suspicious)
	require.EqualValues(t, 0, d.Scans(), "shape failures must stop before scanning")

	// Message traffic has no HTTP method.
	msg := okRequest("10.0.0.4")
	msg.Method = ""
	msg.Message = true
	f, err = d.Inspect(ctx, msg)
	require.NoError(t, err)
	require.Nil(t, f)
}

func TestBanThresholdStopsBeforeScan(t *testing.T) {
	d, _ := newDetectorTest(t, func(c *Config) { c.Thresholds.Suspicious = 3 })
	ctx := context.Background()
	ip := "10.0.0.5"

	for i := 0; i < 3; i++ {
		_, err := d.LogStrike(ctx, ip, Suspicious)
		require.NoError(t, err)
	}
	before := d.Scans()

	f, err := d.Inspect(ctx, okRequest(ip))
	require.NoError(t, err)
	require.NotNil(t, f)
	require.Equal(t, StageBanned, f.Stage)
	require.Equal(t, MsgBanned, f.Msg)
	require.Equal(t, ip+DescBannedSuffix, f.Desc)
	require.Equal(t, before, d.Scans())

	// The ban rejection itself does not add strikes.
	rec, err := d.Strikes().Get(ctx, ip)
	require.NoError(t, err)
	require.Equal(t, 3, rec.Suspicious)
}

func TestStrikeRefreshesBanTTL(t *testing.T) {
	d, mr := newDetectorTest(t, func(c *Config) { c.BanTTL = time.Hour })
	ctx := context.Background()

	_, err := d.LogStrike(ctx, "10.0.0.6", Suspicious)
	require.NoError(t, err)
	mr.FastForward(30 * time.Minute)
	_, err = d.LogStrike(ctx, "10.0.0.6", Malicious)
	require.NoError(t, err)
	require.Equal(t, time.Hour, mr.TTL("gg:banip:10.0.0.6"))

	rec, err := d.Strikes().Get(ctx, "10.0.0.6")
	require.NoError(t, err)
	require.Equal(t, Record{Suspicious: 1, Malicious: 1}, rec)
}

func TestWhitelistBypassesEverything(t *testing.T) {
	d, _ := newDetectorTest(t, func(c *Config) { c.Thresholds.Malicious = 1 })
	ctx := context.Background()

	req := okRequest("127.0.0.1")
	req.Body = []byte(`<script>alert(1)</script>`)
	f, err := d.Inspect(ctx, req)
	require.NoError(t, err)
	require.Nil(t, f)

	rec, err := d.LogStrike(ctx, "127.0.0.1", Malicious)
	require.NoError(t, err)
	require.Equal(t, Record{}, rec)

	path := okRequest("10.0.0.7")
	path.URL = "/audit/client?x=1"
	path.Body = []byte(`<b>client log</b>`)
	f, err = d.Inspect(ctx, path)
	require.NoError(t, err)
	require.Nil(t, f)
}

func TestRateLimitTripWritesMarkerAndUnbanClearsAll(t *testing.T) {
	d, mr := newDetectorTest(t, func(c *Config) {
		c.Bruteforce = rate.Profile{Name: "Bruteforce", Salt: "brute1", FreeRetries: 1, MinWait: time.Minute, MaxWait: time.Hour, MarkerTTL: time.Hour}
	})
	ctx := context.Background()
	ip := "10.0.0.8"
	login := okRequest(ip)
	login.Method = "POST"
	login.URL = "/auth/login"
	login.BruteForce = true

	for i := 0; i < 2; i++ {
		f, err := d.Inspect(ctx, login)
		require.NoError(t, err)
		require.Nil(t, f)
	}
	f, err := d.Inspect(ctx, login)
	require.NoError(t, err)
	require.NotNil(t, f)
	require.Equal(t, StageRateLimit, f.Stage)
	require.Equal(t, DescRateLimitedPre+ip, f.Desc)

	m, err := d.Strikes().GetMarker(ctx, ip)
	require.NoError(t, err)
	require.Equal(t, &Marker{Key: "Bruteforce", Hash: rate.Hash(ip, "brute1")}, m)
	require.Equal(t, time.Hour, mr.TTL("gg:banipRL:"+ip))

	entries, err := d.Banned(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ip, entries[0].IP)
	require.NotNil(t, entries[0].RateLimit)

	require.NoError(t, d.Unban(ctx, ip))
	require.False(t, mr.Exists("gg:banipRL:"+ip))
	require.False(t, mr.Exists("gg:rl:"+m.Hash))

	f, err = d.Inspect(ctx, login)
	require.NoError(t, err)
	require.Nil(t, f)
}

func TestUnmarkedRoutesSkipBruteForceCounter(t *testing.T) {
	d, mr := newDetectorTest(t, func(c *Config) {
		c.Bruteforce = rate.Profile{Name: "Bruteforce", Salt: "brute1", FreeRetries: 1, MinWait: time.Minute, MaxWait: time.Hour, MarkerTTL: time.Hour}
	})
	ctx := context.Background()
	ip := "10.0.0.11"

	for i := 0; i < 10; i++ {
		f, err := d.Inspect(ctx, okRequest(ip))
		require.NoError(t, err)
		require.Nil(t, f)
	}
	require.False(t, mr.Exists("gg:rl:"+rate.Hash(ip, "brute1")))
	require.EqualValues(t, 10, d.Scans())
}

func TestUnbanStrikeRecord(t *testing.T) {
	d, mr := newDetectorTest(t, func(c *Config) { c.Thresholds.Malicious = 1 })
	ctx := context.Background()

	_, err := d.LogStrike(ctx, "10.0.0.9", Malicious)
	require.NoError(t, err)
	f, err := d.Inspect(ctx, okRequest("10.0.0.9"))
	require.NoError(t, err)
	require.Equal(t, StageBanned, f.Stage)

	require.NoError(t, d.Unban(ctx, "10.0.0.9"))
	require.False(t, mr.Exists("gg:banip:10.0.0.9"))
	f, err = d.Inspect(ctx, okRequest("10.0.0.9"))
	require.NoError(t, err)
	require.Nil(t, f)
}

func TestBanCheckFailsClosedOnRedisError(t *testing.T) {
	d, mr := newDetectorTest(t, nil)
	mr.Close()
	_, err := d.Inspect(context.Background(), okRequest("10.0.0.10"))
	require.ErrorIs(t, err, ErrRedisUnavailable)
}

func TestCorruptStrikeRecordFailsClosed(t *testing.T) {
	d, mr := newDetectorTest(t, nil)
	ctx := context.Background()
	ip := "10.0.0.12"
	require.NoError(t, mr.Set("gg:banip:"+ip, "{not json"))
	require.NoError(t, mr.Set("gg:banipRL:"+ip, "garbage"))

	f, err := d.Inspect(ctx, okRequest(ip))
	require.ErrorIs(t, err, ErrCorruptRecord)
	require.Nil(t, f)

	_, err = d.LogStrike(ctx, ip, Suspicious)
	require.ErrorIs(t, err, ErrCorruptRecord)

	entries, err := d.Banned(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ip, entries[0].IP)

	require.NoError(t, d.Unban(ctx, ip))
	require.False(t, mr.Exists("gg:banip:"+ip))
	require.False(t, mr.Exists("gg:banipRL:"+ip))

	f, err = d.Inspect(ctx, okRequest(ip))
	require.NoError(t, err)
	require.Nil(t, f)
}
