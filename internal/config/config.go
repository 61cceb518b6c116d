package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultMaxSize          int64 = 2 * 1024 * 1024 * 1024 // 2 GiB
	DefaultChunkSize              = 256 * 1024
	DefaultHTTPTimeout            = time.Hour
	DefaultProgressInterval       = time.Second
	DefaultThumbTimeout           = 2 * time.Minute
	DefaultInboxSettle            = 2 * time.Second
)

// Destination kinds.
const (
	DestinationOutbox = "outbox"
	DestinationMinio  = "minio"
)

// Config holds relay configuration. Fields are unexported to prevent modification.
type Config struct {
	operatorID         string
	operatorToken      string
	httpAddr           string
	scratchDir         string
	outboxDir          string
	inboxDir           string
	inboxSettle        time.Duration
	maxSize            int64
	chunkSize          int
	httpTimeout        time.Duration
	progressInterval   time.Duration
	ffmpegPath         string
	ffprobePath        string
	thumbTimeout       time.Duration
	destination        string
	minioEndpoint      string
	minioAccessKey     string
	minioSecretKey     string
	minioBucket        string
	minioRegion        string
	minioUseSSL        bool
	logFile            string
	serviceName        string
	serviceDisplayName string
	serviceDescription string
}

func New() *Config {
	_ = godotenv.Load() // ignore error if .env not found

	cfg := &Config{
		operatorID:         os.Getenv("OPERATOR_ID"),
		operatorToken:      os.Getenv("OPERATOR_TOKEN"),
		httpAddr:           envOr("HTTP_ADDR", ":8080"),
		scratchDir:         envOr("SCRATCH_DIR", "tmp"),
		outboxDir:          envOr("OUTBOX_DIR", "outbox"),
		inboxDir:           os.Getenv("INBOX_DIR"),
		inboxSettle:        envDuration("INBOX_SETTLE", DefaultInboxSettle),
		maxSize:            envInt64("MAX_SIZE", DefaultMaxSize),
		chunkSize:          int(envInt64("CHUNK_SIZE", DefaultChunkSize)),
		httpTimeout:        envDuration("HTTP_TIMEOUT", DefaultHTTPTimeout),
		progressInterval:   envDuration("PROGRESS_INTERVAL", DefaultProgressInterval),
		ffmpegPath:         envOr("FFMPEG_PATH", "ffmpeg"),
		ffprobePath:        envOr("FFPROBE_PATH", "ffprobe"),
		thumbTimeout:       envDuration("THUMB_TIMEOUT", DefaultThumbTimeout),
		destination:        strings.ToLower(envOr("DESTINATION", DestinationOutbox)),
		minioEndpoint:      os.Getenv("MINIO_ENDPOINT"),
		minioAccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
		minioSecretKey:     os.Getenv("MINIO_SECRET_KEY"),
		minioBucket:        envOr("MINIO_BUCKET", "relay"),
		minioRegion:        os.Getenv("MINIO_REGION"),
		minioUseSSL:        envBool("MINIO_USE_SSL", false),
		logFile:            envOr("LOG_FILE", "relay.log"),
		serviceName:        envOr("SERVICE_NAME", "NebulaRelay"),
		serviceDisplayName: envOr("SERVICE_DISPLAY_NAME", "Nebula Relay"),
		serviceDescription: envOr("SERVICE_DESCRIPTION", "Single-operator file relay: fetches URLs and inbound files and re-emits them to a destination"),
	}
	return cfg
}

// Option overrides a setting after New; used by tests and the CLI flags.
type Option func(*Config)

func WithOperator(id, token string) Option {
	return func(c *Config) {
		c.operatorID = id
		c.operatorToken = token
	}
}

func WithScratchDir(dir string) Option { return func(c *Config) { c.scratchDir = dir } }

func WithOutboxDir(dir string) Option { return func(c *Config) { c.outboxDir = dir } }

func WithInboxDir(dir string) Option { return func(c *Config) { c.inboxDir = dir } }

func WithHTTPAddr(addr string) Option { return func(c *Config) { c.httpAddr = addr } }

func WithMaxSize(n int64) Option { return func(c *Config) { c.maxSize = n } }

func WithProgressInterval(d time.Duration) Option {
	return func(c *Config) { c.progressInterval = d }
}

func WithTools(ffmpeg, ffprobe string) Option {
	return func(c *Config) {
		c.ffmpegPath = ffmpeg
		c.ffprobePath = ffprobe
	}
}

// Apply returns c after applying opts.
func (c *Config) Apply(opts ...Option) *Config {
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt64(key string, def int64) int64 {
	n, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envBool(key string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return b
}

// Getter methods (immutable from outside)

func (c *Config) OperatorID() string { return c.operatorID }

func (c *Config) OperatorToken() string { return c.operatorToken }

func (c *Config) HTTPAddr() string { return c.httpAddr }

func (c *Config) ScratchDir() string { return c.scratchDir }

func (c *Config) OutboxDir() string { return c.outboxDir }

func (c *Config) InboxDir() string { return c.inboxDir }

// InboxSettle is how long an inbox file must stay unchanged before it is
// relayed. Writers that pause longer should write under a dotted or .part
// name and rename into place.
func (c *Config) InboxSettle() time.Duration { return c.inboxSettle }

func (c *Config) MaxSize() int64 { return c.maxSize }

func (c *Config) ChunkSize() int { return c.chunkSize }

func (c *Config) HTTPTimeout() time.Duration { return c.httpTimeout }

func (c *Config) ProgressInterval() time.Duration { return c.progressInterval }

func (c *Config) FFmpegPath() string { return c.ffmpegPath }

func (c *Config) FFprobePath() string { return c.ffprobePath }

func (c *Config) ThumbTimeout() time.Duration { return c.thumbTimeout }

func (c *Config) Destination() string { return c.destination }

func (c *Config) MinioEndpoint() string { return c.minioEndpoint }

func (c *Config) MinioAccessKey() string { return c.minioAccessKey }

func (c *Config) MinioSecretKey() string { return c.minioSecretKey }

func (c *Config) MinioBucket() string { return c.minioBucket }

// MinioRegion is empty when the bucket location should be looked up.
func (c *Config) MinioRegion() string { return c.minioRegion }

func (c *Config) MinioUseSSL() bool { return c.minioUseSSL }

func (c *Config) LogFile() string { return c.logFile }

func (c *Config) ServiceName() string { return c.serviceName }

func (c *Config) ServiceDisplayName() string { return c.serviceDisplayName }

func (c *Config) ServiceDescription() string { return c.serviceDescription }

// EnsureDirs creates the scratch and outbox directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.scratchDir, c.outboxDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Clean(dir), 0o755); err != nil {
			return err
		}
	}
	return nil
}
