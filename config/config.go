package config

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/logging"
	"github.com/citizenvoice/citizenvoice-api/models"
)

// Config holds the project config values
type Config struct {
	Env          string
	Url          string
	DatabaseName string
	BaseUrl      string
	Port         string

	RequestTimeout time.Duration

	Auth       AuthConfig
	ML         MLConfig
	TextGen    TextGenConfig
	Geocoding  GeocodingConfig
	Redis      RedisConfig
	SendGrid   SendGridConfig
	Cloudinary CloudinaryConfig

	EnableScheduler bool
}

// AuthConfig holds token signing and admin allowlist values
type AuthConfig struct {
	JWTSecret   string
	TokenTTL    time.Duration
	AdminEmails []string
}

// MLConfig points at the image classification service
type MLConfig struct {
	BaseURL string
	Timeout time.Duration
}

// TextGenConfig holds the chat completion provider settings
type TextGenConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// GeocodingConfig points at a nominatim compatible reverse geocoder
type GeocodingConfig struct {
	URL     string
	Timeout time.Duration
}

// RedisConfig is used by the issue rate limiter
type RedisConfig struct {
	Addr        string
	Password    string
	IssueLimit  int64
	IssueWindow time.Duration
}

// SendGridConfig holds outbound email settings
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	ClientURL string
}

// CloudinaryConfig holds signed upload settings
type CloudinaryConfig struct {
	CloudName    string
	APIKey       string
	APISecret    string
	UploadFolder string
}

// New sets up all config related services
func New() *Config {
	// a missing .env is fine, the process environment still applies
	_ = godotenv.Load()

	env := os.Getenv("ENV")
	logger, err := setLogger(env)
	if err != nil {
		logger = zap.NewExample()
	}
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	return &Config{
		Env:            env,
		Url:            os.Getenv("DB_URI"),
		DatabaseName:   getEnv("DB_NAME", "citizenvoice"),
		BaseUrl:        os.Getenv("BASE_URL"),
		Port:           getEnv("PORT", "8080"),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 30*time.Second),
		Auth: AuthConfig{
			JWTSecret:   os.Getenv("JWT_SECRET"),
			TokenTTL:    getDuration("TOKEN_TTL", 24*time.Hour),
			AdminEmails: splitList(os.Getenv("OFFICIAL_ADMIN_EMAILS")),
		},
		ML: MLConfig{
			BaseURL: getEnv("ML_SERVICE_URL", "http://localhost:8000"),
			Timeout: getDuration("ML_TIMEOUT", 30*time.Second),
		},
		TextGen: TextGenConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Timeout: getDuration("OPENAI_TIMEOUT", 20*time.Second),
		},
		Geocoding: GeocodingConfig{
			URL:     getEnv("GEOCODING_URL", "https://nominatim.openstreetmap.org"),
			Timeout: getDuration("GEOCODING_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:        os.Getenv("REDIS_ADDR"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			IssueLimit:  int64(getInt("ISSUE_RATE_LIMIT", 10)),
			IssueWindow: getDuration("ISSUE_RATE_WINDOW", 24*time.Hour),
		},
		SendGrid: SendGridConfig{
			APIKey:    os.Getenv("SENDGRID_API_KEY"),
			FromEmail: getEnv("SENDGRID_FROM_EMAIL", "no-reply@citizenvoice.app"),
			ClientURL: getEnv("CLIENT_URL", "http://localhost:3000"),
		},
		Cloudinary: CloudinaryConfig{
			CloudName:    os.Getenv("CLOUDINARY_CLOUD_NAME"),
			APIKey:       os.Getenv("CLOUDINARY_API_KEY"),
			APISecret:    os.Getenv("CLOUDINARY_API_SECRET"),
			UploadFolder: getEnv("CLOUDINARY_UPLOAD_FOLDER", "citizenvoice"),
		},
		EnableScheduler: getBool("ENABLE_SCHEDULER", true),
	}
}

func setLogger(env string) (*zap.Logger, error) {
	return logging.New(env)
}

// IsAdminEmail reports whether email is on the official admin allowlist
func (c *Config) IsAdminEmail(email string) bool {
	return c.Auth.IsAdminEmail(email)
}

// IsAdminEmail reports whether email is on the allowlist
func (a AuthConfig) IsAdminEmail(email string) bool {
	for _, e := range a.AdminEmails {
		if strings.EqualFold(e, strings.TrimSpace(email)) {
			return true
		}
	}
	return false
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().With(zap.Error(err)).Errorw(message, "status", httpStatusCode)

	body := models.MessageError{Message: message, Error: "internal server error"}
	if httpStatusCode < http.StatusInternalServerError && err != nil {
		body.Error = err.Error()
		var ve *apierrors.ValidationError
		if errors.As(err, &ve) {
			body.Fields = ve.Fields
		}
	}
	b, _ := json.Marshal(models.ErrorMessageResponse{Response: body})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	w.Write(b)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
