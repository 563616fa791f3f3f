package properties

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultDateLayout = "2006-01-02"

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func RootPath() string {
	return getEnv("ROOT_PATH", ".")
}

func DataPath(parts ...string) string {
	return strings.Join(append([]string{RootPath(), "data"}, parts...), "/")
}

func CopernicusClientIDs() []string {
	return splitList(os.Getenv("COPERNICUS_CLIENT_ID"))
}

func CopernicusClientSecrets() []string {
	return splitList(os.Getenv("COPERNICUS_CLIENT_SECRET"))
}

func CopernicusTokenURL() string {
	return getEnv("COPERNICUS_TOKEN_URL", "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token")
}

func CopernicusAPIURL() string {
	return strings.TrimSuffix(getEnv("COPERNICUS_API_URL", "https://sh.dataspace.copernicus.eu"), "/")
}

func WorldCoverBaseURL() string {
	return strings.TrimSuffix(getEnv("WORLDCOVER_BASE_URL", "https://esa-worldcover.s3.eu-central-1.amazonaws.com/v200/2021/map"), "/")
}

func ResolutionMeters() float64 {
	value, err := strconv.ParseFloat(getEnv("PDR_RESOLUTION_METERS", "20"), 64)
	if err != nil || value <= 0 {
		return 20
	}
	return value
}

// DefaultDateRange is the acquisition window searched when a request does
// not carry its own.
func DefaultDateRange() (time.Time, time.Time) {
	start, err := time.Parse(defaultDateLayout, getEnv("PDR_START_DATE", "2023-01-01"))
	if err != nil {
		start = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	end, err := time.Parse(defaultDateLayout, getEnv("PDR_END_DATE", "2023-12-31"))
	if err != nil {
		end = time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return start, end
}

func StorageBackend() string {
	return strings.ToLower(getEnv("STORAGE_BACKEND", "local"))
}

func PublicBaseURL() string {
	return strings.TrimSuffix(getEnv("PUBLIC_BASE_URL", "http://localhost:"+strconv.Itoa(Port())), "/")
}

func GCSBucket() string {
	return os.Getenv("GCS_BUCKET")
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

func Minio() MinioConfig {
	useSSL, _ := strconv.ParseBool(getEnv("MINIO_USE_SSL", "true"))
	return MinioConfig{
		Endpoint:  os.Getenv("MINIO_ENDPOINT"),
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    os.Getenv("MINIO_BUCKET"),
		Region:    getEnv("MINIO_REGION", "us-east-1"),
		UseSSL:    useSSL,
	}
}

func DownloadURLTTL() time.Duration {
	hours, err := strconv.Atoi(getEnv("DOWNLOAD_URL_TTL_HOURS", "24"))
	if err != nil || hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func Port() int {
	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil || port <= 0 {
		return 8080
	}
	return port
}

func LogLevel() string {
	return getEnv("LOG_LEVEL", "info")
}

type Color struct {
	R, G, B uint8
}

// PDRPalette maps the display range [-1, 1] from low to high.
var PDRPalette = []Color{
	{215, 25, 28},
	{253, 174, 97},
	{255, 255, 191},
	{166, 217, 106},
	{26, 150, 65},
}

func DiscordErrorNotificationUrl() string {
	return os.Getenv("DISCORD_ERROR_NOTIFICATION_URL")
}
func DiscordSuccessNotificationUrl() string {
	return os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL")
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
