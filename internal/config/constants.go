package config

import "time"

const (
	// Store backends
	StoreMemory   = "memory"
	StoreBadger   = "badger"
	StorePostgres = "postgres"

	// Image backends
	ImageBackendOpenAI = "openai"
	ImageBackendGemini = "gemini"

	// Outbound history window per chat turn
	HistoryWindow = 20

	// Persistence compaction
	MaxPersistedMessages   = 20
	MaxPersistedImageChars = 500000

	// Collaborator timeouts
	ChatTimeout  = 120 * time.Second
	ImageTimeout = 600 * time.Second

	// Sessions
	DefaultSessionID    = "default"
	DefaultSessionTitle = "New Chat"
	TitleLength         = 20

	// Canvas activity log length
	MaxCanvasLogs = 20

	// Telegram limits
	MaxTelegramMessageLen = 4096

	// Sessions per page
	SessionsPerPage = 5

	// Workspace cache eviction
	WorkspaceIdleTTL    = 2 * time.Hour
	WorkspaceSweepEvery = 10 * time.Minute
)

// SupportedRatios are the aspect ratios offered when re-targeting a proposal.
var SupportedRatios = []string{"1:1", "3:4", "4:3", "9:16", "16:9", "2:3", "3:2", "4:5", "5:4", "21:9"}

// RatioSizes maps an aspect ratio to the pixel size sent to OpenAI-format backends.
var RatioSizes = map[string]string{
	"1:1":  "1024x1024",
	"3:4":  "768x1024",
	"4:3":  "1024x768",
	"9:16": "1024x1792",
	"16:9": "1792x1024",
	"2:3":  "832x1248",
	"3:2":  "1248x832",
	"4:5":  "896x1120",
	"5:4":  "1120x896",
	"21:9": "1792x768",
}

const DefaultImageSize = "1024x1024"

// SizeForRatio returns the pixel size for ratio, or DefaultImageSize.
func SizeForRatio(ratio string) string {
	if s, ok := RatioSizes[ratio]; ok {
		return s
	}
	return DefaultImageSize
}
