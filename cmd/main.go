package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	"wellness-agent/handler"
	"wellness-agent/internal/audit"
	"wellness-agent/internal/crisis"
	"wellness-agent/internal/domain"
	"wellness-agent/internal/entitlement"
	"wellness-agent/internal/integrations/notify"
	"wellness-agent/internal/integrations/openai"
	"wellness-agent/internal/integrations/paramstore"
	"wellness-agent/internal/logging"
	"wellness-agent/internal/policy"
	"wellness-agent/internal/ratelimit"
	"wellness-agent/internal/repository"
	"wellness-agent/internal/retry"
	"wellness-agent/internal/risk"
	"wellness-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// Local runs only; Lambda has no .env file.
	_ = godotenv.Load()

	logger, err := logging.Setup(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	if err != nil {
		slog.Error("failed to configure logging", "err", err)
		os.Exit(1)
	}

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := strings.TrimRight(mustEnv("PARAM_PREFIX"), "/")
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", 2000)
	historyWindow := envInt("HISTORY_WINDOW", 10)
	providerTimeout := envDuration("PROVIDER_TIMEOUT", 8*time.Second)
	configTimeout := envDuration("CONFIG_TIMEOUT", 2*time.Second)
	highIntensity := envInt("HIGH_INTENSITY_THRESHOLD", 7)
	lexiconRefresh := envDuration("LEXICON_REFRESH", 5*time.Minute)
	lexiconFile := os.Getenv("LEXICON_FILE")
	webhookURL := os.Getenv("EMERGENCY_WEBHOOK_URL")
	tokenPrice := envFloat("TOKEN_PRICE_PER_1K", 0)
	voiceTTL := envDuration("VOICE_SESSION_TTL", 15*time.Minute)
	rules := map[domain.Feature]ratelimit.Rule{
		domain.FeatureAIResponse:      envRule("CHAT", 30, time.Hour),
		domain.FeatureVoiceSession:    envRule("VOICE", 5, time.Hour),
		domain.FeatureSpeechSynthesis: envRule("SPEECH", 60, time.Hour),
	}
	gateCfg := entitlement.Config{
		FreeFeatures:  features(envList("FREE_FEATURES", []string{string(domain.FeatureAIResponse)})),
		BypassUserIDs: envList("ENTITLEMENT_BYPASS_USERS", nil),
		AllowAll:      envBool("ENTITLEMENT_ALLOW_ALL", false),
	}

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		logger.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		logger.Error("failed to create state client", "err", err)
		os.Exit(1)
	}
	openaiClient, err := openai.NewClient(ssmClient, paramPrefix)
	if err != nil {
		logger.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}
	var notifyOpts []notify.Option
	if token := optionalParam(ctx, ssmClient, paramPrefix+"/crisis/webhook_token"); token != "" {
		notifyOpts = append(notifyOpts, notify.WithBearerToken(token))
	}
	notifier := notify.New(webhookURL, notifyOpts...)
	if webhookURL == "" {
		logger.Warn("EMERGENCY_WEBHOOK_URL is not set; CRITICAL events will be flagged for human follow-up only")
	}

	// ---- Core components ----
	queue := retry.New(retry.WithLogger(logger))
	auditLog, err := audit.New(store, queue, logger)
	if err != nil {
		logger.Error("failed to create audit log", "err", err)
		os.Exit(1)
	}
	ledger, err := crisis.NewLedger(store, store, notifier, auditLog, queue, crisis.Config{}, logger)
	if err != nil {
		logger.Error("failed to create crisis ledger", "err", err)
		os.Exit(1)
	}
	limiter, err := ratelimit.New(store)
	if err != nil {
		logger.Error("failed to create rate limiter", "err", err)
		os.Exit(1)
	}
	guard, err := usecase.NewAccessGuard(entitlement.NewGate(gateCfg), limiter, rules, auditLog, logger)
	if err != nil {
		logger.Error("failed to create access guard", "err", err)
		os.Exit(1)
	}
	pol, err := policy.New(policy.Config{HighIntensityThreshold: highIntensity})
	if err != nil {
		logger.Error("failed to create response policy", "err", err)
		os.Exit(1)
	}
	holder, err := newRiskHolder(ctx, logger, ssmClient, paramPrefix, lexiconFile, lexiconRefresh, configTimeout)
	if err != nil {
		logger.Error("failed to load risk lexicon", "err", err)
		os.Exit(1)
	}
	settings, err := usecase.NewSettingsCache(ssmClient, paramPrefix)
	if err != nil {
		logger.Error("failed to create settings cache", "err", err)
		os.Exit(1)
	}

	// ---- Use cases ----
	chatService, err := usecase.NewChatService(usecase.ChatDeps{
		Guard:    guard,
		Risk:     holder,
		Policy:   pol,
		Ledger:   ledger,
		LLM:      openaiClient,
		Messages: store,
		Profiles: store,
		Settings: settings,
		Audit:    auditLog,
		Logger:   logger,
	}, usecase.ChatConfig{
		MaxMessageLength: maxMessageLen,
		HistoryWindow:    historyWindow,
		ProviderTimeout:  providerTimeout,
		ConfigTimeout:    configTimeout,
		TokenPricePer1K:  tokenPrice,
	})
	if err != nil {
		logger.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}
	voiceService, err := usecase.NewVoiceService(guard, voiceTTL)
	if err != nil {
		logger.Error("failed to create voice service", "err", err)
		os.Exit(1)
	}
	speechService, err := usecase.NewSpeechService(guard, openaiClient, settings, providerTimeout, logger)
	if err != nil {
		logger.Error("failed to create speech service", "err", err)
		os.Exit(1)
	}
	crisisService, err := usecase.NewCrisisService(ledger)
	if err != nil {
		logger.Error("failed to create crisis service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(chatService, voiceService, speechService, crisisService, queue)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

// newRiskHolder loads the lexicon from LEXICON_FILE (watched for changes) or
// from Parameter Store. A missing parameter keeps the built-in table.
func newRiskHolder(ctx context.Context, logger *slog.Logger, ps *paramstore.Client, prefix, file string, refresh, loadTimeout time.Duration) (*risk.Holder, error) {
	builtin := risk.DefaultLexicon()
	if file != "" {
		src, err := risk.NewFileSource(file)
		if err != nil {
			return nil, err
		}
		h, err := risk.NewHolder(builtin, src, risk.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if err := h.Reload(ctx); err != nil {
			return nil, err
		}
		if err := h.WatchFile(ctx, src.Path()); err != nil {
			logger.Warn("lexicon file watch unavailable", "err", err, "path", src.Path())
		}
		return h, nil
	}

	src, err := risk.NewParamSource(ps, prefix+"/risk/lexicon")
	if err != nil {
		return nil, err
	}
	h, err := risk.NewHolder(builtin, src, risk.WithLogger(logger), risk.WithRefreshInterval(refresh), risk.WithLoadTimeout(loadTimeout))
	if err != nil {
		return nil, err
	}
	err = h.Reload(ctx)
	switch {
	case err == nil:
		return h, nil
	case errors.Is(err, paramstore.ErrParameterNotFound):
		logger.Info("no lexicon parameter; using built-in table")
		return risk.NewHolder(builtin, nil, risk.WithLogger(logger))
	default:
		// An invalid or unreachable table at cold start must not block
		// classification; the holder keeps retrying on refresh.
		logger.Error("lexicon load failed; starting with built-in table", "err", err)
		return h, nil
	}
}

func optionalParam(ctx context.Context, ps *paramstore.Client, name string) string {
	v, err := ps.GetParameter(ctx, name)
	if err != nil {
		if !errors.Is(err, paramstore.ErrParameterNotFound) {
			slog.Warn("optional parameter unavailable", "name", name, "err", err)
		}
		return ""
	}
	return strings.TrimSpace(v)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// envRule reads <PREFIX>_LIMIT and <PREFIX>_WINDOW.
func envRule(prefix string, limit int, window time.Duration) ratelimit.Rule {
	return ratelimit.Rule{
		Limit:  envInt(prefix+"_LIMIT", limit),
		Window: envDuration(prefix+"_WINDOW", window),
	}
}

func features(names []string) []domain.Feature {
	out := make([]domain.Feature, 0, len(names))
	for _, n := range names {
		out = append(out, domain.Feature(strings.ToLower(n)))
	}
	return out
}
