package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"wellness-agent/internal/audit"
	"wellness-agent/internal/crisis"
	"wellness-agent/internal/domain"
	"wellness-agent/internal/policy"
)

const (
	defaultMaxMessageLength = 2000
	defaultHistoryWindow    = 10
	defaultProviderTimeout  = 8 * time.Second
	defaultConfigTimeout    = 2 * time.Second

	// Oversized messages are rejected but still screened; the classifier
	// sees at most this many runes of them.
	maxClassifyRunes = 8000
)

// RiskClassifier classifies a message against the active lexicon.
type RiskClassifier interface {
	Classify(text string, history []string) domain.RiskClassification
	Refresh(ctx context.Context)
}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (domain.Completion, error)
}

type MessageStore interface {
	GetRecentMessages(ctx context.Context, userID string, limit int) ([]domain.Message, error)
	SaveTurn(ctx context.Context, user, reply domain.Message) error
}

type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (domain.UserProfile, error)
}

// CrisisRecorder opens and escalates crisis events.
type CrisisRecorder interface {
	Record(ctx context.Context, userID string, c domain.RiskClassification, message, actionTaken string) (domain.CrisisEvent, error)
	Escalate(ctx context.Context, ev domain.CrisisEvent) (domain.CrisisEvent, crisis.Outcome, error)
}

// ChatConfig tunes ChatService.
type ChatConfig struct {
	MaxMessageLength int
	HistoryWindow    int
	ProviderTimeout  time.Duration
	// ConfigTimeout bounds the lexicon refresh and settings load on the
	// request path.
	ConfigTimeout   time.Duration
	TokenPricePer1K float64
}

// ChatService handles one user chat message end to end.
type ChatService struct {
	guard    *AccessGuard
	risk     RiskClassifier
	policy   *policy.Policy
	ledger   CrisisRecorder
	llm      LLMClient
	messages MessageStore
	profiles ProfileStore
	settings *SettingsCache
	audit    Auditor
	logger   *slog.Logger
	cfg      ChatConfig
	now      func() time.Time
}

// ChatDeps groups ChatService collaborators.
type ChatDeps struct {
	Guard    *AccessGuard
	Risk     RiskClassifier
	Policy   *policy.Policy
	Ledger   CrisisRecorder
	LLM      LLMClient
	Messages MessageStore
	Profiles ProfileStore
	Settings *SettingsCache
	Audit    Auditor
	Logger   *slog.Logger
}

type ChatInput struct {
	Identity  domain.Identity
	Content   string
	SessionID string
	Mode      string
	RequestID string
}

type ChatOutput struct {
	Reply         string
	Strategy      string
	Level         domain.CrisisLevel
	ExerciseID    string
	CrisisEventID string
	Degraded      bool
	RequestID     string
}

func NewChatService(d ChatDeps, cfg ChatConfig) (*ChatService, error) {
	switch {
	case d.Guard == nil:
		return nil, errors.New("usecase: access guard must not be nil")
	case d.Risk == nil:
		return nil, errors.New("usecase: risk classifier must not be nil")
	case d.Policy == nil:
		return nil, errors.New("usecase: policy must not be nil")
	case d.Ledger == nil:
		return nil, errors.New("usecase: crisis ledger must not be nil")
	case d.LLM == nil:
		return nil, errors.New("usecase: llm client must not be nil")
	case d.Messages == nil:
		return nil, errors.New("usecase: message store must not be nil")
	case d.Profiles == nil:
		return nil, errors.New("usecase: profile store must not be nil")
	case d.Settings == nil:
		return nil, errors.New("usecase: settings must not be nil")
	case d.Audit == nil:
		return nil, errors.New("usecase: auditor must not be nil")
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = defaultMaxMessageLength
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	if cfg.ConfigTimeout <= 0 {
		cfg.ConfigTimeout = defaultConfigTimeout
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		guard:    d.Guard,
		risk:     d.Risk,
		policy:   d.Policy,
		ledger:   d.Ledger,
		llm:      d.LLM,
		messages: d.Messages,
		profiles: d.Profiles,
		settings: d.Settings,
		audit:    d.Audit,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// Send classifies and answers one message. A risky message always gets
// resource text back, whether the request was invalid or denied, the limiter
// was down or the provider failed.
func (s *ChatService) Send(ctx context.Context, in ChatInput) (ChatOutput, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return ChatOutput{}, newError(ErrorValidation, "empty_message", nil)
	}
	var invalid *Error
	if utf8.RuneCountInString(content) > s.cfg.MaxMessageLength {
		invalid = newError(ErrorValidation, "message_too_long", nil)
	}
	mode, err := policy.ParseMode(in.Mode)
	if err != nil && invalid == nil {
		invalid = newError(ErrorValidation, "invalid_mode", err)
	}
	requestID := strings.TrimSpace(in.RequestID)
	if requestID == "" {
		requestID = newUUID()
	}
	userID := in.Identity.UserID
	log := s.logger.With("request_id", requestID, "user_id", userID)

	cctx, cancel := context.WithTimeout(ctx, s.cfg.ConfigTimeout)
	s.risk.Refresh(cctx)
	pol := s.policy
	settings, settingsErr := s.settings.Get(cctx)
	cancel()
	if settingsErr != nil {
		log.Error("settings unavailable; provider calls disabled", "err", settingsErr)
	} else {
		pol = pol.With(settings.ResourceText, settings.PinnedPrompt)
	}

	var history []domain.Message
	if userID != "" {
		history, err = s.messages.GetRecentMessages(ctx, userID, s.cfg.HistoryWindow)
		if err != nil {
			log.Warn("history unavailable; classifying without it", "err", err)
			history = nil
		}
	}

	screened := runePrefix(content, max(s.cfg.MaxMessageLength, maxClassifyRunes))
	c := s.risk.Classify(screened, userTexts(history))
	log = log.With("level", c.Level.String(), "intensity", c.Intensity, "triggers", strings.Join(c.TriggerNames(), ","))

	if invalid != nil {
		s.attachResources(ctx, log, invalid, userID, c, screened, pol)
		return ChatOutput{}, invalid
	}

	admitErr := s.guard.admit(ctx, in.Identity, domain.FeatureAIResponse)
	if ue, ok := AsError(admitErr); ok {
		s.attachResources(ctx, log, ue, userID, c, content, pol)
		return ChatOutput{}, ue
	}
	limiterDown := admitErr != nil

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn("profile unavailable; using defaults", "err", err)
		}
		profile = domain.UserProfile{UserID: userID}
	}

	decision := pol.Decide(c, profile, mode)
	out := ChatOutput{
		Strategy:  string(decision.Strategy),
		Level:     c.Level,
		RequestID: requestID,
	}
	if decision.Exercise != nil {
		out.ExerciseID = decision.Exercise.ID
	}

	if c.Level.AtLeast(domain.LevelMedium) {
		out.CrisisEventID = s.handleCrisis(ctx, log, userID, c, content, string(decision.Strategy))
	}

	var completion domain.Completion
	switch {
	case decision.Strategy != policy.StrategyGenerate:
		out.Reply = decision.Reply
	case limiterDown || settingsErr != nil:
		out.Reply = pol.Fallback(c, requestID)
		out.Degraded = true
	default:
		completion, err = s.generate(ctx, settings.OpenAIModel, decision.Prompt, history, content)
		if err != nil {
			log.Warn("provider unavailable; using fallback", "err", err)
			out.Reply = pol.Fallback(c, requestID)
			out.Degraded = true
			break
		}
		out.Reply = completion.Text
		if c.Level.AtLeast(domain.LevelHigh) {
			out.Reply = out.Reply + "\n\n" + pol.ResourceText()
		}
	}

	s.saveTurn(ctx, log, in, content, out, completion)
	s.auditDecision(ctx, userID, requestID, c, out)
	return out, nil
}

func (s *ChatService) generate(ctx context.Context, model string, pc policy.PromptContext, history []domain.Message, content string) (domain.Completion, error) {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	return s.llm.Chat(pctx, model, policy.BuildMessages(pc, history, content))
}

// attachResources adds resource text to a rejection of a risky message and,
// when the sender is known, records the crisis event.
func (s *ChatService) attachResources(ctx context.Context, log *slog.Logger, ue *Error, userID string, c domain.RiskClassification, content string, pol *policy.Policy) {
	if !c.Level.AtLeast(domain.LevelMedium) {
		return
	}
	ue.Resources = pol.ResourceText()
	if userID == "" {
		log.Warn("risky message from unidentified sender; no crisis event recorded")
		return
	}
	action := "DENIED_" + string(ue.Code)
	if ue.Code == ErrorValidation {
		action = "REJECTED_" + strings.ToUpper(ue.Reason)
	}
	s.handleCrisis(ctx, log, userID, c, content, action)
}

// runePrefix returns at most n runes of s.
func runePrefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// handleCrisis records the event and, for CRITICAL, escalates it. It runs
// detached from ctx cancellation and never fails the request.
func (s *ChatService) handleCrisis(ctx context.Context, log *slog.Logger, userID string, c domain.RiskClassification, content, action string) string {
	ctx = context.WithoutCancel(ctx)
	ev, err := s.ledger.Record(ctx, userID, c, content, action)
	if err != nil {
		log.Error("crisis event record failed", "err", err, "crisis_event_id", ev.ID)
		if ev.ID == "" {
			return ""
		}
	}
	if c.Level == domain.LevelCritical {
		_, outcome, err := s.ledger.Escalate(ctx, ev)
		if err != nil {
			log.Error("crisis escalation failed", "err", err, "crisis_event_id", ev.ID)
		} else {
			log.Info("crisis escalation finished", "crisis_event_id", ev.ID, "outcome", string(outcome))
		}
	}
	return ev.ID
}

func (s *ChatService) saveTurn(ctx context.Context, log *slog.Logger, in ChatInput, content string, out ChatOutput, completion domain.Completion) {
	now := s.now().UTC()
	user := domain.Message{
		ID:        newUUID(),
		UserID:    in.Identity.UserID,
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: now,
		SessionID: in.SessionID,
	}
	reply := domain.Message{
		ID:        newUUID(),
		UserID:    in.Identity.UserID,
		Role:      domain.RoleAssistant,
		Content:   out.Reply,
		CreatedAt: now.Add(time.Millisecond),
		SessionID: in.SessionID,
		Model:     completion.Model,
		Tokens:    completion.Tokens,
		Cost:      float64(completion.Tokens) / 1000 * s.cfg.TokenPricePer1K,
	}
	if err := s.messages.SaveTurn(context.WithoutCancel(ctx), user, reply); err != nil {
		log.Error("message turn write failed", "err", err, "message_id", user.ID)
	}
}

func (s *ChatService) auditDecision(ctx context.Context, userID, requestID string, c domain.RiskClassification, out ChatOutput) {
	details := map[string]string{
		"request_id": requestID,
		"strategy":   out.Strategy,
		"level":      c.Level.String(),
		"intensity":  strconv.Itoa(c.Intensity),
		"triggers":   strings.Join(c.TriggerNames(), ","),
		"high_risk":  strconv.FormatBool(c.HighRisk),
		"degraded":   strconv.FormatBool(out.Degraded),
	}
	if out.ExerciseID != "" {
		details["exercise_id"] = out.ExerciseID
	}
	if out.CrisisEventID != "" {
		details["crisis_event_id"] = out.CrisisEventID
	}
	severity := domain.SeverityInfo
	switch {
	case c.Level == domain.LevelCritical:
		severity = domain.SeverityHigh
	case c.Level == domain.LevelHigh || out.Degraded:
		severity = domain.SeverityWarn
	}
	s.audit.Append(context.WithoutCancel(ctx), domain.AuditLogEntry{
		UserID:   userID,
		Action:   audit.ActionResponseDecided,
		Resource: "chat:" + requestID,
		Severity: severity,
		Details:  details,
	})
}

func userTexts(history []domain.Message) []string {
	out := make([]string, 0, len(history))
	for _, m := range history {
		if m.Role == domain.RoleUser {
			out = append(out, m.Content)
		}
	}
	return out
}

var newUUID = func() string {
	return uuid.NewString()
}
