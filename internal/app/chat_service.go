package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"gopherai-search/internal/ai"
	"gopherai-search/internal/model"
	"gopherai-search/internal/pipeline"
	"gopherai-search/internal/session"
)

const emptyAnswer = "The model returned an empty response."

var (
	ErrMessageEmpty          = errors.New("message content is empty")
	ErrTurnInProgress        = errors.New("a turn is already in progress for this conversation")
	ErrTranscriptionDisabled = errors.New("voice input is not configured")
)

type ImageGenerator interface {
	GenerateImage(ctx context.Context, cfg ai.ImageConfig, prompt string) ([]byte, error)
}

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, cfg ai.SpeechConfig, text string) ([]byte, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, cfg ai.SpeechConfig, audio []byte, filename, language string) (string, error)
}

// ChatDependencies are the collaborators of a turn. Images, Speech and
// Transcriber are optional.
type ChatDependencies struct {
	Store       session.Store
	Classifier  *pipeline.Classifier
	Retriever   *pipeline.Retriever
	Assembler   *pipeline.Assembler
	Streamer    *pipeline.Streamer
	Sandbox     pipeline.Sandbox
	Images      ImageGenerator
	Speech      SpeechSynthesizer
	Transcriber Transcriber
	Logger      *zap.Logger
}

type ChatOptions struct {
	Image            ai.ImageConfig
	ImageFallbackURL string
	Speech           ai.SpeechConfig
	SpeechLanguage   string
	SpeechMaxChars   int
}

type ChatService struct {
	deps ChatDependencies
	opts ChatOptions

	mu     sync.Mutex
	active map[string]struct{}
}

type TurnInput struct {
	OwnerID        string
	ConversationID string
	Content        string
	Mode           string
	Profile        string
	Speak          bool
}

type TurnResult struct {
	User      model.Turn
	Assistant model.Turn
	Intent    pipeline.Intent
	Retrieval pipeline.Retrieval
}

func NewChatService(deps ChatDependencies, opts ChatOptions) *ChatService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Assembler == nil {
		deps.Assembler = pipeline.NewAssembler(0, 0)
	}
	if opts.SpeechMaxChars <= 0 {
		opts.SpeechMaxChars = 1000
	}
	return &ChatService{deps: deps, opts: opts, active: make(map[string]struct{})}
}

func (s *ChatService) CreateConversation(ctx context.Context, ownerID, title string) (*model.Conversation, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrInvalidInput
	}
	return s.deps.Store.Create(ctx, ownerID, title)
}

func (s *ChatService) ListConversations(ctx context.Context, ownerID string) ([]model.Conversation, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrInvalidInput
	}
	return s.deps.Store.List(ctx, ownerID)
}

func (s *ChatService) DeleteConversation(ctx context.Context, ownerID, conversationID string) error {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(conversationID) == "" {
		return ErrInvalidInput
	}
	return s.deps.Store.Delete(ctx, ownerID, conversationID)
}

func (s *ChatService) History(ctx context.Context, ownerID, conversationID string) ([]model.Turn, error) {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(conversationID) == "" {
		return nil, ErrInvalidInput
	}
	return s.deps.Store.Turns(ctx, ownerID, conversationID)
}

// Transcribe converts a voice recording into the text of the next turn.
func (s *ChatService) Transcribe(ctx context.Context, ownerID, conversationID string, audio []byte, filename string) (string, error) {
	if s.deps.Transcriber == nil {
		return "", ErrTranscriptionDisabled
	}
	if _, err := s.deps.Store.Get(ctx, ownerID, conversationID); err != nil {
		return "", err
	}
	text, err := s.deps.Transcriber.Transcribe(ctx, s.opts.Speech, audio, filename, s.opts.SpeechLanguage)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrMessageEmpty
	}
	return text, nil
}

func (s *ChatService) acquire(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[conversationID]; busy {
		return false
	}
	s.active[conversationID] = struct{}{}
	return true
}

func (s *ChatService) release(conversationID string) {
	s.mu.Lock()
	delete(s.active, conversationID)
	s.mu.Unlock()
}

// turnSink forwards events until the client goes away; the turn itself
// keeps running so it can be persisted.
type turnSink struct {
	emit   func(Event) error
	gone   bool
	logger *zap.Logger
}

func (k *turnSink) send(eventType EventType, data any) {
	if k.gone || k.emit == nil {
		return
	}
	if err := k.emit(Event{Type: eventType, Data: data}); err != nil {
		k.gone = true
		k.logger.Info("turn client went away", zap.Error(err))
	}
}

func (k *turnSink) stage(payload StagePayload) {
	k.send(EventStage, payload)
}

// StreamTurn runs one turn: classify, retrieve, assemble, stream, then the
// optional code and audio stages. The user turn is appended before any
// provider call and the assistant turn is always appended, even when the
// completion provider fails.
func (s *ChatService) StreamTurn(ctx context.Context, input TurnInput, emit func(Event) error) (*TurnResult, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrMessageEmpty
	}
	if strings.TrimSpace(input.OwnerID) == "" || strings.TrimSpace(input.ConversationID) == "" {
		return nil, ErrInvalidInput
	}
	mode, err := pipeline.ParseMode(input.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if !s.acquire(input.ConversationID) {
		return nil, ErrTurnInProgress
	}
	defer s.release(input.ConversationID)

	store := s.deps.Store
	history, err := store.Turns(ctx, input.OwnerID, input.ConversationID)
	if err != nil {
		return nil, err
	}
	aux, err := store.Aux(ctx, input.OwnerID, input.ConversationID)
	if err != nil {
		return nil, err
	}
	userTurn, err := store.Append(ctx, input.OwnerID, input.ConversationID, model.Turn{Role: model.RoleUser, Content: content})
	if err != nil {
		return nil, err
	}
	history = append(history, *userTurn)

	logger := s.deps.Logger.With(zap.String("conversation_id", input.ConversationID))
	sink := &turnSink{emit: emit, logger: logger}
	result := &TurnResult{User: *userTurn}

	sink.stage(StagePayload{Stage: StageClassifying})
	result.Intent = pipeline.IntentSearch
	if s.deps.Classifier != nil {
		result.Intent = s.deps.Classifier.Classify(ctx, content, aux.HasDataset())
	}
	sink.send(EventIntent, result.Intent)

	assistant := model.Turn{Role: model.RoleAssistant}
	if result.Intent == pipeline.IntentImage {
		s.imageTurn(ctx, content, &assistant, sink, logger)
	} else {
		result.Retrieval = s.answerTurn(ctx, content, mode, input.Profile, result.Intent, aux, history, &assistant, sink, logger)
	}

	if input.Speak && s.deps.Speech != nil {
		sink.stage(StagePayload{Stage: StageAudio})
		s.audioStage(ctx, &assistant, sink, logger)
	}

	// a client disconnect cancels ctx; the assistant turn is still recorded
	persistCtx := context.WithoutCancel(ctx)
	appended, err := store.Append(persistCtx, input.OwnerID, input.ConversationID, assistant)
	if err != nil {
		logger.Error("persist assistant turn failed", zap.Error(err))
		sink.send(EventError, err.Error())
		return nil, err
	}
	result.Assistant = *appended

	sink.stage(StagePayload{Stage: StagePersisted})
	sink.send(EventDone, DonePayload{Turn: *appended, Intent: result.Intent})
	return result, nil
}

func (s *ChatService) answerTurn(
	ctx context.Context,
	query string,
	mode pipeline.Mode,
	rawProfile string,
	intent pipeline.Intent,
	aux *model.AuxContext,
	history []model.Turn,
	assistant *model.Turn,
	sink *turnSink,
	logger *zap.Logger,
) pipeline.Retrieval {
	retrieval := pipeline.Retrieval{Source: pipeline.ResolveSource(intent, mode, aux), Status: pipeline.StatusSkipped}
	if s.deps.Retriever != nil {
		sink.stage(StagePayload{Stage: StageRetrieving, Source: retrieval.Source})
		retrieval = s.deps.Retriever.Retrieve(ctx, pipeline.RetrieveRequest{Query: query, Mode: mode, Intent: intent, Aux: aux})
	}
	sink.stage(StagePayload{
		Stage:   StageRetrieving,
		Source:  retrieval.Source,
		Status:  retrieval.Status,
		Message: retrievalMessage(retrieval),
	})
	if len(retrieval.Evidence) > 0 {
		sink.send(EventEvidence, evidencePayload(retrieval.Evidence))
	}
	assistant.Evidence = retrieval.Evidence

	sink.stage(StagePayload{Stage: StageAssembling})
	instruction := s.deps.Assembler.Assemble(retrieval.Evidence, aux)

	profile := pipeline.ParseProfile(rawProfile)
	if mode == pipeline.ModeDeep {
		profile = pipeline.ProfileSmart
	}

	sink.stage(StagePayload{Stage: StageStreaming})
	var full strings.Builder
	if s.deps.Streamer != nil {
		for fragment := range s.deps.Streamer.Stream(ctx, instruction, history, profile) {
			full.WriteString(fragment)
			sink.send(EventFragment, fragment)
		}
	}
	answer := full.String()
	if strings.TrimSpace(answer) == "" {
		answer += emptyAnswer
		sink.send(EventFragment, emptyAnswer)
	}
	assistant.Content = answer

	if aux.HasDataset() && s.deps.Sandbox != nil {
		if code, ok := pipeline.ExtractCode(answer); ok {
			sink.stage(StagePayload{Stage: StageCodeExec})
			assistant.Code = code
			res := s.deps.Sandbox.Run(ctx, code, aux.Dataset)
			assistant.Charts = res.Charts
			if !res.OK() {
				logger.Warn("generated code failed", zap.Error(res.Err))
				assistant.ExecError = res.Err.Error()
				sink.send(EventCodeError, assistant.ExecError)
			} else if len(res.Charts) > 0 || res.Output != "" {
				sink.send(EventChart, ChartPayload{Charts: res.Charts, Output: res.Output})
			}
		}
	}
	return retrieval
}

func (s *ChatService) imageTurn(ctx context.Context, query string, assistant *model.Turn, sink *turnSink, logger *zap.Logger) {
	sink.stage(StagePayload{Stage: StageImage})
	prompt := pipeline.ImagePrompt(query)
	artifact := &model.ImageArtifact{Prompt: prompt}

	var err error
	if s.deps.Images != nil {
		var data []byte
		data, err = s.deps.Images.GenerateImage(ctx, s.opts.Image, prompt)
		if err == nil {
			artifact.MIMEType = "image/png"
			artifact.Data = data
		}
	}
	if s.deps.Images == nil || err != nil {
		if err != nil {
			logger.Warn("image generation failed, using fallback url", zap.Error(err))
		}
		artifact.URL = s.fallbackImageURL(prompt)
	}

	assistant.Image = artifact
	assistant.Content = fmt.Sprintf("Here is an image of %s.", prompt)
	sink.send(EventImage, artifact)
	sink.send(EventFragment, assistant.Content)
}

func (s *ChatService) fallbackImageURL(prompt string) string {
	tmpl := s.opts.ImageFallbackURL
	if tmpl == "" {
		return ""
	}
	if strings.Contains(tmpl, "%s") {
		return fmt.Sprintf(tmpl, url.PathEscape(prompt))
	}
	return tmpl
}

func (s *ChatService) audioStage(ctx context.Context, assistant *model.Turn, sink *turnSink, logger *zap.Logger) {
	text := pipeline.SpeechText(assistant.Content, s.opts.SpeechMaxChars)
	if text == "" || strings.HasPrefix(strings.TrimSpace(assistant.Content), pipeline.ErrorMarker) {
		return
	}
	data, err := s.deps.Speech.Synthesize(ctx, s.opts.Speech, text)
	if err != nil {
		logger.Warn("speech synthesis failed", zap.Error(err))
		return
	}
	assistant.Audio = &model.AudioArtifact{Format: "mp3", Language: s.opts.SpeechLanguage, Data: data}
	sink.send(EventAudio, assistant.Audio)
}
